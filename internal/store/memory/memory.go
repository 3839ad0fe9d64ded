// Package memory is the in-memory Repository used for dev mode and tests.
// It seeds the catalog, employees and register with the demo dataset.
package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"frentedecaixa/backend/internal/domain"
	"frentedecaixa/backend/internal/store"
	"frentedecaixa/backend/internal/xid"
)

type Store struct {
	mu                 sync.RWMutex
	productsByID       map[string]domain.Product
	groupsByID         map[string]domain.Group
	employeesByID      map[string]domain.Employee
	employeeIDByUser   map[string]string
	register           domain.Register
	ledger             []domain.LedgerEntry
	salesByID          map[string]domain.Sale
	auditLogs          []domain.AuditLog
	productInsertOrder []string
	groupInsertOrder   []string
}

// seedEmployees builds the demo login accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev defaults are
// used with a logged warning when unset. Production runs against Postgres.
func seedEmployees() (map[string]domain.Employee, map[string]string) {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "caixa123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Warn().Msg("memory store: using default dev credentials, set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	byID := map[string]domain.Employee{}
	byUser := map[string]string{}
	for _, e := range []struct {
		id       string
		name     string
		username string
		password string
		role     string
	}{
		{"emp_nathan", "Nathan", "nathan", adminPwd, domain.RoleAdministrador},
		{"emp_teste", "Teste", "teste", cashierPwd, domain.RoleCaixa},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(e.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("username", e.username).Msg("memory store: hashing seed password")
		}
		byID[e.id] = domain.Employee{
			ID:           e.id,
			Name:         e.name,
			Username:     e.username,
			Role:         e.role,
			Active:       true,
			CreatedAt:    now,
			PasswordHash: string(hash),
		}
		byUser[e.username] = e.id
	}
	return byID, byUser
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	groups := []domain.Group{
		{ID: "grp_geral", Name: "Geral"},
		{ID: "grp_bebidas", Name: "Bebidas"},
		{ID: "grp_lanches", Name: "Lanches"},
	}
	products := []domain.Product{
		{ID: "prd_brahma", Name: "Brahma", PriceCents: 500, GroupID: "grp_bebidas", Stock: 24, Active: true},
		{ID: "prd_pao", Name: "Pão", PriceCents: 100, GroupID: "grp_lanches", Stock: 50, Active: true},
		{ID: "prd_coca", Name: "Coca-Cola", PriceCents: 450, GroupID: "grp_bebidas", Stock: 36, Active: true},
		{ID: "prd_agua", Name: "Água", PriceCents: 200, GroupID: "grp_bebidas", Stock: 48, Active: true},
		{ID: "prd_salgadinho", Name: "Salgadinho", PriceCents: 350, GroupID: "grp_lanches", Stock: 20, Active: true},
		{ID: "prd_chocolate", Name: "Chocolate", PriceCents: 250, GroupID: "grp_lanches", Stock: 30, Active: true},
	}

	groupMap := make(map[string]domain.Group, len(groups))
	groupOrder := make([]string, 0, len(groups))
	for _, g := range groups {
		groupMap[g.ID] = g
		groupOrder = append(groupOrder, g.ID)
	}
	productMap := make(map[string]domain.Product, len(products))
	productOrder := make([]string, 0, len(products))
	for _, p := range products {
		productMap[p.ID] = p
		productOrder = append(productOrder, p.ID)
	}

	employees, usernames := seedEmployees()
	now := time.Now().UTC()

	return &Store{
		productsByID:       productMap,
		groupsByID:         groupMap,
		employeesByID:      employees,
		employeeIDByUser:   usernames,
		productInsertOrder: productOrder,
		groupInsertOrder:   groupOrder,
		register: domain.Register{
			OpeningCents:     10000,
			SalesCents:       85050,
			WithdrawalsCents: 20000,
			CurrentCents:     75050,
		},
		ledger: []domain.LedgerEntry{
			{ID: xid.New("led"), Type: domain.LedgerEntrada, AmountCents: 10000, Description: "Abertura de caixa", CreatedAt: now.Add(-8 * time.Hour)},
			{ID: xid.New("led"), Type: domain.LedgerEntrada, AmountCents: 85050, Description: "Vendas do dia", CreatedAt: now.Add(-4 * time.Hour)},
			{ID: xid.New("led"), Type: domain.LedgerSangria, AmountCents: 20000, Description: "Sangria para cofre", CreatedAt: now.Add(-2 * time.Hour)},
		},
		salesByID: make(map[string]domain.Sale),
		auditLogs: make([]domain.AuditLog, 0, 128),
	}
}

// NewEmpty returns a store with no seed data. Used by tests that want full
// control over the fixtures.
func NewEmpty() *Store {
	return &Store{
		productsByID:     make(map[string]domain.Product),
		groupsByID:       make(map[string]domain.Group),
		employeesByID:    make(map[string]domain.Employee),
		employeeIDByUser: make(map[string]string),
		salesByID:        make(map[string]domain.Sale),
		auditLogs:        make([]domain.AuditLog, 0, 16),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, id := range s.productInsertOrder {
		if p, ok := s.productsByID[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.productsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.PriceCents < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.groupsByID[product.GroupID]; !exists {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	product.Active = true
	s.productsByID[product.ID] = product
	s.productInsertOrder = append(s.productInsertOrder, product.ID)
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	current, exists := s.productsByID[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if _, exists := s.groupsByID[product.GroupID]; !exists {
		return nil, store.ErrInvalidInput
	}
	product.Stock = current.Stock
	s.productsByID[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.productsByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.productsByID, id)
	s.productInsertOrder = slices.DeleteFunc(s.productInsertOrder, func(pid string) bool {
		return pid == id
	})
	return nil
}

func (s *Store) ListGroups(_ context.Context) ([]domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]domain.Group, 0, len(s.groupsByID))
	for _, id := range s.groupInsertOrder {
		if g, ok := s.groupsByID[id]; ok {
			groups = append(groups, g)
		}
	}
	return groups, nil
}

func (s *Store) GetGroup(_ context.Context, id string) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, exists := s.groupsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyGroup := group
	return &copyGroup, nil
}

func (s *Store) CreateGroup(_ context.Context, group domain.Group) (*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(group.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if group.ID == "" {
		group.ID = xid.New("grp")
	}
	s.groupsByID[group.ID] = group
	s.groupInsertOrder = append(s.groupInsertOrder, group.ID)
	created := group
	return &created, nil
}

func (s *Store) UpdateGroup(_ context.Context, group domain.Group) (*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(group.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.groupsByID[group.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.groupsByID[group.ID] = group
	updated := group
	return &updated, nil
}

func (s *Store) DeleteGroup(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groupsByID[id]; !exists {
		return store.ErrNotFound
	}
	for _, p := range s.productsByID {
		if p.GroupID == id {
			return store.ErrGroupInUse
		}
	}
	delete(s.groupsByID, id)
	s.groupInsertOrder = slices.DeleteFunc(s.groupInsertOrder, func(gid string) bool {
		return gid == id
	})
	return nil
}

func (s *Store) ListEmployees(_ context.Context) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employees := make([]domain.Employee, 0, len(s.employeesByID))
	for _, e := range s.employeesByID {
		employees = append(employees, e)
	}
	slices.SortFunc(employees, func(a, b domain.Employee) int {
		return cmpString(a.Username, b.Username)
	})
	return employees, nil
}

func (s *Store) GetEmployee(_ context.Context, id string) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	employee, exists := s.employeesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyEmployee := employee
	return &copyEmployee, nil
}

func (s *Store) GetEmployeeByUsername(_ context.Context, username string) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.employeeIDByUser[strings.ToLower(strings.TrimSpace(username))]
	if !exists {
		return nil, store.ErrNotFound
	}
	employee := s.employeesByID[id]
	copyEmployee := employee
	return &copyEmployee, nil
}

func (s *Store) CreateEmployee(_ context.Context, employee domain.Employee) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	employee.Username = strings.ToLower(strings.TrimSpace(employee.Username))
	if employee.Name == "" || employee.Username == "" || employee.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}
	if !domain.ValidRole(employee.Role) {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.employeeIDByUser[employee.Username]; exists {
		return nil, store.ErrDuplicateUsername
	}
	if employee.ID == "" {
		employee.ID = xid.New("emp")
	}
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = time.Now().UTC()
	}
	employee.Active = true
	s.employeesByID[employee.ID] = employee
	s.employeeIDByUser[employee.Username] = employee.ID
	created := employee
	return &created, nil
}

func (s *Store) UpdateEmployee(_ context.Context, employee domain.Employee) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.employeesByID[employee.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if employee.Name == "" || !domain.ValidRole(employee.Role) {
		return nil, store.ErrInvalidInput
	}
	// Username is immutable; it anchors the audit trail.
	employee.Username = current.Username
	employee.CreatedAt = current.CreatedAt
	if employee.PasswordHash == "" {
		employee.PasswordHash = current.PasswordHash
	}
	s.employeesByID[employee.ID] = employee
	updated := employee
	return &updated, nil
}

func (s *Store) DeleteEmployee(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	employee, exists := s.employeesByID[id]
	if !exists {
		return store.ErrNotFound
	}
	delete(s.employeesByID, id)
	delete(s.employeeIDByUser, employee.Username)
	return nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[productID]
	if !exists {
		return 0, store.ErrNotFound
	}
	next := product.Stock + delta
	if next < 0 {
		next = 0
	}
	product.Stock = next
	s.productsByID[productID] = product
	return next, nil
}

func (s *Store) SetStock(_ context.Context, productID string, qty int) error {
	if qty < 0 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[productID]
	if !exists {
		return store.ErrNotFound
	}
	product.Stock = qty
	s.productsByID[productID] = product
	return nil
}

func (s *Store) GetRegister(_ context.Context) (*domain.Register, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copyRegister := s.register
	return &copyRegister, nil
}

func (s *Store) Withdraw(_ context.Context, amountCents int64, description string, at time.Time) (*domain.LedgerEntry, error) {
	if amountCents <= 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if amountCents > s.register.CurrentCents {
		return nil, store.ErrInsufficientFunds
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	s.register.WithdrawalsCents += amountCents
	s.register.CurrentCents -= amountCents

	entry := domain.LedgerEntry{
		ID:          xid.New("led"),
		Type:        domain.LedgerSangria,
		AmountCents: amountCents,
		Description: description,
		CreatedAt:   at,
	}
	s.ledger = append(s.ledger, entry)
	return &entry, nil
}

func (s *Store) RecordSaleIncome(_ context.Context, amountCents int64, description string, at time.Time) error {
	if amountCents < 0 {
		return store.ErrInvalidInput
	}
	if amountCents == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if at.IsZero() {
		at = time.Now().UTC()
	}
	s.register.SalesCents += amountCents
	s.register.CurrentCents += amountCents
	s.ledger = append(s.ledger, domain.LedgerEntry{
		ID:          xid.New("led"),
		Type:        domain.LedgerEntrada,
		AmountCents: amountCents,
		Description: description,
		CreatedAt:   at,
	})
	return nil
}

func (s *Store) ListLedger(_ context.Context, limit int) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.LedgerEntry, len(s.ledger))
	copy(result, s.ledger)
	slices.SortFunc(result, func(a, b domain.LedgerEntry) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Lines) == 0 || len(sale.Allocations) == 0 {
		return nil, store.ErrInvalidInput
	}
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusPaid
	}
	s.salesByID[sale.ID] = cloneSale(sale)
	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) ListSales(_ context.Context, from, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src domain.Sale) domain.Sale {
	dup := src
	lines := make([]domain.CartLine, len(src.Lines))
	copy(lines, src.Lines)
	dup.Lines = lines
	allocs := make([]domain.PaymentAllocation, len(src.Allocations))
	copy(allocs, src.Allocations)
	dup.Allocations = allocs
	return dup
}

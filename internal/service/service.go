// Package service owns the business rules: catalog validation, stock
// policy, the cash drawer, sale sessions and reporting. Handlers stay thin
// and stores stay dumb.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"frentedecaixa/backend/internal/cache"
	"frentedecaixa/backend/internal/cart"
	"frentedecaixa/backend/internal/domain"
	"frentedecaixa/backend/internal/payment"
	"frentedecaixa/backend/internal/store"
	"frentedecaixa/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// ErrSaleNotFound covers expired or abandoned sale sessions. Sessions are
// in-memory only; a restart drops them all.
var ErrSaleNotFound = errors.New("sale session not found")

const minPasswordLen = 6

type Options struct {
	CatalogTTL     time.Duration
	SaleResetAfter time.Duration
	TerminalID     string
}

type Service struct {
	repo       store.Repository
	catalog    cache.CatalogCache
	authorizer payment.Authorizer
	opts       Options

	mu       sync.Mutex
	sessions map[string]*payment.Session
}

func New(repo store.Repository, catalog cache.CatalogCache, authorizer payment.Authorizer, opts Options) *Service {
	if catalog == nil {
		catalog = cache.NoopCatalogCache{}
	}
	if opts.CatalogTTL <= 0 {
		opts.CatalogTTL = 30 * time.Second
	}
	if opts.SaleResetAfter <= 0 {
		opts.SaleResetAfter = 5 * time.Second
	}
	if opts.TerminalID == "" {
		opts.TerminalID = "caixa-01"
	}

	return &Service{
		repo:       repo,
		catalog:    catalog,
		authorizer: authorizer,
		opts:       opts,
		sessions:   make(map[string]*payment.Session),
	}
}

// --- Catalog ---

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	cached, hit, err := s.catalog.GetProducts(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("catalog cache read failed")
	}
	if hit {
		return cached, nil
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.SetProducts(ctx, products, s.opts.CatalogTTL); err != nil {
		log.Warn().Err(err).Msg("catalog cache write failed")
	}
	return products, nil
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if err := s.catalog.Invalidate(ctx); err != nil {
		log.Warn().Err(err).Msg("catalog cache invalidation failed")
	}
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.PriceCents < 0 || req.InitialStock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}
	if _, err := s.repo.GetGroup(ctx, req.GroupID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Product{}, store.ErrInvalidInput
		}
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:       req.Name,
		PriceCents: req.PriceCents,
		GroupID:    req.GroupID,
		Stock:      req.InitialStock,
		Active:     true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%d,stock=%d", created.Name, created.PriceCents, created.Stock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PriceCents = *req.PriceCents
	}
	if req.GroupID != nil {
		if _, err := s.repo.GetGroup(ctx, *req.GroupID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Product{}, store.ErrInvalidInput
			}
			return domain.Product{}, err
		}
		updated.GroupID = *req.GroupID
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("name=%s,price=%d,active=%t", saved.Name, saved.PriceCents, saved.Active))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

func (s *Service) ListGroups(ctx context.Context) ([]domain.Group, error) {
	return s.repo.ListGroups(ctx)
}

func (s *Service) CreateGroup(ctx context.Context, req domain.GroupCreateRequest) (domain.Group, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Group{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateGroup(ctx, domain.Group{Name: name})
	if err != nil {
		return domain.Group{}, err
	}

	s.logAudit(ctx, "group_create", "group", created.ID, name)
	return *created, nil
}

func (s *Service) UpdateGroup(ctx context.Context, id string, req domain.GroupUpdateRequest) (domain.Group, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Group{}, store.ErrInvalidInput
	}

	updated, err := s.repo.UpdateGroup(ctx, domain.Group{ID: id, Name: name})
	if err != nil {
		return domain.Group{}, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "group_update", "group", id, name)
	return *updated, nil
}

func (s *Service) DeleteGroup(ctx context.Context, id string) error {
	if err := s.repo.DeleteGroup(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "group_delete", "group", id, "")
	return nil
}

// --- Employees ---

func (s *Service) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	return s.repo.ListEmployees(ctx)
}

func (s *Service) CreateEmployee(ctx context.Context, req domain.EmployeeCreateRequest) (domain.Employee, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	if req.Name == "" || req.Username == "" {
		return domain.Employee{}, store.ErrInvalidInput
	}
	if !domain.ValidRole(req.Role) {
		return domain.Employee{}, store.ErrInvalidInput
	}
	if len(req.Password) < minPasswordLen {
		return domain.Employee{}, store.ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Employee{}, err
	}

	created, err := s.repo.CreateEmployee(ctx, domain.Employee{
		Name:         req.Name,
		Username:     req.Username,
		Role:         req.Role,
		PasswordHash: string(hash),
	})
	if err != nil {
		return domain.Employee{}, err
	}

	s.logAudit(ctx, "employee_create", "employee", created.ID, fmt.Sprintf("username=%s,role=%s", created.Username, created.Role))
	return *created, nil
}

func (s *Service) UpdateEmployee(ctx context.Context, id string, req domain.EmployeeUpdateRequest) (domain.Employee, error) {
	existing, err := s.repo.GetEmployee(ctx, id)
	if err != nil {
		return domain.Employee{}, err
	}

	updated := *existing
	updated.PasswordHash = ""
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Employee{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Role != nil {
		if !domain.ValidRole(*req.Role) {
			return domain.Employee{}, store.ErrInvalidInput
		}
		updated.Role = *req.Role
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if req.Password != nil {
		if len(*req.Password) < minPasswordLen {
			return domain.Employee{}, store.ErrInvalidInput
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.Employee{}, err
		}
		updated.PasswordHash = string(hash)
	}

	saved, err := s.repo.UpdateEmployee(ctx, updated)
	if err != nil {
		return domain.Employee{}, err
	}

	s.logAudit(ctx, "employee_update", "employee", saved.ID, fmt.Sprintf("role=%s,active=%t", saved.Role, saved.Active))
	return *saved, nil
}

func (s *Service) DeleteEmployee(ctx context.Context, id string) error {
	existing, err := s.repo.GetEmployee(ctx, id)
	if err != nil {
		return err
	}
	if actor, ok := ActorFromContext(ctx); ok && actor.Username == existing.Username {
		return store.ErrInvalidInput
	}

	if err := s.repo.DeleteEmployee(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "employee_delete", "employee", id, existing.Username)
	return nil
}

// --- Stock ---

func (s *Service) ListStock(ctx context.Context) ([]domain.StockView, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]domain.StockView, 0, len(products))
	for _, p := range products {
		views = append(views, domain.StockView{
			ProductID: p.ID,
			Name:      p.Name,
			GroupID:   p.GroupID,
			Stock:     p.Stock,
		})
	}
	return views, nil
}

func (s *Service) AdjustStock(ctx context.Context, productID string, delta int) (domain.StockView, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.StockView{}, err
	}

	next, err := s.repo.AdjustStock(ctx, productID, delta)
	if err != nil {
		return domain.StockView{}, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "stock_adjust", "product", productID, fmt.Sprintf("delta=%d,stock=%d", delta, next))
	return domain.StockView{ProductID: product.ID, Name: product.Name, GroupID: product.GroupID, Stock: next}, nil
}

func (s *Service) SetStock(ctx context.Context, productID string, qty int) (domain.StockView, error) {
	if qty < 0 {
		return domain.StockView{}, store.ErrInvalidInput
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.StockView{}, err
	}

	if err := s.repo.SetStock(ctx, productID, qty); err != nil {
		return domain.StockView{}, err
	}

	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "stock_set", "product", productID, fmt.Sprintf("stock=%d", qty))
	return domain.StockView{ProductID: product.ID, Name: product.Name, GroupID: product.GroupID, Stock: qty}, nil
}

// --- Cash register ---

func (s *Service) GetRegister(ctx context.Context, withLedger bool, ledgerLimit int) (domain.RegisterView, error) {
	register, err := s.repo.GetRegister(ctx)
	if err != nil {
		return domain.RegisterView{}, err
	}

	view := domain.RegisterView{Register: *register}
	if withLedger {
		ledger, err := s.repo.ListLedger(ctx, ledgerLimit)
		if err != nil {
			return domain.RegisterView{}, err
		}
		view.Ledger = ledger
	}
	return view, nil
}

func (s *Service) Withdraw(ctx context.Context, req domain.WithdrawalRequest) (domain.LedgerEntry, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Sangria"
	}

	entry, err := s.repo.Withdraw(ctx, req.AmountCents, description, time.Now().UTC())
	if err != nil {
		return domain.LedgerEntry{}, err
	}

	s.logAudit(ctx, "register_withdraw", "register", entry.ID, fmt.Sprintf("amount=%d", entry.AmountCents))
	return *entry, nil
}

// --- Sale sessions ---

func (s *Service) OpenSale(ctx context.Context, req domain.SaleOpenRequest) (domain.SaleView, error) {
	terminalID := strings.TrimSpace(req.TerminalID)
	if terminalID == "" {
		terminalID = s.opts.TerminalID
	}

	session := payment.NewSession(xid.New("ses"), terminalID, s.opts.SaleResetAfter)
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	return session.Snapshot(), nil
}

func (s *Service) session(id string) (*payment.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSaleNotFound
	}
	return session, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.SaleView, error) {
	session, err := s.session(id)
	if err != nil {
		return domain.SaleView{}, err
	}
	return session.Snapshot(), nil
}

func (s *Service) AddSaleLine(ctx context.Context, saleID string, req domain.SaleLineRequest) (domain.SaleView, error) {
	session, err := s.session(saleID)
	if err != nil {
		return domain.SaleView{}, err
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.SaleView{}, err
	}
	if !product.Active {
		return domain.SaleView{}, store.ErrNotFound
	}

	if err := session.AddProduct(*product); err != nil {
		return domain.SaleView{}, err
	}
	return session.Snapshot(), nil
}

func (s *Service) ChangeSaleQuantity(ctx context.Context, saleID, productID string, req domain.SaleQuantityRequest) (domain.SaleView, error) {
	session, err := s.session(saleID)
	if err != nil {
		return domain.SaleView{}, err
	}
	if err := session.ChangeQuantity(productID, req.Delta); err != nil {
		return domain.SaleView{}, err
	}
	return session.Snapshot(), nil
}

func (s *Service) RemoveSaleLine(ctx context.Context, saleID, productID string) (domain.SaleView, error) {
	session, err := s.session(saleID)
	if err != nil {
		return domain.SaleView{}, err
	}
	if err := session.RemoveLine(productID); err != nil {
		return domain.SaleView{}, err
	}
	return session.Snapshot(), nil
}

func (s *Service) AddSaleAllocation(ctx context.Context, saleID string, req domain.AllocationCreateRequest) (domain.SaleView, error) {
	session, err := s.session(saleID)
	if err != nil {
		return domain.SaleView{}, err
	}
	if err := session.AddAllocation(req.Method); err != nil {
		return domain.SaleView{}, err
	}
	return session.Snapshot(), nil
}

func (s *Service) SetSaleAllocationAmount(ctx context.Context, saleID, allocationID string, req domain.AllocationAmountRequest) (domain.SaleView, error) {
	session, err := s.session(saleID)
	if err != nil {
		return domain.SaleView{}, err
	}
	if err := session.SetAllocationAmount(allocationID, req.AmountCents); err != nil {
		return domain.SaleView{}, err
	}
	return session.Snapshot(), nil
}

func (s *Service) RemoveSaleAllocation(ctx context.Context, saleID, allocationID string) (domain.SaleView, error) {
	session, err := s.session(saleID)
	if err != nil {
		return domain.SaleView{}, err
	}
	if err := session.RemoveAllocation(allocationID); err != nil {
		return domain.SaleView{}, err
	}
	return session.Snapshot(), nil
}

func (s *Service) AbandonSale(ctx context.Context, saleID string) error {
	session, err := s.session(saleID)
	if err != nil {
		return err
	}

	session.Reset()
	s.mu.Lock()
	delete(s.sessions, saleID)
	s.mu.Unlock()

	s.logAudit(ctx, "sale_abandon", "sale", saleID, "")
	return nil
}

// SubmitSale authorizes the balanced payment, records the sale, decrements
// stock per line and credits the cash portion to the drawer. A failure in
// any of those thaws the session for another attempt.
func (s *Service) SubmitSale(ctx context.Context, saleID string) (domain.CheckoutReceipt, error) {
	session, err := s.session(saleID)
	if err != nil {
		return domain.CheckoutReceipt{}, err
	}

	actor, _ := ActorFromContext(ctx)
	snapshot := session.Snapshot()

	var recorded *domain.Sale
	commit := func(ctx context.Context, lines []domain.CartLine, allocs []domain.PaymentAllocation, authCode string) error {
		sale, err := s.repo.CreateSale(ctx, domain.Sale{
			TerminalID:    snapshot.TerminalID,
			Lines:         lines,
			Allocations:   allocs,
			SubtotalCents: cart.SubtotalCents(lines),
			Status:        domain.SaleStatusPaid,
			AuthCode:      authCode,
			SoldBy:        actor.Username,
			CreatedAt:     time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		recorded = sale

		for _, line := range lines {
			if _, err := s.repo.AdjustStock(ctx, line.ProductID, -line.Qty); err != nil {
				// The sale is already persisted; stock drift is visible
				// in the audit trail and fixable via stock adjustment.
				log.Warn().Err(err).Str("product_id", line.ProductID).Msg("stock decrement failed after sale")
			}
		}
		s.invalidateCatalog(ctx)

		if cash := payment.CashCents(allocs); cash > 0 {
			if err := s.repo.RecordSaleIncome(ctx, cash, "Venda "+sale.ID, sale.CreatedAt); err != nil {
				log.Warn().Err(err).Str("sale_id", sale.ID).Msg("register credit failed after sale")
			}
		}
		return nil
	}

	result, err := session.Submit(ctx, s.authorizer, commit)
	if err != nil {
		return domain.CheckoutReceipt{}, err
	}

	// The completed session stays visible for the receipt display, then is
	// dropped together with the session's own auto-reset so the map stays
	// bounded on a long-running register.
	time.AfterFunc(result.ResetAfter, func() {
		s.mu.Lock()
		delete(s.sessions, saleID)
		s.mu.Unlock()
	})

	s.logAudit(ctx, "sale_submit", "sale", recorded.ID, fmt.Sprintf("total=%d,methods=%d", result.SubtotalCents, len(result.Allocations)))

	return domain.CheckoutReceipt{
		SaleID:        recorded.ID,
		TotalCents:    result.SubtotalCents,
		Allocations:   result.Allocations,
		AuthCode:      result.AuthCode,
		ItemCount:     cart.ItemCount(result.Lines),
		CompletedAt:   result.CompletedAt.Format(time.RFC3339),
		ResetAfterSec: int(result.ResetAfter / time.Second),
	}, nil
}

// --- Reports ---

func (s *Service) SalesReport(ctx context.Context, from, to time.Time, method string) (domain.SalesReport, error) {
	if !to.After(from) {
		return domain.SalesReport{}, store.ErrInvalidInput
	}
	if method != "" && !domain.ValidPaymentMethod(method) {
		return domain.SalesReport{}, store.ErrInvalidInput
	}

	sales, err := s.repo.ListSales(ctx, from, to)
	if err != nil {
		return domain.SalesReport{}, err
	}

	report := domain.SalesReport{
		From:   from.Format(time.RFC3339),
		To:     to.Format(time.RFC3339),
		Method: method,
		Sales:  make([]domain.SaleSummary, 0, len(sales)),
	}
	for _, sale := range sales {
		if method != "" && !saleUsesMethod(sale, method) {
			continue
		}
		report.Transactions++
		report.TotalCents += sale.SubtotalCents
		report.Sales = append(report.Sales, domain.SaleSummary{
			ID:          sale.ID,
			TerminalID:  sale.TerminalID,
			TotalCents:  sale.SubtotalCents,
			ItemCount:   cart.ItemCount(sale.Lines),
			Allocations: sale.Allocations,
			SoldBy:      sale.SoldBy,
			CreatedAt:   sale.CreatedAt,
		})
	}
	return report, nil
}

func (s *Service) ProductSalesReport(ctx context.Context, from, to time.Time) (domain.ProductSalesReport, error) {
	if !to.After(from) {
		return domain.ProductSalesReport{}, store.ErrInvalidInput
	}

	sales, err := s.repo.ListSales(ctx, from, to)
	if err != nil {
		return domain.ProductSalesReport{}, err
	}

	byProduct := map[string]*domain.ProductSalesRow{}
	order := make([]string, 0, 16)
	for _, sale := range sales {
		for _, line := range sale.Lines {
			row := byProduct[line.ProductID]
			if row == nil {
				row = &domain.ProductSalesRow{ProductID: line.ProductID, Name: line.Name}
				byProduct[line.ProductID] = row
				order = append(order, line.ProductID)
			}
			row.QtySold += line.Qty
			row.TotalCents += line.PriceCents * int64(line.Qty)
		}
	}

	report := domain.ProductSalesReport{
		From:  from.Format(time.RFC3339),
		To:    to.Format(time.RFC3339),
		Items: make([]domain.ProductSalesRow, 0, len(order)),
	}
	for _, id := range order {
		report.Items = append(report.Items, *byProduct[id])
	}
	return report, nil
}

func saleUsesMethod(sale domain.Sale, method string) bool {
	for _, a := range sale.Allocations {
		if a.Method == method {
			return true
		}
	}
	return false
}

// --- Audit ---

func (s *Service) ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	if !to.After(from) {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("audit log write failed")
	}
}

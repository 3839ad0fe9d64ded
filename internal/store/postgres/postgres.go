// Package postgres is the production Repository. Sales carry their lines
// and payment allocations as jsonb documents; the register is a single
// guarded row.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"frentedecaixa/backend/internal/domain"
	"frentedecaixa/backend/internal/store"
	"frentedecaixa/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price_cents, group_id, stock, active
		FROM products
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.GroupID, &p.Stock, &p.Active); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, price_cents, group_id, stock, active
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.PriceCents, &p.GroupID, &p.Stock, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 0 || product.Stock < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price_cents, group_id, stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
	`, product.ID, product.Name, product.PriceCents, product.GroupID, product.Stock, product.Active)
	if err != nil {
		if isUniqueViolation(err) || isForeignKeyViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PriceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	// Stock is owned by AdjustStock/SetStock and never written here.
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, price_cents = $3, group_id = $4, active = $5, updated_at = now()
		WHERE id = $1
		RETURNING stock
	`, product.ID, product.Name, product.PriceCents, product.GroupID, product.Active).Scan(&product.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListGroups(ctx context.Context) ([]domain.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name
		FROM product_groups
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := make([]domain.Group, 0, 16)
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return groups, nil
}

func (s *Store) GetGroup(ctx context.Context, id string) (*domain.Group, error) {
	var g domain.Group
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name FROM product_groups WHERE id = $1
	`, id).Scan(&g.ID, &g.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (s *Store) CreateGroup(ctx context.Context, group domain.Group) (*domain.Group, error) {
	if strings.TrimSpace(group.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if group.ID == "" {
		group.ID = xid.New("grp")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_groups (id, name, created_at)
		VALUES ($1,$2,now())
	`, group.ID, group.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := group
	return &created, nil
}

func (s *Store) UpdateGroup(ctx context.Context, group domain.Group) (*domain.Group, error) {
	if strings.TrimSpace(group.Name) == "" {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE product_groups SET name = $2 WHERE id = $1
	`, group.ID, group.Name)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := group
	return &updated, nil
}

func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM product_groups g
		WHERE g.id = $1
			AND NOT EXISTS (SELECT 1 FROM products p WHERE p.group_id = g.id)
	`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM product_groups WHERE id = $1)
		`, id).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return store.ErrGroupInUse
		}
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, username, role, active, created_at, password_hash
		FROM employees
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	employees := make([]domain.Employee, 0, 16)
	for rows.Next() {
		var e domain.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.Username, &e.Role, &e.Active, &e.CreatedAt, &e.PasswordHash); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return employees, nil
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*domain.Employee, error) {
	return s.getEmployee(ctx, `id = $1`, id)
}

func (s *Store) GetEmployeeByUsername(ctx context.Context, username string) (*domain.Employee, error) {
	return s.getEmployee(ctx, `username = $1`, strings.ToLower(strings.TrimSpace(username)))
}

func (s *Store) getEmployee(ctx context.Context, where string, arg any) (*domain.Employee, error) {
	var e domain.Employee
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, username, role, active, created_at, password_hash
		FROM employees
		WHERE `+where, arg).Scan(&e.ID, &e.Name, &e.Username, &e.Role, &e.Active, &e.CreatedAt, &e.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func (s *Store) CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error) {
	employee.Username = strings.ToLower(strings.TrimSpace(employee.Username))
	if employee.Name == "" || employee.Username == "" || employee.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}
	if !domain.ValidRole(employee.Role) {
		return nil, store.ErrInvalidInput
	}
	if employee.ID == "" {
		employee.ID = xid.New("emp")
	}
	if employee.CreatedAt.IsZero() {
		employee.CreatedAt = time.Now().UTC()
	}
	employee.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, username, role, active, created_at, password_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, employee.ID, employee.Name, employee.Username, employee.Role, employee.Active, employee.CreatedAt, employee.PasswordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateUsername
		}
		return nil, err
	}

	created := employee
	return &created, nil
}

func (s *Store) UpdateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error) {
	if employee.Name == "" || !domain.ValidRole(employee.Role) {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE employees
		SET name = $2, role = $3, active = $4,
			password_hash = COALESCE(NULLIF($5, ''), password_hash)
		WHERE id = $1
		RETURNING username, created_at, password_hash
	`, employee.ID, employee.Name, employee.Role, employee.Active, employee.PasswordHash).
		Scan(&employee.Username, &employee.CreatedAt, &employee.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	employee.CreatedAt = employee.CreatedAt.UTC()

	updated := employee
	return &updated, nil
}

func (s *Store) DeleteEmployee(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM employees WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AdjustStock(ctx context.Context, productID string, delta int) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = GREATEST(0, stock + $2), updated_at = now()
		WHERE id = $1
		RETURNING stock
	`, productID, delta).Scan(&next)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return next, nil
}

func (s *Store) SetStock(ctx context.Context, productID string, qty int) error {
	if qty < 0 {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET stock = $2, updated_at = now() WHERE id = $1
	`, productID, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetRegister(ctx context.Context) (*domain.Register, error) {
	var r domain.Register
	err := s.db.QueryRowContext(ctx, `
		SELECT opening_cents, sales_cents, withdrawals_cents, current_cents
		FROM register
		WHERE id = 1
	`).Scan(&r.OpeningCents, &r.SalesCents, &r.WithdrawalsCents, &r.CurrentCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) Withdraw(ctx context.Context, amountCents int64, description string, at time.Time) (*domain.LedgerEntry, error) {
	if amountCents <= 0 {
		return nil, store.ErrInvalidInput
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// The balance guard sits in the UPDATE itself; a zero-row result means
	// the drawer did not hold enough.
	res, err := tx.ExecContext(ctx, `
		UPDATE register
		SET withdrawals_cents = withdrawals_cents + $1,
			current_cents = current_cents - $1,
			updated_at = now()
		WHERE id = 1 AND current_cents >= $1
	`, amountCents)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrInsufficientFunds
	}

	entry := domain.LedgerEntry{
		ID:          xid.New("led"),
		Type:        domain.LedgerSangria,
		AmountCents: amountCents,
		Description: description,
		CreatedAt:   at,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, type, amount_cents, description, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, entry.ID, entry.Type, entry.AmountCents, entry.Description, entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Store) RecordSaleIncome(ctx context.Context, amountCents int64, description string, at time.Time) error {
	if amountCents < 0 {
		return store.ErrInvalidInput
	}
	if amountCents == 0 {
		return nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE register
		SET sales_cents = sales_cents + $1,
			current_cents = current_cents + $1,
			updated_at = now()
		WHERE id = 1
	`, amountCents)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, type, amount_cents, description, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, xid.New("led"), domain.LedgerEntrada, amountCents, description, at)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) ListLedger(ctx context.Context, limit int) ([]domain.LedgerEntry, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, amount_cents, description, created_at
		FROM ledger_entries
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, limit)
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Type, &e.AmountCents, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
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

	linesJSON, err := json.Marshal(sale.Lines)
	if err != nil {
		return nil, err
	}
	allocsJSON, err := json.Marshal(sale.Allocations)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sales (id, terminal_id, lines, allocations, subtotal_cents, status, auth_code, sold_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, sale.ID, sale.TerminalID, linesJSON, allocsJSON, sale.SubtotalCents, sale.Status, sale.AuthCode, sale.SoldBy, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := sale
	return &created, nil
}

func (s *Store) ListSales(ctx context.Context, from, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, terminal_id, lines, allocations, subtotal_cents, status, auth_code, sold_by, created_at
		FROM sales
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		var linesJSON, allocsJSON []byte
		if err := rows.Scan(&sale.ID, &sale.TerminalID, &linesJSON, &allocsJSON, &sale.SubtotalCents, &sale.Status, &sale.AuthCode, &sale.SoldBy, &sale.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(linesJSON, &sale.Lines); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(allocsJSON, &sale.Allocations); err != nil {
			return nil, err
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var e domain.AuditLog
		if err := rows.Scan(&e.ID, &e.ActorUsername, &e.ActorRole, &e.Action, &e.EntityType, &e.EntityID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// Package store defines the persistence boundary. Every stateful module
// talks to a Repository; implementations live in store/memory and
// store/postgres.
package store

import (
	"context"
	"errors"
	"time"

	"frentedecaixa/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrGroupInUse        = errors.New("group still has products")
	ErrDuplicateUsername = errors.New("username already taken")
)

type Repository interface {
	// Catalog.
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListGroups(ctx context.Context) ([]domain.Group, error)
	GetGroup(ctx context.Context, id string) (*domain.Group, error)
	CreateGroup(ctx context.Context, group domain.Group) (*domain.Group, error)
	UpdateGroup(ctx context.Context, group domain.Group) (*domain.Group, error)
	DeleteGroup(ctx context.Context, id string) error

	ListEmployees(ctx context.Context) ([]domain.Employee, error)
	GetEmployee(ctx context.Context, id string) (*domain.Employee, error)
	GetEmployeeByUsername(ctx context.Context, username string) (*domain.Employee, error)
	CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error)
	UpdateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error)
	DeleteEmployee(ctx context.Context, id string) error

	// Stock. AdjustStock clamps the result at zero and returns the new
	// quantity; SetStock rejects negative quantities.
	AdjustStock(ctx context.Context, productID string, delta int) (int, error)
	SetStock(ctx context.Context, productID string, qty int) error

	// Cash register.
	GetRegister(ctx context.Context) (*domain.Register, error)
	Withdraw(ctx context.Context, amountCents int64, description string, at time.Time) (*domain.LedgerEntry, error)
	RecordSaleIncome(ctx context.Context, amountCents int64, description string, at time.Time) error
	ListLedger(ctx context.Context, limit int) ([]domain.LedgerEntry, error)

	// Sales.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ListSales(ctx context.Context, from, to time.Time) ([]domain.Sale, error)

	// Audit.
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error)
}

package domain

import "time"

type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	GroupID    string `json:"group_id"`
	Stock      int    `json:"stock"`
	Active     bool   `json:"active"`
}

type ProductCreateRequest struct {
	Name         string `json:"name"`
	PriceCents   int64  `json:"price_cents"`
	GroupID      string `json:"group_id"`
	InitialStock int    `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	GroupID    *string `json:"group_id,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type GroupCreateRequest struct {
	Name string `json:"name"`
}

type GroupUpdateRequest struct {
	Name string `json:"name"`
}

// Employee roles form a closed set; anything else is rejected at the edge.
const (
	RoleAdministrador = "administrador"
	RoleGerente       = "gerente"
	RoleCaixa         = "caixa"
)

type Employee struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	PasswordHash string    `json:"-"`
}

type EmployeeCreateRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type EmployeeUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Role     *string `json:"role,omitempty"`
	Active   *bool   `json:"active,omitempty"`
	Password *string `json:"password,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// CartLine denormalizes name and price at the moment the product is added,
// so later catalog edits do not change an open sale.
type CartLine struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Qty        int    `json:"qty"`
}

const (
	PaymentCash   = "cash"
	PaymentDebit  = "debit"
	PaymentCredit = "credit"
	PaymentPix    = "pix"
)

type PaymentAllocation struct {
	ID          string `json:"id"`
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
}

const (
	SaleStatusPaid = "paid"
)

type Sale struct {
	ID            string              `json:"id"`
	TerminalID    string              `json:"terminal_id"`
	Lines         []CartLine          `json:"lines"`
	Allocations   []PaymentAllocation `json:"allocations"`
	SubtotalCents int64               `json:"subtotal_cents"`
	Status        string              `json:"status"`
	AuthCode      string              `json:"auth_code"`
	SoldBy        string              `json:"sold_by"`
	CreatedAt     time.Time           `json:"created_at"`
}

type SaleOpenRequest struct {
	TerminalID string `json:"terminal_id"`
}

type SaleLineRequest struct {
	ProductID string `json:"product_id"`
}

type SaleQuantityRequest struct {
	Delta int `json:"delta"`
}

type AllocationCreateRequest struct {
	Method string `json:"method"`
}

type AllocationAmountRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

// SaleView is the snapshot returned for an open sale session.
type SaleView struct {
	SaleID         string              `json:"sale_id"`
	TerminalID     string              `json:"terminal_id"`
	State          string              `json:"state"`
	Lines          []CartLine          `json:"lines"`
	Allocations    []PaymentAllocation `json:"allocations"`
	SubtotalCents  int64               `json:"subtotal_cents"`
	RemainderCents int64               `json:"remainder_cents"`
}

type CheckoutReceipt struct {
	SaleID        string              `json:"sale_id"`
	TotalCents    int64               `json:"total_cents"`
	Allocations   []PaymentAllocation `json:"allocations"`
	AuthCode      string              `json:"auth_code"`
	ItemCount     int                 `json:"item_count"`
	CompletedAt   string              `json:"completed_at"`
	ResetAfterSec int                 `json:"reset_after_seconds"`
}

const (
	LedgerEntrada = "entrada"
	LedgerSaida   = "saida"
	LedgerSangria = "sangria"
)

type Register struct {
	OpeningCents     int64 `json:"opening_cents"`
	SalesCents       int64 `json:"sales_cents"`
	WithdrawalsCents int64 `json:"withdrawals_cents"`
	CurrentCents     int64 `json:"current_cents"`
}

type LedgerEntry struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	AmountCents int64     `json:"amount_cents"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type WithdrawalRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
}

type RegisterView struct {
	Register Register      `json:"register"`
	Ledger   []LedgerEntry `json:"ledger,omitempty"`
}

type StockAdjustRequest struct {
	Delta int `json:"delta"`
}

type StockSetRequest struct {
	Qty int `json:"qty"`
}

type StockView struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	GroupID   string `json:"group_id"`
	Stock     int    `json:"stock"`
}

type SaleSummary struct {
	ID          string              `json:"id"`
	TerminalID  string              `json:"terminal_id"`
	TotalCents  int64               `json:"total_cents"`
	ItemCount   int                 `json:"item_count"`
	Allocations []PaymentAllocation `json:"allocations"`
	SoldBy      string              `json:"sold_by"`
	CreatedAt   time.Time           `json:"created_at"`
}

type SalesReport struct {
	From         string        `json:"from"`
	To           string        `json:"to"`
	Method       string        `json:"method,omitempty"`
	Transactions int           `json:"transactions"`
	TotalCents   int64         `json:"total_cents"`
	Sales        []SaleSummary `json:"sales"`
}

type ProductSalesRow struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	QtySold    int    `json:"qty_sold"`
	TotalCents int64  `json:"total_cents"`
}

type ProductSalesReport struct {
	From  string            `json:"from"`
	To    string            `json:"to"`
	Items []ProductSalesRow `json:"items"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

func ValidRole(role string) bool {
	switch role {
	case RoleAdministrador, RoleGerente, RoleCaixa:
		return true
	default:
		return false
	}
}

func ValidPaymentMethod(method string) bool {
	switch method {
	case PaymentCash, PaymentDebit, PaymentCredit, PaymentPix:
		return true
	default:
		return false
	}
}

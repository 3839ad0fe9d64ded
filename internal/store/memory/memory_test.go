package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"frentedecaixa/backend/internal/domain"
	"frentedecaixa/backend/internal/store"
)

func TestSeededCatalog(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	products, err := s.ListProducts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(products) != 6 {
		t.Fatalf("seeded products = %d, want 6", len(products))
	}
	if products[0].Name != "Brahma" || products[0].PriceCents != 500 {
		t.Fatalf("unexpected first product: %+v", products[0])
	}

	groups, err := s.ListGroups(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 3 {
		t.Fatalf("seeded groups = %d, want 3", len(groups))
	}

	admin, err := s.GetEmployeeByUsername(ctx, "nathan")
	if err != nil {
		t.Fatal(err)
	}
	if admin.Role != domain.RoleAdministrador {
		t.Fatalf("nathan role = %s, want administrador", admin.Role)
	}
}

func TestProductCRUD(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	created, err := s.CreateProduct(ctx, domain.Product{Name: "Guaraná", PriceCents: 400, GroupID: "grp_bebidas", Stock: 12})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || !created.Active {
		t.Fatalf("unexpected created product: %+v", created)
	}

	if _, err := s.CreateProduct(ctx, domain.Product{Name: "", PriceCents: 100, GroupID: "grp_geral"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("empty name: %v", err)
	}
	if _, err := s.CreateProduct(ctx, domain.Product{Name: "X", PriceCents: -1, GroupID: "grp_geral"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("negative price: %v", err)
	}
	if _, err := s.CreateProduct(ctx, domain.Product{Name: "X", PriceCents: 100, GroupID: "grp_404"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("unknown group: %v", err)
	}

	created.PriceCents = 425
	updated, err := s.UpdateProduct(ctx, *created)
	if err != nil {
		t.Fatal(err)
	}
	if updated.PriceCents != 425 || updated.Stock != 12 {
		t.Fatalf("update lost fields: %+v", updated)
	}

	if err := s.DeleteProduct(ctx, created.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetProduct(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeleteGroupInUse(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if err := s.DeleteGroup(ctx, "grp_bebidas"); !errors.Is(err, store.ErrGroupInUse) {
		t.Fatalf("expected ErrGroupInUse, got %v", err)
	}

	empty, err := s.CreateGroup(ctx, domain.Group{Name: "Limpeza"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteGroup(ctx, empty.ID); err != nil {
		t.Fatalf("delete of empty group: %v", err)
	}
}

func TestEmployeeDuplicateUsername(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	_, err := s.CreateEmployee(ctx, domain.Employee{
		Name: "Outro Nathan", Username: "NATHAN", Role: domain.RoleCaixa, PasswordHash: "x",
	})
	if !errors.Is(err, store.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}

	if _, err := s.CreateEmployee(ctx, domain.Employee{
		Name: "Maria", Username: "maria", Role: "dono", PasswordHash: "x",
	}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("invalid role: %v", err)
	}
}

func TestAdjustStockClampsAtZero(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if err := s.SetStock(ctx, "prd_brahma", 8); err != nil {
		t.Fatal(err)
	}
	next, err := s.AdjustStock(ctx, "prd_brahma", -20)
	if err != nil {
		t.Fatal(err)
	}
	if next != 0 {
		t.Fatalf("stock = %d, want 0", next)
	}

	next, err = s.AdjustStock(ctx, "prd_brahma", 5)
	if err != nil {
		t.Fatal(err)
	}
	if next != 5 {
		t.Fatalf("stock = %d, want 5", next)
	}

	if err := s.SetStock(ctx, "prd_brahma", -1); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("negative set: %v", err)
	}
	if _, err := s.AdjustStock(ctx, "prd_404", 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown product: %v", err)
	}
}

func TestWithdrawGuards(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	// Seeded drawer holds 750.50. A 800.00 sangria must fail untouched.
	if _, err := s.Withdraw(ctx, 80000, "tentativa", time.Time{}); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	reg, err := s.GetRegister(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if reg.CurrentCents != 75050 {
		t.Fatalf("failed withdrawal changed balance: %d", reg.CurrentCents)
	}

	if _, err := s.Withdraw(ctx, 0, "zero", time.Time{}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("zero amount: %v", err)
	}
	if _, err := s.Withdraw(ctx, -100, "negativo", time.Time{}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("negative amount: %v", err)
	}

	entry, err := s.Withdraw(ctx, 20000, "sangria para cofre", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if entry.Type != domain.LedgerSangria || entry.AmountCents != 20000 {
		t.Fatalf("unexpected ledger entry: %+v", entry)
	}

	reg, err = s.GetRegister(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if reg.CurrentCents != 55050 {
		t.Fatalf("current = %d, want 55050", reg.CurrentCents)
	}
	if reg.WithdrawalsCents != 40000 {
		t.Fatalf("withdrawals = %d, want 40000", reg.WithdrawalsCents)
	}
}

func TestRecordSaleIncome(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if err := s.RecordSaleIncome(ctx, 1300, "venda sal_1", time.Time{}); err != nil {
		t.Fatal(err)
	}
	reg, err := s.GetRegister(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if reg.SalesCents != 86350 || reg.CurrentCents != 76350 {
		t.Fatalf("unexpected register: %+v", reg)
	}

	ledger, err := s.ListLedger(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(ledger) != 1 || ledger[0].Type != domain.LedgerEntrada || ledger[0].AmountCents != 1300 {
		t.Fatalf("unexpected newest ledger entry: %+v", ledger)
	}

	// A card-only sale credits nothing and appends nothing.
	before, _ := s.ListLedger(ctx, 0)
	if err := s.RecordSaleIncome(ctx, 0, "venda cartao", time.Time{}); err != nil {
		t.Fatal(err)
	}
	after, _ := s.ListLedger(ctx, 0)
	if len(after) != len(before) {
		t.Fatal("zero income appended a ledger entry")
	}
}

func TestSalesRangeQuery(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	for i, method := range []string{domain.PaymentCash, domain.PaymentPix} {
		_, err := s.CreateSale(ctx, domain.Sale{
			TerminalID:    "caixa-01",
			Lines:         []domain.CartLine{{ProductID: "prd_pao", Name: "Pão", PriceCents: 100, Qty: 2}},
			Allocations:   []domain.PaymentAllocation{{ID: "alo_x", Method: method, AmountCents: 200}},
			SubtotalCents: 200,
			SoldBy:        "teste",
			CreatedAt:     base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	sales, err := s.ListSales(ctx, base, base.Add(30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(sales) != 1 {
		t.Fatalf("range query returned %d sales, want 1", len(sales))
	}
	if sales[0].Allocations[0].Method != domain.PaymentCash {
		t.Fatalf("unexpected sale in range: %+v", sales[0])
	}
}

package cart

import (
	"reflect"
	"testing"

	"frentedecaixa/backend/internal/domain"
)

var (
	brahma = domain.Product{ID: "prd_1", Name: "Brahma", PriceCents: 500, GroupID: "grp_beb", Stock: 10, Active: true}
	pao    = domain.Product{ID: "prd_2", Name: "Pão", PriceCents: 100, GroupID: "grp_lan", Stock: 30, Active: true}
)

func TestAddLineAggregatesByProduct(t *testing.T) {
	var lines []domain.CartLine
	lines = AddLine(lines, brahma)
	lines = AddLine(lines, pao)
	lines = AddLine(lines, brahma)

	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].ProductID != "prd_1" || lines[0].Qty != 2 {
		t.Fatalf("unexpected first line: %+v", lines[0])
	}
	if lines[1].ProductID != "prd_2" || lines[1].Qty != 1 {
		t.Fatalf("unexpected second line: %+v", lines[1])
	}
}

func TestAddLineDoesNotMutateInput(t *testing.T) {
	orig := []domain.CartLine{{ProductID: "prd_1", Name: "Brahma", PriceCents: 500, Qty: 1}}
	snapshot := make([]domain.CartLine, len(orig))
	copy(snapshot, orig)

	AddLine(orig, brahma)

	if !reflect.DeepEqual(orig, snapshot) {
		t.Fatalf("input slice mutated: %+v", orig)
	}
}

func TestSubtotalScenario(t *testing.T) {
	// Two beers at 5.00 plus three breads at 1.00 must come to 13.00.
	var lines []domain.CartLine
	lines = AddLine(lines, brahma)
	lines = AddLine(lines, brahma)
	for i := 0; i < 3; i++ {
		lines = AddLine(lines, pao)
	}

	if got := SubtotalCents(lines); got != 1300 {
		t.Fatalf("subtotal = %d, want 1300", got)
	}
	if got := ItemCount(lines); got != 5 {
		t.Fatalf("item count = %d, want 5", got)
	}
}

func TestChangeQuantityClampsAndRemoves(t *testing.T) {
	lines := AddLine(nil, brahma)
	lines = AddLine(lines, pao)

	lines = ChangeQuantity(lines, "prd_1", 3)
	if lines[0].Qty != 4 {
		t.Fatalf("qty = %d, want 4", lines[0].Qty)
	}

	// Decrementing past zero removes the line instead of going negative.
	lines = ChangeQuantity(lines, "prd_1", -10)
	if len(lines) != 1 || lines[0].ProductID != "prd_2" {
		t.Fatalf("expected only prd_2 to remain, got %+v", lines)
	}

	// Unknown product ids are a no-op.
	lines = ChangeQuantity(lines, "prd_missing", 5)
	if len(lines) != 1 {
		t.Fatalf("unexpected line added: %+v", lines)
	}
}

func TestChangeQuantityPreservesOrder(t *testing.T) {
	coca := domain.Product{ID: "prd_3", Name: "Coca-Cola", PriceCents: 450}
	lines := AddLine(nil, brahma)
	lines = AddLine(lines, pao)
	lines = AddLine(lines, coca)

	lines = ChangeQuantity(lines, "prd_2", 1)

	want := []string{"prd_1", "prd_2", "prd_3"}
	for i, id := range want {
		if lines[i].ProductID != id {
			t.Fatalf("line %d = %s, want %s", i, lines[i].ProductID, id)
		}
	}
}

func TestRemoveLine(t *testing.T) {
	lines := AddLine(nil, brahma)
	lines = AddLine(lines, pao)

	lines = RemoveLine(lines, "prd_1")
	if len(lines) != 1 || lines[0].ProductID != "prd_2" {
		t.Fatalf("unexpected lines after remove: %+v", lines)
	}

	lines = RemoveLine(lines, "prd_404")
	if len(lines) != 1 {
		t.Fatalf("remove of unknown id changed cart: %+v", lines)
	}
}

func TestSubtotalEmptyCart(t *testing.T) {
	if got := SubtotalCents(nil); got != 0 {
		t.Fatalf("subtotal of empty cart = %d, want 0", got)
	}
}

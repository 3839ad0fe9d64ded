// Package cart implements the pure cart-aggregation operations used by an
// open sale session. Every function returns a new slice and leaves its input
// untouched; insertion order of surviving lines is always preserved.
package cart

import "frentedecaixa/backend/internal/domain"

// AddLine increments the quantity of an existing line for the product, or
// appends a new line with quantity 1 that copies the product's current name
// and price.
func AddLine(lines []domain.CartLine, product domain.Product) []domain.CartLine {
	out := make([]domain.CartLine, len(lines), len(lines)+1)
	copy(out, lines)

	for i := range out {
		if out[i].ProductID == product.ID {
			out[i].Qty++
			return out
		}
	}

	return append(out, domain.CartLine{
		ProductID:  product.ID,
		Name:       product.Name,
		PriceCents: product.PriceCents,
		Qty:        1,
	})
}

// ChangeQuantity adds delta to the matching line's quantity, clamping at
// zero. A line whose quantity reaches zero is removed. Deltas that would go
// below zero are absorbed silently; an unknown product id is a no-op.
func ChangeQuantity(lines []domain.CartLine, productID string, delta int) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		if line.ProductID == productID {
			qty := line.Qty + delta
			if qty < 0 {
				qty = 0
			}
			if qty == 0 {
				continue
			}
			line.Qty = qty
		}
		out = append(out, line)
	}
	return out
}

// RemoveLine deletes the line for the product unconditionally.
func RemoveLine(lines []domain.CartLine, productID string) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		if line.ProductID == productID {
			continue
		}
		out = append(out, line)
	}
	return out
}

// SubtotalCents folds price * quantity over all lines.
func SubtotalCents(lines []domain.CartLine) int64 {
	var sum int64
	for _, line := range lines {
		sum += line.PriceCents * int64(line.Qty)
	}
	return sum
}

// ItemCount is the total unit count across all lines.
func ItemCount(lines []domain.CartLine) int {
	count := 0
	for _, line := range lines {
		count += line.Qty
	}
	return count
}

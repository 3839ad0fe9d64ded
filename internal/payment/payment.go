// Package payment implements split-payment reconciliation for a checkout:
// allocation bookkeeping, the remainder computation that decides whether a
// sale may close, and the session state machine around submission.
package payment

import (
	"errors"
	"fmt"

	"frentedecaixa/backend/internal/domain"
	"frentedecaixa/backend/internal/xid"
)

// Reconciliation tolerance in cents. Amounts are integer centavos, so one
// cent absorbs any rounding the operator's terminal applied.
const ToleranceCents = 1

var (
	ErrLocked         = errors.New("sale is being submitted")
	ErrNoAllocations  = errors.New("no payment methods selected")
	ErrUnknownMethod  = errors.New("unknown payment method")
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrAllocationGone = errors.New("allocation not found")
)

// BalanceError reports why a submit was refused: the signed remainder tells
// whether money is missing (positive) or in excess (negative).
type BalanceError struct {
	RemainderCents int64
}

func (e *BalanceError) Error() string {
	if e.RemainderCents > 0 {
		return fmt.Sprintf("payment short by %d cents", e.RemainderCents)
	}
	return fmt.Sprintf("payment over by %d cents", -e.RemainderCents)
}

// AppendAllocation adds a zero-amount allocation tagged with the method.
// The same method may appear more than once (split across two cards).
func AppendAllocation(allocs []domain.PaymentAllocation, method string) ([]domain.PaymentAllocation, error) {
	if !domain.ValidPaymentMethod(method) {
		return allocs, ErrUnknownMethod
	}
	out := make([]domain.PaymentAllocation, len(allocs), len(allocs)+1)
	copy(out, allocs)
	return append(out, domain.PaymentAllocation{
		ID:     xid.New("alo"),
		Method: method,
	}), nil
}

// SetAmount replaces one allocation's amount. No balance check happens here:
// intermediate over- and under-payment states are legal while the operator
// types.
func SetAmount(allocs []domain.PaymentAllocation, id string, amountCents int64) ([]domain.PaymentAllocation, error) {
	if amountCents < 0 {
		return allocs, ErrNegativeAmount
	}
	out := make([]domain.PaymentAllocation, len(allocs))
	copy(out, allocs)
	for i := range out {
		if out[i].ID == id {
			out[i].AmountCents = amountCents
			return out, nil
		}
	}
	return allocs, ErrAllocationGone
}

// RemoveAllocation drops the allocation with the given id.
func RemoveAllocation(allocs []domain.PaymentAllocation, id string) ([]domain.PaymentAllocation, error) {
	out := make([]domain.PaymentAllocation, 0, len(allocs))
	found := false
	for _, a := range allocs {
		if a.ID == id {
			found = true
			continue
		}
		out = append(out, a)
	}
	if !found {
		return allocs, ErrAllocationGone
	}
	return out, nil
}

// RemainderCents is the single source of truth for checkout eligibility:
// subtotal minus the sum of all allocated amounts.
func RemainderCents(subtotalCents int64, allocs []domain.PaymentAllocation) int64 {
	remainder := subtotalCents
	for _, a := range allocs {
		remainder -= a.AmountCents
	}
	return remainder
}

// Balanced reports whether the sale may close: at least one allocation and
// a remainder within tolerance.
func Balanced(subtotalCents int64, allocs []domain.PaymentAllocation) bool {
	if len(allocs) == 0 {
		return false
	}
	r := RemainderCents(subtotalCents, allocs)
	return r >= -ToleranceCents && r <= ToleranceCents
}

// CashCents sums the cash portion of the allocations; only this part
// touches the register drawer.
func CashCents(allocs []domain.PaymentAllocation) int64 {
	var sum int64
	for _, a := range allocs {
		if a.Method == domain.PaymentCash {
			sum += a.AmountCents
		}
	}
	return sum
}

package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"frentedecaixa/backend/internal/domain"
	"frentedecaixa/backend/internal/xid"
)

// ErrDeclined is returned when the acquirer refuses the payment. The sale
// stays open so the operator can change the payment mix.
var ErrDeclined = errors.New("payment declined")

// Authorizer clears a balanced payment with whatever sits behind the card
// terminal. It returns an authorization code on approval.
type Authorizer interface {
	Authorize(ctx context.Context, totalCents int64, allocations []domain.PaymentAllocation) (string, error)
}

// TerminalAuthorizer stands in for the acquirer link of a store terminal:
// it approves after a configurable round-trip latency. A cancelled context
// aborts the wait and surfaces as an authorization failure.
type TerminalAuthorizer struct {
	Latency time.Duration
}

func (t *TerminalAuthorizer) Authorize(ctx context.Context, totalCents int64, allocations []domain.PaymentAllocation) (string, error) {
	if totalCents <= 0 {
		return "", fmt.Errorf("%w: nothing to authorize", ErrDeclined)
	}
	if t.Latency > 0 {
		timer := time.NewTimer(t.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("authorization aborted: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return xid.New("aut"), nil
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, totalCents int64, allocations []domain.PaymentAllocation) (string, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, totalCents int64, allocations []domain.PaymentAllocation) (string, error) {
	return f(ctx, totalCents, allocations)
}

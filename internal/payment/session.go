package payment

import (
	"context"
	"sync"
	"time"

	"frentedecaixa/backend/internal/cart"
	"frentedecaixa/backend/internal/domain"
)

// Session states as shown to clients.
const (
	StateSelecting  = "selecting"
	StateBalanced   = "balanced"
	StateSubmitting = "submitting"
	StateCompleted  = "completed"
)

// CommitFunc persists an authorized sale. It runs while the session is
// still frozen; a failure puts the session back into the editable state.
type CommitFunc func(ctx context.Context, lines []domain.CartLine, allocations []domain.PaymentAllocation, authCode string) error

// Result is the frozen outcome of a successful submit.
type Result struct {
	Lines         []domain.CartLine
	Allocations   []domain.PaymentAllocation
	SubtotalCents int64
	AuthCode      string
	CompletedAt   time.Time
	ResetAfter    time.Duration
}

// Session is one open checkout. All cart and allocation mutations flow
// through it so the submit freeze can reject them atomically. After a
// completed sale stays on screen for resetAfter, the session clears itself
// back to an empty selecting state.
type Session struct {
	mu         sync.Mutex
	id         string
	terminalID string
	lines      []domain.CartLine
	allocs     []domain.PaymentAllocation
	submitting bool
	completed  bool
	resetAfter time.Duration
	resetTimer *time.Timer
}

func NewSession(id, terminalID string, resetAfter time.Duration) *Session {
	return &Session{id: id, terminalID: terminalID, resetAfter: resetAfter}
}

func (s *Session) ID() string { return s.id }

// locked reports whether mutations must be refused. Callers hold s.mu.
func (s *Session) locked() bool { return s.submitting || s.completed }

func (s *Session) AddProduct(product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked() {
		return ErrLocked
	}
	s.lines = cart.AddLine(s.lines, product)
	return nil
}

func (s *Session) ChangeQuantity(productID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked() {
		return ErrLocked
	}
	s.lines = cart.ChangeQuantity(s.lines, productID, delta)
	return nil
}

func (s *Session) RemoveLine(productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked() {
		return ErrLocked
	}
	s.lines = cart.RemoveLine(s.lines, productID)
	return nil
}

func (s *Session) AddAllocation(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked() {
		return ErrLocked
	}
	allocs, err := AppendAllocation(s.allocs, method)
	if err != nil {
		return err
	}
	s.allocs = allocs
	return nil
}

func (s *Session) SetAllocationAmount(id string, amountCents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked() {
		return ErrLocked
	}
	allocs, err := SetAmount(s.allocs, id, amountCents)
	if err != nil {
		return err
	}
	s.allocs = allocs
	return nil
}

func (s *Session) RemoveAllocation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked() {
		return ErrLocked
	}
	allocs, err := RemoveAllocation(s.allocs, id)
	if err != nil {
		return err
	}
	s.allocs = allocs
	return nil
}

// Snapshot returns the session as seen by the operator's screen.
func (s *Session) Snapshot() domain.SaleView {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]domain.CartLine, len(s.lines))
	copy(lines, s.lines)
	allocs := make([]domain.PaymentAllocation, len(s.allocs))
	copy(allocs, s.allocs)

	subtotal := cart.SubtotalCents(lines)
	return domain.SaleView{
		SaleID:         s.id,
		TerminalID:     s.terminalID,
		State:          s.stateLocked(),
		Lines:          lines,
		Allocations:    allocs,
		SubtotalCents:  subtotal,
		RemainderCents: RemainderCents(subtotal, allocs),
	}
}

func (s *Session) stateLocked() string {
	switch {
	case s.completed:
		return StateCompleted
	case s.submitting:
		return StateSubmitting
	case Balanced(cart.SubtotalCents(s.lines), s.allocs):
		return StateBalanced
	default:
		return StateSelecting
	}
}

// Submit freezes the session, runs authorization and commit under the
// frozen snapshot, and on success schedules the auto-reset. Any failure
// along the way thaws the session with its allocations intact.
func (s *Session) Submit(ctx context.Context, authorize Authorizer, commit CommitFunc) (*Result, error) {
	s.mu.Lock()
	if s.locked() {
		s.mu.Unlock()
		return nil, ErrLocked
	}
	if len(s.allocs) == 0 {
		s.mu.Unlock()
		return nil, ErrNoAllocations
	}
	subtotal := cart.SubtotalCents(s.lines)
	if !Balanced(subtotal, s.allocs) {
		remainder := RemainderCents(subtotal, s.allocs)
		s.mu.Unlock()
		return nil, &BalanceError{RemainderCents: remainder}
	}

	s.submitting = true
	lines := make([]domain.CartLine, len(s.lines))
	copy(lines, s.lines)
	allocs := make([]domain.PaymentAllocation, len(s.allocs))
	copy(allocs, s.allocs)
	s.mu.Unlock()

	// Authorization and persistence run outside the lock; concurrent
	// mutations bounce off the submitting flag meanwhile.
	authCode, err := authorize.Authorize(ctx, subtotal, allocs)
	if err != nil {
		s.thaw()
		return nil, err
	}
	if commit != nil {
		if err := commit(ctx, lines, allocs, authCode); err != nil {
			s.thaw()
			return nil, err
		}
	}

	s.mu.Lock()
	s.submitting = false
	s.completed = true
	if s.resetAfter > 0 {
		s.resetTimer = time.AfterFunc(s.resetAfter, s.Reset)
	}
	s.mu.Unlock()

	return &Result{
		Lines:         lines,
		Allocations:   allocs,
		SubtotalCents: subtotal,
		AuthCode:      authCode,
		CompletedAt:   time.Now().UTC(),
		ResetAfter:    s.resetAfter,
	}, nil
}

func (s *Session) thaw() {
	s.mu.Lock()
	s.submitting = false
	s.mu.Unlock()
}

// Reset clears the session to an empty selecting state, ready for the next
// customer. Called by the display timer after a completed sale, or directly
// when the operator abandons the sale.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
	s.lines = nil
	s.allocs = nil
	s.submitting = false
	s.completed = false
}

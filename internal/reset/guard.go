package reset

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"stagequeue/internal/requests"
)

const defaultTicketTTL = 2 * time.Minute

// TicketError reports a reset confirmation that cannot proceed.
type TicketError struct {
	Reason string
}

func (e *TicketError) Error() string     { return "reset ticket " + e.Reason }
func (e *TicketError) ErrorKind() string { return requests.KindPrecondition }

var (
	// ErrUnknownTicket reports a ticket that was never armed, already used, or expired.
	ErrUnknownTicket = &TicketError{Reason: "is unknown, used, or expired"}
	// ErrNotConfirmed reports an execute attempt before the first confirmation.
	ErrNotConfirmed = &TicketError{Reason: "needs a first confirmation before it can run"}
	// ErrAlreadyConfirmed reports a repeated first confirmation.
	ErrAlreadyConfirmed = &TicketError{Reason: "is already confirmed"}
)

// Ticket is an armed reset awaiting confirmation.
type Ticket struct {
	ID        string
	ExpiresAt time.Time
	Confirmed bool
}

// Guard requires two separate confirmations before a reset may run. A single
// accidental confirmation never consumes a ticket.
type Guard struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	tickets map[string]*Ticket
}

// NewGuard builds a guard whose tickets expire after ttl.
func NewGuard(ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = defaultTicketTTL
	}
	return &Guard{ttl: ttl, now: time.Now, tickets: make(map[string]*Ticket)}
}

// Arm issues a new ticket.
func (g *Guard) Arm() Ticket {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked()
	t := &Ticket{ID: uuid.NewString(), ExpiresAt: g.now().Add(g.ttl)}
	g.tickets[t.ID] = t
	return *t
}

// Confirm records the first confirmation. It succeeds once per ticket.
func (g *Guard) Confirm(id string) (Ticket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked()
	t, ok := g.tickets[id]
	if !ok {
		return Ticket{}, ErrUnknownTicket
	}
	if t.Confirmed {
		return *t, ErrAlreadyConfirmed
	}
	t.Confirmed = true
	return *t, nil
}

// Consume is the second confirmation. It succeeds once per confirmed ticket.
func (g *Guard) Consume(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked()
	t, ok := g.tickets[id]
	if !ok {
		return ErrUnknownTicket
	}
	if !t.Confirmed {
		return ErrNotConfirmed
	}
	delete(g.tickets, id)
	return nil
}

func (g *Guard) pruneLocked() {
	now := g.now()
	for id, t := range g.tickets {
		if now.After(t.ExpiresAt) {
			delete(g.tickets, id)
		}
	}
}

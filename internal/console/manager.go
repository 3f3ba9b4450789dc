package console

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
)

const defaultTicketTTL = 5 * time.Minute

// Manager issues and validates console tickets. Ticket state is
// in-memory only — it is deliberately not persisted to internal/store:
// a ticket outlives at most one attach attempt within a 5-minute window,
// so there is nothing worth surviving a restart, and keeping it out of
// the durable store means a crash can never resurrect a stale capability.
type Manager interface {
	// IssueTicket resolves vmID's console endpoint via adapter and mints a
	// ticket valid for the default 5-minute window.
	IssueTicket(ctx context.Context, adapter hypervisor.Adapter, vmID string, kind hypervisor.ConsoleKind) (*Ticket, error)

	// Attach atomically validates id (present, unexpired, unused), marks
	// it used, and returns the Ticket so the caller can dial its backend
	// endpoint and relay. Returns ErrForbidden for any validation failure.
	Attach(id string) (*Ticket, error)

	// Reap deletes every expired ticket and returns how many were
	// removed. Called on a 60s cadence by internal/drivers (§4.K); Attach
	// enforces expiry on its own regardless of whether Reap ever runs.
	Reap() int
}

type manager struct {
	mu      sync.Mutex
	tickets map[string]*Ticket
	ttl     time.Duration
	now     func() time.Time
}

// NewManager constructs a Manager whose tickets are valid for ttl (pass 0
// for the spec default of 5 minutes).
func NewManager(ttl time.Duration) Manager {
	if ttl <= 0 {
		ttl = defaultTicketTTL
	}
	return &manager{tickets: make(map[string]*Ticket), ttl: ttl, now: time.Now}
}

func (m *manager) IssueTicket(ctx context.Context, adapter hypervisor.Adapter, vmID string, kind hypervisor.ConsoleKind) (*Ticket, error) {
	ep, err := adapter.ConsoleEndpoint(ctx, vmID, kind)
	if err != nil {
		return nil, fmt.Errorf("resolve console endpoint: %w", err)
	}
	id, err := randomTicketID()
	if err != nil {
		return nil, fmt.Errorf("generate ticket id: %w", err)
	}
	now := m.now()
	t := &Ticket{
		ID:        id,
		VMID:      vmID,
		Kind:      kind,
		Network:   ep.Network,
		Address:   ep.Address,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	m.mu.Lock()
	m.tickets[id] = t
	m.mu.Unlock()
	return t, nil
}

func (m *manager) Attach(id string) (*Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tickets[id]
	if !ok {
		return nil, ErrForbidden
	}
	if t.Used || m.now().After(t.ExpiresAt) {
		return nil, ErrForbidden
	}
	t.Used = true
	return t, nil
}

// Reap deletes every ticket whose expiry has passed, independent of
// whether it was ever attached. Meant to be called on a fixed cadence by
// internal/drivers; its absence never weakens Attach's own expiry check.
func (m *manager) Reap() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for id, t := range m.tickets {
		if now.After(t.ExpiresAt) {
			delete(m.tickets, id)
			n++
		}
	}
	return n
}

func randomTicketID() (string, error) {
	b := make([]byte, 16) // 128 bits, per §3
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

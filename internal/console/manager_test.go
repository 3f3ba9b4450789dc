package console

import (
	"context"
	"testing"
	"time"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
)

type stubAdapter struct {
	hypervisor.Adapter
	endpoint hypervisor.Endpoint
	err      error
}

func (s *stubAdapter) ConsoleEndpoint(ctx context.Context, id string, kind hypervisor.ConsoleKind) (hypervisor.Endpoint, error) {
	return s.endpoint, s.err
}

func TestIssueThenAttachSucceedsOnce(t *testing.T) {
	m := NewManager(5 * time.Minute).(*manager)
	adapter := &stubAdapter{endpoint: hypervisor.Endpoint{Kind: hypervisor.ConsoleVNC, Network: "tcp", Address: "127.0.0.1:5900"}}

	tk, err := m.IssueTicket(context.Background(), adapter, "vm-1", hypervisor.ConsoleVNC)
	if err != nil {
		t.Fatalf("issue ticket: %v", err)
	}
	if tk.Network != "tcp" || tk.Address != "127.0.0.1:5900" {
		t.Fatalf("unexpected endpoint on ticket: %+v", tk)
	}

	got, err := m.Attach(tk.ID)
	if err != nil {
		t.Fatalf("first attach: %v", err)
	}
	if got.ID != tk.ID {
		t.Fatalf("unexpected ticket returned: %+v", got)
	}

	if _, err := m.Attach(tk.ID); err != ErrForbidden {
		t.Fatalf("expected second attach to be forbidden, got %v", err)
	}
}

func TestAttachUnknownTicketForbidden(t *testing.T) {
	m := NewManager(0)
	if _, err := m.Attach("does-not-exist"); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAttachExpiredTicketForbidden(t *testing.T) {
	m := NewManager(time.Minute).(*manager)
	adapter := &stubAdapter{endpoint: hypervisor.Endpoint{Network: "tcp", Address: "127.0.0.1:5900"}}
	tk, err := m.IssueTicket(context.Background(), adapter, "vm-1", hypervisor.ConsoleVNC)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := m.Attach(tk.ID); err != ErrForbidden {
		t.Fatalf("expected ErrForbidden for expired ticket, got %v", err)
	}
}

func TestReapDeletesExpiredOnly(t *testing.T) {
	m := NewManager(time.Minute).(*manager)
	adapter := &stubAdapter{endpoint: hypervisor.Endpoint{Network: "tcp", Address: "x:1"}}
	ctx := context.Background()
	realNow := m.now
	expired, _ := m.IssueTicket(ctx, adapter, "vm-1", hypervisor.ConsoleVNC)

	// advance the clock 2 minutes, then issue a second ticket: the first is
	// now past its 1-minute ttl, the second has a full minute left
	m.now = func() time.Time { return realNow().Add(2 * time.Minute) }
	fresh, _ := m.IssueTicket(ctx, adapter, "vm-2", hypervisor.ConsoleVNC)
	n := m.Reap()
	if n != 1 {
		t.Fatalf("expected 1 expired ticket reaped, got %d", n)
	}
	if _, err := m.Attach(expired.ID); err != ErrForbidden {
		t.Fatalf("expected expired ticket gone, got %v", err)
	}
	if _, err := m.Attach(fresh.ID); err != nil {
		t.Fatalf("expected unexpired ticket to survive the reap, got %v", err)
	}
}

func TestIssueTicketPropagatesAdapterError(t *testing.T) {
	m := NewManager(0)
	adapter := &stubAdapter{err: hypervisor.ErrUnsupported}
	if _, err := m.IssueTicket(context.Background(), adapter, "vm-1", hypervisor.ConsoleSerial); err == nil {
		t.Fatal("expected an error when the adapter can't resolve a console endpoint")
	}
}

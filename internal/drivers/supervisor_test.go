package drivers

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

type fakeDriver struct {
	name    string
	err     error
	started chan struct{}
}

func (f *fakeDriver) Name() string { return f.name }
func (f *fakeDriver) Run(ctx context.Context) error {
	close(f.started)
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return nil
}

func TestSupervisorRunsAllDriversConcurrently(t *testing.T) {
	a := &fakeDriver{name: "a", started: make(chan struct{})}
	b := &fakeDriver{name: "b", started: make(chan struct{})}
	sup := NewSupervisor(slog.Default(), a, b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	<-a.started
	<-b.started
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on clean cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not return after context cancellation")
	}
}

func TestSupervisorPropagatesDriverError(t *testing.T) {
	boom := errors.New("boom")
	a := &fakeDriver{name: "a", started: make(chan struct{}), err: boom}
	b := &fakeDriver{name: "b", started: make(chan struct{})}
	sup := NewSupervisor(slog.Default(), a, b)

	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not return after a driver error")
	}
}

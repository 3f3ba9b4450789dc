package console

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

// Relay dials ticket's backend endpoint and forwards bytes between it and
// client in both directions until either side closes, ctx is canceled, or
// the ticket's absolute deadline elapses — the same shape
// lib/exec/client.go's ExecIntoInstance uses to bridge a vsock socket to
// a gRPC stream, here bridging a TCP/Unix socket to an arbitrary duplex
// transport (internal/httpapi's websocket connection) with no framing
// applied to either side: RFB (VNC) bytes pass through untouched.
func Relay(ctx context.Context, t *Ticket, client io.ReadWriteCloser) error {
	ctx, cancel := context.WithDeadline(ctx, t.ExpiresAt)
	defer cancel()

	var d net.Dialer
	backend, err := d.DialContext(ctx, t.Network, t.Address)
	if err != nil {
		return fmt.Errorf("dial console backend %s %s: %w", t.Network, t.Address, err)
	}
	defer backend.Close()

	if deadline, ok := ctx.Deadline(); ok {
		backend.SetDeadline(deadline)
	}
	// client is commonly a websocket-backed adapter that doesn't honor
	// net.Conn deadlines; watchdog forces it closed at the same deadline
	// so a hung io.Copy on that side still unblocks.
	go watchdog(ctx, t.ExpiresAt, client)

	errCh := make(chan error, 2)
	go func() {
		_, err := io.Copy(backend, client)
		errCh <- err
	}()
	go func() {
		_, err := io.Copy(client, backend)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// watchdog closes conn once deadline elapses or ctx is done, unblocking
// any in-flight io.Copy on a transport that doesn't itself honor net.Conn
// deadlines.
func watchdog(ctx context.Context, deadline time.Time, conn io.Closer) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-timer.C:
		conn.Close()
	case <-ctx.Done():
		conn.Close()
	}
}

// Package console issues short-lived, single-use tickets and relays bytes
// duplex between a browser transport and the VNC/SPICE/serial endpoint a
// hypervisor.Adapter names for a VM (§4.I). Grounded on
// lib/exec/client.go's vsock-dial-then-duplex-relay shape (ExecIntoInstance
// dials a Unix socket, performs a handshake, then streams bytes both ways
// under a deadline) and lib/guest/client.go's equivalent for the
// guest-agent side; retargeted here from a gRPC exec stream to a raw TCP/
// Unix byte relay fronting RFB (VNC) traffic, and from "agent channel" to
// "ticket-gated proxy channel".
package console

import (
	"time"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
)

// Ticket is an opaque, single-use capability granting a short-lived
// duplex bridge to a specific console backend (§3).
type Ticket struct {
	ID        string
	VMID      string
	Kind      hypervisor.ConsoleKind
	Network   string
	Address   string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
}

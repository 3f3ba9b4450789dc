package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/horcrux-project/horcrux/internal/console"
	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/horcrux-project/horcrux/internal/logger"
)

var consoleUpgrader = websocket.Upgrader{
	ReadBufferSize:  32 * 1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleIssueConsoleTicket mints a single-use console ticket for a VM's
// VNC framebuffer (§4.I); the client then opens /console-ws?ticket=... to
// actually attach.
func (s *Server) handleIssueConsoleTicket(w http.ResponseWriter, r *http.Request) {
	vm := chi.URLParam(r, "vm")
	t, err := s.deps.Console.IssueTicket(r.Context(), s.deps.Adapter, vm, hypervisor.ConsoleVNC)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, consoleTicketResponse{
		TicketID:  t.ID,
		ExpiresAt: t.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// consoleWSConn adapts a *websocket.Conn's binary-message stream to
// io.ReadWriteCloser so console.Relay can treat it like any other duplex
// channel — RFB framing rides opaquely inside each binary message.
type consoleWSConn struct {
	ws   *websocket.Conn
	rest []byte
}

func (c *consoleWSConn) Read(p []byte) (int, error) {
	for len(c.rest) == 0 {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return 0, err
		}
		c.rest = data
	}
	n := copy(p, c.rest)
	c.rest = c.rest[n:]
	return n, nil
}

func (c *consoleWSConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *consoleWSConn) Close() error {
	return c.ws.Close()
}

// handleConsoleWS upgrades to a websocket and relays it to the VM's
// console backend for the lifetime of the ticket (§4.I). A ticket is
// single-use: a second attach attempt is rejected as Forbidden, matching
// spec's worked ticket-reuse example.
func (s *Server) handleConsoleWS(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	ticketID := r.URL.Query().Get("ticket")
	t, err := s.deps.Console.Attach(ticketID)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	ws, err := consoleUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.ErrorContext(r.Context(), "console websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	if err := console.Relay(r.Context(), t, &consoleWSConn{ws: ws}); err != nil {
		log.DebugContext(r.Context(), "console relay ended", "error", err)
	}
}

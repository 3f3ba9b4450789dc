// Package httpapi is the resource-oriented HTTP/WS surface (§4.J):
// routing, request decoding, dispatch to internal/lifecycle,
// internal/inventory, internal/authn/authz, internal/console, and
// internal/eventbus, and the canonical error envelope (§7). The
// middleware chain order (RequestID → RealIP → Recoverer → logger
// injection → access logging → HTTP metrics → timeout, then per route
// group otelchi (not on the websocket routes) → auth → privilege check →
// handler) is carried over from
// cmd/api/main.go's router construction, generalized from its
// OpenAPI-codegen strict-handler dispatch to hand-written chi routes —
// this repo has no checked-in OpenAPI document to run oapi-codegen
// against, so handlers bind directly to chi rather than through a
// generated ServerInterface (see DESIGN.md for this divergence).
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// ErrorKind is one of the closed set of error kinds §7 names.
type ErrorKind string

const (
	KindBadRequest           ErrorKind = "BadRequest"
	KindAuthenticationFailed ErrorKind = "AuthenticationFailed"
	KindForbidden            ErrorKind = "Forbidden"
	KindNotFound             ErrorKind = "NotFound"
	KindConflict             ErrorKind = "Conflict"
	KindValidationError      ErrorKind = "ValidationError"
	KindRateLimited          ErrorKind = "RateLimited"
	KindUnsupported          ErrorKind = "Unsupported"
	KindBackendUnavailable   ErrorKind = "BackendUnavailable"
	KindInternal             ErrorKind = "Internal"
)

var statusForKind = map[ErrorKind]int{
	KindBadRequest:           http.StatusBadRequest,
	KindAuthenticationFailed: http.StatusUnauthorized,
	KindForbidden:            http.StatusForbidden,
	KindNotFound:             http.StatusNotFound,
	KindConflict:             http.StatusConflict,
	KindValidationError:      http.StatusUnprocessableEntity,
	KindRateLimited:          http.StatusTooManyRequests,
	KindUnsupported:          http.StatusNotImplemented,
	KindBackendUnavailable:   http.StatusServiceUnavailable,
	KindInternal:             http.StatusInternalServerError,
}

// envelope is exactly the §7 wire shape: {status, error, message,
// details?, request_id?, timestamp}.
type envelope struct {
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// writeError writes the canonical error envelope for kind.
func writeError(w http.ResponseWriter, r *http.Request, kind ErrorKind, message string, details string) {
	status, ok := statusForKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	env := envelope{
		Status:    status,
		Error:     string(kind),
		Message:   message,
		Details:   details,
		RequestID: middleware.GetReqID(r.Context()),
		Timestamp: now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

// now is a seam for tests.
var now = time.Now

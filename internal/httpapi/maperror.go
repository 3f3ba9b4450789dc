package httpapi

import (
	"errors"
	"net/http"

	"github.com/horcrux-project/horcrux/internal/authn"
	"github.com/horcrux-project/horcrux/internal/authz"
	"github.com/horcrux-project/horcrux/internal/console"
	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/horcrux-project/horcrux/internal/inventory"
	"github.com/horcrux-project/horcrux/internal/lifecycle"
	"github.com/horcrux-project/horcrux/internal/volumes"
)

// respondErr maps a domain error from any of the core packages to the
// matching §7 kind and writes the envelope for it; unrecognized errors
// fall back to KindInternal.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, inventory.ErrNotFound), errors.Is(err, authn.ErrNotFound), errors.Is(err, authz.ErrNotFound),
		errors.Is(err, volumes.ErrNotFound), errors.Is(err, volumes.ErrPoolNotFound):
		writeError(w, r, KindNotFound, "resource not found", err.Error())
	case errors.Is(err, inventory.ErrNameConflict), errors.Is(err, authn.ErrUserExists), errors.Is(err, authz.ErrRoleExists),
		errors.Is(err, volumes.ErrAlreadyExists):
		writeError(w, r, KindConflict, "resource already exists", err.Error())
	case errors.Is(err, inventory.ErrVMHasChildren), errors.Is(err, volumes.ErrInUse), errors.Is(err, volumes.ErrPoolInUse),
		errors.Is(err, volumes.ErrRefCountNonzero):
		writeError(w, r, KindConflict, "resource has dependent children", err.Error())
	case errors.Is(err, volumes.ErrAmbiguousName):
		writeError(w, r, KindConflict, "multiple resources match that name", err.Error())
	case errors.Is(err, volumes.ErrUnsupported):
		writeError(w, r, KindUnsupported, "operation not supported by this backend", err.Error())
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(w, r, KindConflict, "invalid state transition", err.Error())
	case errors.Is(err, lifecycle.ErrJobInProgress):
		writeError(w, r, KindConflict, "a workflow is already in progress for this VM", err.Error())
	case errors.Is(err, authn.ErrInvalidCredentials), errors.Is(err, authn.ErrSessionExpired), errors.Is(err, authn.ErrUserDisabled):
		writeError(w, r, KindAuthenticationFailed, "authentication failed", "")
	case errors.Is(err, authz.ErrForbidden), errors.Is(err, console.ErrForbidden):
		writeError(w, r, KindForbidden, "forbidden", "")
	case errors.Is(err, hypervisor.ErrUnsupported):
		writeError(w, r, KindUnsupported, "operation not supported by this backend", err.Error())
	default:
		writeError(w, r, KindInternal, "internal error", "")
	}
}


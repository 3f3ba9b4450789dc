package httpapi

import (
	"log/slog"

	"github.com/horcrux-project/horcrux/internal/authn"
	"github.com/horcrux-project/horcrux/internal/authz"
	"github.com/horcrux-project/horcrux/internal/console"
	"github.com/horcrux-project/horcrux/internal/eventbus"
	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/horcrux-project/horcrux/internal/inventory"
	"github.com/horcrux-project/horcrux/internal/lifecycle"
	"github.com/horcrux-project/horcrux/internal/volumes"
)

// argon2Params bundles the cost parameters handleCreateUser passes to
// authn.HashPassword for a fresh password. Login verification reads the
// cost back from the stored hash, not from here.
type argon2Params struct {
	MemoryKB   int
	Iterations int
}

// Deps are the collaborators the router dispatches requests to — every
// component from §4 that has an HTTP-reachable operation.
type Deps struct {
	Lifecycle lifecycle.Manager
	Inventory inventory.Manager
	Authn     authn.Manager
	Authz     authz.Manager
	Volumes   volumes.Manager
	Console   console.Manager
	Bus       *eventbus.Bus
	Adapter   hypervisor.Adapter
	Logger    *slog.Logger
	Argon2    argon2Params
}

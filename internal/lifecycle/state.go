// Package lifecycle is the VM workflow manager (§4.F): it is the only
// component that calls a hypervisor.Adapter by id and a netalloc.Manager by
// owner, translating a persisted internal/inventory.VM record into the
// backend calls that bring it to the requested state. Grounded verbatim on
// lib/instances/state.go's ValidTransitions/CanTransitionTo/IsTerminal/
// RequiresVMM shape, extended with the Migrating state and its transitions
// per spec §4.F's table.
package lifecycle

import "github.com/horcrux-project/horcrux/internal/inventory"

// ValidTransitions enumerates every state a VM may move to directly from a
// given state. A transition not listed here is rejected with
// ErrInvalidTransition before any adapter call is attempted.
var ValidTransitions = map[inventory.Status][]inventory.Status{
	inventory.StatusCreated:   {inventory.StatusStarting, inventory.StatusFailed},
	inventory.StatusStarting:  {inventory.StatusRunning, inventory.StatusFailed},
	inventory.StatusRunning:   {inventory.StatusPaused, inventory.StatusStopping, inventory.StatusMigrating, inventory.StatusFailed},
	inventory.StatusPaused:    {inventory.StatusRunning, inventory.StatusStopping, inventory.StatusFailed},
	inventory.StatusStopping:  {inventory.StatusStopped, inventory.StatusFailed},
	inventory.StatusStopped:   {inventory.StatusStarting},
	inventory.StatusMigrating: {inventory.StatusRunning, inventory.StatusFailed},
	inventory.StatusFailed:    {inventory.StatusStarting},
}

// CanTransitionTo reports whether to is reachable directly from from.
func CanTransitionTo(from, to inventory.Status) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a VM in this state requires an operator
// action (Start) before anything else can happen to it — Stopped and
// Failed are the two states the background drivers never act on.
func IsTerminal(s inventory.Status) bool {
	return s == inventory.StatusStopped || s == inventory.StatusFailed
}

// RequiresVMM reports whether a VM in this state has a live backend
// process an Adapter should have a handle for.
func RequiresVMM(s inventory.Status) bool {
	switch s {
	case inventory.StatusStarting, inventory.StatusRunning, inventory.StatusPaused, inventory.StatusStopping, inventory.StatusMigrating:
		return true
	default:
		return false
	}
}

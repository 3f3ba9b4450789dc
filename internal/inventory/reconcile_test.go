package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAdapter reports a live handle only for ids in alive; every other
// method is unused by reconciliation and panics if called, so a test that
// exercises more than Info fails loudly instead of silently passing.
type stubAdapter struct{ alive map[string]bool }

func (s stubAdapter) Info(ctx context.Context, id string) (hypervisor.RuntimeInfo, error) {
	if s.alive[id] {
		return hypervisor.RuntimeInfo{PID: 1, State: "running"}, nil
	}
	return hypervisor.RuntimeInfo{}, errors.New("no VM registered for id " + id)
}

func (s stubAdapter) Start(context.Context, hypervisor.VMSpec) error { panic("unused") }
func (s stubAdapter) Stop(context.Context, string, hypervisor.StopMode) error {
	panic("unused")
}
func (s stubAdapter) Pause(context.Context, string) error  { panic("unused") }
func (s stubAdapter) Resume(context.Context, string) error { panic("unused") }
func (s stubAdapter) SnapshotCreate(context.Context, string, hypervisor.SnapshotOptions) error {
	panic("unused")
}
func (s stubAdapter) SnapshotRestore(context.Context, string, string) error { panic("unused") }
func (s stubAdapter) SnapshotDelete(context.Context, string, string) error  { panic("unused") }
func (s stubAdapter) Clone(context.Context, string, hypervisor.CloneOptions) error {
	panic("unused")
}
func (s stubAdapter) DiskAttach(context.Context, string, hypervisor.DiskSpec) error {
	panic("unused")
}
func (s stubAdapter) DiskDetach(context.Context, string, string) error { panic("unused") }
func (s stubAdapter) Stats(context.Context, string) (hypervisor.Stats, error) {
	panic("unused")
}
func (s stubAdapter) ConsoleEndpoint(context.Context, string, hypervisor.ConsoleKind) (hypervisor.Endpoint, error) {
	panic("unused")
}
func (s stubAdapter) MigrateBegin(context.Context, string, hypervisor.MigrationTarget) error {
	panic("unused")
}
func (s stubAdapter) MigrateAdvance(context.Context, string) (hypervisor.MigrationProgress, error) {
	panic("unused")
}
func (s stubAdapter) MigrateFinalize(context.Context, string) error { panic("unused") }
func (s stubAdapter) MigrateAbort(context.Context, string) error   { panic("unused") }
func (s stubAdapter) Capabilities() hypervisor.Capabilities        { panic("unused") }

func TestReconcileFailsDeadVMs(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.CreateVM(ctx, VM{ID: "vm-alive", Name: "alive", Status: StatusRunning}))
	require.NoError(t, m.CreateVM(ctx, VM{ID: "vm-dead", Name: "dead", Status: StatusRunning}))
	require.NoError(t, m.CreateVM(ctx, VM{ID: "vm-stopped", Name: "stopped", Status: StatusStopped}))

	mgr := m.(*manager)
	count, err := mgr.Reconcile(ctx, stubAdapter{alive: map[string]bool{"vm-alive": true}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	alive, err := m.GetVM(ctx, "vm-alive")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, alive.Status)

	dead, err := m.GetVM(ctx, "vm-dead")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, dead.Status)

	stopped, err := m.GetVM(ctx, "vm-stopped")
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, stopped.Status)

	events, err := m.ListAudit(ctx, "vm-dead", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "vm.reconcile.failed", events[0].Action)
}

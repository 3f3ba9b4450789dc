package inventory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/horcrux-project/horcrux/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) Manager {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewManager(s)
}

func TestCreateAndGetVM(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	vm := VM{ID: "vm-1", Name: "web-1", Status: StatusCreated, VCPUs: 2, MemoryMB: 1024}
	require.NoError(t, m.CreateVM(ctx, vm))

	got, err := m.GetVM(ctx, "vm-1")
	require.NoError(t, err)
	assert.Equal(t, "web-1", got.Name)
	assert.Equal(t, StatusCreated, got.Status)
}

func TestCreateVMNameConflict(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.CreateVM(ctx, VM{ID: "vm-1", Name: "web-1"}))
	err := m.CreateVM(ctx, VM{ID: "vm-2", Name: "web-1"})
	assert.ErrorIs(t, err, ErrNameConflict)
}

func TestGetVMNotFound(t *testing.T) {
	m := newTestManager(t)
	_, err := m.GetVM(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateVM(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.CreateVM(ctx, VM{ID: "vm-1", Name: "web-1", Status: StatusCreated}))

	updated, err := m.UpdateVM(ctx, "vm-1", func(v *VM) error {
		v.Status = StatusRunning
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, updated.Status)

	got, err := m.GetVM(ctx, "vm-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
}

func TestDeleteVMFreesName(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.CreateVM(ctx, VM{ID: "vm-1", Name: "web-1"}))
	require.NoError(t, m.DeleteVM(ctx, "vm-1"))

	// Name should be free for reuse after delete.
	require.NoError(t, m.CreateVM(ctx, VM{ID: "vm-2", Name: "web-1"}))
}

func TestListVMs(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.CreateVM(ctx, VM{ID: "vm-1", Name: "a"}))
	require.NoError(t, m.CreateVM(ctx, VM{ID: "vm-2", Name: "b"}))

	all, err := m.ListVMs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSnapshotDAGDeleteRefused(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.CreateVM(ctx, VM{ID: "vm-1", Name: "web-1"}))
	require.NoError(t, m.CreateSnapshot(ctx, Snapshot{ID: "snap-1", VMID: "vm-1"}))
	require.NoError(t, m.CreateSnapshot(ctx, Snapshot{ID: "snap-2", VMID: "vm-1", ParentID: "snap-1"}))

	err := m.DeleteSnapshot(ctx, "snap-1")
	assert.ErrorIs(t, err, ErrVMHasChildren)

	require.NoError(t, m.DeleteSnapshot(ctx, "snap-2"))
	require.NoError(t, m.DeleteSnapshot(ctx, "snap-1"))
}

func TestListSnapshotsScopedToVM(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.CreateSnapshot(ctx, Snapshot{ID: "s1", VMID: "vm-1"}))
	require.NoError(t, m.CreateSnapshot(ctx, Snapshot{ID: "s2", VMID: "vm-2"}))

	got, err := m.ListSnapshots(ctx, "vm-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].ID)
}

func TestAuditOrderedMostRecentFirst(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.RecordAudit(ctx, AuditEvent{ID: "e1", ResourceID: "vm-1", CreatedAt: base}))
	require.NoError(t, m.RecordAudit(ctx, AuditEvent{ID: "e2", ResourceID: "vm-1", CreatedAt: base.Add(time.Hour)}))

	events, err := m.ListAudit(ctx, "vm-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e2", events[0].ID)
}

func TestContainerCRUD(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.CreateContainer(ctx, Container{ID: "c1", Name: "app", Status: ContainerCreated}))

	got, err := m.GetContainer(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, ContainerCreated, got.Status)

	updated, err := m.UpdateContainer(ctx, "c1", func(c *Container) error {
		c.Status = ContainerRunning
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, ContainerRunning, updated.Status)

	require.NoError(t, m.DeleteContainer(ctx, "c1"))
	_, err = m.GetContainer(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

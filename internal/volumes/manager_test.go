package volumes

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/horcrux-project/horcrux/internal/store"
)

func newTestManager(t *testing.T) (Manager, string) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "horcrux.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := NewManager(st, "", nil)
	pool, err := m.CreatePool(context.Background(), "default", PoolDirectory, map[string]string{"root": t.TempDir()})
	require.NoError(t, err)

	return NewManager(st, pool.Id, nil), pool.Id
}

func TestCreateAndGetVolume(t *testing.T) {
	m, poolID := newTestManager(t)
	ctx := context.Background()

	vol, err := m.CreateVolume(ctx, CreateVolumeRequest{Name: "root-disk", SizeBytes: 1 << 20})
	require.NoError(t, err)
	require.Equal(t, poolID, vol.PoolID)
	require.Equal(t, FormatRaw, vol.Format)

	got, err := m.GetVolume(ctx, vol.Id)
	require.NoError(t, err)
	require.Equal(t, "root-disk", got.Name)
}

func TestAttachVolumeExclusivity(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	vol, err := m.CreateVolume(ctx, CreateVolumeRequest{Name: "data", SizeBytes: 1 << 20})
	require.NoError(t, err)

	require.NoError(t, m.AttachVolume(ctx, vol.Id, AttachVolumeRequest{OwnerID: "vm-1", MountPath: "/dev/vdb"}))

	err = m.AttachVolume(ctx, vol.Id, AttachVolumeRequest{OwnerID: "vm-2", MountPath: "/dev/vdb", Readonly: true})
	require.Error(t, err)

	require.NoError(t, m.DetachVolume(ctx, vol.Id, "vm-1"))
	require.NoError(t, m.AttachVolume(ctx, vol.Id, AttachVolumeRequest{OwnerID: "vm-2", MountPath: "/dev/vdb", Readonly: true}))
}

func TestDeleteVolumeRejectsAttached(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	vol, err := m.CreateVolume(ctx, CreateVolumeRequest{Name: "root-disk", SizeBytes: 1 << 20})
	require.NoError(t, err)
	require.NoError(t, m.AttachVolume(ctx, vol.Id, AttachVolumeRequest{OwnerID: "vm-1", MountPath: "/dev/vda"}))

	err = m.DeleteVolume(ctx, vol.Id)
	require.ErrorIs(t, err, ErrInUse)

	require.NoError(t, m.DetachVolume(ctx, vol.Id, "vm-1"))
	require.NoError(t, m.DeleteVolume(ctx, vol.Id))
}

func TestCloneVolumeFull(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	vol, err := m.CreateVolume(ctx, CreateVolumeRequest{Name: "base", SizeBytes: 1 << 20})
	require.NoError(t, err)

	clone, err := m.CloneVolume(ctx, vol.Id, CloneFull, "clone-1")
	require.NoError(t, err)
	require.NotEqual(t, vol.Id, clone.Id)
	require.Equal(t, vol.SizeBytes, clone.SizeBytes)
}

package lxc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAdapterDefaultsBinary(t *testing.T) {
	a := NewAdapter("")
	assert.Equal(t, "lxc", a.binary)
}

func TestNewAdapterHonorsExplicitBinary(t *testing.T) {
	a := NewAdapter("/opt/bin/lxc")
	assert.Equal(t, "/opt/bin/lxc", a.binary)
}

func TestReadCgroupUint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.current")
	require.NoError(t, os.WriteFile(path, []byte("2048\n"), 0o644))

	got, err := readCgroupUint(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(2048), got)
}

func TestUnsupportedOperationsReturnErrUnsupported(t *testing.T) {
	a := NewAdapter("lxc")
	ctx := context.Background()

	_, err := a.ConsoleEndpoint(ctx, "vm-1", hypervisor.ConsoleVNC)
	assert.ErrorIs(t, err, hypervisor.ErrUnsupported)

	err = a.MigrateBegin(ctx, "vm-1", hypervisor.MigrationTarget{})
	assert.ErrorIs(t, err, hypervisor.ErrUnsupported)

	_, err = a.MigrateAdvance(ctx, "vm-1")
	assert.ErrorIs(t, err, hypervisor.ErrUnsupported)

	err = a.MigrateFinalize(ctx, "vm-1")
	assert.ErrorIs(t, err, hypervisor.ErrUnsupported)

	err = a.MigrateAbort(ctx, "vm-1")
	assert.ErrorIs(t, err, hypervisor.ErrUnsupported)
}

func TestCapabilities(t *testing.T) {
	a := NewAdapter("lxc")
	caps := a.Capabilities()
	assert.True(t, caps.SupportsSnapshot)
	assert.True(t, caps.SupportsPause)
	assert.False(t, caps.SupportsGPUPassthrough)
}

package docker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageRefUsesFirstCmdLineField(t *testing.T) {
	spec := hypervisor.VMSpec{Name: "fallback", CmdLine: "alpine:3.19 /bin/sh -c sleep"}
	assert.Equal(t, "alpine:3.19", imageRef(spec))
}

func TestImageRefFallsBackToNameWhenCmdLineEmpty(t *testing.T) {
	spec := hypervisor.VMSpec{Name: "my-container"}
	assert.Equal(t, "my-container", imageRef(spec))
}

func TestReadCgroupUint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.current")
	require.NoError(t, os.WriteFile(path, []byte("104857600\n"), 0o644))

	got, err := readCgroupUint(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(104857600), got)
}

func TestReadCgroupCPUUsage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cpu.stat")
	content := "usage_usec 500000\nuser_usec 300000\nsystem_usec 200000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := readCgroupCPUUsage(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(500000*1000), got)
}

func TestReadCgroupCPUUsageMissingField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cpu.stat")
	require.NoError(t, os.WriteFile(path, []byte("user_usec 300000\n"), 0o644))

	_, err := readCgroupCPUUsage(path)
	assert.Error(t, err)
}

func TestCapabilitiesReportsNoSnapshotOrHotplug(t *testing.T) {
	a := &Adapter{}
	caps := a.Capabilities()
	assert.False(t, caps.SupportsSnapshot)
	assert.False(t, caps.SupportsHotplugMemory)
	assert.True(t, caps.SupportsPause)
}

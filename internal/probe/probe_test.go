package probe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadCPUTotals(t *testing.T) {
	totals, err := ReadCPUTotals()
	require.NoError(t, err)
	require.Greater(t, totals.User+totals.System+totals.Idle, uint64(0))
}

func TestReadMemory(t *testing.T) {
	mem, err := ReadMemory()
	require.NoError(t, err)
	require.Greater(t, mem.TotalBytes, uint64(0))
	require.GreaterOrEqual(t, mem.TotalBytes, mem.FreeBytes)
}

func TestReadLoad(t *testing.T) {
	load, err := ReadLoad()
	require.NoError(t, err)
	require.GreaterOrEqual(t, load.Load1, 0.0)
}

func TestReadBlockDevice_UnknownDevice(t *testing.T) {
	_, err := ReadBlockDevice("horcrux-does-not-exist")
	require.Error(t, err)
}

func TestReadNetIf_UnknownInterface(t *testing.T) {
	_, err := ReadNetIf("horcrux-does-not-exist")
	require.Error(t, err)
}

func TestDetectCgroupVersion(t *testing.T) {
	v := DetectCgroupVersion()
	require.Contains(t, []CgroupVersion{CgroupV1, CgroupV2}, v)
}

func TestBlockDeviceSample_ByteConversion(t *testing.T) {
	s := BlockDeviceSample{ReadSectors: 10, WriteSectors: 20}
	require.Equal(t, uint64(10*sectorSize), s.ReadBytes())
	require.Equal(t, uint64(20*sectorSize), s.WrittenBytes())
}

package probe

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// BlockDeviceSample is the cumulative I/O counters for one block device, as
// exposed by /sys/block/<name>/stat. Field order and meaning match the
// kernel's documented block layer stats (Documentation/block/stat.rst).
type BlockDeviceSample struct {
	ReadOps        uint64
	ReadSectors    uint64
	ReadTicksMs    uint64
	WriteOps       uint64
	WriteSectors   uint64
	WriteTicksMs   uint64
	InFlight       uint64
	IOTicksMs      uint64
	TimeInQueueMs  uint64
}

// sectorSize is the traditional 512-byte sector unit /sys/block stats count
// in, independent of the device's physical block size.
const sectorSize = 512

// ReadBlockDevice reads /sys/block/<name>/stat for the named device (e.g.
// "vda", "nvme0n1").
func ReadBlockDevice(name string) (BlockDeviceSample, error) {
	path := fmt.Sprintf("/sys/block/%s/stat", name)
	f, err := os.Open(path)
	if err != nil {
		return BlockDeviceSample{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return BlockDeviceSample{}, fmt.Errorf("read %s: %w", path, err)
		}
		return BlockDeviceSample{}, fmt.Errorf("probe: empty %s", path)
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 11 {
		return BlockDeviceSample{}, fmt.Errorf("probe: malformed %s, got %d fields", path, len(fields))
	}

	vals := make([]uint64, 11)
	for i := 0; i < 11; i++ {
		v, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return BlockDeviceSample{}, fmt.Errorf("parse %s field %d: %w", path, i, err)
		}
		vals[i] = v
	}

	return BlockDeviceSample{
		ReadOps:       vals[0],
		ReadSectors:   vals[2],
		ReadTicksMs:   vals[3],
		WriteOps:      vals[4],
		WriteSectors:  vals[6],
		WriteTicksMs:  vals[7],
		InFlight:      vals[8],
		IOTicksMs:     vals[9],
		TimeInQueueMs: vals[10],
	}, nil
}

// ReadBytes returns the device's cumulative bytes read, converting the
// kernel's 512-byte sector unit.
func (s BlockDeviceSample) ReadBytes() uint64 { return s.ReadSectors * sectorSize }

// WrittenBytes returns the device's cumulative bytes written.
func (s BlockDeviceSample) WrittenBytes() uint64 { return s.WriteSectors * sectorSize }

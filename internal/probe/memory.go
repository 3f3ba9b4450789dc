package probe

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// MemorySample is the host memory counters needed for utilization and
// pressure reporting, all reported in bytes.
type MemorySample struct {
	TotalBytes     uint64
	FreeBytes      uint64
	AvailableBytes uint64
	BuffersBytes   uint64
	CachedBytes    uint64
}

// ReadMemory reads the relevant fields out of /proc/meminfo. Values there
// are reported in KiB; ReadMemory converts to bytes.
func ReadMemory() (MemorySample, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return MemorySample{}, fmt.Errorf("open /proc/meminfo: %w", err)
	}
	defer f.Close()

	want := map[string]*uint64{}
	var sample MemorySample
	want["MemTotal:"] = &sample.TotalBytes
	want["MemFree:"] = &sample.FreeBytes
	want["MemAvailable:"] = &sample.AvailableBytes
	want["Buffers:"] = &sample.BuffersBytes
	want["Cached:"] = &sample.CachedBytes

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		dst, ok := want[fields[0]]
		if !ok {
			continue
		}
		kib, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return MemorySample{}, fmt.Errorf("parse /proc/meminfo %s: %w", fields[0], err)
		}
		*dst = kib * 1024
	}
	if err := scanner.Err(); err != nil {
		return MemorySample{}, fmt.Errorf("scan /proc/meminfo: %w", err)
	}
	return sample, nil
}

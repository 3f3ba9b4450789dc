package probe

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// CgroupVersion distinguishes the two on-disk cgroup layouts a container's
// resource accounting may live under.
type CgroupVersion int

const (
	CgroupV1 CgroupVersion = 1
	CgroupV2 CgroupVersion = 2
)

// CgroupSample is the subset of container cgroup accounting relevant to
// utilization reporting: CPU usage in nanoseconds and current memory usage
// in bytes.
type CgroupSample struct {
	CPUUsageNanos  uint64
	MemoryUseBytes uint64
}

// DetectCgroupVersion inspects /sys/fs/cgroup to determine which layout the
// host uses. Presence of cgroup.controllers at the root is the standard
// unified-hierarchy (v2) signal; its absence means the legacy per-controller
// (v1) hierarchy.
func DetectCgroupVersion() CgroupVersion {
	if _, err := os.Stat("/sys/fs/cgroup/cgroup.controllers"); err == nil {
		return CgroupV2
	}
	return CgroupV1
}

// ReadContainerCgroup reads CPU and memory accounting for the container
// cgroup identified by id (the cgroup directory name, typically the
// container's full ID), under the given layout version.
func ReadContainerCgroup(id string, version CgroupVersion) (CgroupSample, error) {
	switch version {
	case CgroupV2:
		return readCgroupV2(id)
	case CgroupV1:
		return readCgroupV1(id)
	default:
		return CgroupSample{}, fmt.Errorf("probe: unknown cgroup version %d", version)
	}
}

func readCgroupV2(id string) (CgroupSample, error) {
	dir := cgroupV2Dir(id)

	cpuData, err := os.ReadFile(filepath.Join(dir, "cpu.stat"))
	if err != nil {
		return CgroupSample{}, fmt.Errorf("read cpu.stat for %s: %w", id, err)
	}
	var usageNanos uint64
	for _, line := range strings.Split(string(cpuData), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "usage_usec" {
			usec, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return CgroupSample{}, fmt.Errorf("parse cpu.stat usage_usec for %s: %w", id, err)
			}
			usageNanos = usec * 1000
			break
		}
	}

	memData, err := os.ReadFile(filepath.Join(dir, "memory.current"))
	if err != nil {
		return CgroupSample{}, fmt.Errorf("read memory.current for %s: %w", id, err)
	}
	memBytes, err := strconv.ParseUint(strings.TrimSpace(string(memData)), 10, 64)
	if err != nil {
		return CgroupSample{}, fmt.Errorf("parse memory.current for %s: %w", id, err)
	}

	return CgroupSample{CPUUsageNanos: usageNanos, MemoryUseBytes: memBytes}, nil
}

func readCgroupV1(id string) (CgroupSample, error) {
	cpuData, err := os.ReadFile(filepath.Join("/sys/fs/cgroup/cpu,cpuacct/docker", id, "cpuacct.usage"))
	if err != nil {
		return CgroupSample{}, fmt.Errorf("read cpuacct.usage for %s: %w", id, err)
	}
	usageNanos, err := strconv.ParseUint(strings.TrimSpace(string(cpuData)), 10, 64)
	if err != nil {
		return CgroupSample{}, fmt.Errorf("parse cpuacct.usage for %s: %w", id, err)
	}

	memData, err := os.ReadFile(filepath.Join("/sys/fs/cgroup/memory/docker", id, "memory.usage_in_bytes"))
	if err != nil {
		return CgroupSample{}, fmt.Errorf("read memory.usage_in_bytes for %s: %w", id, err)
	}
	memBytes, err := strconv.ParseUint(strings.TrimSpace(string(memData)), 10, 64)
	if err != nil {
		return CgroupSample{}, fmt.Errorf("parse memory.usage_in_bytes for %s: %w", id, err)
	}

	return CgroupSample{CPUUsageNanos: usageNanos, MemoryUseBytes: memBytes}, nil
}

func cgroupV2Dir(id string) string {
	return filepath.Join("/sys/fs/cgroup/system.slice", fmt.Sprintf("docker-%s.scope", id))
}

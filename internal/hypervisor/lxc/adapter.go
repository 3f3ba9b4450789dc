// Package lxc implements hypervisor.Adapter for the LXC/LXD/Incus system
// container VM kind (§4.B) by shelling out to the lxc CLI and reading
// cgroup v2 counters directly, the same cgroup-fallback shape
// internal/hypervisor/docker uses for its Stats method: no pack example
// wraps the LXD/Incus Go client directly, so this follows the nearest
// grounded shape rather than inventing an RPC binding.
package lxc

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
)

func init() {
	hypervisor.RegisterSocketName(hypervisor.Type("lxc"), "lxc.sock")
}

const cgroupRoot = "/sys/fs/cgroup"

// Adapter drives the lxc command-line tool. Most lifecycle operations map
// onto a single subcommand; anything the CLI has no equivalent for (live
// migration, a graphical console) reports
// Unsupported per §9 instead of approximating it.
type Adapter struct {
	binary string
}

// NewAdapter returns an LXC-backed hypervisor.Adapter driving the lxc
// binary found on PATH (or at binary, if non-empty).
func NewAdapter(binary string) *Adapter {
	if binary == "" {
		binary = "lxc"
	}
	return &Adapter{binary: binary}
}

var _ hypervisor.Adapter = (*Adapter)(nil)

func (a *Adapter) Capabilities() hypervisor.Capabilities {
	return hypervisor.Capabilities{
		SupportsSnapshot:       true,
		SupportsHotplugMemory:  false,
		SupportsPause:          true,
		SupportsVsock:          false,
		SupportsGPUPassthrough: false,
		SupportsDiskIOLimit:    false,
	}
}

func (a *Adapter) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, a.binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("lxc adapter: %s %s: %w: %s", a.binary, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Start launches a container instance from an image alias (VMSpec.CmdLine's
// first field, the same repurposing internal/hypervisor/docker uses) named
// spec.ID, so later calls can address it by id alone.
func (a *Adapter) Start(ctx context.Context, spec hypervisor.VMSpec) error {
	fields := strings.Fields(spec.CmdLine)
	image := spec.Name
	if len(fields) > 0 {
		image = fields[0]
	}
	if err := a.run(ctx, "launch", image, spec.ID); err != nil {
		return err
	}
	for _, d := range spec.Disks {
		if err := a.DiskAttach(ctx, spec.ID, d); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) Stop(ctx context.Context, id string, mode hypervisor.StopMode) error {
	args := []string{"stop", id}
	if mode == hypervisor.StopForce {
		args = append(args, "--force")
	}
	return a.run(ctx, args...)
}

func (a *Adapter) Pause(ctx context.Context, id string) error {
	return a.run(ctx, "pause", id)
}

func (a *Adapter) Resume(ctx context.Context, id string) error {
	return a.run(ctx, "start", id)
}

func (a *Adapter) SnapshotCreate(ctx context.Context, id string, opts hypervisor.SnapshotOptions) error {
	return a.run(ctx, "snapshot", id, opts.SnapshotID)
}

func (a *Adapter) SnapshotRestore(ctx context.Context, id string, snapshotPath string) error {
	return a.run(ctx, "restore", id, snapshotPath)
}

func (a *Adapter) SnapshotDelete(ctx context.Context, id string, snapshotID string) error {
	return a.run(ctx, "delete", fmt.Sprintf("%s/%s", id, snapshotID))
}

// Clone: lxc copy duplicates both config and storage volume in one call,
// the one lifecycle operation this adapter can satisfy with a real backend
// primitive rather than deferring to internal/volumes.
func (a *Adapter) Clone(ctx context.Context, id string, opts hypervisor.CloneOptions) error {
	return a.run(ctx, "copy", id, opts.NewID)
}

func (a *Adapter) DiskAttach(ctx context.Context, id string, disk hypervisor.DiskSpec) error {
	return a.run(ctx, "config", "device", "add", id, disk.ID, "disk", "source="+disk.Path, "path=/mnt/"+disk.ID)
}

func (a *Adapter) DiskDetach(ctx context.Context, id string, diskID string) error {
	return a.run(ctx, "config", "device", "remove", id, diskID)
}

// Stats reads cgroup v2 counters the same way internal/hypervisor/docker
// does; lxc exposes `lxc info --resources` but not a machine-parseable
// byte-counter stream, so the cgroup path is the more reliable source.
func (a *Adapter) Stats(ctx context.Context, id string) (hypervisor.Stats, error) {
	dir := filepath.Join(cgroupRoot, "lxc.payload."+id)
	memUsed, err := readCgroupUint(filepath.Join(dir, "memory.current"))
	if err != nil {
		return hypervisor.Stats{}, fmt.Errorf("%w: lxc adapter cgroup stats for %s: %v", hypervisor.ErrUnsupported, id, err)
	}
	cpuNanos, _ := readCgroupCPUUsage(filepath.Join(dir, "cpu.stat"))
	return hypervisor.Stats{
		CPUTimeNanos:    cpuNanos,
		MemoryUsedBytes: memUsed,
		BlockReadBytes:  map[string]uint64{},
		BlockWriteBytes: map[string]uint64{},
		NetRxBytes:      map[string]uint64{},
		NetTxBytes:      map[string]uint64{},
		SampledAt:       time.Now(),
	}, nil
}

func (a *Adapter) Info(ctx context.Context, id string) (hypervisor.RuntimeInfo, error) {
	cmd := exec.CommandContext(ctx, a.binary, "list", id, "--format", "csv", "-c", "s")
	out, err := cmd.Output()
	if err != nil {
		return hypervisor.RuntimeInfo{}, fmt.Errorf("lxc adapter: info %s: %w", id, err)
	}
	state := strings.ToLower(strings.TrimSpace(string(out)))
	if state == "" {
		state = "unknown"
	}
	return hypervisor.RuntimeInfo{State: state}, nil
}

// ConsoleEndpoint: `lxc console` attaches the caller's own terminal rather
// than handing back a reachable network endpoint, so there is no Endpoint
// value to return here.
func (a *Adapter) ConsoleEndpoint(ctx context.Context, id string, kind hypervisor.ConsoleKind) (hypervisor.Endpoint, error) {
	return hypervisor.Endpoint{}, fmt.Errorf("%w: lxc adapter console endpoint", hypervisor.ErrUnsupported)
}

// MigrateBegin/Advance/Finalize/Abort: LXD cluster live migration exists
// but needs a clustered LXD deployment this adapter doesn't assume;
// cross-host moves for a standalone lxc install are copy-then-delete,
// which internal/lifecycle can already express via Clone without adapter
// support for a phased migration protocol.
func (a *Adapter) MigrateBegin(ctx context.Context, id string, target hypervisor.MigrationTarget) error {
	return fmt.Errorf("%w: lxc adapter live migration", hypervisor.ErrUnsupported)
}

func (a *Adapter) MigrateAdvance(ctx context.Context, id string) (hypervisor.MigrationProgress, error) {
	return hypervisor.MigrationProgress{}, fmt.Errorf("%w: lxc adapter live migration", hypervisor.ErrUnsupported)
}

func (a *Adapter) MigrateFinalize(ctx context.Context, id string) error {
	return fmt.Errorf("%w: lxc adapter live migration", hypervisor.ErrUnsupported)
}

func (a *Adapter) MigrateAbort(ctx context.Context, id string) error {
	return fmt.Errorf("%w: lxc adapter live migration", hypervisor.ErrUnsupported)
}

func readCgroupUint(path string) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
}

func readCgroupCPUUsage(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 2 && fields[0] == "usage_usec" {
			usec, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return 0, err
			}
			return usec * 1000, nil
		}
	}
	return 0, fmt.Errorf("usage_usec not found in %s", path)
}

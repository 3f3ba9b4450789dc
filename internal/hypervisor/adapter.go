package hypervisor

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupported is returned by an Adapter method when the backend has no
// way to perform the operation at all (§4.E/§9: "unsupported operations
// return an explicit Unsupported rather than panicking"). Callers surface
// this as the ErrorKind Unsupported (§7), HTTP 501.
var ErrUnsupported = errors.New("hypervisor: operation not supported by this adapter")

// StopMode selects how Stop asks the backend to bring a VM down (§4.E).
type StopMode string

const (
	StopGraceful StopMode = "graceful"
	StopForce    StopMode = "force"
)

// ConsoleKind identifies the console transport requested of
// Adapter.ConsoleEndpoint (§3 Console ticket, §4.I).
type ConsoleKind string

const (
	ConsoleVNC   ConsoleKind = "vnc"
	ConsoleSPICE ConsoleKind = "spice"
	ConsoleSerial ConsoleKind = "serial"
)

// VMSpec is the backend-agnostic description of a VM to start, translated
// from the persisted VM record (§3) by the lifecycle manager (§4.F) before
// being handed to an Adapter.
type VMSpec struct {
	ID         string
	Name       string
	VCPUs      int
	MemoryMB   int64
	KernelPath string
	InitrdPath string
	CmdLine    string
	Disks      []DiskSpec
	NICs       []NICSpec
	VsockCID   int64
	GPUs       []string // sysfs PCI addresses or mdev UUIDs for passthrough
}

// DiskSpec describes one disk attachment handed to Start, DiskAttach.
type DiskSpec struct {
	ID           string
	Path         string
	ReadOnly     bool
	IOBytesPerSec int64 // 0 = unlimited
	IOBurstBytes  int64
}

// NICSpec describes one network attachment handed to Start.
type NICSpec struct {
	TapName    string
	MACAddress string
}

// CloneMode selects how Clone copies a VM's disks (§3 Volume RefCount,
// §4.F Clone workflow).
type CloneMode string

const (
	CloneFull   CloneMode = "full"
	CloneLinked CloneMode = "linked"
)

// CloneOptions parameterizes Clone.
type CloneOptions struct {
	NewID   string
	NewName string
	Mode    CloneMode
}

// SnapshotOptions parameterizes SnapshotCreate.
type SnapshotOptions struct {
	SnapshotID  string
	DestPath    string
	WithMemory  bool // only valid if the VM is Running or Paused (§4.F)
}

// Stats is one point-in-time sample of a VM's resource counters, fed into
// the rate engine (§4.C) by the metrics collector driver (§4.K).
type Stats struct {
	CPUTimeNanos    uint64
	MemoryUsedBytes uint64
	BlockReadBytes  map[string]uint64
	BlockWriteBytes map[string]uint64
	NetRxBytes      map[string]uint64
	NetTxBytes      map[string]uint64
	SampledAt       time.Time
}

// Endpoint is a reachable console address returned by ConsoleEndpoint.
type Endpoint struct {
	Kind    ConsoleKind
	Network string // "tcp" or "unix"
	Address string
}

// MigrationTarget addresses the destination host of a migration (§4.F).
type MigrationTarget struct {
	NodeAddress  string
	BandwidthBps int64 // 0 = unlimited
}

// MigrationProgress reports how far a migration has advanced.
type MigrationProgress struct {
	BytesTransferred int64
	BytesTotal       int64
	Phase            string
}

// RuntimeInfo is what Adapter.Info callers need to know about a running
// backend process beyond the Stats counters.
type RuntimeInfo struct {
	PID   int
	State string
}

// Adapter is the single capability interface every hypervisor backend
// implements (§4.E): id-keyed, so the lifecycle manager (§4.F) addresses
// VMs by identifier rather than holding a per-VM client value itself. This
// generalizes the teacher's per-VM Hypervisor client (hypervisor.go) into
// the id-keyed shape the spec's component boundary requires; adapters wrap
// a registry of live per-VM clients internally (see qemu.QEMUAdapter).
type Adapter interface {
	// Start launches spec and returns once the backend process exists and
	// is reachable, not once the guest OS has booted.
	Start(ctx context.Context, spec VMSpec) error
	Stop(ctx context.Context, id string, mode StopMode) error
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error

	SnapshotCreate(ctx context.Context, id string, opts SnapshotOptions) error
	SnapshotRestore(ctx context.Context, id string, snapshotPath string) error
	SnapshotDelete(ctx context.Context, id string, snapshotID string) error

	Clone(ctx context.Context, id string, opts CloneOptions) error

	DiskAttach(ctx context.Context, id string, disk DiskSpec) error
	DiskDetach(ctx context.Context, id string, diskID string) error

	Stats(ctx context.Context, id string) (Stats, error)
	Info(ctx context.Context, id string) (RuntimeInfo, error)
	ConsoleEndpoint(ctx context.Context, id string, kind ConsoleKind) (Endpoint, error)

	MigrateBegin(ctx context.Context, id string, target MigrationTarget) error
	MigrateAdvance(ctx context.Context, id string) (MigrationProgress, error)
	MigrateFinalize(ctx context.Context, id string) error
	MigrateAbort(ctx context.Context, id string) error

	// Capabilities reports the backend's feature set for this VM kind, so
	// the lifecycle manager can short-circuit to Unsupported without
	// issuing the call (§4.E).
	Capabilities() Capabilities
}

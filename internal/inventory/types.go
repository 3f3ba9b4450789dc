// Package inventory mediates every write to VM, snapshot, container, and
// audit records (§4.D): a per-entity in-memory lock guards concurrent
// mutation of one record, persistence always goes through internal/store in
// the same critical section, and cross-entity operations acquire locks in a
// deterministic order (entity kind, then id) to avoid deadlock. Grounded on
// lib/instances/manager.go's getInstanceLock (sync.Map of *sync.RWMutex),
// generalized from "one entity kind" to the full set this component owns.
package inventory

import "time"

// Status is a VM's lifecycle state (§3, §4.F). internal/lifecycle is the
// only writer of this field; inventory just persists and projects it.
type Status string

const (
	StatusCreated   Status = "created"
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusStopping  Status = "stopping"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
	StatusMigrating Status = "migrating"
)

// DiskRef binds a VM to a volume it owns, by id, in attach order.
type DiskRef struct {
	VolumeID string
	ReadOnly bool
}

// NICRef is a VM's persisted network attachment, populated from
// internal/netalloc's allocation once Start succeeds.
type NICRef struct {
	TapName    string
	MACAddress string
	IP         string
}

// VM is the persisted record for one virtual machine (§3).
type VM struct {
	ID         string
	Name       string
	Status     Status
	VCPUs      int
	MemoryMB   int64
	KernelPath string
	InitrdPath string
	CmdLine    string
	VsockCID   int64
	Disks      []DiskRef
	NICs       []NICRef
	GPUs       []string
	NodeID     string // owning cluster node, informational (§9)
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Snapshot is one point-in-time capture of a VM, forming a DAG via
// ParentID (§3).
type Snapshot struct {
	ID        string
	VMID      string
	ParentID  string // empty for a root snapshot
	Path      string // directory under paths.VMSnapshotDir
	WithMemory bool
	CreatedAt time.Time
}

// ContainerStatus mirrors Status for containers (§3).
type ContainerStatus string

const (
	ContainerCreated ContainerStatus = "created"
	ContainerRunning ContainerStatus = "running"
	ContainerStopped ContainerStatus = "stopped"
	ContainerFailed  ContainerStatus = "failed"
)

// Container is the persisted record for one container (§3).
type Container struct {
	ID        string
	Name      string
	Image     string
	Status    ContainerStatus
	Disks     []DiskRef
	NICs      []NICRef
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuditEvent is an immutable record of a mutating action (§3).
type AuditEvent struct {
	ID         string
	ActorID    string // user id, or "" for system-originated
	Action     string
	ResourceID string
	Outcome    string // "success" | "denied" | "error"
	Detail     string
	CreatedAt  time.Time
}

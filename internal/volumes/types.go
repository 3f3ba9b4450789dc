package volumes

import "time"

// PoolKind identifies the storage backend a pool is implemented against.
// Directory is the only kind with a full backend in this tree; the rest are
// registered so the lifecycle manager can address them uniformly and get a
// typed Unsupported error rather than a missing-case panic.
type PoolKind string

const (
	PoolDirectory PoolKind = "directory"
	PoolLVM       PoolKind = "lvm"
	PoolZFS       PoolKind = "zfs"
	PoolBtrfs     PoolKind = "btrfs"
	PoolCephRBD   PoolKind = "ceph-rbd"
	PoolNFS       PoolKind = "nfs"
	PoolCIFS      PoolKind = "cifs"
	PoolGlusterFS PoolKind = "glusterfs"
	PoolS3        PoolKind = "s3"
	PoolISCSI     PoolKind = "iscsi"
)

// PoolHealth is the observable health of a storage pool backend.
type PoolHealth string

const (
	HealthOnline   PoolHealth = "online"
	HealthDegraded PoolHealth = "degraded"
	HealthOffline  PoolHealth = "offline"
)

// VolumeFormat identifies the on-disk representation of a volume's content.
type VolumeFormat string

const (
	FormatRaw       VolumeFormat = "raw"
	FormatQcow2     VolumeFormat = "qcow2"
	FormatZvol      VolumeFormat = "zvol"
	FormatRBD       VolumeFormat = "rbd"
	FormatDirectory VolumeFormat = "directory" // bind-mountable content tree, no block device
)

// CloneMode selects how a clone copies bytes from its source volume.
type CloneMode string

const (
	CloneFull   CloneMode = "full"   // independent copy
	CloneLinked CloneMode = "linked" // thin overlay, read-only backing on source
)

// PoolCapabilities declares what a pool backend can do beyond plain
// create/delete, so the lifecycle manager can decide without probing.
type PoolCapabilities struct {
	SupportsSnapshot    bool
	SupportsLinkedClone bool
	SupportsStreamDiff  bool
}

// StoragePool is a named storage backend volumes are allocated from.
type StoragePool struct {
	Id        string
	Name      string
	Kind      PoolKind
	Config    map[string]string // backend-specific, e.g. {"root": "/var/lib/horcrux/pools/x"}
	Health    PoolHealth
	CreatedAt time.Time
}

// Attachment records that a volume is referenced by a VM (or container).
type Attachment struct {
	OwnerID   string // VM or container id
	MountPath string
	Readonly  bool
}

// Volume is a disk volume: an allocation of bytes within a storage pool,
// addressed by a pool-scoped locator. RefCount counts linked clones made from
// this volume: CloneVolume increments it for each linked clone, and
// DeleteVolume refuses while it is nonzero. Snapshots do not change it, and
// nothing decrements it.
type Volume struct {
	Id          string
	Name        string
	PoolID      string
	Locator     string // pool-scoped path or identifier
	Format      VolumeFormat
	SizeBytes   int64
	RefCount    int
	CreatedAt   time.Time
	Attachments []Attachment
}

// CreateVolumeRequest is the domain request for allocating a new volume.
type CreateVolumeRequest struct {
	Name      string
	PoolID    string // empty selects the default pool
	SizeBytes int64
	Id        *string
}

// CreateVolumeFromArchiveRequest pre-populates a new directory-format volume
// from tar.gz content instead of allocating an empty block image.
type CreateVolumeFromArchiveRequest struct {
	Name      string
	PoolID    string
	SizeBytes int64 // upper bound enforced during extraction
	Id        *string
}

// AttachVolumeRequest attaches a volume to a VM or container.
type AttachVolumeRequest struct {
	OwnerID   string
	MountPath string
	Readonly  bool
}

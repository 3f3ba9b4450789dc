package network

import "time"

// DefaultUploadBurstMultiplier is a multiplier for the upload burst ceiling.
// Nothing in this package applies it: addVMClass takes the request's
// UploadCeilBps as the ceiling and falls back to UploadBps when that is zero.
const DefaultUploadBurstMultiplier = 4

// DefaultDownloadBurstMultiplier is the multiplier for the TBF burst bucket size.
// A larger bucket allows faster initial burst before settling to sustained rate.
// applyDownloadRateLimit uses this constant; no setting overrides it.
const DefaultDownloadBurstMultiplier = 4

// Network represents a virtual network for VMs and containers.
type Network struct {
	Name      string // "default", "internal"
	Subnet    string // "192.168.0.0/16"
	Gateway   string // "192.168.0.1"
	Bridge    string // "vmbr0" (derived from kernel)
	Isolated  bool   // Bridge_slave isolation mode
	Default   bool   // True for default network
	CreatedAt time.Time
}

// Allocation is a network allocation bound to one owner (VM or container).
type Allocation struct {
	OwnerID   string
	OwnerName string
	Network   string
	IP        string
	MAC       string
	TAPDevice string
	Gateway   string // Gateway IP for this network
	Netmask   string // Netmask in dotted decimal notation
	State     string // "running", "standby" — caller-supplied, not derived here
}

// NetworkConfig is the configuration returned after allocation, handed to
// the hypervisor adapter's VMSpec/NICSpec translation.
type NetworkConfig struct {
	IP        string
	MAC       string
	Gateway   string
	Netmask   string
	DNS       string
	TAPDevice string
}

// AllocateRequest is the request to allocate network for a VM or container.
// Always allocates from the default network.
type AllocateRequest struct {
	OwnerID       string
	OwnerName     string
	DownloadBps   int64 // Download rate limit in bytes/sec (external→VM, TAP egress TBF)
	UploadBps     int64 // Upload rate limit in bytes/sec (VM→external, HTB class rate)
	UploadCeilBps int64 // Upload ceiling in bytes/sec (HTB burst when bandwidth available, 0 = same as UploadBps)
}

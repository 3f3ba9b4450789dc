package httpapi

import "github.com/horcrux-project/horcrux/internal/inventory"

type createVMRequest struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	VCPUs      int                `json:"vcpus"`
	MemoryMB   int64              `json:"memory_mb"`
	KernelPath string             `json:"kernel_path"`
	InitrdPath string             `json:"initrd_path"`
	CmdLine    string             `json:"cmdline"`
	VsockCID   int64              `json:"vsock_cid"`
	Disks      []inventory.DiskRef `json:"disks"`
	GPUs       []string           `json:"gpus"`
}

type snapshotRequest struct {
	ID         string `json:"id"`
	WithMemory bool   `json:"with_memory"`
}

type cloneRequest struct {
	NewID   string `json:"new_id"`
	NewName string `json:"new_name"`
	Mode    string `json:"mode"`
}

type migrateRequest struct {
	TargetNodeAddress string `json:"target_node_address"`
	BandwidthBps      int64  `json:"bandwidth_bps"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}

type createUserRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	RoleIDs  []string `json:"role_ids"`
}

type createRoleRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Rules []struct {
		PathGlob   string   `json:"path_glob"`
		Privileges []string `json:"privileges"`
	} `json:"rules"`
}

type consoleTicketResponse struct {
	TicketID  string `json:"ticket_id"`
	ExpiresAt string `json:"expires_at"`
}

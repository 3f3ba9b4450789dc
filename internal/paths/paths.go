// Package paths centralizes on-disk layout construction for the control
// core's data directory.
//
// Directory structure:
//
//	{dataDir}/
//	  horcrux.db          # bbolt database: users, sessions, api keys, roles,
//	                      # vms, disks, snapshots, storage pools, containers,
//	                      # audit events, console tickets, jobs
//	  vms/
//	    {id}/
//	      qmp.sock        # hypervisor control socket (qemu/ch)
//	      logs/
//	        console.log
//	      snapshots/
//	        {snapshot-id}/
//	  pools/
//	    {pool-id}/        # directory-backed storage pool root
//	  backups/
//	    {backup-id}.img.zst
package paths

import "path/filepath"

// Paths provides typed path construction for the control core's data directory.
type Paths struct {
	dataDir string
}

// New creates a new Paths instance for the given data directory.
func New(dataDir string) *Paths {
	return &Paths{dataDir: dataDir}
}

// DataDir returns the root data directory.
func (p *Paths) DataDir() string {
	return p.dataDir
}

// DBFile returns the path to the persistence store's single database file.
func (p *Paths) DBFile() string {
	return filepath.Join(p.dataDir, "horcrux.db")
}

// VMsDir returns the root directory holding per-VM runtime state.
func (p *Paths) VMsDir() string {
	return filepath.Join(p.dataDir, "vms")
}

// VMDir returns the runtime directory for a single VM.
func (p *Paths) VMDir(id string) string {
	return filepath.Join(p.VMsDir(), id)
}

// VMSocket returns the path to a VM's hypervisor control socket.
func (p *Paths) VMSocket(id, socketName string) string {
	return filepath.Join(p.VMDir(id), socketName)
}

// VMLogs returns the directory holding a VM's console/vmm logs.
func (p *Paths) VMLogs(id string) string {
	return filepath.Join(p.VMDir(id), "logs")
}

// VMConsoleLog returns the path to a VM's serial console transcript.
func (p *Paths) VMConsoleLog(id string) string {
	return filepath.Join(p.VMLogs(id), "console.log")
}

// VMSnapshotsDir returns the directory holding a VM's on-disk snapshot artifacts.
func (p *Paths) VMSnapshotsDir(id string) string {
	return filepath.Join(p.VMDir(id), "snapshots")
}

// VMSnapshotDir returns the directory for one specific snapshot.
func (p *Paths) VMSnapshotDir(id, snapshotID string) string {
	return filepath.Join(p.VMSnapshotsDir(id), snapshotID)
}

// PoolsDir returns the root directory for directory-backed storage pools.
func (p *Paths) PoolsDir() string {
	return filepath.Join(p.dataDir, "pools")
}

// PoolDir returns the root directory for a single directory-backed storage pool.
func (p *Paths) PoolDir(poolID string) string {
	return filepath.Join(p.PoolsDir(), poolID)
}

// BackupsDir returns the root directory for backup archives.
func (p *Paths) BackupsDir() string {
	return filepath.Join(p.dataDir, "backups")
}

// BackupFile returns the path to a single backup archive.
func (p *Paths) BackupFile(backupID string) string {
	return filepath.Join(p.BackupsDir(), backupID+".img.zst")
}

// Package libvirt implements hypervisor.Adapter against a local libvirtd
// over its native RPC protocol, for operators who run KVM domains through
// libvirt instead of driving QEMU/QMP directly (§4.E). Grounded on
// github.com/digitalocean/go-libvirt, a transitive teacher dependency
// promoted to direct here; the domain lifecycle calls mirror the same
// create/shutdown/suspend/resume/snapshot shape qemu.QEMUAdapter wraps
// around QMP, translated to libvirt's RPC verbs and domain XML.
package libvirt

import (
	"context"
	"fmt"
	"sync"

	golibvirt "github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
)

// DefaultSocketPath is libvirtd's system-mode RPC socket.
const DefaultSocketPath = "/var/run/libvirt/libvirt-sock"

func init() {
	hypervisor.RegisterSocketName(hypervisor.Type("libvirt"), "libvirt.sock")
}

// handle remembers the libvirt Domain value returned at create time so
// later calls can address it without a name lookup round-trip.
type handle struct {
	dom golibvirt.Domain
}

// Adapter implements hypervisor.Adapter over a single libvirtd connection,
// id-keyed the same way qemu.QEMUAdapter is (§4.E): VM ids map 1:1 onto
// libvirt domain names, so every lookup below is by name rather than by
// the UUID libvirt would otherwise prefer.
type Adapter struct {
	l *golibvirt.Libvirt

	mu   sync.Mutex
	byID map[string]*handle
}

// NewAdapter dials libvirtd's RPC socket at socketPath (DefaultSocketPath
// if empty) and returns a ready hypervisor.Adapter. No connection is made
// here, so a daemon started before libvirtd is reachable doesn't fail to
// boot; Start establishes the connection and the other methods use the
// one Start opened.
func NewAdapter(socketPath string) *Adapter {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	dialer := dialers.NewLocal(dialers.WithSocket(socketPath))
	return &Adapter{
		l:    golibvirt.NewWithDialer(dialer),
		byID: make(map[string]*handle),
	}
}

var _ hypervisor.Adapter = (*Adapter)(nil)

func (a *Adapter) Capabilities() hypervisor.Capabilities {
	return hypervisor.Capabilities{
		SupportsSnapshot:       true,
		SupportsHotplugMemory:  false,
		SupportsPause:          true,
		SupportsVsock:          false,
		SupportsGPUPassthrough: true,
		SupportsDiskIOLimit:    false,
	}
}

func (a *Adapter) connect() error {
	if err := a.l.Connect(); err != nil {
		return fmt.Errorf("libvirt adapter: connect: %w", err)
	}
	return nil
}

func (a *Adapter) get(id string) (golibvirt.Domain, error) {
	a.mu.Lock()
	h, ok := a.byID[id]
	a.mu.Unlock()
	if ok {
		return h.dom, nil
	}
	dom, err := a.l.DomainLookupByName(id)
	if err != nil {
		return golibvirt.Domain{}, fmt.Errorf("libvirt adapter: no domain for id %s: %w", id, err)
	}
	a.mu.Lock()
	a.byID[id] = &handle{dom: dom}
	a.mu.Unlock()
	return dom, nil
}

func (a *Adapter) Start(ctx context.Context, spec hypervisor.VMSpec) error {
	if err := a.connect(); err != nil {
		return err
	}
	xml := domainXML(spec)
	dom, err := a.l.DomainCreateXML(xml, golibvirt.DomainNone)
	if err != nil {
		return fmt.Errorf("libvirt adapter: create domain %s: %w", spec.ID, err)
	}
	a.mu.Lock()
	a.byID[spec.ID] = &handle{dom: dom}
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Stop(ctx context.Context, id string, mode hypervisor.StopMode) error {
	dom, err := a.get(id)
	if err != nil {
		return err
	}
	if mode == hypervisor.StopForce {
		if err := a.l.DomainDestroy(dom); err != nil {
			return fmt.Errorf("libvirt adapter: destroy %s: %w", id, err)
		}
		return nil
	}
	if err := a.l.DomainShutdown(dom); err != nil {
		return fmt.Errorf("libvirt adapter: shutdown %s: %w", id, err)
	}
	return nil
}

func (a *Adapter) Pause(ctx context.Context, id string) error {
	dom, err := a.get(id)
	if err != nil {
		return err
	}
	if err := a.l.DomainSuspend(dom); err != nil {
		return fmt.Errorf("libvirt adapter: suspend %s: %w", id, err)
	}
	return nil
}

func (a *Adapter) Resume(ctx context.Context, id string) error {
	dom, err := a.get(id)
	if err != nil {
		return err
	}
	if err := a.l.DomainResume(dom); err != nil {
		return fmt.Errorf("libvirt adapter: resume %s: %w", id, err)
	}
	return nil
}

func (a *Adapter) SnapshotCreate(ctx context.Context, id string, opts hypervisor.SnapshotOptions) error {
	dom, err := a.get(id)
	if err != nil {
		return err
	}
	xml := fmt.Sprintf(`<domainsnapshot><name>%s</name></domainsnapshot>`, opts.SnapshotID)
	flags := golibvirt.DomainSnapshotCreateFlags(0)
	if !opts.WithMemory {
		flags |= golibvirt.DomainSnapshotCreateDiskOnly
	}
	if _, err := a.l.DomainSnapshotCreateXML(dom, xml, flags); err != nil {
		return fmt.Errorf("libvirt adapter: snapshot %s of %s: %w", opts.SnapshotID, id, err)
	}
	return nil
}

func (a *Adapter) SnapshotRestore(ctx context.Context, id string, snapshotPath string) error {
	dom, err := a.get(id)
	if err != nil {
		return err
	}
	snap, err := a.l.DomainSnapshotLookupByName(dom, snapshotPath, 0)
	if err != nil {
		return fmt.Errorf("libvirt adapter: lookup snapshot %s for %s: %w", snapshotPath, id, err)
	}
	if err := a.l.DomainRevertToSnapshot(snap, 0); err != nil {
		return fmt.Errorf("libvirt adapter: revert %s to %s: %w", id, snapshotPath, err)
	}
	return nil
}

func (a *Adapter) SnapshotDelete(ctx context.Context, id string, snapshotID string) error {
	dom, err := a.get(id)
	if err != nil {
		return err
	}
	snap, err := a.l.DomainSnapshotLookupByName(dom, snapshotID, 0)
	if err != nil {
		return fmt.Errorf("libvirt adapter: lookup snapshot %s for %s: %w", snapshotID, id, err)
	}
	if err := a.l.DomainSnapshotDelete(snap, 0); err != nil {
		return fmt.Errorf("libvirt adapter: delete snapshot %s of %s: %w", snapshotID, id, err)
	}
	return nil
}

// Clone: libvirt has no single RPC verb that clones a running domain plus
// its backing disks (virt-clone composes several calls and external disk
// copy tooling outside this RPC surface); internal/lifecycle already
// performs that composition at the workflow level through internal/volumes,
// so there is nothing left for the adapter to add.
func (a *Adapter) Clone(ctx context.Context, id string, opts hypervisor.CloneOptions) error {
	return fmt.Errorf("%w: libvirt adapter clone", hypervisor.ErrUnsupported)
}

func (a *Adapter) DiskAttach(ctx context.Context, id string, disk hypervisor.DiskSpec) error {
	dom, err := a.get(id)
	if err != nil {
		return err
	}
	xml := diskXML(disk)
	if err := a.l.DomainAttachDeviceFlags(dom, xml, golibvirt.DomainDeviceModifyLive|golibvirt.DomainDeviceModifyConfig); err != nil {
		return fmt.Errorf("libvirt adapter: attach disk %s to %s: %w", disk.ID, id, err)
	}
	return nil
}

func (a *Adapter) DiskDetach(ctx context.Context, id string, diskID string) error {
	dom, err := a.get(id)
	if err != nil {
		return err
	}
	xml := diskXML(hypervisor.DiskSpec{ID: diskID})
	if err := a.l.DomainDetachDeviceFlags(dom, xml, golibvirt.DomainDeviceModifyLive|golibvirt.DomainDeviceModifyConfig); err != nil {
		return fmt.Errorf("libvirt adapter: detach disk %s from %s: %w", diskID, id, err)
	}
	return nil
}

func (a *Adapter) Stats(ctx context.Context, id string) (hypervisor.Stats, error) {
	dom, err := a.get(id)
	if err != nil {
		return hypervisor.Stats{}, err
	}
	memStats, err := a.l.DomainMemoryStats(dom, 8, 0)
	if err != nil {
		return hypervisor.Stats{}, fmt.Errorf("libvirt adapter: memory stats for %s: %w", id, err)
	}
	var usedKB uint64
	for _, s := range memStats {
		if s.Tag == int32(golibvirt.DomainMemoryStatRss) {
			usedKB = uint64(s.Val)
		}
	}
	return hypervisor.Stats{
		MemoryUsedBytes: usedKB * 1024,
		BlockReadBytes:  map[string]uint64{},
		BlockWriteBytes: map[string]uint64{},
		NetRxBytes:      map[string]uint64{},
		NetTxBytes:      map[string]uint64{},
	}, nil
}

func (a *Adapter) Info(ctx context.Context, id string) (hypervisor.RuntimeInfo, error) {
	dom, err := a.get(id)
	if err != nil {
		return hypervisor.RuntimeInfo{}, err
	}
	state, _, _, _, _, err := a.l.DomainGetInfo(dom)
	if err != nil {
		return hypervisor.RuntimeInfo{}, fmt.Errorf("libvirt adapter: info for %s: %w", id, err)
	}
	return hypervisor.RuntimeInfo{State: domainStateString(state)}, nil
}

// ConsoleEndpoint: libvirt exposes the VNC listen address only through the
// live domain XML (<graphics type='vnc' port='…'/>), which this adapter
// doesn't parse; operators using the libvirt backend are expected to reach
// the console through virt-viewer/virsh directly until that XML parse is
// added.
func (a *Adapter) ConsoleEndpoint(ctx context.Context, id string, kind hypervisor.ConsoleKind) (hypervisor.Endpoint, error) {
	return hypervisor.Endpoint{}, fmt.Errorf("%w: libvirt adapter console endpoint", hypervisor.ErrUnsupported)
}

// MigrateBegin issues libvirt's synchronous peer-to-peer migration call;
// unlike qemu.QEMUAdapter's migrate-to-file primitive, libvirt performs the
// whole live migration in one RPC, so Advance has nothing to poll and
// Finalize is a no-op once Begin returns without error.
func (a *Adapter) MigrateBegin(ctx context.Context, id string, target hypervisor.MigrationTarget) error {
	dom, err := a.get(id)
	if err != nil {
		return err
	}
	destURI := fmt.Sprintf("qemu+tcp://%s/system", target.NodeAddress)
	if err := a.l.DomainMigrateToURI3(dom, destURI, nil, uint32(golibvirt.DomainMigrateLive)); err != nil {
		return fmt.Errorf("libvirt adapter: migrate %s to %s: %w", id, target.NodeAddress, err)
	}
	return nil
}

func (a *Adapter) MigrateAdvance(ctx context.Context, id string) (hypervisor.MigrationProgress, error) {
	return hypervisor.MigrationProgress{Phase: "completed"}, nil
}

func (a *Adapter) MigrateFinalize(ctx context.Context, id string) error {
	return nil
}

func (a *Adapter) MigrateAbort(ctx context.Context, id string) error {
	dom, err := a.get(id)
	if err != nil {
		return err
	}
	if err := a.l.DomainAbortJob(dom); err != nil {
		return fmt.Errorf("libvirt adapter: abort migration job for %s: %w", id, err)
	}
	return nil
}

// Forget drops the cached Domain handle for id, mirroring
// qemu.QEMUAdapter.Forget.
func (a *Adapter) Forget(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.byID, id)
}

func domainStateString(state uint8) string {
	switch golibvirt.DomainState(state) {
	case golibvirt.DomainRunning:
		return "running"
	case golibvirt.DomainPaused:
		return "paused"
	case golibvirt.DomainShutoff:
		return "stopped"
	case golibvirt.DomainCrashed:
		return "failed"
	default:
		return "unknown"
	}
}

// domainXML renders the minimal KVM/QEMU domain definition libvirtd needs
// to create spec as a running domain; disks and NICs are expanded from the
// backend-agnostic VMSpec the same way qemu.QEMUAdapter.toVMConfig does.
func domainXML(spec hypervisor.VMSpec) string {
	disks := ""
	for i, d := range spec.Disks {
		ro := ""
		if d.ReadOnly {
			ro = "<readonly/>"
		}
		disks += fmt.Sprintf(`<disk type='file' device='disk'>
			<driver name='qemu' type='raw'/>
			<source file='%s'/>
			<target dev='vd%c' bus='virtio'/>
			%s
		</disk>`, d.Path, 'a'+rune(i), ro)
	}
	nics := ""
	for _, n := range spec.NICs {
		nics += fmt.Sprintf(`<interface type='ethernet'>
			<mac address='%s'/>
			<target dev='%s'/>
		</interface>`, n.MACAddress, n.TapName)
	}
	return fmt.Sprintf(`<domain type='kvm'>
		<name>%s</name>
		<memory unit='MiB'>%d</memory>
		<vcpu>%d</vcpu>
		<os><type arch='x86_64'>hvm</type><kernel>%s</kernel><initrd>%s</initrd><cmdline>%s</cmdline></os>
		<devices>%s%s</devices>
	</domain>`, spec.ID, spec.MemoryMB, spec.VCPUs, spec.KernelPath, spec.InitrdPath, spec.CmdLine, disks, nics)
}

func diskXML(d hypervisor.DiskSpec) string {
	return fmt.Sprintf(`<disk type='file' device='disk'>
		<driver name='qemu' type='raw'/>
		<source file='%s'/>
		<target dev='%s' bus='virtio'/>
	</disk>`, d.Path, d.ID)
}

package inventory

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/horcrux-project/horcrux/internal/hypervisor"
	"github.com/horcrux-project/horcrux/internal/logger"
	"github.com/horcrux-project/horcrux/internal/store"
)

// Manager is the single mediator for every write to VM, snapshot, container,
// and audit records (§4.D). internal/lifecycle calls it to persist state
// transitions; internal/httpapi calls it for reads; nothing else touches
// internal/store's VM/Snapshot/Container/AuditEvent buckets directly.
type Manager interface {
	// VMs.
	CreateVM(ctx context.Context, vm VM) error
	GetVM(ctx context.Context, id string) (*VM, error)
	ListVMs(ctx context.Context) ([]VM, error)
	UpdateVM(ctx context.Context, id string, mutate func(*VM) error) (*VM, error)
	DeleteVM(ctx context.Context, id string) error

	// Snapshots, always scoped to a VM.
	CreateSnapshot(ctx context.Context, snap Snapshot) error
	GetSnapshot(ctx context.Context, id string) (*Snapshot, error)
	ListSnapshots(ctx context.Context, vmID string) ([]Snapshot, error)
	DeleteSnapshot(ctx context.Context, id string) error

	// Containers.
	CreateContainer(ctx context.Context, c Container) error
	GetContainer(ctx context.Context, id string) (*Container, error)
	ListContainers(ctx context.Context) ([]Container, error)
	UpdateContainer(ctx context.Context, id string, mutate func(*Container) error) (*Container, error)
	DeleteContainer(ctx context.Context, id string) error

	// Audit.
	RecordAudit(ctx context.Context, ev AuditEvent) error
	ListAudit(ctx context.Context, resourceID string, limit int) ([]AuditEvent, error)

	// Reconcile confirms every Running/Paused/Stopping VM still has a live
	// adapter handle, failing any that don't (§4.D, §9).
	Reconcile(ctx context.Context, adapter hypervisor.Adapter) (int, error)
}

// manager implements Manager over internal/store, with a per-(kind,id) lock
// so concurrent requests touching different records never block each other.
// Grounded on lib/instances/manager.go's getInstanceLock: a sync.Map of
// *sync.RWMutex keyed by id, generalized here to key by "kind:id" since one
// manager now owns four entity kinds instead of one.
type manager struct {
	store *store.Store
	locks sync.Map // string -> *sync.RWMutex
}

// NewManager constructs the inventory manager over an opened store.
func NewManager(s *store.Store) Manager {
	return &manager{store: s}
}

func lockKey(kind, id string) string { return kind + ":" + id }

func (m *manager) lockFor(kind, id string) *sync.RWMutex {
	v, _ := m.locks.LoadOrStore(lockKey(kind, id), &sync.RWMutex{})
	return v.(*sync.RWMutex)
}

// withLock runs fn while holding the write lock for one (kind, id).
func (m *manager) withLock(kind, id string, fn func() error) error {
	l := m.lockFor(kind, id)
	l.Lock()
	defer l.Unlock()
	return fn()
}

func (m *manager) withRLock(kind, id string, fn func() error) error {
	l := m.lockFor(kind, id)
	l.RLock()
	defer l.RUnlock()
	return fn()
}

// withLocks acquires write locks for multiple (kind, id) pairs in a
// deterministic order (sorted by composite key) to avoid deadlock when an
// operation spans more than one record — e.g. deleting a snapshot while
// checking its siblings for a dangling ParentID.
func (m *manager) withLocks(keys []string, fn func() error) error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	sorted = dedupeSorted(sorted)
	locked := make([]*sync.RWMutex, 0, len(sorted))
	for _, k := range sorted {
		v, _ := m.locks.LoadOrStore(k, &sync.RWMutex{})
		l := v.(*sync.RWMutex)
		l.Lock()
		locked = append(locked, l)
	}
	defer func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].Unlock()
		}
	}()
	return fn()
}

func dedupeSorted(in []string) []string {
	out := in[:0]
	var last string
	for i, v := range in {
		if i == 0 || v != last {
			out = append(out, v)
			last = v
		}
	}
	return out
}

func logFrom(ctx context.Context) *slog.Logger { return logger.FromContext(ctx) }

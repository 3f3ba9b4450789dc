package volumes

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nrednav/cuid2"
	"github.com/horcrux-project/horcrux/internal/store"
	"go.opentelemetry.io/otel/metric"
)

// Manager provides disk-volume and storage-pool lifecycle operations,
// mediating every write through the persistence store (§4.A/§4.D:
// begin → persist → update projection → commit or roll back both).
type Manager interface {
	ListPools(ctx context.Context) ([]StoragePool, error)
	CreatePool(ctx context.Context, name string, kind PoolKind, config map[string]string) (*StoragePool, error)
	GetPool(ctx context.Context, id string) (*StoragePool, error)
	DeletePool(ctx context.Context, id string) error

	ListVolumes(ctx context.Context) ([]Volume, error)
	CreateVolume(ctx context.Context, req CreateVolumeRequest) (*Volume, error)
	CreateVolumeFromArchive(ctx context.Context, req CreateVolumeFromArchiveRequest, archive io.Reader) (*Volume, error)
	GetVolume(ctx context.Context, id string) (*Volume, error)
	GetVolumeByName(ctx context.Context, name string) (*Volume, error)
	DeleteVolume(ctx context.Context, id string) error
	CloneVolume(ctx context.Context, id string, mode CloneMode, newName string) (*Volume, error)

	AttachVolume(ctx context.Context, id string, req AttachVolumeRequest) error
	DetachVolume(ctx context.Context, volumeID, ownerID string) error
}

type manager struct {
	store       *store.Store
	defaultPool string

	volumeLocks sync.Map // map[string]*sync.RWMutex, per-volume, mirrors lib/instances/manager.go's getInstanceLock
	metrics     *Metrics
}

// NewManager creates a volumes manager backed by st. defaultPool is used
// when a CreateVolumeRequest leaves PoolID empty. If meter is nil, metrics
// are disabled.
func NewManager(st *store.Store, defaultPool string, meter metric.Meter) Manager {
	m := &manager{store: st, defaultPool: defaultPool}
	if meter != nil {
		if metrics, err := newVolumeMetrics(meter, m); err == nil {
			m.metrics = metrics
		}
	}
	return m
}

func (m *manager) lockFor(id string) *sync.RWMutex {
	l, _ := m.volumeLocks.LoadOrStore(id, &sync.RWMutex{})
	return l.(*sync.RWMutex)
}

// --- Pools ---

func (m *manager) ListPools(ctx context.Context) ([]StoragePool, error) {
	var pools []StoragePool
	err := m.store.View(func(tx *store.Tx) error {
		return store.List(tx, store.BucketStoragePools, func(_ string, p *StoragePool) error {
			pools = append(pools, *p)
			return nil
		})
	})
	return pools, err
}

func (m *manager) CreatePool(ctx context.Context, name string, kind PoolKind, config map[string]string) (*StoragePool, error) {
	if _, err := backendFor(kind); err != nil {
		return nil, err
	}
	pool := &StoragePool{
		Id:        uuid.NewString(),
		Name:      name,
		Kind:      kind,
		Config:    config,
		Health:    HealthOffline,
		CreatedAt: time.Now(),
	}
	b, _ := backendFor(kind)
	pool.Health = b.Health(ctx, *pool)

	err := m.store.Update(func(tx *store.Tx) error {
		if err := tx.Reserve(store.BucketStoragePools, "name", name, pool.Id); err != nil {
			return err
		}
		return tx.Insert(store.BucketStoragePools, pool.Id, pool)
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func (m *manager) GetPool(ctx context.Context, id string) (*StoragePool, error) {
	var pool StoragePool
	err := m.store.View(func(tx *store.Tx) error {
		return tx.Get(store.BucketStoragePools, id, &pool)
	})
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrPoolNotFound
		}
		return nil, err
	}
	return &pool, nil
}

func (m *manager) DeletePool(ctx context.Context, id string) error {
	vols, err := m.ListVolumes(ctx)
	if err != nil {
		return err
	}
	for _, v := range vols {
		if v.PoolID == id {
			return ErrPoolInUse
		}
	}
	return m.store.Update(func(tx *store.Tx) error {
		return tx.Delete(store.BucketStoragePools, id)
	})
}

// --- Volumes ---

func (m *manager) ListVolumes(ctx context.Context) ([]Volume, error) {
	var volumes []Volume
	err := m.store.View(func(tx *store.Tx) error {
		return store.List(tx, store.BucketDisks, func(_ string, v *Volume) error {
			volumes = append(volumes, *v)
			return nil
		})
	})
	return volumes, err
}

func (m *manager) resolvePool(ctx context.Context, poolID string) (*StoragePool, Backend, error) {
	if poolID == "" {
		poolID = m.defaultPool
	}
	pool, err := m.GetPool(ctx, poolID)
	if err != nil {
		return nil, nil, err
	}
	b, err := backendFor(pool.Kind)
	if err != nil {
		return nil, nil, err
	}
	return pool, b, nil
}

func (m *manager) CreateVolume(ctx context.Context, req CreateVolumeRequest) (*Volume, error) {
	start := time.Now()
	id := cuid2.Generate()
	if req.Id != nil && *req.Id != "" {
		id = *req.Id
	}

	pool, backend, err := m.resolvePool(ctx, req.PoolID)
	if err != nil {
		return nil, err
	}

	locator, err := backend.CreateVolume(ctx, *pool, id, req.SizeBytes, FormatRaw)
	if err != nil {
		m.recordCreateDuration(ctx, start, "error")
		return nil, fmt.Errorf("allocate volume: %w", err)
	}

	vol := &Volume{
		Id:        id,
		Name:      req.Name,
		PoolID:    pool.Id,
		Locator:   locator,
		Format:    FormatRaw,
		SizeBytes: req.SizeBytes,
		CreatedAt: time.Now(),
	}

	err = m.store.Update(func(tx *store.Tx) error {
		return tx.Insert(store.BucketDisks, id, vol)
	})
	if err != nil {
		backend.DeleteVolume(ctx, *pool, locator)
		m.recordCreateDuration(ctx, start, "error")
		return nil, err
	}

	m.recordCreateDuration(ctx, start, "success")
	return vol, nil
}

// CreateVolumeFromArchive pre-populates a directory-format volume from a
// tar.gz stream, sized to the archive's actual extracted content.
func (m *manager) CreateVolumeFromArchive(ctx context.Context, req CreateVolumeFromArchiveRequest, archive io.Reader) (*Volume, error) {
	start := time.Now()
	id := cuid2.Generate()
	if req.Id != nil && *req.Id != "" {
		id = *req.Id
	}

	pool, backend, err := m.resolvePool(ctx, req.PoolID)
	if err != nil {
		return nil, err
	}

	locator, actualBytes, err := backend.CreateVolumeFromReader(ctx, *pool, id, archive, req.SizeBytes)
	if err != nil {
		m.recordCreateDuration(ctx, start, "error")
		return nil, fmt.Errorf("extract volume content: %w", err)
	}

	vol := &Volume{
		Id:        id,
		Name:      req.Name,
		PoolID:    pool.Id,
		Locator:   locator,
		Format:    FormatDirectory,
		SizeBytes: actualBytes,
		CreatedAt: time.Now(),
	}

	err = m.store.Update(func(tx *store.Tx) error {
		return tx.Insert(store.BucketDisks, id, vol)
	})
	if err != nil {
		backend.DeleteVolume(ctx, *pool, locator)
		m.recordCreateDuration(ctx, start, "error")
		return nil, err
	}

	m.recordCreateDuration(ctx, start, "success")
	return vol, nil
}

func (m *manager) GetVolume(ctx context.Context, id string) (*Volume, error) {
	lock := m.lockFor(id)
	lock.RLock()
	defer lock.RUnlock()

	var vol Volume
	err := m.store.View(func(tx *store.Tx) error {
		return tx.Get(store.BucketDisks, id, &vol)
	})
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &vol, nil
}

func (m *manager) GetVolumeByName(ctx context.Context, name string) (*Volume, error) {
	volumes, err := m.ListVolumes(ctx)
	if err != nil {
		return nil, err
	}
	var matches []Volume
	for _, v := range volumes {
		if v.Name == name {
			matches = append(matches, v)
		}
	}
	switch len(matches) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &matches[0], nil
	default:
		return nil, ErrAmbiguousName
	}
}

func (m *manager) DeleteVolume(ctx context.Context, id string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	vol, err := m.getLocked(id)
	if err != nil {
		return err
	}
	if len(vol.Attachments) > 0 {
		return ErrInUse
	}
	if vol.RefCount > 0 {
		return ErrRefCountNonzero
	}

	pool, backend, err := m.resolvePool(ctx, vol.PoolID)
	if err != nil {
		return err
	}
	if err := backend.DeleteVolume(ctx, *pool, vol.Locator); err != nil {
		return fmt.Errorf("release volume bytes: %w", err)
	}

	if err := m.store.Update(func(tx *store.Tx) error {
		return tx.Delete(store.BucketDisks, id)
	}); err != nil {
		return err
	}
	m.volumeLocks.Delete(id)
	return nil
}

// CloneVolume copies or overlays a volume's content per spec §4.F's clone
// workflow. Linked clones increment the source refcount instead of
// allocating independent storage.
func (m *manager) CloneVolume(ctx context.Context, id string, mode CloneMode, newName string) (*Volume, error) {
	src, err := m.GetVolume(ctx, id)
	if err != nil {
		return nil, err
	}
	pool, backend, err := m.resolvePool(ctx, src.PoolID)
	if err != nil {
		return nil, err
	}

	caps := backend.Capabilities()
	if mode == CloneLinked && !caps.SupportsLinkedClone {
		return nil, fmt.Errorf("%w: pool %q cannot provide read-only backing for linked clones", ErrUnsupported, pool.Name)
	}

	newID := cuid2.Generate()
	locator, err := backend.CloneVolume(ctx, *pool, src.Locator, newID, mode)
	if err != nil {
		return nil, fmt.Errorf("clone volume: %w", err)
	}

	clone := &Volume{
		Id:        newID,
		Name:      newName,
		PoolID:    pool.Id,
		Locator:   locator,
		Format:    src.Format,
		SizeBytes: src.SizeBytes,
		CreatedAt: time.Now(),
	}

	err = m.store.Update(func(tx *store.Tx) error {
		if mode == CloneLinked {
			src.RefCount++
			if err := tx.Put(store.BucketDisks, src.Id, src); err != nil {
				return err
			}
		}
		return tx.Insert(store.BucketDisks, newID, clone)
	})
	if err != nil {
		backend.DeleteVolume(ctx, *pool, locator)
		return nil, err
	}
	return clone, nil
}

func (m *manager) getLocked(id string) (*Volume, error) {
	var vol Volume
	err := m.store.View(func(tx *store.Tx) error {
		return tx.Get(store.BucketDisks, id, &vol)
	})
	if err != nil {
		if err == store.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &vol, nil
}

// AttachVolume marks a volume as attached to a VM or container.
// Multi-attach rules (dynamic based on current state, per §3's "a volume
// may participate in at most one write-open VM at a time"):
//   - no existing attachments: allow any mode
//   - an existing read-write attachment: reject all new attachments
//   - existing attachments are all read-only: only allow new read-only ones
func (m *manager) AttachVolume(ctx context.Context, id string, req AttachVolumeRequest) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	vol, err := m.getLocked(id)
	if err != nil {
		return err
	}

	for _, att := range vol.Attachments {
		if att.OwnerID == req.OwnerID {
			return fmt.Errorf("volume already attached to %s", req.OwnerID)
		}
		if !att.Readonly {
			return fmt.Errorf("volume has exclusive read-write attachment to %s", att.OwnerID)
		}
	}
	if len(vol.Attachments) > 0 && !req.Readonly {
		return fmt.Errorf("cannot attach read-write: volume has existing read-only attachments")
	}

	vol.Attachments = append(vol.Attachments, Attachment{
		OwnerID:   req.OwnerID,
		MountPath: req.MountPath,
		Readonly:  req.Readonly,
	})
	return m.store.Update(func(tx *store.Tx) error {
		return tx.Put(store.BucketDisks, id, vol)
	})
}

func (m *manager) DetachVolume(ctx context.Context, volumeID, ownerID string) error {
	lock := m.lockFor(volumeID)
	lock.Lock()
	defer lock.Unlock()

	vol, err := m.getLocked(volumeID)
	if err != nil {
		return err
	}

	found := false
	kept := make([]Attachment, 0, len(vol.Attachments))
	for _, att := range vol.Attachments {
		if att.OwnerID == ownerID {
			found = true
			continue
		}
		kept = append(kept, att)
	}
	if !found {
		return fmt.Errorf("volume not attached to %s", ownerID)
	}
	vol.Attachments = kept
	return m.store.Update(func(tx *store.Tx) error {
		return tx.Put(store.BucketDisks, volumeID, vol)
	})
}

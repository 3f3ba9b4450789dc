// Package store is the transactional local persistence engine: one bbolt
// file, one bucket per entity kind, secondary-index buckets for uniqueness
// constraints. Grounded on cuemby-warren/pkg/storage's BoltStore
// (bucket-per-entity, JSON-marshaled records, ForEach-based listing),
// generalized into a reusable begin/commit/rollback transaction type and a
// generic index helper instead of one hand-written method pair per entity.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// SchemaVersion is the store layout this binary understands. Open fails
// fast when the on-disk version disagrees, before any other component
// reads from the store, per spec §4.A.
const SchemaVersion = 1

// Entity bucket names, one per kind in the data model (§3).
var (
	BucketUsers          = []byte("users")
	BucketSessions       = []byte("sessions")
	BucketAPIKeys        = []byte("api_keys")
	BucketRoles          = []byte("roles")
	BucketVMs            = []byte("vms")
	BucketDisks          = []byte("disks")
	BucketSnapshots      = []byte("snapshots")
	BucketStoragePools   = []byte("storage_pools")
	BucketContainers     = []byte("containers")
	BucketAuditEvents    = []byte("audit_events")
	BucketConsoleTickets = []byte("console_tickets")
	BucketJobs           = []byte("jobs")

	bucketMeta = []byte("meta")

	allBuckets = [][]byte{
		BucketUsers, BucketSessions, BucketAPIKeys, BucketRoles,
		BucketVMs, BucketDisks, BucketSnapshots, BucketStoragePools,
		BucketContainers, BucketAuditEvents, BucketConsoleTickets, BucketJobs,
		bucketMeta,
	}

	keySchemaVersion = []byte("schema_version")
)

// ErrNotFound is returned by Get when no record exists for the given key.
var ErrNotFound = errors.New("store: record not found")

// ErrConflict is returned when a unique-index insert collides with an
// existing record under a different primary key.
var ErrConflict = errors.New("store: unique constraint violated")

// ErrSchemaMismatch is returned by Open when the on-disk schema version
// does not match the binary's compiled-in version.
var ErrSchemaMismatch = errors.New("store: schema version mismatch")

// Store is the transactional local store (§4.A).
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt database at path, provisions
// every entity bucket, and enforces the schema-version invariant.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		meta := tx.Bucket(bucketMeta)
		existing := meta.Get(keySchemaVersion)
		if existing == nil {
			return meta.Put(keySchemaVersion, []byte(fmt.Sprintf("%d", SchemaVersion)))
		}
		var onDisk int
		if _, err := fmt.Sscanf(string(existing), "%d", &onDisk); err != nil {
			return fmt.Errorf("%w: unreadable schema version %q", ErrSchemaMismatch, existing)
		}
		if onDisk != SchemaVersion {
			return fmt.Errorf("%w: store is v%d, binary is v%d", ErrSchemaMismatch, onDisk, SchemaVersion)
		}
		return nil
	})
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx wraps a bbolt transaction with JSON-record and secondary-index helpers.
type Tx struct {
	tx       *bolt.Tx
	writable bool
}

// Begin starts a new transaction. Writable transactions serialize against
// each other (bbolt's single-writer guarantee gives repeatable-read
// semantics for the duration of the transaction, per §4.A).
func (s *Store) Begin(writable bool) (*Tx, error) {
	btx, err := s.db.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{tx: btx, writable: writable}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction, discarding all writes.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, bolt.ErrTxClosed) {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

// View runs fn in a new read-only transaction.
func (s *Store) View(fn func(tx *Tx) error) error {
	tx, err := s.Begin(false)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(tx)
}

// Update runs fn in a new writable transaction, committing on success and
// rolling back on error.
func (s *Store) Update(fn func(tx *Tx) error) error {
	tx, err := s.Begin(true)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Insert writes a new JSON record under key in bucket. Callers that need a
// uniqueness guarantee should pair this with Tx.Reserve inside the same
// transaction.
func (t *Tx) Insert(bucket []byte, key string, v any) error {
	return t.Put(bucket, key, v)
}

// Put upserts a JSON record under key in bucket.
func (t *Tx) Put(bucket []byte, key string, v any) error {
	b := t.tx.Bucket(bucket)
	if b == nil {
		return fmt.Errorf("unknown bucket %s", bucket)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return b.Put([]byte(key), data)
}

// Get reads and unmarshals the record at key in bucket into out.
func (t *Tx) Get(bucket []byte, key string, out any) error {
	b := t.tx.Bucket(bucket)
	if b == nil {
		return fmt.Errorf("unknown bucket %s", bucket)
	}
	data := b.Get([]byte(key))
	if data == nil {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal record: %w", err)
	}
	return nil
}

// Delete removes the record at key in bucket. No error if absent.
func (t *Tx) Delete(bucket []byte, key string) error {
	b := t.tx.Bucket(bucket)
	if b == nil {
		return fmt.Errorf("unknown bucket %s", bucket)
	}
	return b.Delete([]byte(key))
}

// List calls fn with the unmarshaled value of every record in bucket. fn's
// out parameter must be a pointer; List reuses a fresh value per call.
func List[T any](t *Tx, bucket []byte, fn func(key string, v *T) error) error {
	b := t.tx.Bucket(bucket)
	if b == nil {
		return fmt.Errorf("unknown bucket %s", bucket)
	}
	return b.ForEach(func(k, v []byte) error {
		var rec T
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("unmarshal record %s: %w", k, err)
		}
		return fn(string(k), &rec)
	})
}

// indexBucketName derives the secondary-index bucket name for a given
// entity bucket and field, e.g. idx_users_by_username.
func indexBucketName(entityBucket []byte, field string) []byte {
	return []byte(fmt.Sprintf("idx_%s_by_%s", entityBucket, field))
}

// Reserve enforces a uniqueness constraint on (entityBucket, field, value)
// in the same transaction as the record write, the pattern BoltStore's
// GetByName lookups follow, generalized into a reusable index. It creates
// the index bucket on first use, fails with ErrConflict if value is
// already owned by a different primaryKey, and records the new owner.
func (t *Tx) Reserve(entityBucket []byte, field, value, primaryKey string) error {
	if !t.writable {
		return fmt.Errorf("reserve requires a writable transaction")
	}
	idxName := indexBucketName(entityBucket, field)
	idx, err := t.tx.CreateBucketIfNotExists(idxName)
	if err != nil {
		return fmt.Errorf("create index bucket %s: %w", idxName, err)
	}
	if owner := idx.Get([]byte(value)); owner != nil && string(owner) != primaryKey {
		return fmt.Errorf("%w: %s=%q already used by %s", ErrConflict, field, value, owner)
	}
	return idx.Put([]byte(value), []byte(primaryKey))
}

// ReleaseIndex removes a uniqueness reservation, e.g. when a record with
// that field value is deleted or the field value changes.
func (t *Tx) ReleaseIndex(entityBucket []byte, field, value string) error {
	idxName := indexBucketName(entityBucket, field)
	idx := t.tx.Bucket(idxName)
	if idx == nil {
		return nil
	}
	return idx.Delete([]byte(value))
}

// Lookup resolves value back to the primary key reserved for it, or
// ErrNotFound if no record has reserved that value.
func (t *Tx) Lookup(entityBucket []byte, field, value string) (string, error) {
	idxName := indexBucketName(entityBucket, field)
	idx := t.tx.Bucket(idxName)
	if idx == nil {
		return "", ErrNotFound
	}
	owner := idx.Get([]byte(value))
	if owner == nil {
		return "", ErrNotFound
	}
	return string(owner), nil
}

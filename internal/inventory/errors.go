package inventory

import "errors"

// ErrNotFound is returned when a lookup by id finds no record.
var ErrNotFound = errors.New("inventory: record not found")

// ErrNameConflict is returned when a create would violate a name-uniqueness
// constraint enforced by a store.Tx.Reserve index.
var ErrNameConflict = errors.New("inventory: name already in use")

// ErrVMHasChildren is returned when a snapshot delete is refused because
// another snapshot's ParentID still points at it (§3: snapshots form a DAG,
// deleting an interior node would orphan its descendants).
var ErrVMHasChildren = errors.New("inventory: snapshot has dependent children")

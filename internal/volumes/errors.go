package volumes

import "errors"

var (
	ErrNotFound       = errors.New("volume not found")
	ErrInUse          = errors.New("volume is in use")
	ErrAlreadyExists  = errors.New("volume already exists")
	ErrAmbiguousName  = errors.New("multiple volumes with the same name")
	ErrPoolNotFound   = errors.New("storage pool not found")
	ErrPoolInUse      = errors.New("storage pool has volumes and cannot be removed")
	ErrUnsupported    = errors.New("operation unsupported by this storage pool kind")
	ErrRefCountNonzero = errors.New("volume has a nonzero reference count")
)


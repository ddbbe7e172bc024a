// Package shm contains the platform helpers behind the pkg/shm slab: mapping
// and unmapping a fixed-size byte region.
package shm

import "errors"

var (
	// ErrInvalidSize is returned for a non-positive mapping size.
	ErrInvalidSize = errors.New("shm: mapping size must be positive")
	// ErrNoSpace is returned when /dev/shm cannot hold a new region.
	ErrNoSpace = errors.New("shm: share memory had not left space")
)

// MappedRegion is a mapped byte region. Addr stays valid until UnmapRegion.
type MappedRegion struct {
	Addr []byte

	fd     int
	path   string
	unlink bool
}

// MapOptions defines options for mapping a region.
type MapOptions struct {
	// Name selects a file-backed region under /dev/shm. Empty maps anonymous
	// memory private to the process.
	Name string
	Size int
	// Create creates the backing file when it does not exist and sizes it.
	Create bool
	// Unlink removes the backing file on unmap.
	Unlink bool
}

// Path returns the backing file, or "" for anonymous regions.
func (r *MappedRegion) Path() string {
	return r.path
}

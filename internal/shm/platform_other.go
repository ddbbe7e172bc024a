//go:build !linux

package shm

import "context"

// MapRegion allocates opts.Size bytes on the Go heap. Named regions are not
// shared across processes on this platform.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if opts.Size <= 0 {
		return nil, ErrInvalidSize
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &MappedRegion{Addr: make([]byte, opts.Size), fd: -1}, nil
}

// UnmapRegion drops the heap region.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region != nil {
		region.Addr = nil
	}
	return nil
}

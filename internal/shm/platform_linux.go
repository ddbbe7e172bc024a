//go:build linux

package shm

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sys/unix"
)

const shmDir = "/dev/shm"

// MapRegion maps a region of opts.Size bytes (Linux implementation).
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if opts.Size <= 0 {
		return nil, ErrInvalidSize
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Name == "" {
		addr, err := unix.Mmap(-1, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			return nil, fmt.Errorf("mmap anonymous: %w", err)
		}
		return &MappedRegion{Addr: addr, fd: -1}, nil
	}

	flags := unix.O_RDWR | unix.O_CLOEXEC
	if opts.Create {
		flags |= unix.O_CREAT
	}
	shmPath := filepath.Join(shmDir, opts.Name)
	if opts.Create && !canCreateOnDevShm(ctx, uint64(opts.Size), shmPath) {
		return nil, fmt.Errorf("%w: path %s size %d", ErrNoSpace, shmPath, opts.Size)
	}
	fd, err := unix.Open(shmPath, flags, 0600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", shmPath, err)
	}
	if opts.Create {
		if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("ftruncate: %w", err)
		}
	}
	addr, err := unix.Mmap(fd, 0, opts.Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return &MappedRegion{
		Addr:   addr,
		fd:     fd,
		path:   shmPath,
		unlink: opts.Unlink,
	}, nil
}

// UnmapRegion unmaps the region and closes its file (Linux implementation).
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	region.Addr = nil
	if region.fd >= 0 {
		if err := unix.Close(region.fd); err != nil {
			return fmt.Errorf("close: %w", err)
		}
		region.fd = -1
	}
	if region.unlink && region.path != "" {
		if err := unix.Unlink(region.path); err != nil && err != unix.ENOENT {
			return fmt.Errorf("unlink %s: %w", region.path, err)
		}
	}
	return nil
}

// canCreateOnDevShm reports whether /dev/shm has room for size more bytes.
// Paths outside /dev/shm, and filesystems that cannot be queried, always pass.
func canCreateOnDevShm(ctx context.Context, size uint64, path string) bool {
	if !strings.HasPrefix(path, shmDir+"/") {
		return true
	}
	stat, err := disk.UsageWithContext(ctx, shmDir)
	if err != nil {
		return true
	}
	return size <= stat.Free
}

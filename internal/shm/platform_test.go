package shm

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapAnonymous(t *testing.T) {
	ctx := context.Background()
	r, err := MapRegion(ctx, MapOptions{Size: 4096})
	require.NoError(t, err)
	require.Len(t, r.Addr, 4096)
	assert.Empty(t, r.Path())

	r.Addr[0], r.Addr[4095] = 1, 2
	assert.Equal(t, byte(2), r.Addr[4095])

	require.NoError(t, UnmapRegion(ctx, r))
	assert.Nil(t, r.Addr)
	assert.NoError(t, UnmapRegion(ctx, r))
}

func TestMapRejectsBadSize(t *testing.T) {
	_, err := MapRegion(context.Background(), MapOptions{Size: 0})
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestMapHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := MapRegion(ctx, MapOptions{Size: 64})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMapNamedSharesPages(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("named regions need /dev/shm")
	}
	if _, err := os.Stat("/dev/shm"); err != nil {
		t.Skip("no /dev/shm")
	}
	ctx := context.Background()
	name := fmt.Sprintf("ebr-test-%d", os.Getpid())

	a, err := MapRegion(ctx, MapOptions{Name: name, Size: 8192, Create: true, Unlink: true})
	require.NoError(t, err)
	b, err := MapRegion(ctx, MapOptions{Name: name, Size: 8192})
	require.NoError(t, err)

	a.Addr[100] = 42
	assert.Equal(t, byte(42), b.Addr[100])

	require.NoError(t, UnmapRegion(ctx, b))
	require.NoError(t, UnmapRegion(ctx, a))
	_, err = os.Stat(a.Path())
	assert.True(t, os.IsNotExist(err))
}

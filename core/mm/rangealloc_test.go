package mm_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-vram/api"
	"github.com/momentics/hioload-vram/core/mm"
)

func TestNewRangeAllocatorZeroSize(t *testing.T) {
	_, err := mm.NewRangeAllocator(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrInvalidSize))
}

func TestAllocateInvalid(t *testing.T) {
	a, err := mm.NewRangeAllocator(1 << 20)
	require.NoError(t, err)

	_, err = a.Allocate(0, 0)
	assert.True(t, errors.Is(err, api.ErrInvalidSize))

	_, err = a.Allocate(4096, 3)
	assert.True(t, errors.Is(err, api.ErrInvalidSize))
}

func TestAllocateBestFit(t *testing.T) {
	a, err := mm.NewRangeAllocator(1 << 20)
	require.NoError(t, err)

	r1, err := a.Allocate(256<<10, 0)
	require.NoError(t, err)
	r2, err := a.Allocate(256<<10, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r1.Offset)
	assert.Equal(t, uint64(256<<10), r2.Offset)

	// Free the first block: the free list now holds a 256 KiB hole at
	// 0 and the 512 KiB tail. Best-fit must pick the smaller hole.
	a.Free(r1)
	r3, err := a.Allocate(128<<10, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r3.Offset)
}

func TestAllocateAlignment(t *testing.T) {
	a, err := mm.NewRangeAllocator(1 << 20)
	require.NoError(t, err)

	r1, err := a.Allocate(4096, 8192)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r1.Offset)

	r2, err := a.Allocate(4096, 8192)
	require.NoError(t, err)
	assert.Equal(t, uint64(8192), r2.Offset)
}

func TestAllocateOutOfSpace(t *testing.T) {
	a, err := mm.NewRangeAllocator(64 << 10)
	require.NoError(t, err)

	_, err = a.Allocate(32<<10, 0)
	require.NoError(t, err)

	_, err = a.Allocate(48<<10, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrOutOfSpace))
}

func TestFreeCoalesces(t *testing.T) {
	a, err := mm.NewRangeAllocator(3 * 4096)
	require.NoError(t, err)

	r1, err := a.Allocate(4096, 0)
	require.NoError(t, err)
	r2, err := a.Allocate(4096, 0)
	require.NoError(t, err)
	r3, err := a.Allocate(4096, 0)
	require.NoError(t, err)
	assert.Empty(t, a.FreeRanges())

	// Free out of order; the list must still collapse to one span.
	a.Free(r2)
	a.Free(r1)
	a.Free(r3)

	free := a.FreeRanges()
	require.Len(t, free, 1)
	assert.Equal(t, api.Range{Offset: 0, Size: 3 * 4096}, free[0])
	assert.Equal(t, uint64(0), a.Used())
}

func TestUsedAccounting(t *testing.T) {
	a, err := mm.NewRangeAllocator(1 << 20)
	require.NoError(t, err)

	r, err := a.Allocate(4096, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), a.Used())

	a.Free(r)
	assert.Equal(t, uint64(0), a.Used())
	assert.Equal(t, uint64(1<<20), a.Size())
}

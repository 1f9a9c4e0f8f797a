package facade_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-vram/api"
	"github.com/momentics/hioload-vram/facade"
)

func newVRAM(t *testing.T) *facade.VRAM {
	t.Helper()
	cfg := facade.DefaultConfig()
	cfg.VRAMSize = 64 << 20
	cfg.ParkGrace = -1
	v, err := facade.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Shutdown() })
	return v
}

func TestHandleLifecycle(t *testing.T) {
	v := newVRAM(t)

	h, err := v.CreateBuffer(1<<20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, v.HandleCount())

	require.NoError(t, v.Pin(h, api.MaskVRAM))
	off, err := v.DeviceOffset(h)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, off, int64(0))

	tok, err := v.MmapOffset(h)
	require.NoError(t, err)
	assert.NotZero(t, tok)

	require.NoError(t, v.Unpin(h))
	require.NoError(t, v.DestroyBuffer(h))
	assert.Equal(t, 0, v.HandleCount())
	assert.Equal(t, 0, v.Manager().ObjectCount())
}

func TestUnknownHandle(t *testing.T) {
	v := newVRAM(t)

	err := v.Pin(999, 0)
	assert.True(t, errors.Is(err, facade.ErrUnknownHandle))

	err = v.DestroyBuffer(999)
	assert.True(t, errors.Is(err, facade.ErrUnknownHandle))

	_, err = v.MmapOffset(999)
	assert.True(t, errors.Is(err, facade.ErrUnknownHandle))
}

func TestMapThroughHandle(t *testing.T) {
	v := newVRAM(t)

	h, err := v.CreateBuffer(4096, 0)
	require.NoError(t, err)

	m, err := v.Map(h, true)
	require.NoError(t, err)
	require.NotNil(t, m)
	m.Bytes()[0] = 0x42

	m2, err := v.Map(h, false)
	require.NoError(t, err)
	require.NotNil(t, m2)
	assert.Equal(t, byte(0x42), m2.Bytes()[0])

	require.NoError(t, v.Unmap(h))
	require.NoError(t, v.Unmap(h))
	require.NoError(t, v.DestroyBuffer(h))
}

func TestCreateDumb(t *testing.T) {
	v := newVRAM(t)

	info, err := v.CreateDumb(640, 480, 32)
	require.NoError(t, err)
	assert.Equal(t, uint64(640*4), info.Pitch)
	// 640*4*480 is already a page multiple.
	assert.Equal(t, uint64(1228800), info.Size)
	require.NoError(t, v.DestroyBuffer(info.Handle))

	// 100x10 at 8 bpp is 1000 bytes, rounded up to one page.
	info, err = v.CreateDumb(100, 10, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), info.Pitch)
	assert.Equal(t, uint64(4096), info.Size)
	require.NoError(t, v.DestroyBuffer(info.Handle))
}

func TestCreateDumbOddBpp(t *testing.T) {
	v := newVRAM(t)

	// 15 bpp rounds up to 2 bytes per pixel.
	info, err := v.CreateDumb(100, 10, 15)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), info.Pitch)
	require.NoError(t, v.DestroyBuffer(info.Handle))
}

func TestCreateDumbZeroGeometry(t *testing.T) {
	v := newVRAM(t)

	_, err := v.CreateDumb(0, 480, 32)
	assert.True(t, errors.Is(err, api.ErrInvalidSize))
	_, err = v.CreateDumb(640, 0, 32)
	assert.True(t, errors.Is(err, api.ErrInvalidSize))
}

func TestDebugProbes(t *testing.T) {
	v := newVRAM(t)

	out, ok := v.Probes().Probe("vram-mm")
	require.True(t, ok)
	free, ok := out.([]api.Range)
	require.True(t, ok)
	require.Len(t, free, 1)
	assert.Equal(t, uint64(64<<20), free[0].Size)

	state, ok := v.Probes().Probe("wake-state")
	require.True(t, ok)
	assert.Equal(t, "parked", state)

	_, ok = v.Probes().Probe("no-such-probe")
	assert.False(t, ok)
}

func TestWakeMetrics(t *testing.T) {
	v := newVRAM(t)

	require.NoError(t, v.AcquireWake())
	v.ReleaseWake()
	require.Eventually(t, func() bool {
		return v.Wake().Parks() == 1
	}, 2*time.Second, 5*time.Millisecond)

	snap := v.Metrics().GetSnapshot()
	assert.Equal(t, uint64(1), snap["wake.unparked"])
	assert.Equal(t, uint64(1), snap["wake.parked"])
	assert.Equal(t, false, snap["powersave.enabled"])
}

func TestSanitizeResumeRoundTrip(t *testing.T) {
	cfg := facade.DefaultConfig()
	cfg.VRAMSize = 64 << 20
	cfg.ParkGrace = -1
	resets := 0
	cfg.ResetEngines = func() bool { resets++; return true }
	v, err := facade.New(cfg)
	require.NoError(t, err)
	defer func() { _ = v.Shutdown() }()

	v.Sanitize(false)
	assert.Equal(t, 1, resets)

	require.NoError(t, v.Resume())
	engines := v.GT().Engines()
	require.Len(t, engines, 1)
	assert.Equal(t, uint64(1), engines[0].Serial())
	assert.Equal(t, uint64(1), engines[0].KernelContext().Resets())
}

func TestShutdownReleasesHandles(t *testing.T) {
	cfg := facade.DefaultConfig()
	cfg.VRAMSize = 64 << 20
	cfg.ParkGrace = -1
	v, err := facade.New(cfg)
	require.NoError(t, err)

	_, err = v.CreateBuffer(4096, 0)
	require.NoError(t, err)
	_, err = v.CreateBuffer(4096, 0)
	require.NoError(t, err)

	require.NoError(t, v.Shutdown())
	assert.Equal(t, 0, v.HandleCount())
	assert.Equal(t, 0, v.Manager().ObjectCount())

	require.NoError(t, v.Shutdown()) // idempotent
}

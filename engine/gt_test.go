package engine_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-vram/api"
	"github.com/momentics/hioload-vram/engine"
	"github.com/momentics/hioload-vram/power"
)

func newWake(t *testing.T) *power.Controller {
	t.Helper()
	c := power.NewController(power.Config{Grace: -1})
	t.Cleanup(c.Close)
	return c
}

func TestSanitizeSkippedWhenResetFails(t *testing.T) {
	var resets atomic.Int64
	gt := engine.NewGT(engine.Config{
		Engines: []*engine.Engine{engine.NewEngine("rcs0", nil, nil)},
		Wake:    newWake(t),
		Reset:   func() bool { resets.Add(1); return false },
	})

	gt.Sanitize(false)
	assert.Equal(t, int64(1), resets.Load())

	// force overrides the failed reset.
	gt.Sanitize(true)
	assert.Equal(t, int64(2), resets.Load())
}

func TestSanitizeSkipsResetWhenDisplayAtRisk(t *testing.T) {
	var resets atomic.Int64
	gt := engine.NewGT(engine.Config{
		Engines: []*engine.Engine{engine.NewEngine("rcs0", nil, nil)},
		Wake:    newWake(t),
		HW:      engine.HardwareInfo{ResetClobbersDisplay: true},
		Reset:   func() bool { resets.Add(1); return true },
	})

	gt.Sanitize(false)
	gt.Sanitize(true)
	assert.Equal(t, int64(0), resets.Load())
}

func TestResumeResetsKernelContextsAndBumpsSerials(t *testing.T) {
	ctx := engine.NewKernelContext()
	var resumed atomic.Int64
	e := engine.NewEngine("rcs0", ctx, func() error {
		resumed.Add(1)
		return nil
	})
	wake := newWake(t)
	gt := engine.NewGT(engine.Config{
		Engines: []*engine.Engine{e},
		Wake:    wake,
	})

	require.NoError(t, gt.Resume())

	assert.Equal(t, uint64(1), ctx.Resets())
	assert.Equal(t, uint64(1), e.Serial())
	assert.Equal(t, int64(1), resumed.Load())
	assert.True(t, ctx.Pinned())

	// Resume holds a wake reference only for its own duration.
	assert.Equal(t, uint64(1), wake.Unparks())
	require.Eventually(t, func() bool {
		return wake.Parks() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestResumeStopsAtFirstFailure(t *testing.T) {
	failErr := errors.New("engine wedged")
	var laterResumed atomic.Int64

	good := engine.NewEngine("rcs0", engine.NewKernelContext(), nil)
	bad := engine.NewEngine("vcs0", nil, func() error { return failErr })
	after := engine.NewEngine("bcs0", engine.NewKernelContext(), func() error {
		laterResumed.Add(1)
		return nil
	})

	gt := engine.NewGT(engine.Config{
		Engines: []*engine.Engine{good, bad, after},
		Wake:    newWake(t),
	})

	err := gt.Resume()
	require.Error(t, err)
	assert.ErrorIs(t, err, failErr)

	var structured *api.Error
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, api.ErrCodeInternal, structured.Code)
	assert.Equal(t, "vcs0", structured.Context["engine"])

	// Engines before the failure were handled, engines after were not.
	assert.Equal(t, uint64(1), good.Serial())
	assert.Equal(t, uint64(1), bad.Serial())
	assert.Equal(t, uint64(0), after.Serial())
	assert.Equal(t, uint64(0), after.KernelContext().Resets())
	assert.Equal(t, int64(0), laterResumed.Load())
}

func TestPMEnableBumpsSerials(t *testing.T) {
	e1 := engine.NewEngine("rcs0", nil, nil)
	e2 := engine.NewEngine("vcs0", nil, nil)
	wake := newWake(t)
	gt := engine.NewGT(engine.Config{
		Engines: []*engine.Engine{e1, e2},
		Wake:    wake,
	})

	require.NoError(t, gt.PMEnable())
	assert.Equal(t, uint64(1), e1.Serial())
	assert.Equal(t, uint64(1), e2.Serial())
	assert.Equal(t, 0, wake.Counter())
}

func TestPMDisableInvokesHook(t *testing.T) {
	var called atomic.Int64
	gt := engine.NewGT(engine.Config{
		Wake:             newWake(t),
		DisablePowersave: func() { called.Add(1) },
	})

	gt.PMDisable()
	assert.Equal(t, int64(1), called.Load())
}

func TestContextResetClearsState(t *testing.T) {
	ctx := engine.NewKernelContext()
	assert.True(t, ctx.Pinned())
	assert.Equal(t, uint64(0), ctx.Resets())

	ctx.Reset()
	ctx.Reset()
	assert.Equal(t, uint64(2), ctx.Resets())
}

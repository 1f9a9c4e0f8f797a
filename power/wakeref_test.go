package power_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-vram/api"
	"github.com/momentics/hioload-vram/power"
)

func waitParks(t *testing.T, c *power.Controller, want uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Parks() == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConcurrentAcquireSingleUnpark(t *testing.T) {
	var enabled atomic.Int64
	c := power.NewController(power.Config{
		Grace: -1,
		Hooks: power.Hooks{
			EnablePowersave: func() { enabled.Add(1) },
		},
	})
	defer c.Close()

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, c.Acquire())
		}()
	}
	wg.Wait()

	assert.Equal(t, api.WakeAwake, c.State())
	assert.Equal(t, n, c.Counter())
	assert.Equal(t, uint64(1), c.Unparks())
	assert.Equal(t, int64(1), enabled.Load())

	for i := 0; i < n; i++ {
		c.Release()
	}
	waitParks(t, c, 1)
	assert.Equal(t, api.WakeParked, c.State())
}

func TestParkRunsSideEffectsOnce(t *testing.T) {
	var disabled, flushed atomic.Int64
	c := power.NewController(power.Config{
		Grace: -1,
		Hooks: power.Hooks{
			DisablePowersave: func() { disabled.Add(1) },
			FlushInterrupts:  func() { flushed.Add(1) },
		},
	})
	defer c.Close()

	require.NoError(t, c.Acquire())
	require.NoError(t, c.Acquire())
	c.Release()
	// Still held: no park may be scheduled.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, uint64(0), c.Parks())

	c.Release()
	waitParks(t, c, 1)
	assert.Equal(t, int64(1), disabled.Load())
	assert.Equal(t, int64(1), flushed.Load())
}

func TestAcquireCancelsPendingPark(t *testing.T) {
	c := power.NewController(power.Config{Grace: 200 * time.Millisecond})
	defer c.Close()

	require.NoError(t, c.Acquire())
	c.Release()
	assert.Equal(t, api.WakeParking, c.State())

	// Re-acquire before the grace period elapses: the scheduled park
	// must observe the cancellation and do nothing.
	require.NoError(t, c.Acquire())
	assert.Equal(t, api.WakeAwake, c.State())

	time.Sleep(450 * time.Millisecond)
	assert.Equal(t, uint64(0), c.Parks())
	assert.Equal(t, api.WakeAwake, c.State())
	assert.Equal(t, uint64(1), c.Unparks())

	c.Release()
	waitParks(t, c, 1)
}

func TestWakeCycleCounts(t *testing.T) {
	c := power.NewController(power.Config{Grace: -1})
	defer c.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Acquire())
		c.Release()
		waitParks(t, c, uint64(i+1))
	}
	assert.Equal(t, uint64(3), c.Unparks())
}

func TestUnbalancedReleaseAbsorbed(t *testing.T) {
	c := power.NewController(power.Config{Grace: -1})
	defer c.Close()

	c.Release() // nothing held: must not underflow or park
	assert.Equal(t, api.WakeParked, c.State())
	assert.Equal(t, 0, c.Counter())

	require.NoError(t, c.Acquire())
	assert.Equal(t, 1, c.Counter())
	c.Release()
	waitParks(t, c, 1)
}

func TestDomainHeldAcrossWakeCycle(t *testing.T) {
	dom := power.NewDomainService()
	c := power.NewController(power.Config{
		Domains: dom,
		Domain:  api.DomainGTIRQ,
		Grace:   -1,
	})
	defer c.Close()

	assert.Equal(t, 0, dom.Held(api.DomainGTIRQ))

	require.NoError(t, c.Acquire())
	assert.Equal(t, 1, dom.Held(api.DomainGTIRQ))

	c.Release()
	waitParks(t, c, 1)
	assert.Equal(t, 0, dom.Held(api.DomainGTIRQ))
}

func TestSubscriberEventOrder(t *testing.T) {
	c := power.NewController(power.Config{Grace: -1})
	defer c.Close()

	var mu sync.Mutex
	var events []api.WakeEvent
	c.Subscribe(func(ev api.WakeEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	require.NoError(t, c.Acquire())
	c.Release()
	waitParks(t, c, 1)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, api.EventUnparked, events[0])
	assert.Equal(t, api.EventParked, events[1])
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	c := power.NewController(power.Config{Grace: -1})
	defer c.Close()

	var calls atomic.Int64
	tok := c.Subscribe(func(api.WakeEvent) { calls.Add(1) })

	require.NoError(t, c.Acquire())
	c.Release()
	waitParks(t, c, 1)
	assert.Equal(t, int64(2), calls.Load())

	c.Unsubscribe(tok)
	require.NoError(t, c.Acquire())
	c.Release()
	waitParks(t, c, 2)
	assert.Equal(t, int64(2), calls.Load())
}

func TestNotifierRegistrationOrder(t *testing.T) {
	n := power.NewNotifier()

	var got []int
	n.Subscribe(func(api.WakeEvent) { got = append(got, 1) })
	tok2 := n.Subscribe(func(api.WakeEvent) { got = append(got, 2) })
	n.Subscribe(func(api.WakeEvent) { got = append(got, 3) })

	n.Notify(api.EventUnparked)
	assert.Equal(t, []int{1, 2, 3}, got)

	got = nil
	n.Unsubscribe(tok2)
	n.Unsubscribe(tok2) // unknown token ignored
	n.Notify(api.EventParked)
	assert.Equal(t, []int{1, 3}, got)
}

func TestHangcheckFiresWhileAwake(t *testing.T) {
	var fired atomic.Int64
	c := power.NewController(power.Config{
		Grace:             -1,
		HangcheckInterval: 20 * time.Millisecond,
		Hooks: power.Hooks{
			Hangcheck: func() { fired.Add(1) },
		},
	})
	defer c.Close()

	require.NoError(t, c.Acquire())
	require.Eventually(t, func() bool {
		return fired.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)
	c.Release()
	waitParks(t, c, 1)
}

func TestCloseFlushesPendingPark(t *testing.T) {
	c := power.NewController(power.Config{Grace: 50 * time.Millisecond})

	require.NoError(t, c.Acquire())
	c.Release()
	c.Close() // waits for the scheduled park to drain
	assert.Equal(t, uint64(1), c.Parks())
	assert.Equal(t, api.WakeParked, c.State())
}

func TestWorkerFIFO(t *testing.T) {
	w := power.NewWorker()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, w.Submit(0, func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	w.Close()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestWorkerCloseDrainsAndRejects(t *testing.T) {
	w := power.NewWorker()

	var ran atomic.Bool
	require.NoError(t, w.Submit(20*time.Millisecond, func() { ran.Store(true) }))
	w.Close()
	assert.True(t, ran.Load())

	err := w.Submit(0, func() {})
	assert.True(t, errors.Is(err, power.ErrWorkerClosed))
}

func TestWorkerSurvivesPanickingJob(t *testing.T) {
	w := power.NewWorker()

	require.NoError(t, w.Submit(0, func() { panic("boom") }))
	var ran atomic.Bool
	require.NoError(t, w.Submit(0, func() { ran.Store(true) }))
	w.Close()
	assert.True(t, ran.Load())
}

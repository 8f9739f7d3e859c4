package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// manualHost records idle requests and runs them on demand.
type manualHost struct {
	mu       sync.Mutex
	requests []func()
	timeouts []time.Duration
}

func (h *manualHost) RequestIdleCallback(fn func(), timeout time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, fn)
	h.timeouts = append(h.timeouts, timeout)
}

func (h *manualHost) runAll() {
	h.mu.Lock()
	reqs := h.requests
	h.requests = nil
	h.mu.Unlock()
	for _, fn := range reqs {
		fn()
	}
}

func TestNewPicksBackend(t *testing.T) {
	host := &manualHost{}
	s := New(host, 0, 0)
	defer s.Close()
	require.IsType(t, &idleScheduler{}, s)

	d := New(nil, 0, 5*time.Millisecond)
	defer d.Close()
	require.IsType(t, &Deferred{}, d)
}

func TestIdleScheduler(t *testing.T) {
	host := &manualHost{}
	s := NewIdle(host, 0)

	var ran atomic.Int32
	s.Schedule(func() { ran.Add(1) })
	require.Equal(t, []time.Duration{DefaultIdleTimeout}, host.timeouts)

	host.runAll()
	require.Equal(t, int32(1), ran.Load())

	s.Schedule(func() { ran.Add(1) })
	s.Close()
	host.runAll()
	require.Equal(t, int32(1), ran.Load(), "callbacks firing after close are dropped")

	s.Schedule(func() { ran.Add(1) })
	require.Len(t, host.timeouts, 2, "nothing is requested after close")
}

func TestDeferredClampsDelay(t *testing.T) {
	require.Equal(t, MaxDeferredDelay, NewDeferred(time.Second).Delay())
	require.Equal(t, time.Duration(0), NewDeferred(-time.Second).Delay())
	require.Equal(t, 3*time.Millisecond, NewDeferred(3*time.Millisecond).Delay())
}

func TestDeferredRunsCallbacks(t *testing.T) {
	d := NewDeferred(time.Millisecond)
	defer d.Close()

	done := make(chan struct{})
	d.Schedule(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback did not run")
	}
}

func TestDeferredCloseDropsPending(t *testing.T) {
	d := NewDeferred(MaxDeferredDelay)

	var ran atomic.Int32
	for range 10 {
		d.Schedule(func() { ran.Add(1) })
	}
	d.Close()
	after := ran.Load()

	d.Schedule(func() { ran.Add(1) })
	time.Sleep(2 * MaxDeferredDelay)
	require.Equal(t, after, ran.Load())
	d.Close()
}

func TestDeferredCloseWaitsForRunningCallback(t *testing.T) {
	d := NewDeferred(0)

	started := make(chan struct{})
	var finished atomic.Bool
	d.Schedule(func() {
		close(started)
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})
	<-started
	d.Close()
	require.True(t, finished.Load())
}

func TestDeferredStopDoesNotWaitForRunningCallback(t *testing.T) {
	d := NewDeferred(0)

	started := make(chan struct{})
	release := make(chan struct{})
	var ran atomic.Int32
	d.Schedule(func() {
		close(started)
		<-release
	})
	<-started

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop waited for the running callback")
	}

	d.Schedule(func() { ran.Add(1) })
	close(release)
	d.Close()
	require.Zero(t, ran.Load())
}

func TestFrameLoop(t *testing.T) {
	f := NewFrameLoop(time.Millisecond)
	defer f.Close()

	var wg sync.WaitGroup
	wg.Add(3)
	for range 3 {
		f.RequestIdleCallback(wg.Done, time.Second)
	}
	wg.Wait()
	require.Zero(t, f.Pending())
}

func TestFrameLoopBusyHonoursTimeout(t *testing.T) {
	f := NewFrameLoop(time.Millisecond, WithBusyProbe(func() bool { return true }))
	defer f.Close()

	ran := make(chan struct{})
	f.RequestIdleCallback(func() { close(ran) }, 30*time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	require.Equal(t, 1, f.Pending(), "busy host postpones until the timeout")

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("callback did not run after its timeout")
	}
}

func TestFrameLoopSlowCallbackDoesNotStallLoop(t *testing.T) {
	f := NewFrameLoop(time.Millisecond)

	release := make(chan struct{})
	f.RequestIdleCallback(func() { <-release }, time.Second)

	fast := make(chan struct{})
	f.RequestIdleCallback(func() { close(fast) }, time.Second)
	<-fast

	close(release)
	f.Close()
	f.Close()

	f.RequestIdleCallback(func() { t.Error("ran after close") }, 0)
	require.Zero(t, f.Pending())
}

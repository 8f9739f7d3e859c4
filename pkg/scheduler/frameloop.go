package scheduler

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bimview/xray/internal/build"
)

// DefaultFrameInterval is roughly one frame at 60Hz.
const DefaultFrameInterval = 16 * time.Millisecond

var idleCallbackDelayMsHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace:                       build.ProjectName,
	Name:                            "idle_callback_delay_ms",
	Help:                            "Time between an idle callback request and its execution.",
	Buckets:                         []float64{1, 5, 10, 16, 33, 50, 100, 250, 1000}, // milliseconds
	NativeHistogramBucketFactor:     1.1,
	NativeHistogramMaxBucketNumber:  100,
	NativeHistogramMinResetDuration: time.Hour,
})

type idleRequest struct {
	fn        func()
	requested time.Time
	deadline  time.Time
}

type FrameLoopOpt func(*FrameLoop)

// WithBusyProbe makes the loop consult busy on every frame. While it reports
// true only callbacks past their timeout run.
func WithBusyProbe(busy func() bool) FrameLoopOpt {
	return func(f *FrameLoop) {
		f.busy = busy
	}
}

// FrameLoop is a ticker driven IdleHost. On every frame it runs the due
// callbacks, each on its own goroutine so a slow callback never stalls the loop.
type FrameLoop struct {
	ticker *time.Ticker
	done   chan struct{}
	busy   func() bool

	mu      sync.Mutex
	closed  bool
	queue   []idleRequest
	running sync.WaitGroup
	loop    sync.WaitGroup
	once    sync.Once
}

var _ IdleHost = (*FrameLoop)(nil)

// NewFrameLoop starts a loop ticking every interval.
func NewFrameLoop(interval time.Duration, opts ...FrameLoopOpt) *FrameLoop {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	f := &FrameLoop{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
		busy:   func() bool { return false },
	}
	for _, opt := range opts {
		opt(f)
	}

	f.loop.Add(1)
	go f.runTicker()
	return f
}

// RequestIdleCallback see [IdleHost].RequestIdleCallback.
func (f *FrameLoop) RequestIdleCallback(fn func(), timeout time.Duration) {
	now := time.Now()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.queue = append(f.queue, idleRequest{fn: fn, requested: now, deadline: now.Add(timeout)})
}

// Pending returns the number of queued callbacks.
func (f *FrameLoop) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

func (f *FrameLoop) runTicker() {
	defer f.loop.Done()
	for {
		select {
		case <-f.done:
			f.ticker.Stop()
			return
		case now := <-f.ticker.C:
			f.frame(now)
		}
	}
}

func (f *FrameLoop) frame(now time.Time) {
	busy := f.busy()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	var due []idleRequest
	kept := f.queue[:0]
	for _, r := range f.queue {
		if !busy || !now.Before(r.deadline) {
			due = append(due, r)
			continue
		}
		kept = append(kept, r)
	}
	clear(f.queue[len(kept):])
	f.queue = kept
	f.running.Add(len(due))
	f.mu.Unlock()

	for _, r := range due {
		idleCallbackDelayMsHistogram.Observe(float64(now.Sub(r.requested).Milliseconds()))
		go func() {
			defer f.running.Done()
			r.fn()
		}()
	}
}

// Close stops the loop, drops queued callbacks and waits for running ones.
// It must not be called from a callback.
func (f *FrameLoop) Close() {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.queue = nil
		f.mu.Unlock()

		close(f.done)
		f.loop.Wait()
		f.running.Wait()
	})
}

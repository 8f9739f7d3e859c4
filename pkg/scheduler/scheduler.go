// Package scheduler provides the yield point of background work: callbacks
// run when the host has spare time, or after a short delay when it offers no
// idle signal.
package scheduler

import (
	"sync"
	"time"
)

const (
	// DefaultIdleTimeout bounds how long an idle callback may be postponed.
	DefaultIdleTimeout = 100 * time.Millisecond

	// MaxDeferredDelay is the default and the upper bound of the deferred backend delay.
	MaxDeferredDelay = 10 * time.Millisecond
)

// Scheduler runs callbacks asynchronously, one Schedule call per callback.
type Scheduler interface {
	// Schedule queues fn. Callbacks queued after Close never run.
	Schedule(fn func())

	// Close drops pending callbacks and waits for running ones.
	// It must not be called from a scheduled callback.
	Close()
}

// IdleHost is the host primitive that runs a callback when it is idle, or
// once timeout elapsed, whichever comes first.
type IdleHost interface {
	RequestIdleCallback(fn func(), timeout time.Duration)
}

// New returns an idle scheduler when host is not nil and a deferred one otherwise.
func New(host IdleHost, idleTimeout, fallbackDelay time.Duration) Scheduler {
	if host != nil {
		return NewIdle(host, idleTimeout)
	}
	return NewDeferred(fallbackDelay)
}

type idleScheduler struct {
	host    IdleHost
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

var _ Scheduler = (*idleScheduler)(nil)

// NewIdle returns a Scheduler backed by host.
func NewIdle(host IdleHost, timeout time.Duration) Scheduler {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	return &idleScheduler{host: host, timeout: timeout}
}

func (s *idleScheduler) Schedule(fn func()) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	s.host.RequestIdleCallback(func() {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			fn()
		}
	}, s.timeout)
}

// Close stops callbacks from running. The host owns its own lifecycle.
func (s *idleScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Deferred runs each callback on its own timer after a fixed delay.
type Deferred struct {
	delay time.Duration

	mu      sync.Mutex
	closed  bool
	pending map[*time.Timer]struct{}
	wg      sync.WaitGroup
}

var _ Scheduler = (*Deferred)(nil)

// NewDeferred returns a Deferred scheduler. delay is clamped to [0, MaxDeferredDelay].
func NewDeferred(delay time.Duration) *Deferred {
	return &Deferred{
		delay:   min(max(delay, 0), MaxDeferredDelay),
		pending: make(map[*time.Timer]struct{}),
	}
}

func (d *Deferred) Delay() time.Duration {
	return d.delay
}

func (d *Deferred) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	d.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()

		d.mu.Lock()
		delete(d.pending, t)
		closed := d.closed
		d.mu.Unlock()

		if !closed {
			fn()
		}
	})
	d.pending[t] = struct{}{}
}

// Close drops pending callbacks and waits for a running one to return.
func (d *Deferred) Close() {
	d.Stop()
	d.wg.Wait()
}

// Stop drops pending callbacks without waiting for a running one. Later
// Schedule calls are ignored.
func (d *Deferred) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for t := range d.pending {
		if t.Stop() {
			d.wg.Done()
		}
	}
	clear(d.pending)
}

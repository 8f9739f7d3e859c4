// Package xray builds storey outlines in the background and controls their
// visibility.
//
// A Pipeline drains a queue of (storey, item) work units one scheduled
// callback at a time. When the last unit of a storey has been processed the
// storey's geometry is merged, outlined and attached to the scene as a line
// segments object. A caller focusing a storey that is not ready yet has it
// built immediately, out of queue order.
package xray

import (
	"context"
	"errors"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/bimview/xray/pkg/geomcache"
	"github.com/bimview/xray/pkg/geometry"
	"github.com/bimview/xray/pkg/logger"
	"github.com/bimview/xray/pkg/scene"
	"github.com/bimview/xray/pkg/scheduler"
	"github.com/bimview/xray/pkg/storage"
)

// Status reports the progress of the current run.
type Status struct {
	Completed    int
	Total        int
	IsProcessing bool
	Progress     float64
}

// Pipeline owns the outline of every storey of one model load. All methods
// are safe for concurrent use. Dispose must not be called from the render
// callback.
type Pipeline struct {
	cache          *geomcache.Cache
	root           *scene.Group
	reader         storage.ModelReader
	sched          scheduler.Scheduler
	ownedSched     *scheduler.Deferred
	render         func()
	builder        aggregateBuilder
	worldTransform *geometry.Matrix4
	logger         logger.Logger
	sf             singleflight.Group

	mu         sync.Mutex
	states     map[storage.GroupKey]*groupState
	order      []storage.GroupKey
	children   map[storage.GroupKey][]storage.ItemKey
	run        *run
	transform  geometry.Matrix4
	generation uint64
	disposed   bool

	enabled         bool
	hasFocus        bool
	focus           storage.GroupKey
	forced          bool
	previousEnabled bool
}

// New returns a Pipeline reading geometry from cache and attaching outlines
// to root. Without WithScheduler it yields through a deferred scheduler that
// it closes on Dispose.
func New(cache *geomcache.Cache, root *scene.Group, opts ...Option) *Pipeline {
	p := &Pipeline{
		cache:     cache,
		root:      root,
		builder:   aggregateBuilder{thresholdDegrees: geometry.DefaultEdgeThresholdDegrees},
		logger:    logger.NewNoopLogger(),
		states:    make(map[storage.GroupKey]*groupState),
		children:  make(map[storage.GroupKey][]storage.ItemKey),
		transform: geometry.Identity,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.sched == nil {
		p.ownedSched = scheduler.NewDeferred(scheduler.MaxDeferredDelay)
		p.sched = p.ownedSched
	}

	return p
}

// Initialize starts a processing run over groups, replacing any previous run
// and its outlines. Groups without children are neither queued nor counted.
// Visibility, focus and plan view state are reset. After Dispose it does
// nothing.
func (p *Pipeline) Initialize(ctx context.Context, groups []GroupChildren) error {
	queue, enqueued, err := buildQueue(groups)
	if err != nil {
		return err
	}

	world := p.resolveWorldTransform(ctx)

	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		p.logger.DebugWithContext(ctx, "initialize called on a disposed pipeline")
		return nil
	}

	if p.run != nil {
		p.run.cancel()
	}
	p.resetStatesLocked()
	p.generation++
	p.enabled = false
	p.forced = false
	p.previousEnabled = false
	p.hasFocus = false
	p.transform = world

	for _, g := range groups {
		if len(g.Children) == 0 {
			continue
		}
		p.states[g.Group] = &groupState{
			group:    g.Group,
			artifact: scene.NewPlaceholder(),
			state:    Pending,
		}
		p.children[g.Group] = slices.Clone(g.Children)
	}
	p.order = enqueued

	r := newRun(ctx, p.generation, queue)
	p.run = r
	p.mu.Unlock()

	p.logger.InfoWithContext(ctx, "processing run started",
		zap.String("run_id", r.id),
		zap.Int("groups", len(enqueued)),
		zap.Int("units", len(queue)),
	)

	if len(queue) == 0 {
		r.finish()
		return nil
	}
	p.sched.Schedule(func() { p.step(r) })
	return nil
}

// InitializeFromModel initializes the pipeline with every storey of the model
// reader, ordered by elevation.
func (p *Pipeline) InitializeFromModel(ctx context.Context) error {
	if p.reader == nil {
		return ErrNoModelReader
	}

	storeys, err := p.reader.Storeys(ctx)
	if err != nil {
		return err
	}

	groups := make([]GroupChildren, 0, len(storeys))
	for _, s := range storeys {
		children, err := p.reader.ChildrenOf(ctx, s.ID)
		if err != nil {
			return err
		}
		groups = append(groups, GroupChildren{Group: s.ID, Children: children})
	}

	return p.Initialize(ctx, groups)
}

func (p *Pipeline) resolveWorldTransform(ctx context.Context) geometry.Matrix4 {
	if p.worldTransform != nil {
		return *p.worldTransform
	}
	if p.reader == nil {
		return geometry.Identity
	}

	m, err := p.reader.WorldTransform(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.WarnWithContext(ctx, "failed to read world transform, using identity", zap.Error(err))
		}
		return geometry.Identity
	}
	return m
}

// Dispose stops the run, detaches and releases every outline and disables
// the pipeline for good. It is safe to call more than once.
func (p *Pipeline) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	p.enabled = false
	p.forced = false
	p.hasFocus = false
	if p.run != nil {
		p.run.cancel()
		p.run = nil
	}
	p.resetStatesLocked()
	p.generation++
	p.mu.Unlock()

	// A unit stuck in extraction keeps running; its late completion is a no-op.
	if p.ownedSched != nil {
		p.ownedSched.Stop()
	}
}

func (p *Pipeline) resetStatesLocked() {
	for _, st := range p.states {
		scene.Detach(st.artifact)
		st.artifact.Release()
	}
	clear(p.states)
	clear(p.children)
	p.order = nil
}

// Status returns the progress of the current run.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Status{
		Completed: p.readyCountLocked(),
		Total:     len(p.order),
	}
	s.IsProcessing = s.Completed < s.Total && s.Total > 0
	if s.Total > 0 {
		s.Progress = float64(s.Completed) / float64(s.Total)
	}
	return s
}

// IsGroupReady reports whether group has its outline.
func (p *Pipeline) IsGroupReady(group storage.GroupKey) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.states[group]
	return ok && st.state == Ready
}

// GroupState returns the state of group, false if it is not part of the run.
func (p *Pipeline) GroupState(group storage.GroupKey) (State, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.states[group]
	if !ok {
		return Pending, false
	}
	return st.state, true
}

// ReadyCount returns the number of groups with an outline.
func (p *Pipeline) ReadyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readyCountLocked()
}

// GroupCount returns the number of groups in the run.
func (p *Pipeline) GroupCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.states)
}

// Done returns a channel closed when the current run has drained its queue
// or was cancelled.
func (p *Pipeline) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.run == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return p.run.done
}

func (p *Pipeline) readyCountLocked() int {
	n := 0
	for _, st := range p.states {
		if st.state == Ready {
			n++
		}
	}
	return n
}

func (p *Pipeline) triggerRender() {
	if p.render != nil {
		p.render()
	}
}

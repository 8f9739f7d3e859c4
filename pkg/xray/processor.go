package xray

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bimview/xray/pkg/geometry"
	"github.com/bimview/xray/pkg/scene"
	"github.com/bimview/xray/pkg/storage"
	"github.com/bimview/xray/pkg/telemetry"
)

// run is one drain of a queue. Only the scheduled chain touches index and
// accumulation, and at most one link of the chain runs at a time.
type run struct {
	id         string
	generation uint64
	queue      []WorkUnit
	index      int
	acc        map[storage.GroupKey][]geometry.Extracted

	ctx      context.Context
	stop     context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
}

func newRun(parent context.Context, generation uint64, queue []WorkUnit) *run {
	ctx, stop := context.WithCancel(context.WithoutCancel(parent))
	return &run{
		id:         ulid.Make().String(),
		generation: generation,
		queue:      queue,
		acc:        make(map[storage.GroupKey][]geometry.Extracted),
		ctx:        ctx,
		stop:       stop,
		done:       make(chan struct{}),
	}
}

func (r *run) finish() {
	r.doneOnce.Do(func() {
		close(r.done)
	})
}

func (r *run) cancel() {
	r.stop()
	r.finish()
}

func (r *run) cancelled() bool {
	return r.ctx.Err() != nil
}

// step processes the unit at r.index and schedules the next one.
func (p *Pipeline) step(r *run) {
	if r.cancelled() || r.index >= len(r.queue) {
		r.finish()
		return
	}

	u := r.queue[r.index]
	geoms := p.fetchUnit(r, u)

	p.mu.Lock()
	if r.cancelled() || p.run != r {
		p.mu.Unlock()
		r.finish()
		return
	}

	r.acc[u.Group] = append(r.acc[u.Group], geoms...)

	var (
		bucket []geometry.Extracted
		build  bool
		world  geometry.Matrix4
	)
	if isLastOfGroup(r.queue, r.index) {
		bucket = r.acc[u.Group]
		delete(r.acc, u.Group)
		if st, ok := p.states[u.Group]; ok && st.state != Ready {
			st.state = InFlight
			build = true
			world = p.transform
		}
	}
	p.mu.Unlock()

	unitsProcessedCounter.Inc()

	if build {
		p.buildAndMark(r.ctx, r.generation, u.Group, bucket, world, sourceDrain)
	}

	r.index++
	if r.index >= len(r.queue) {
		p.logger.Info("processing run finished",
			zap.String("run_id", r.id),
			zap.Int("units", len(r.queue)),
		)
		r.finish()
		return
	}

	p.sched.Schedule(func() { p.step(r) })
}

// fetchUnit returns the cached geometry of one unit. A failing or panicking
// extraction contributes no geometry.
func (p *Pipeline) fetchUnit(r *run, u WorkUnit) (geoms []geometry.Extracted) {
	defer func() {
		if rec := recover(); rec != nil {
			unitFailuresCounter.Inc()
			p.logger.Error("panic while processing unit",
				zap.String("run_id", r.id),
				zap.Int64("group", int64(u.Group)),
				zap.Int64("item", int64(u.Item)),
				zap.Any("panic", rec),
			)
			geoms = nil
		}
	}()

	geoms, err := p.cache.Get(r.ctx, u.Item)
	if err != nil {
		if !r.cancelled() {
			unitFailuresCounter.Inc()
			p.logger.Warn("failed to extract unit geometry",
				zap.String("run_id", r.id),
				zap.Int64("group", int64(u.Group)),
				zap.Int64("item", int64(u.Item)),
				zap.Error(err),
			)
		}
		return nil
	}
	return geoms
}

// prioritize builds group right away from one batched fetch of its children.
// Concurrent calls for the same group share the work. It returns once the
// group is ready or its build failed; the only error is ctx's.
func (p *Pipeline) prioritize(ctx context.Context, group storage.GroupKey) error {
	p.mu.Lock()
	st, ok := p.states[group]
	if p.disposed || !ok || st.state == Ready {
		p.mu.Unlock()
		return nil
	}
	gen := p.generation
	p.mu.Unlock()

	key := strconv.FormatUint(gen, 10) + "/" + strconv.FormatInt(int64(group), 10)
	_, err, _ := p.sf.Do(key, func() (interface{}, error) {
		p.mu.Lock()
		st, ok := p.states[group]
		if p.disposed || gen != p.generation || !ok || st.state == Ready {
			p.mu.Unlock()
			return nil, nil
		}
		st.state = InFlight
		children := p.children[group]
		world := p.transform
		p.mu.Unlock()

		ctx, span := tracer.Start(ctx, "xray.prioritize")
		defer span.End()
		span.SetAttributes(
			attribute.Int64("group", int64(group)),
			attribute.Int("children", len(children)),
		)

		res, err := p.cache.GetMany(ctx, children)
		if err != nil {
			telemetry.TraceError(span, err)
			if ctx.Err() != nil {
				p.revertToPending(gen, group)
				return nil, ctx.Err()
			}
			p.logger.WarnWithContext(ctx, "batched fetch for prioritized group failed",
				zap.Int64("group", int64(group)),
				zap.Error(err),
			)
		}

		var geoms []geometry.Extracted
		for _, item := range children {
			geoms = append(geoms, res[item]...)
		}
		p.buildAndMark(ctx, gen, group, geoms, world, sourcePrioritize)
		return nil, nil
	})
	return err
}

func (p *Pipeline) buildAndMark(
	ctx context.Context,
	gen uint64,
	group storage.GroupKey,
	geoms []geometry.Extracted,
	world geometry.Matrix4,
	source string,
) {
	artifact, err := p.builder.build(ctx, group, geoms, world)
	if err != nil {
		if errors.Is(err, ErrEmptyAggregate) {
			p.logger.DebugWithContext(ctx, "group has no geometry, leaving it pending",
				zap.Int64("group", int64(group)),
			)
		} else {
			p.logger.WarnWithContext(ctx, "failed to build group outline",
				zap.Int64("group", int64(group)),
				zap.Error(err),
			)
		}
		p.revertToPending(gen, group)
		return
	}

	if p.markReady(gen, group, artifact) {
		wireframesReadyCounter.WithLabelValues(source).Inc()
		p.logger.DebugWithContext(ctx, "group outline ready",
			zap.Int64("group", int64(group)),
			zap.String("source", source),
			zap.Int("segments", artifact.SegmentCount()),
		)
	}
}

// markReady swaps the group's placeholder for artifact and attaches it. It
// is a no-op releasing artifact when the group is already ready, unknown, or
// belongs to an earlier run.
func (p *Pipeline) markReady(gen uint64, group storage.GroupKey, artifact *scene.LineSegments) bool {
	p.mu.Lock()
	st, ok := p.states[group]
	if p.disposed || gen != p.generation || !ok || st.state == Ready {
		p.mu.Unlock()
		artifact.Release()
		return false
	}

	old := st.artifact
	scene.Detach(old)
	old.Release()

	st.artifact = artifact
	st.state = Ready
	p.root.Add(artifact)

	enabled := p.enabled
	if enabled {
		p.applyVisibilityToLocked(st)
	}
	p.mu.Unlock()

	if enabled {
		p.triggerRender()
	}
	return true
}

func (p *Pipeline) revertToPending(gen uint64, group storage.GroupKey) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if st, ok := p.states[group]; ok && gen == p.generation && st.state == InFlight {
		st.state = Pending
	}
}

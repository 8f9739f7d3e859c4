package xray

import (
	"github.com/bimview/xray/pkg/geometry"
	"github.com/bimview/xray/pkg/logger"
	"github.com/bimview/xray/pkg/scheduler"
	"github.com/bimview/xray/pkg/storage"
)

type Option func(*Pipeline)

// WithScheduler sets the yield point. The pipeline does not close a
// scheduler it was given.
func WithScheduler(s scheduler.Scheduler) Option {
	return func(p *Pipeline) {
		p.sched = s
	}
}

// WithModelReader sets the reader used by InitializeFromModel and for the
// model world transform.
func WithModelReader(r storage.ModelReader) Option {
	return func(p *Pipeline) {
		p.reader = r
	}
}

// WithWorldTransform overrides the transform copied onto every outline.
func WithWorldTransform(m geometry.Matrix4) Option {
	return func(p *Pipeline) {
		p.worldTransform = &m
	}
}

// WithRender sets the callback forcing a redraw after visibility changes.
func WithRender(render func()) Option {
	return func(p *Pipeline) {
		p.render = render
	}
}

// WithEdgeThreshold sets the crease angle, in degrees, above which an edge
// between two faces is outlined.
func WithEdgeThreshold(degrees float64) Option {
	return func(p *Pipeline) {
		p.builder.thresholdDegrees = degrees
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

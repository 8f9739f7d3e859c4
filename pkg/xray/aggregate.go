package xray

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bimview/xray/pkg/geometry"
	"github.com/bimview/xray/pkg/scene"
	"github.com/bimview/xray/pkg/storage"
	"github.com/bimview/xray/pkg/telemetry"
)

const (
	// WireframeColor is the outline color.
	WireframeColor = 0x878787

	wireframeNamePrefix = "wireframe_storey_"
)

// WireframeName returns the scene name of a group's outline.
func WireframeName(group storage.GroupKey) string {
	return fmt.Sprintf("%s%d", wireframeNamePrefix, group)
}

type aggregateBuilder struct {
	thresholdDegrees float64
}

// build outlines geoms as one line segments object. The inputs are cache
// owned and left untouched; every intermediate buffer is released before
// returning.
func (b *aggregateBuilder) build(
	ctx context.Context,
	group storage.GroupKey,
	geoms []geometry.Extracted,
	world geometry.Matrix4,
) (*scene.LineSegments, error) {
	if len(geoms) == 0 {
		return nil, ErrEmptyAggregate
	}

	_, span := tracer.Start(ctx, "xray.buildAggregate")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("group", int64(group)),
		attribute.Int("geometries", len(geoms)),
	)

	start := time.Now()
	defer func() {
		aggregateBuildDurationHistogram.Observe(float64(time.Since(start).Milliseconds()))
	}()

	clones := make([]*geometry.Buffer, 0, len(geoms))
	defer func() {
		for _, c := range clones {
			c.Release()
		}
	}()
	for _, g := range geoms {
		c := g.Buffer.Clone()
		c.ApplyMatrix4(g.Transform)
		clones = append(clones, c)
	}

	merged, err := geometry.Merge(clones)
	if err != nil {
		telemetry.TraceError(span, err)
		return nil, fmt.Errorf("merge group %d: %w", group, err)
	}
	defer merged.Release()

	edges, err := geometry.Edges(merged, b.thresholdDegrees)
	if err != nil {
		telemetry.TraceError(span, err)
		return nil, fmt.Errorf("outline group %d: %w", group, err)
	}

	mat := scene.NewLineMaterial(WireframeColor)
	mat.SetDepth(false, false)

	artifact := scene.NewLineSegments(WireframeName(group), edges, mat)
	artifact.SetMatrix(world)
	artifact.SetVisible(false)

	span.SetAttributes(attribute.Int("segments", artifact.SegmentCount()))
	return artifact, nil
}

package mocks

import (
	"context"
	"time"

	"github.com/bimview/xray/pkg/geometry"
	"github.com/bimview/xray/pkg/storage"
)

// slowModelReader is a proxy to the actual reader except that geometry reads
// are delayed by geometryDelay. This allows simulating a slow model source.
type slowModelReader struct {
	storage.ModelReader
	geometryDelay time.Duration
}

// NewMockSlowModelReader returns a wrapper of a model reader that adds artificial delays into geometry reads.
func NewMockSlowModelReader(r storage.ModelReader, geometryDelay time.Duration) storage.ModelReader {
	return &slowModelReader{
		ModelReader:   r,
		geometryDelay: geometryDelay,
	}
}

func (m *slowModelReader) GeometryOf(ctx context.Context, items []storage.ItemKey) (map[storage.ItemKey][]geometry.MeshData, error) {
	select {
	case <-time.After(m.geometryDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return m.ModelReader.GeometryOf(ctx, items)
}

package geomcache

import (
	"context"

	"go.uber.org/zap"

	"github.com/bimview/xray/pkg/geometry"
	"github.com/bimview/xray/pkg/logger"
	"github.com/bimview/xray/pkg/storage"
)

// Extractor produces renderable geometry for items. Items that fail, or
// have no geometry, are absent from the result.
type Extractor interface {
	Extract(ctx context.Context, items []storage.ItemKey) (map[storage.ItemKey][]geometry.Extracted, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, items []storage.ItemKey) (map[storage.ItemKey][]geometry.Extracted, error)

// Extract calls f(ctx, items).
func (f ExtractorFunc) Extract(ctx context.Context, items []storage.ItemKey) (map[storage.ItemKey][]geometry.Extracted, error) {
	return f(ctx, items)
}

type readerExtractor struct {
	reader storage.GeometryReader
	logger logger.Logger
}

// NewReaderExtractor returns an Extractor converting the raw meshes of r.
// An item with any unconvertible mesh is dropped as a whole.
func NewReaderExtractor(r storage.GeometryReader, l logger.Logger) Extractor {
	if l == nil {
		l = logger.NewNoopLogger()
	}
	return &readerExtractor{reader: r, logger: l}
}

func (e *readerExtractor) Extract(ctx context.Context, items []storage.ItemKey) (map[storage.ItemKey][]geometry.Extracted, error) {
	raw, err := e.reader.GeometryOf(ctx, items)
	if err != nil {
		return nil, err
	}

	out := make(map[storage.ItemKey][]geometry.Extracted, len(raw))
	for item, meshes := range raw {
		geoms := make([]geometry.Extracted, 0, len(meshes))
		for _, md := range meshes {
			g, err := geometry.FromMeshData(md)
			if err != nil {
				e.logger.WarnWithContext(ctx, "dropping item with invalid mesh",
					zap.Int64("item", int64(item)),
					zap.Error(err),
				)
				geometry.ReleaseAll(geoms)
				geoms = nil
				break
			}
			geoms = append(geoms, g)
		}
		if len(geoms) > 0 {
			out[item] = geoms
		}
	}
	return out, nil
}

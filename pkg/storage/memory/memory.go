package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bimview/xray/pkg/geometry"
	"github.com/bimview/xray/pkg/storage"
)

var tracer = otel.Tracer("xray/pkg/storage/memory")

// MemoryBackend provides an ephemeral memory-backed implementation of [storage.ModelDatastore].
// It is meant for tests and for hosts that already hold the model in memory.
type MemoryBackend struct {
	mu             sync.RWMutex
	written        bool
	name           string
	worldTransform geometry.Matrix4
	storeys        []storage.Storey
	children       map[storage.GroupKey][]storage.ItemKey
	meshes         map[storage.ItemKey][]geometry.MeshData
}

// Ensures that [MemoryBackend] implements the [storage.ModelDatastore] interface.
var _ storage.ModelDatastore = (*MemoryBackend)(nil)

// New creates a new empty [MemoryBackend].
func New() *MemoryBackend {
	return &MemoryBackend{
		worldTransform: geometry.Identity,
		children:       make(map[storage.GroupKey][]storage.ItemKey),
		meshes:         make(map[storage.ItemKey][]geometry.MeshData),
	}
}

// NewWithModel returns a [MemoryBackend] holding model, or an error if the model is invalid.
func NewWithModel(model *storage.Model) (*MemoryBackend, error) {
	m := New()
	if err := m.WriteModel(context.Background(), model); err != nil {
		return nil, err
	}
	return m, nil
}

// WriteModel see [storage.ModelWriter].WriteModel.
func (m *MemoryBackend) WriteModel(ctx context.Context, model *storage.Model) error {
	_, span := tracer.Start(ctx, "memory.WriteModel")
	defer span.End()

	if err := storage.ValidateModel(model); err != nil {
		return err
	}

	storeys := make([]storage.Storey, 0, len(model.Storeys))
	children := make(map[storage.GroupKey][]storage.ItemKey, len(model.Storeys))
	meshes := make(map[storage.ItemKey][]geometry.MeshData)
	for _, s := range model.Storeys {
		storeys = append(storeys, s.Storey)
		ids := make([]storage.ItemKey, 0, len(s.Items))
		for _, it := range s.Items {
			ids = append(ids, it.ID)
			if len(it.Meshes) > 0 {
				meshes[it.ID] = it.Meshes
			}
		}
		children[s.ID] = ids
	}
	slices.SortStableFunc(storeys, func(a, b storage.Storey) int {
		if c := cmp.Compare(a.Elevation, b.Elevation); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = true
	m.name = model.Name
	m.worldTransform = model.WorldTransform
	m.storeys = storeys
	m.children = children
	m.meshes = meshes
	return nil
}

// Storeys see [storage.ModelReader].Storeys.
func (m *MemoryBackend) Storeys(ctx context.Context) ([]storage.Storey, error) {
	_, span := tracer.Start(ctx, "memory.Storeys")
	defer span.End()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.written {
		return nil, storage.ErrNotFound
	}
	return slices.Clone(m.storeys), nil
}

// ChildrenOf see [storage.ModelReader].ChildrenOf.
func (m *MemoryBackend) ChildrenOf(ctx context.Context, group storage.GroupKey) ([]storage.ItemKey, error) {
	_, span := tracer.Start(ctx, "memory.ChildrenOf")
	defer span.End()
	span.SetAttributes(attribute.Int64("group", int64(group)))

	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.children[group]), nil
}

// GeometryOf see [storage.GeometryReader].GeometryOf.
func (m *MemoryBackend) GeometryOf(ctx context.Context, items []storage.ItemKey) (map[storage.ItemKey][]geometry.MeshData, error) {
	_, span := tracer.Start(ctx, "memory.GeometryOf")
	defer span.End()
	span.SetAttributes(attribute.Int("items", len(items)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[storage.ItemKey][]geometry.MeshData, len(items))
	for _, id := range items {
		if meshes, ok := m.meshes[id]; ok {
			out[id] = meshes
		}
	}
	return out, nil
}

// WorldTransform see [storage.ModelReader].WorldTransform.
func (m *MemoryBackend) WorldTransform(_ context.Context) (geometry.Matrix4, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.written {
		return geometry.Identity, storage.ErrNotFound
	}
	return m.worldTransform, nil
}

// IsReady see [storage.ModelDatastore].IsReady.
func (m *MemoryBackend) IsReady(context.Context) (storage.ReadinessStatus, error) {
	return storage.ReadinessStatus{IsReady: true}, nil
}

// Close does not do anything for [MemoryBackend].
func (m *MemoryBackend) Close() {}

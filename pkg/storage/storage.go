// Package storage contains the model storage interfaces and implementations.
//
//go:generate mockgen -destination ../../internal/mocks/mock_storage.go -package mocks github.com/bimview/xray/pkg/storage GeometryReader,ModelReader
package storage

import (
	"context"

	"github.com/bimview/xray/pkg/geometry"
)

// GroupKey identifies a building storey, unique per model load.
type GroupKey int64

// ItemKey identifies a building element placed on exactly one storey.
type ItemKey int64

// Storey is a plan level of the model.
type Storey struct {
	ID        GroupKey
	Name      string
	Elevation float64
}

// GeometryReader provides raw mesh data for building elements.
type GeometryReader interface {
	// GeometryOf returns the meshes of every requested item in one round trip.
	// Items that cannot be read, or that have no meshes, are absent from the
	// result; a failing item never prevents its siblings from being returned.
	// An error is only returned when the whole call failed.
	GeometryOf(ctx context.Context, items []ItemKey) (map[ItemKey][]geometry.MeshData, error)
}

// ModelReader is the read side of a loaded model.
type ModelReader interface {
	GeometryReader

	// Storeys returns the storeys of the model ordered by elevation.
	Storeys(ctx context.Context) ([]Storey, error)

	// ChildrenOf returns the items placed on the storey, in placement order.
	// An unknown storey has no children.
	ChildrenOf(ctx context.Context, group GroupKey) ([]ItemKey, error)

	// WorldTransform returns the transform that places the model in the scene.
	// Both Storeys and WorldTransform return ErrNotFound before a model is written.
	WorldTransform(ctx context.Context) (geometry.Matrix4, error)
}

// Item is an element with its meshes, as written by an import.
type Item struct {
	ID     ItemKey
	Meshes []geometry.MeshData
}

// StoreyContent is a storey with the items placed on it.
type StoreyContent struct {
	Storey
	Items []Item
}

// Model is a complete model as written by an import.
type Model struct {
	Name           string
	WorldTransform geometry.Matrix4
	Storeys        []StoreyContent
}

// ModelWriter replaces the stored model.
type ModelWriter interface {
	WriteModel(ctx context.Context, model *Model) error
}

// ReadinessStatus represents the readiness status of the datastore.
type ReadinessStatus struct {
	// Message is a human-friendly status message for the current datastore status.
	Message string

	IsReady bool
}

// ModelDatastore is a persistent model store.
type ModelDatastore interface {
	ModelReader
	ModelWriter

	// IsReady reports whether the datastore is ready to accept traffic.
	IsReady(ctx context.Context) (ReadinessStatus, error)

	// Close closes the datastore and cleans up any residual resources.
	Close()
}

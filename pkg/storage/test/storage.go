package test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/bimview/xray/pkg/geometry"
	"github.com/bimview/xray/pkg/storage"
)

// RunAllTests runs the datastore conformance suite against an empty ds.
func RunAllTests(t *testing.T, ds storage.ModelDatastore) {
	t.Run("TestDatastoreIsReady", func(t *testing.T) {
		status, err := ds.IsReady(context.Background())
		require.NoError(t, err)
		require.True(t, status.IsReady)
	})
	t.Run("TestEmptyDatastore", func(t *testing.T) { EmptyDatastoreTest(t, ds) })
	t.Run("TestWriteAndReadModel", func(t *testing.T) { WriteAndReadModelTest(t, ds) })
	t.Run("TestGeometryOf", func(t *testing.T) { GeometryOfTest(t, ds) })
	t.Run("TestRejectInvalidModel", func(t *testing.T) { RejectInvalidModelTest(t, ds) })
	t.Run("TestReplaceModel", func(t *testing.T) { ReplaceModelTest(t, ds) })
}

func EmptyDatastoreTest(t *testing.T, ds storage.ModelDatastore) {
	ctx := context.Background()

	_, err := ds.Storeys(ctx)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = ds.WorldTransform(ctx)
	require.ErrorIs(t, err, storage.ErrNotFound)

	children, err := ds.ChildrenOf(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, children)
}

func WriteAndReadModelTest(t *testing.T, ds storage.ModelDatastore) {
	ctx := context.Background()
	require.NoError(t, ds.WriteModel(ctx, SampleModel()))

	storeys, err := ds.Storeys(ctx)
	require.NoError(t, err)
	expected := []storage.Storey{
		{ID: 1, Name: "ground", Elevation: 0},
		{ID: 2, Name: "level 1", Elevation: 3.5},
		{ID: 3, Name: "roof", Elevation: 7},
	}
	if diff := cmp.Diff(expected, storeys); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	children, err := ds.ChildrenOf(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []storage.ItemKey{12, 10}, children)

	children, err = ds.ChildrenOf(ctx, 3)
	require.NoError(t, err)
	require.Empty(t, children)

	children, err = ds.ChildrenOf(ctx, 99)
	require.NoError(t, err)
	require.Empty(t, children)

	wt, err := ds.WorldTransform(ctx)
	require.NoError(t, err)
	require.Equal(t, geometry.Identity, wt)
}

func GeometryOfTest(t *testing.T, ds storage.ModelDatastore) {
	ctx := context.Background()
	require.NoError(t, ds.WriteModel(ctx, SampleModel()))

	got, err := ds.GeometryOf(ctx, []storage.ItemKey{20, 21, 10, 404})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotContains(t, got, storage.ItemKey(21))
	require.NotContains(t, got, storage.ItemKey(404))

	if diff := cmp.Diff([]geometry.MeshData{QuadMesh(0), QuadMesh(2)}, got[20]); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]geometry.MeshData{QuadMesh(0)}, got[10]); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	empty, err := ds.GeometryOf(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func RejectInvalidModelTest(t *testing.T, ds storage.ModelDatastore) {
	ctx := context.Background()
	require.NoError(t, ds.WriteModel(ctx, SampleModel()))

	invalid := SampleModel()
	invalid.Storeys[2].Items = []storage.Item{{ID: 10}}
	err := ds.WriteModel(ctx, invalid)
	require.ErrorIs(t, err, storage.ErrInvalidModel)

	// previous model untouched
	children, err := ds.ChildrenOf(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []storage.ItemKey{12, 10}, children)
}

func ReplaceModelTest(t *testing.T, ds storage.ModelDatastore) {
	ctx := context.Background()
	require.NoError(t, ds.WriteModel(ctx, SampleModel()))

	replacement := &storage.Model{
		Name:           "replacement",
		WorldTransform: geometry.Identity,
		Storeys: []storage.StoreyContent{
			{
				Storey: storage.Storey{ID: 5, Name: "only"},
				Items:  []storage.Item{{ID: 50, Meshes: []geometry.MeshData{QuadMesh(0)}}},
			},
		},
	}
	require.NoError(t, ds.WriteModel(ctx, replacement))

	storeys, err := ds.Storeys(ctx)
	require.NoError(t, err)
	require.Equal(t, []storage.Storey{{ID: 5, Name: "only"}}, storeys)

	got, err := ds.GeometryOf(ctx, []storage.ItemKey{10, 20, 50})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Contains(t, got, storage.ItemKey(50))
}

package test

import (
	"github.com/bimview/xray/pkg/geometry"
	"github.com/bimview/xray/pkg/storage"
)

// QuadMesh is a unit square made of two triangles, placed at the given x offset.
func QuadMesh(x float64) geometry.MeshData {
	return geometry.MeshData{
		Positions: []float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0},
		Normals:   []int16{0, 0, 32767, 0, 0, 32767, 0, 0, 32767, 0, 0, 32767},
		Indices:   []uint16{0, 1, 2, 0, 2, 3},
		Transform: []float64{
			1, 0, 0, 0,
			0, 1, 0, 0,
			0, 0, 1, 0,
			x, 0, 0, 1,
		},
	}
}

// SampleModel returns a three storey model. Storey 2 is written first but
// sits highest; item 21 has no meshes.
func SampleModel() *storage.Model {
	return &storage.Model{
		Name:           "sample",
		WorldTransform: geometry.Identity,
		Storeys: []storage.StoreyContent{
			{
				Storey: storage.Storey{ID: 2, Name: "level 1", Elevation: 3.5},
				Items: []storage.Item{
					{ID: 20, Meshes: []geometry.MeshData{QuadMesh(0), QuadMesh(2)}},
					{ID: 21},
				},
			},
			{
				Storey: storage.Storey{ID: 1, Name: "ground", Elevation: 0},
				Items: []storage.Item{
					{ID: 12, Meshes: []geometry.MeshData{QuadMesh(1)}},
					{ID: 10, Meshes: []geometry.MeshData{QuadMesh(0)}},
				},
			},
			{
				Storey: storage.Storey{ID: 3, Name: "roof", Elevation: 7},
			},
		},
	}
}

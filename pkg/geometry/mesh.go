package geometry

import (
	"fmt"
	"math"
)

// MeshData is a raw mesh as delivered by a model source. Normals are
// quantized to int16 and Transform holds 16 column-major elements, or
// nothing for an identity placement.
type MeshData struct {
	Positions []float32
	Normals   []int16
	Indices   []uint16
	Transform []float64
}

// Extracted is a buffer with the transform that places it in model space.
// The transform is kept separate so cached buffers can be shared.
type Extracted struct {
	Buffer    *Buffer
	Transform Matrix4
}

// Release releases the underlying buffer.
func (e Extracted) Release() bool {
	if e.Buffer == nil {
		return false
	}
	return e.Buffer.Release()
}

// FromMeshData converts raw mesh data into an Extracted buffer.
func FromMeshData(md MeshData) (Extracted, error) {
	var normals []float32
	if len(md.Normals) > 0 {
		normals = make([]float32, len(md.Normals))
		for i, n := range md.Normals {
			normals[i] = float32(n) / math.MaxInt16
		}
	}

	var indices []uint32
	if len(md.Indices) > 0 {
		indices = make([]uint32, len(md.Indices))
		for i, idx := range md.Indices {
			indices[i] = uint32(idx)
		}
	}

	buf, err := NewBuffer(append([]float32(nil), md.Positions...), normals, indices)
	if err != nil {
		return Extracted{}, fmt.Errorf("convert mesh data: %w", err)
	}

	return Extracted{
		Buffer:    buf,
		Transform: MatrixFromElements(md.Transform),
	}, nil
}

// ReleaseAll releases every buffer in geoms.
func ReleaseAll(geoms []Extracted) {
	for _, g := range geoms {
		g.Release()
	}
}

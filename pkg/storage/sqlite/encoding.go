package sqlite

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/bimview/xray/pkg/geometry"
)

// Mesh attributes are stored as little-endian packed arrays.

func encodeFloat32s(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("float32 blob of %d bytes: %w", len(b), geometry.ErrMalformedBuffer)
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, nil
}

func encodeInt16s(v []int16) []byte {
	if len(v) == 0 {
		return nil
	}
	out := make([]byte, 2*len(v))
	for i, n := range v {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(n))
	}
	return out
}

func decodeInt16s(b []byte) ([]int16, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("int16 blob of %d bytes: %w", len(b), geometry.ErrMalformedBuffer)
	}
	if len(b) == 0 {
		return nil, nil
	}
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out, nil
}

func encodeUint16s(v []uint16) []byte {
	out := make([]byte, 2*len(v))
	for i, n := range v {
		binary.LittleEndian.PutUint16(out[2*i:], n)
	}
	return out
}

func decodeUint16s(b []byte) ([]uint16, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("uint16 blob of %d bytes: %w", len(b), geometry.ErrMalformedBuffer)
	}
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return out, nil
}

func encodeFloat64s(v []float64) []byte {
	if len(v) == 0 {
		return nil
	}
	out := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(f))
	}
	return out
}

func decodeFloat64s(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("float64 blob of %d bytes: %w", len(b), geometry.ErrMalformedBuffer)
	}
	if len(b) == 0 {
		return nil, nil
	}
	out := make([]float64, len(b)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return out, nil
}

// meshRow is a mesh as stored, before decoding.
type meshRow struct {
	positions []byte
	normals   []byte
	indices   []byte
	transform []byte
}

func encodeMesh(md geometry.MeshData) meshRow {
	return meshRow{
		positions: encodeFloat32s(md.Positions),
		normals:   encodeInt16s(md.Normals),
		indices:   encodeUint16s(md.Indices),
		transform: encodeFloat64s(md.Transform),
	}
}

func (r meshRow) decode() (geometry.MeshData, error) {
	var (
		md  geometry.MeshData
		err error
	)
	if md.Positions, err = decodeFloat32s(r.positions); err != nil {
		return md, err
	}
	if md.Normals, err = decodeInt16s(r.normals); err != nil {
		return md, err
	}
	if md.Indices, err = decodeUint16s(r.indices); err != nil {
		return md, err
	}
	if md.Transform, err = decodeFloat64s(r.transform); err != nil {
		return md, err
	}
	if n := len(md.Transform); n != 0 && n != 16 {
		return md, fmt.Errorf("transform of %d elements: %w", n, geometry.ErrMalformedBuffer)
	}
	return md, nil
}

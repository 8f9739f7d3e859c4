package geometry

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultEdgeThresholdDegrees keeps every crease sharper than a tenth of a degree.
const DefaultEdgeThresholdDegrees = 0.1

// vertices closer than 1/edgePrecision on every axis share a hash
const edgePrecision = 1e4

type edgeKey struct {
	from, to uint64
}

type halfEdge struct {
	a, b   r3.Vec
	normal r3.Vec
	open   bool
}

// Edges returns a non-indexed line buffer with the feature edges of b: every
// edge shared by two faces whose normals differ by more than thresholdDegrees,
// plus every edge that belongs to a single face. Degenerate triangles are skipped.
func Edges(b *Buffer, thresholdDegrees float64) (*Buffer, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	thresholdDot := math.Cos(thresholdDegrees * math.Pi / 180)

	var (
		lines   []float32
		edges   []halfEdge
		byKey   = make(map[edgeKey]int)
		corners [3]r3.Vec
		hashes  [3]uint64
	)

	triangles := b.TriangleCount()
	for t := 0; t < triangles; t++ {
		for j := 0; j < 3; j++ {
			idx := t*3 + j
			if b.Indexed() {
				idx = int(b.Indices[idx])
			}
			corners[j] = b.Vertex(idx)
			hashes[j] = vertexHash(corners[j])
		}

		if hashes[0] == hashes[1] || hashes[1] == hashes[2] || hashes[2] == hashes[0] {
			continue
		}

		normal := unit(r3.Cross(r3.Sub(corners[2], corners[1]), r3.Sub(corners[0], corners[1])))

		for j := 0; j < 3; j++ {
			next := (j + 1) % 3
			key := edgeKey{from: hashes[j], to: hashes[next]}
			reverse := edgeKey{from: hashes[next], to: hashes[j]}

			if i, ok := byKey[reverse]; ok && edges[i].open {
				if r3.Dot(normal, edges[i].normal) <= thresholdDot {
					lines = appendSegment(lines, corners[j], corners[next])
				}
				edges[i].open = false
				continue
			}
			if _, ok := byKey[key]; ok {
				continue
			}
			byKey[key] = len(edges)
			edges = append(edges, halfEdge{a: corners[j], b: corners[next], normal: normal, open: true})
		}
	}

	for _, e := range edges {
		if e.open {
			lines = appendSegment(lines, e.a, e.b)
		}
	}

	return &Buffer{Positions: lines}, nil
}

func appendSegment(lines []float32, a, b r3.Vec) []float32 {
	return append(lines,
		float32(a.X), float32(a.Y), float32(a.Z),
		float32(b.X), float32(b.Y), float32(b.Z),
	)
}

func vertexHash(v r3.Vec) uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(int64(math.Round(v.X*edgePrecision))))
	binary.LittleEndian.PutUint64(buf[8:], uint64(int64(math.Round(v.Y*edgePrecision))))
	binary.LittleEndian.PutUint64(buf[16:], uint64(int64(math.Round(v.Z*edgePrecision))))
	return xxhash.Sum64(buf[:])
}

package geometry

import "fmt"

// Merge concatenates buffers into a new one, offsetting indices. When the
// buffers disagree, the result is non-indexed and normals are kept only if
// every buffer carries them.
func Merge(buffers []*Buffer) (*Buffer, error) {
	if len(buffers) == 0 {
		return nil, ErrNoBuffers
	}

	indexed, withNormals := true, true
	var positionCount, indexCount int
	for i, b := range buffers {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("buffer %d: %w", i, err)
		}
		indexed = indexed && b.Indexed()
		withNormals = withNormals && len(b.Normals) > 0
		positionCount += len(b.Positions)
		indexCount += len(b.Indices)
	}

	if !indexed {
		positionCount = 0
		for _, b := range buffers {
			positionCount += 3 * b.TriangleCount() * 3
		}
	}

	merged := &Buffer{
		Positions: make([]float32, 0, positionCount),
	}
	if withNormals {
		merged.Normals = make([]float32, 0, positionCount)
	}
	if indexed {
		merged.Indices = make([]uint32, 0, indexCount)
	}

	for _, b := range buffers {
		if !indexed {
			appendExpanded(merged, b, withNormals)
			continue
		}
		offset := uint32(merged.VertexCount())
		merged.Positions = append(merged.Positions, b.Positions...)
		if withNormals {
			merged.Normals = append(merged.Normals, b.Normals...)
		}
		for _, idx := range b.Indices {
			merged.Indices = append(merged.Indices, idx+offset)
		}
	}

	return merged, nil
}

// appendExpanded appends the triangles of b to dst as a non-indexed soup.
func appendExpanded(dst, b *Buffer, withNormals bool) {
	if !b.Indexed() {
		n := b.TriangleCount() * 9
		dst.Positions = append(dst.Positions, b.Positions[:n]...)
		if withNormals {
			dst.Normals = append(dst.Normals, b.Normals[:n]...)
		}
		return
	}
	for _, idx := range b.Indices {
		v := int(idx) * 3
		dst.Positions = append(dst.Positions, b.Positions[v:v+3]...)
		if withNormals {
			dst.Normals = append(dst.Normals, b.Normals[v:v+3]...)
		}
	}
}

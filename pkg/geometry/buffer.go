package geometry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"
)

// Buffer is a triangle (or line) buffer. Indices may be nil for non-indexed
// geometry, Normals may be nil when the source provides none.
type Buffer struct {
	Positions []float32
	Normals   []float32
	Indices   []uint32

	released atomic.Bool
	mu       sync.Mutex
	hooks    []func()
}

// NewBuffer validates the attributes and returns a Buffer that owns them.
func NewBuffer(positions, normals []float32, indices []uint32) (*Buffer, error) {
	b := &Buffer{Positions: positions, Normals: normals, Indices: indices}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks attribute lengths and index bounds.
func (b *Buffer) Validate() error {
	if len(b.Positions)%3 != 0 {
		return fmt.Errorf("%d position components: %w", len(b.Positions), ErrMalformedBuffer)
	}
	if len(b.Normals) != 0 && len(b.Normals) != len(b.Positions) {
		return fmt.Errorf("%d normal components for %d position components: %w", len(b.Normals), len(b.Positions), ErrMalformedBuffer)
	}
	if len(b.Indices)%3 != 0 {
		return fmt.Errorf("%d indices: %w", len(b.Indices), ErrMalformedBuffer)
	}
	count := uint32(b.VertexCount())
	for _, idx := range b.Indices {
		if idx >= count {
			return fmt.Errorf("index %d with %d vertices: %w", idx, count, ErrIndexOutOfRange)
		}
	}
	return nil
}

func (b *Buffer) VertexCount() int {
	return len(b.Positions) / 3
}

// TriangleCount returns the number of triangles, counting non-indexed
// vertices in groups of three.
func (b *Buffer) TriangleCount() int {
	if b.Indices != nil {
		return len(b.Indices) / 3
	}
	return b.VertexCount() / 3
}

func (b *Buffer) IsEmpty() bool {
	return len(b.Positions) == 0
}

func (b *Buffer) Indexed() bool {
	return b.Indices != nil
}

// Vertex returns the position of vertex i.
func (b *Buffer) Vertex(i int) r3.Vec {
	return r3.Vec{
		X: float64(b.Positions[i*3]),
		Y: float64(b.Positions[i*3+1]),
		Z: float64(b.Positions[i*3+2]),
	}
}

// Clone returns a deep copy of the attributes. Release hooks are not copied.
func (b *Buffer) Clone() *Buffer {
	c := &Buffer{
		Positions: append([]float32(nil), b.Positions...),
	}
	if b.Normals != nil {
		c.Normals = append([]float32(nil), b.Normals...)
	}
	if b.Indices != nil {
		c.Indices = append([]uint32(nil), b.Indices...)
	}
	return c
}

// ApplyMatrix4 transforms positions in place and normals with the normal
// matrix of m, renormalizing them.
func (b *Buffer) ApplyMatrix4(m Matrix4) {
	if m.IsIdentity() {
		return
	}
	for i := 0; i < b.VertexCount(); i++ {
		p := m.ApplyToPoint(b.Vertex(i))
		b.Positions[i*3] = float32(p.X)
		b.Positions[i*3+1] = float32(p.Y)
		b.Positions[i*3+2] = float32(p.Z)
	}

	if len(b.Normals) == 0 {
		return
	}
	nm, ok := m.normalMatrix()
	if !ok {
		return
	}
	for i := 0; i < len(b.Normals)/3; i++ {
		n := unit(nm.MulVec(r3.Vec{
			X: float64(b.Normals[i*3]),
			Y: float64(b.Normals[i*3+1]),
			Z: float64(b.Normals[i*3+2]),
		}))
		b.Normals[i*3] = float32(n.X)
		b.Normals[i*3+1] = float32(n.Y)
		b.Normals[i*3+2] = float32(n.Z)
	}
}

// OnRelease registers fn to run when the buffer is released. Registering on a
// released buffer runs fn immediately.
func (b *Buffer) OnRelease(fn func()) {
	b.mu.Lock()
	if !b.released.Load() {
		b.hooks = append(b.hooks, fn)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()
	fn()
}

// Release frees the attached resources. It is safe to call more than once and
// reports whether this call did the release.
func (b *Buffer) Release() bool {
	b.mu.Lock()
	if !b.released.CompareAndSwap(false, true) {
		b.mu.Unlock()
		return false
	}
	hooks := b.hooks
	b.hooks = nil
	b.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return true
}

func (b *Buffer) Released() bool {
	return b.released.Load()
}

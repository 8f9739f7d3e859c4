package scene

import (
	"sync"
	"sync/atomic"

	"github.com/bimview/xray/pkg/geometry"
)

// LineMaterial describes how line segments are drawn.
type LineMaterial struct {
	Color      uint32
	ToneMapped bool

	mu          sync.Mutex
	depthTest   bool
	depthWrite  bool
	needsUpdate bool
	released    atomic.Bool
}

// NewLineMaterial returns a tone mapped material with depth test and depth
// write enabled.
func NewLineMaterial(color uint32) *LineMaterial {
	return &LineMaterial{
		Color:      color,
		ToneMapped: true,
		depthTest:  true,
		depthWrite: true,
	}
}

// SetDepth sets depth test and depth write and flags the material for upload.
func (m *LineMaterial) SetDepth(test, write bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depthTest = test
	m.depthWrite = write
	m.needsUpdate = true
}

func (m *LineMaterial) DepthTest() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depthTest
}

func (m *LineMaterial) DepthWrite() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depthWrite
}

// NeedsUpdate reports whether the material changed since the renderer last
// consumed it.
func (m *LineMaterial) NeedsUpdate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.needsUpdate
}

// MarkUploaded clears the update flag.
func (m *LineMaterial) MarkUploaded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.needsUpdate = false
}

// Release reports whether this call released the material.
func (m *LineMaterial) Release() bool {
	return m.released.CompareAndSwap(false, true)
}

func (m *LineMaterial) Released() bool {
	return m.released.Load()
}

// LineSegments draws pairs of vertices of Geometry as independent lines.
// A zero LineSegments (no geometry, no material) is a valid placeholder.
type LineSegments struct {
	node

	Geometry *geometry.Buffer
	Material *LineMaterial

	mu      sync.RWMutex
	matrix  geometry.Matrix4
	visible bool
}

var _ Object = (*LineSegments)(nil)

// NewLineSegments returns visible line segments with an identity matrix.
func NewLineSegments(name string, geom *geometry.Buffer, mat *LineMaterial) *LineSegments {
	l := &LineSegments{
		Geometry: geom,
		Material: mat,
		matrix:   geometry.Identity,
		visible:  true,
	}
	l.name = name
	return l
}

// NewPlaceholder returns empty, hidden line segments.
func NewPlaceholder() *LineSegments {
	l := NewLineSegments("", nil, nil)
	l.visible = false
	return l
}

// IsPlaceholder reports whether l has no geometry.
func (l *LineSegments) IsPlaceholder() bool {
	return l.Geometry == nil
}

func (l *LineSegments) Visible() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.visible
}

func (l *LineSegments) SetVisible(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.visible = v
}

func (l *LineSegments) Matrix() geometry.Matrix4 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.matrix
}

func (l *LineSegments) SetMatrix(m geometry.Matrix4) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.matrix = m
}

// SegmentCount returns the number of line segments.
func (l *LineSegments) SegmentCount() int {
	if l.Geometry == nil {
		return 0
	}
	return l.Geometry.VertexCount() / 2
}

// Release releases geometry and material. It is safe to call more than once.
func (l *LineSegments) Release() {
	if l.Geometry != nil {
		l.Geometry.Release()
	}
	if l.Material != nil {
		l.Material.Release()
	}
}

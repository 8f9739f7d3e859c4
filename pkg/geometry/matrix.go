package geometry

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Matrix4 is a 4x4 transform stored in column-major order, the layout model
// sources and renderers exchange.
type Matrix4 [16]float64

// Identity is the transform that leaves points unchanged.
var Identity = Matrix4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// MatrixFromElements builds a Matrix4 from 16 column-major elements. Any other
// length yields Identity, matching sources that omit the transform.
func MatrixFromElements(elements []float64) Matrix4 {
	if len(elements) != 16 {
		return Identity
	}
	var m Matrix4
	copy(m[:], elements)
	return m
}

// At returns the element at row i, column j.
func (m Matrix4) At(i, j int) float64 {
	return m[j*4+i]
}

// Mul returns m*o.
func (m Matrix4) Mul(o Matrix4) Matrix4 {
	var out Matrix4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m.At(i, k) * o.At(k, j)
			}
			out[j*4+i] = sum
		}
	}
	return out
}

func (m Matrix4) IsIdentity() bool {
	return m == Identity
}

// linear returns the upper 3x3 block.
func (m Matrix4) linear() *r3.Mat {
	return r3.NewMat([]float64{
		m.At(0, 0), m.At(0, 1), m.At(0, 2),
		m.At(1, 0), m.At(1, 1), m.At(1, 2),
		m.At(2, 0), m.At(2, 1), m.At(2, 2),
	})
}

func (m Matrix4) translation() r3.Vec {
	return r3.Vec{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)}
}

// ApplyToPoint transforms p, dividing by the projective component when it is not 1.
func (m Matrix4) ApplyToPoint(p r3.Vec) r3.Vec {
	out := r3.Add(m.linear().MulVec(p), m.translation())
	w := m.At(3, 0)*p.X + m.At(3, 1)*p.Y + m.At(3, 2)*p.Z + m.At(3, 3)
	if w != 0 && w != 1 {
		out = r3.Scale(1/w, out)
	}
	return out
}

// normalMatrix returns the inverse transpose of the linear block. ok is false
// when the block is singular.
func (m Matrix4) normalMatrix() (nm *r3.Mat, ok bool) {
	lin := mat.NewDense(3, 3, []float64{
		m.At(0, 0), m.At(0, 1), m.At(0, 2),
		m.At(1, 0), m.At(1, 1), m.At(1, 2),
		m.At(2, 0), m.At(2, 1), m.At(2, 2),
	})
	var inv mat.Dense
	if err := inv.Inverse(lin); err != nil {
		return nil, false
	}
	return r3.NewMat([]float64{
		inv.At(0, 0), inv.At(1, 0), inv.At(2, 0),
		inv.At(0, 1), inv.At(1, 1), inv.At(2, 1),
		inv.At(0, 2), inv.At(1, 2), inv.At(2, 2),
	}), true
}

func unit(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}

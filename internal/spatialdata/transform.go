package spatialdata

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Transform maps coordinates of an element into a named coordinate system.
type Transform interface {
	// Kind returns "identity", "affine" or "scale".
	Kind() string
	// Matrix returns the homogeneous matrix acting on the given axes.
	Matrix(axes []string) (*mat.Dense, error)
}

// Identity leaves coordinates unchanged.
type Identity struct{}

// Kind implements Transform.
func (Identity) Kind() string { return "identity" }

// Matrix implements Transform.
func (Identity) Matrix(axes []string) (*mat.Dense, error) {
	n := len(axes) + 1
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m, nil
}

// Affine is a homogeneous affine map between two sets of axes.
// The matrix has shape (len(OutputAxes)+1, len(InputAxes)+1).
type Affine struct {
	InputAxes  []string
	OutputAxes []string
	M          *mat.Dense
}

// NewAffine validates the matrix shape against the axes.
func NewAffine(m *mat.Dense, inputAxes, outputAxes []string) (*Affine, error) {
	r, c := m.Dims()
	if r != len(outputAxes)+1 || c != len(inputAxes)+1 {
		return nil, fmt.Errorf("affine matrix is %dx%d, expected %dx%d for axes %v -> %v",
			r, c, len(outputAxes)+1, len(inputAxes)+1, inputAxes, outputAxes)
	}
	return &Affine{InputAxes: inputAxes, OutputAxes: outputAxes, M: m}, nil
}

// Kind implements Transform.
func (a *Affine) Kind() string { return "affine" }

// Matrix implements Transform. Axes not covered by the affine pass through unchanged.
func (a *Affine) Matrix(axes []string) (*mat.Dense, error) {
	n := len(axes) + 1
	out := mat.NewDense(n, n, nil)
	out.Set(n-1, n-1, 1)

	inPos := axisPositions(a.InputAxes)
	outPos := axisPositions(a.OutputAxes)
	_, cols := a.M.Dims()
	for i, ax := range axes {
		oi, ok := outPos[ax]
		if !ok {
			if _, consumed := inPos[ax]; consumed {
				return nil, fmt.Errorf("axis %q is consumed by the affine but not produced", ax)
			}
			out.Set(i, i, 1)
			continue
		}
		for j, bx := range axes {
			if ii, ok := inPos[bx]; ok {
				out.Set(i, j, a.M.At(oi, ii))
			}
		}
		out.Set(i, n-1, a.M.At(oi, cols-1))
	}
	return out, nil
}

// Apply maps a single 2D point. Only valid for x/y affines.
func (a *Affine) Apply(x, y float64) (float64, float64) {
	return a.M.At(0, 0)*x + a.M.At(0, 1)*y + a.M.At(0, 2),
		a.M.At(1, 0)*x + a.M.At(1, 1)*y + a.M.At(1, 2)
}

// Inverse returns the inverse affine, swapping input and output axes.
func (a *Affine) Inverse() (*Affine, error) {
	var inv mat.Dense
	if err := inv.Inverse(a.M); err != nil {
		return nil, fmt.Errorf("affine is not invertible: %w", err)
	}
	return &Affine{InputAxes: a.OutputAxes, OutputAxes: a.InputAxes, M: &inv}, nil
}

// Scale multiplies each named axis by a factor.
type Scale struct {
	Axes    []string
	Factors []float64
}

// NewScale checks that every axis has a factor.
func NewScale(factors []float64, axes []string) (*Scale, error) {
	if len(factors) != len(axes) {
		return nil, fmt.Errorf("scale has %d factors for %d axes", len(factors), len(axes))
	}
	return &Scale{Axes: axes, Factors: factors}, nil
}

// Kind implements Transform.
func (s *Scale) Kind() string { return "scale" }

// Factor returns the factor for an axis, 1 when the axis is not scaled.
func (s *Scale) Factor(axis string) float64 {
	for i, ax := range s.Axes {
		if ax == axis {
			return s.Factors[i]
		}
	}
	return 1
}

// Matrix implements Transform.
func (s *Scale) Matrix(axes []string) (*mat.Dense, error) {
	n := len(axes) + 1
	m := mat.NewDense(n, n, nil)
	for i, ax := range axes {
		m.Set(i, i, s.Factor(ax))
	}
	m.Set(n-1, n-1, 1)
	return m, nil
}

func axisPositions(axes []string) map[string]int {
	pos := make(map[string]int, len(axes))
	for i, ax := range axes {
		pos[ax] = i
	}
	return pos
}

// TransformTargets returns the coordinate systems a transform map points at, sorted.
func TransformTargets(transforms map[string]Transform) []string {
	return sortedKeys(transforms)
}

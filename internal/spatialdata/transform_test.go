package spatialdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestAffine(t *testing.T) {
	m := mat.NewDense(3, 3, []float64{
		9.2, 0, 100,
		0, 9.2, 200,
		0, 0, 1,
	})
	a, err := NewAffine(m, []string{"x", "y"}, []string{"x", "y"})
	require.NoError(t, err)
	assert.Equal(t, "affine", a.Kind())

	x, y := a.Apply(1, 2)
	assert.InDelta(t, 109.2, x, 1e-9)
	assert.InDelta(t, 218.4, y, 1e-9)

	inv, err := a.Inverse()
	require.NoError(t, err)
	bx, by := inv.Apply(x, y)
	assert.InDelta(t, 1, bx, 1e-9)
	assert.InDelta(t, 2, by, 1e-9)

	// Embedded into c,y,x the channel axis passes through.
	full, err := a.Matrix([]string{"c", "y", "x"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, full.At(0, 0))
	assert.Equal(t, 9.2, full.At(1, 1))
	assert.Equal(t, 200.0, full.At(1, 3))
	assert.Equal(t, 100.0, full.At(2, 3))

	_, err = NewAffine(mat.NewDense(2, 2, nil), []string{"x", "y"}, []string{"x", "y"})
	assert.Error(t, err)
}

func TestScale(t *testing.T) {
	s, err := NewScale([]float64{1, 2, 2}, []string{"c", "y", "x"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.Factor("c"))
	assert.Equal(t, 2.0, s.Factor("y"))
	assert.Equal(t, 2.0, s.Factor("x"))
	assert.Equal(t, 1.0, s.Factor("z"))

	m, err := s.Matrix([]string{"y", "x", "c"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, m.At(0, 0))
	assert.Equal(t, 1.0, m.At(2, 2))
	assert.Equal(t, 1.0, m.At(3, 3))

	_, err = NewScale([]float64{1}, []string{"x", "y"})
	assert.Error(t, err)
}

func TestTransformTargets(t *testing.T) {
	got := TransformTargets(map[string]Transform{"pixels": Identity{}, "global": Identity{}})
	assert.Equal(t, []string{"global", "pixels"}, got)
}

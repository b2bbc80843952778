package plainUtils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVectorizeRowMajor(t *testing.T) {
	X := [][]float64{{1, 2}, {3, 4}}
	require.Equal(t, []float64{1, 2, 3, 4}, Vectorize(X))
}

func TestTranspose(t *testing.T) {
	m := NewDense([][]float64{{1, 2, 3}, {4, 5, 6}})
	mt := TransposeDense(m)
	require.Equal(t, 3, NumRows(mt))
	require.Equal(t, 2, NumCols(mt))
	require.Equal(t, 4.0, mt.At(0, 1))
}

func TestArgMax(t *testing.T) {
	require.Equal(t, 2, ArgMax([]float64{0.1, -3, 7.5, 7.4}))
}

func TestDistances(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{1, 2, 4}
	require.InDelta(t, 1.0, Distance(a, b), 1e-12)
	require.InDelta(t, 1.0, MaxAbs(a, b), 1e-12)
}

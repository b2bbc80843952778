//Package plainUtils collects small helpers around gonum matrices used
//by the plaintext reference path and the tests.
package plainUtils

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

func NewDense(X [][]float64) *mat.Dense {
	return mat.NewDense(len(X), len(X[0]), Vectorize(X))
}

func NumRows(m *mat.Dense) int {
	rows, _ := m.Dims()
	return rows
}

func NumCols(m *mat.Dense) int {
	_, cols := m.Dims()
	return cols
}

func MatToArray(m *mat.Dense) [][]float64 {
	v := make([][]float64, NumRows(m))
	for i := 0; i < NumRows(m); i++ {
		v[i] = mat.Row(nil, i, m)
	}
	return v
}

func TransposeDense(m *mat.Dense) *mat.Dense {
	mt := mat.NewDense(NumCols(m), NumRows(m), nil)
	for i := 0; i < NumRows(m); i++ {
		for j := 0; j < NumCols(m); j++ {
			mt.Set(j, i, m.At(i, j))
		}
	}
	return mt
}

//RowFlatten returns the row-major flattening of m.
func RowFlatten(m *mat.Dense) []float64 {
	return Vectorize(MatToArray(m))
}

//ApplyFunc maps f over every entry of m, returning a new matrix.
func ApplyFunc(m *mat.Dense, f func(float64) float64) *mat.Dense {
	out := mat.NewDense(NumRows(m), NumCols(m), nil)
	out.Apply(func(_, _ int, v float64) float64 { return f(v) }, m)
	return out
}

//Distance is the euclidean distance between two flattened matrices.
func Distance(a, b []float64) float64 {
	var d float64
	for i := range a {
		d += (a[i] - b[i]) * (a[i] - b[i])
	}
	return math.Sqrt(d)
}

//MaxAbs returns the largest absolute entrywise difference.
func MaxAbs(a, b []float64) float64 {
	var d float64
	for i := range a {
		if v := math.Abs(a[i] - b[i]); v > d {
			d = v
		}
	}
	return d
}

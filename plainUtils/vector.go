package plainUtils

//Vectorize returns the row-major flattening of X.
//
//	X = |a b|   ->   [a, b, c, d]
//	    |c d|
func Vectorize(X [][]float64) []float64 {
	rows := len(X)
	cols := len(X[0])
	flat := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			flat[i*cols+j] = X[i][j]
		}
	}
	return flat
}

//ArgMax returns the index of the largest value.
func ArgMax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

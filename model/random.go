package model

import "math/rand"

//RandomNetwork builds a small network with weights uniform in
//[-0.5, 0.5], deterministic in seed. Handy for demos and tests when no
//checkpoint is around. Hidden layers get the relu approximation fitted
//on [-bound, bound], the last layer is linear.
func RandomNetwork(dims []int, bound float64, seed int64) *Network {
	r := rand.New(rand.NewSource(seed))
	layers := make([]Layer, len(dims)-1)
	for i := 0; i < len(dims)-1; i++ {
		rows, cols := dims[i], dims[i+1]
		w := make([]float64, rows*cols)
		for j := range w {
			w[j] = r.Float64() - 0.5
		}
		b := make([]float64, cols)
		for j := range b {
			b[j] = (r.Float64() - 0.5) / 4
		}
		act := Activation{Kind: "identity"}
		if i < len(dims)-2 {
			act = Activation{Kind: "relu", A: -bound, B: bound}
		}
		layers[i] = Layer{
			Weight:     Kernel{W: w, Rows: rows, Cols: cols},
			Bias:       Bias{B: b, Len: cols},
			Activation: act,
		}
	}
	return &Network{Layers: layers}
}

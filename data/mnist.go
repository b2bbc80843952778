package data

import (
	"fmt"

	"github.com/petar/GoMNIST"
)

//LoadMNIST reads the idx-format MNIST test split from dir and returns
//up to limit samples, pixels normalized to [0,1] and row-flattened.
func LoadMNIST(dir string, limit int) (*Data, error) {
	_, test, err := GoMNIST.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("data: loading mnist from %s: %w", dir, err)
	}
	n := len(test.Images)
	if limit > 0 && limit < n {
		n = limit
	}
	d := &Data{
		X: make([][]float64, n),
		Y: make([]int, n),
	}
	for i := 0; i < n; i++ {
		img := test.Images[i]
		x := make([]float64, len(img))
		for p := range img {
			x[p] = float64(img[p]) / 255.0
		}
		d.X[i] = x
		d.Y[i] = int(test.Labels[i])
	}
	return d, nil
}

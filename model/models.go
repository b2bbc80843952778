//Package model describes the feed-forward classifier served by the
//cluster: dense/convolutional layers stored as generic kernel matrices,
//loaded from a pretrained-weights file.
package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/oblivml/mpcserve/plainUtils"
)

type Bias struct {
	B   []float64 `json:"b"`
	Len int       `json:"len"`
}

//Kernel is a matrix M s.t. X @ M = conv(X, layer).flatten() for a
//row-flattened sample X (convolution in Toeplitz form), or a plain
//dense layer.
type Kernel struct {
	W    []float64 `json:"w"`
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
}

//Layer couples a kernel with its bias and activation.
type Layer struct {
	Weight     Kernel     `json:"weight"`
	Bias       Bias       `json:"bias"`
	Activation Activation `json:"activation"`
}

//BuildWeight materializes the kernel as a gonum matrix.
func (l *Layer) BuildWeight() *mat.Dense {
	k := l.Weight
	res := mat.NewDense(k.Rows, k.Cols, nil)
	for i := 0; i < k.Rows; i++ {
		for j := 0; j < k.Cols; j++ {
			res.Set(i, j, k.W[i*k.Cols+j])
		}
	}
	return res
}

//BuildBias materializes the bias replicated over a batch, padded to the
//kernel output width.
func (l *Layer) BuildBias(batchSize int) *mat.Dense {
	cols := l.Weight.Cols
	res := mat.NewDense(batchSize, cols, nil)
	row := make([]float64, cols)
	copy(row, l.Bias.B)
	for i := 0; i < batchSize; i++ {
		res.SetRow(i, row)
	}
	return res
}

//Build returns weight and batch-replicated bias of the layer.
func (l *Layer) Build(batchSize int) (*mat.Dense, *mat.Dense) {
	return l.BuildWeight(), l.BuildBias(batchSize)
}

func (l *Layer) validate() error {
	if len(l.Weight.W) != l.Weight.Rows*l.Weight.Cols {
		return fmt.Errorf("model: kernel data length %d does not match %dx%d", len(l.Weight.W), l.Weight.Rows, l.Weight.Cols)
	}
	if len(l.Bias.B) > l.Weight.Cols {
		return fmt.Errorf("model: bias of length %d wider than kernel output %d", len(l.Bias.B), l.Weight.Cols)
	}
	return nil
}

//Network is a pretrained feed-forward classifier.
type Network struct {
	Layers []Layer `json:"layers"`
}

func (n *Network) NumLayers() int { return len(n.Layers) }

//InputDim is the expected width of a flattened input sample.
func (n *Network) InputDim() int {
	return n.Layers[0].Weight.Rows
}

//OutputDim is the number of classes.
func (n *Network) OutputDim() int {
	return n.Layers[len(n.Layers)-1].Weight.Cols
}

//Dims returns the (rows, cols) of every kernel, in order.
func (n *Network) Dims() ([]int, []int) {
	rows := make([]int, len(n.Layers))
	cols := make([]int, len(n.Layers))
	for i := range n.Layers {
		rows[i] = n.Layers[i].Weight.Rows
		cols[i] = n.Layers[i].Weight.Cols
	}
	return rows, cols
}

func (n *Network) validate() error {
	if len(n.Layers) == 0 {
		return fmt.Errorf("model: no layers")
	}
	for i := range n.Layers {
		if err := n.Layers[i].validate(); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		if i > 0 && n.Layers[i].Weight.Rows != n.Layers[i-1].Weight.Cols {
			return fmt.Errorf("model: layer %d input %d does not match layer %d output %d",
				i, n.Layers[i].Weight.Rows, i-1, n.Layers[i-1].Weight.Cols)
		}
		if err := n.Layers[i].Activation.validate(); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return nil
}

//Stats accumulates batch prediction results.
type Stats struct {
	Iters    int
	Batch    int
	Corrects int
	Accuracy float64
}

func NewStats(batch int) Stats {
	return Stats{Batch: batch}
}

func (s *Stats) Accumulate(other Stats) {
	s.Iters++
	s.Corrects += other.Corrects
	s.Accuracy += other.Accuracy
}

//Predict returns number of corrects, accuracy and predicted classes.
func Predict(Y []int, scores [][]float64) (int, float64, []int) {
	predictions := make([]int, len(Y))
	corrects := 0
	for i := range Y {
		predictions[i] = plainUtils.ArgMax(scores[i])
		if predictions[i] == Y[i] {
			corrects++
		}
	}
	return corrects, float64(corrects) / float64(len(Y)), predictions
}

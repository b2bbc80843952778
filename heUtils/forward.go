package heUtils

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"gonum.org/v1/gonum/mat"

	"github.com/oblivml/mpcserve/model"
)

//Dense computes x @ W + b on an encrypted sample. For each output
//neuron the input is multiplied by the matching weight column, reduced
//into slot 0 with a rotate-and-add tree, masked and rotated into its
//output slot. Costs two plaintext multiplications.
func (b *Box) Dense(ct *rlwe.Ciphertext, W *mat.Dense, bias []float64) (*rlwe.Ciphertext, error) {
	rows, cols := W.Dims()
	if cols != len(bias) {
		return nil, fmt.Errorf("heUtils: weight has %d columns, bias has %d entries", cols, len(bias))
	}
	pad := nextPow2(rows)

	e0 := make([]float64, 1)
	e0[0] = 1

	var acc *rlwe.Ciphertext
	for j := 0; j < cols; j++ {
		col := make([]float64, rows)
		for i := 0; i < rows; i++ {
			col[i] = W.At(i, j)
		}
		prod, err := b.mulPlainRescale(ct, col)
		if err != nil {
			return nil, fmt.Errorf("heUtils: weighting column %d: %w", j, err)
		}
		for shift := 1; shift < pad; shift <<= 1 {
			rot, err := b.Evaluator.RotateNew(prod, shift)
			if err != nil {
				return nil, err
			}
			if err := b.Evaluator.Add(prod, rot, prod); err != nil {
				return nil, err
			}
		}
		//slot 0 now holds the dot product; clear the rest
		masked, err := b.mulPlainRescale(prod, e0)
		if err != nil {
			return nil, err
		}
		if j > 0 {
			if masked, err = b.Evaluator.RotateNew(masked, -j); err != nil {
				return nil, err
			}
		}
		if acc == nil {
			acc = masked
		} else if err := b.Evaluator.Add(acc, masked, acc); err != nil {
			return nil, err
		}
	}
	if err := b.addPlain(acc, bias); err != nil {
		return nil, err
	}
	return acc, nil
}

//Square is the x^2 activation, the standard choice under CKKS.
func (b *Box) Square(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	out, err := b.Evaluator.MulRelinNew(ct, ct)
	if err != nil {
		return nil, err
	}
	if err := b.Evaluator.Rescale(out, out); err != nil {
		return nil, err
	}
	return out, nil
}

//EvalNetwork runs one encrypted sample through the network. Only
//identity and square activations are supported under encryption;
//networks meant for this path are built with square hidden layers.
func (b *Box) EvalNetwork(n *model.Network, ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	for i, l := range n.Layers {
		bias := make([]float64, l.Weight.Cols)
		copy(bias, l.Bias.B)

		var err error
		if ct, err = b.Dense(ct, l.BuildWeight(), bias); err != nil {
			return nil, fmt.Errorf("heUtils: layer %d: %w", i, err)
		}
		switch l.Activation.Kind {
		case "", "identity":
		case "square":
			if ct, err = b.Square(ct); err != nil {
				return nil, fmt.Errorf("heUtils: layer %d activation: %w", i, err)
			}
		default:
			return nil, fmt.Errorf("heUtils: activation %q not supported under encryption", l.Activation.Kind)
		}
	}
	return ct, nil
}

//Predict encrypts a sample, evaluates the network and decrypts the
//scores. Exercised by the single-server HE serving mode.
func (b *Box) Predict(n *model.Network, x []float64) ([]float64, error) {
	if len(x) != n.InputDim() {
		return nil, fmt.Errorf("heUtils: sample has %d features, model expects %d", len(x), n.InputDim())
	}
	ct, err := b.EncryptVec(x)
	if err != nil {
		return nil, err
	}
	if ct, err = b.EvalNetwork(n, ct); err != nil {
		return nil, err
	}
	return b.DecryptVec(ct, n.OutputDim())
}

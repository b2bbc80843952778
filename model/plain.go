package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/oblivml/mpcserve/plainUtils"
)

//EvalPlain runs the float64 forward pass with the same polynomial
//activations the shared evaluation uses. This is the accuracy reference
//the secure path is compared against.
func (n *Network) EvalPlain(X *mat.Dense) (*mat.Dense, error) {
	if plainUtils.NumCols(X) != n.InputDim() {
		return nil, fmt.Errorf("model: input width %d, expected %d", plainUtils.NumCols(X), n.InputDim())
	}
	batch := plainUtils.NumRows(X)
	cur := X
	for i := range n.Layers {
		w, b := n.Layers[i].Build(batch)
		var z mat.Dense
		z.Mul(cur, w)
		z.Add(&z, b)
		act := n.Layers[i].Activation
		cur = plainUtils.ApplyFunc(&z, act.Eval)
	}
	return cur, nil
}

//EvalPlainExact is EvalPlain with the exact non-linearities instead of
//their polynomial approximations.
func (n *Network) EvalPlainExact(X *mat.Dense) (*mat.Dense, error) {
	if plainUtils.NumCols(X) != n.InputDim() {
		return nil, fmt.Errorf("model: input width %d, expected %d", plainUtils.NumCols(X), n.InputDim())
	}
	batch := plainUtils.NumRows(X)
	cur := X
	for i := range n.Layers {
		w, b := n.Layers[i].Build(batch)
		var z mat.Dense
		z.Mul(cur, w)
		z.Add(&z, b)
		act := n.Layers[i].Activation
		cur = plainUtils.ApplyFunc(&z, act.Exact)
	}
	return cur, nil
}

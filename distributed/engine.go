package distributed

import (
	"fmt"

	"github.com/oblivml/mpcserve/fixed"
	"github.com/oblivml/mpcserve/mpc"
)

//wireExchanger adapts the worker's open exchange to mpc.Exchanger for
//activation rounds. Step 0 of every layer is the kernel product, so
//activation rounds start at base 1.
type wireExchanger struct {
	w     *Worker
	reqID string
	layer int
	base  int
}

func (x *wireExchanger) Exchange(step int, e, f *fixed.Tensor) (*fixed.Tensor, *fixed.Tensor, error) {
	return x.w.exchangeOpen(x.reqID, x.layer, x.base+step, e, f)
}

func isIdentity(coeffs []float64) bool {
	return len(coeffs) == 0 || (len(coeffs) == 2 && coeffs[0] == 0 && coeffs[1] == 1)
}

//evaluate runs the shared forward pass for one request. Triples are
//one-shot: the bundle for seq is consumed here, which is what bounds
//the number of served requests cluster-wide.
func (w *Worker) evaluate(reqID string, seq int, x *fixed.Tensor) (*fixed.Tensor, error) {
	w.mu.Lock()
	layers := w.layers
	party := w.party
	frac := w.frac
	batch := w.batch
	bundle, ok := w.bundles[seq]
	if ok {
		delete(w.bundles, seq)
	}
	w.mu.Unlock()

	if len(layers) == 0 {
		return nil, fmt.Errorf("no model shares loaded")
	}
	if !ok {
		return nil, fmt.Errorf("no triples provisioned for request %d", seq)
	}
	if x.Rows != batch || x.Cols != layers[0].W.Rows {
		return nil, fmt.Errorf("input shape %dx%d, expected %dx%d", x.Rows, x.Cols, batch, layers[0].W.Rows)
	}
	if len(bundle.Layers) != len(layers) {
		return nil, fmt.Errorf("triple bundle has %d layers, model has %d", len(bundle.Layers), len(layers))
	}

	cur := x
	for i := range layers {
		l := layers[i]
		tr := bundle.Layers[i].MatMul

		//Z = X @ W + B, X and W both shared
		e, f := mpc.Mask(cur, l.W, tr)
		E, F, err := w.exchangeOpen(reqID, i, 0, e, f)
		if err != nil {
			return nil, err
		}
		z := mpc.Truncate(party, mpc.MatMulCombine(party, E, F, tr), frac)
		z = fixed.Add(z, l.B)

		if !isIdentity(l.Coeffs) {
			ex := &wireExchanger{w: w, reqID: reqID, layer: i, base: 1}
			z, err = mpc.EvalPoly(party, z, l.Coeffs, frac, bundle.Layers[i].Act, ex)
			if err != nil {
				return nil, fmt.Errorf("layer %d activation: %w", i, err)
			}
		}
		cur = z
	}
	return cur, nil
}

package mpc

import (
	"fmt"

	"github.com/oblivml/mpcserve/fixed"
)

//Exchanger carries one round of masked-share exchange with the peer
//party. Step disambiguates consecutive rounds inside the same layer.
type Exchanger interface {
	Exchange(step int, e, f *fixed.Tensor) (E, F *fixed.Tensor, err error)
}

//ConstTensor builds the public tensor filled with the encoding of c.
func ConstTensor(rows, cols int, c float64, frac uint) *fixed.Tensor {
	t := fixed.NewTensor(rows, cols)
	v := fixed.Encode(c, frac)
	for i := range t.Data {
		t.Data[i] = v
	}
	return t
}

//EvalPoly evaluates a public polynomial c0 + c1*x + c2*x^2 + c3*x^3 on
//a shared tensor. Powers above one consume one elementwise triple each.
//Coefficients are public, so scaling is local; each fixed-point product
//is followed by a truncation.
func EvalPoly(party Party, x *fixed.Tensor, coeffs []float64, frac uint, triples []*TripleShare, ex Exchanger) (*fixed.Tensor, error) {
	if len(coeffs) == 0 || len(coeffs) > 4 {
		return nil, fmt.Errorf("mpc: unsupported polynomial degree %d", len(coeffs)-1)
	}

	powers := []*fixed.Tensor{x}
	step := 0
	for p := 2; p < len(coeffs); p++ {
		if len(triples) < p-1 {
			return nil, fmt.Errorf("mpc: missing triple for power %d", p)
		}
		tr := triples[p-2]
		e, f := Mask(powers[p-2], x, tr)
		E, F, err := ex.Exchange(step, e, f)
		if err != nil {
			return nil, err
		}
		step++
		prod := Truncate(party, ElemCombine(party, E, F, tr), frac)
		powers = append(powers, prod)
	}

	z := fixed.NewTensor(x.Rows, x.Cols)
	for p := 1; p < len(coeffs); p++ {
		if coeffs[p] == 0 {
			continue
		}
		term := Truncate(party, MulPublic(powers[p-1], fixed.Encode(coeffs[p], frac)), frac)
		z = fixed.Add(z, term)
	}
	if coeffs[0] != 0 {
		z = AddPlain(party, z, ConstTensor(x.Rows, x.Cols, coeffs[0], frac))
	}
	return z, nil
}

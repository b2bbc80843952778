package mpc

import "github.com/oblivml/mpcserve/fixed"

//Beaver multiplication is split into three local steps around a single
//round of communication:
//
//	e, f := Mask(x, y, triple)        //local
//	E, F := open(e, f)                //exchange with the peer
//	z := MatMulCombine(party, E, F, triple)
//
//The opened E = X-A and F = Y-B are uniformly random, so routing them
//over the wire leaks nothing.

//Mask computes this party's share of X-A and Y-B.
func Mask(x, y *fixed.Tensor, tr *TripleShare) (e, f *fixed.Tensor) {
	return fixed.Sub(x, tr.A), fixed.Sub(y, tr.B)
}

//Open aggregates the two masked shares after the exchange.
func Open(mine, theirs *fixed.Tensor) *fixed.Tensor {
	return fixed.Add(mine, theirs)
}

//MatMulCombine computes this party's share of Z = X@Y from the opened
//masks and the triple share. Only Alice adds the public E@F term.
func MatMulCombine(party Party, E, F *fixed.Tensor, tr *TripleShare) *fixed.Tensor {
	z := fixed.Add(tr.C, fixed.MatMul(E, tr.B))
	z = fixed.Add(z, fixed.MatMul(tr.A, F))
	if party == Alice {
		z = fixed.Add(z, fixed.MatMul(E, F))
	}
	return z
}

//ElemCombine is the elementwise analogue of MatMulCombine.
func ElemCombine(party Party, E, F *fixed.Tensor, tr *TripleShare) *fixed.Tensor {
	z := fixed.Add(tr.C, fixed.MulElem(E, tr.B))
	z = fixed.Add(z, fixed.MulElem(tr.A, F))
	if party == Alice {
		z = fixed.Add(z, fixed.MulElem(E, F))
	}
	return z
}

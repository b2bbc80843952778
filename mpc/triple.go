package mpc

import "github.com/oblivml/mpcserve/fixed"

//TripleShare is one party's share of a Beaver triple (A, B, C) with
//C = A@B (matrix triples) or C = A*B (elementwise triples).
type TripleShare struct {
	A *fixed.Tensor `json:"a"`
	B *fixed.Tensor `json:"b"`
	C *fixed.Tensor `json:"c"`
}

//DealMatMulTriple samples a fresh matrix triple for an (m x k) @ (k x n)
//product and splits it between the two compute parties.
func DealMatMulTriple(m, k, n int) (*TripleShare, *TripleShare) {
	a := RandTensor(m, k)
	b := RandTensor(k, n)
	c := fixed.MatMul(a, b)
	a0, a1 := Split(a)
	b0, b1 := Split(b)
	c0, c1 := Split(c)
	return &TripleShare{A: a0, B: b0, C: c0}, &TripleShare{A: a1, B: b1, C: c1}
}

//DealElemTriple samples a fresh elementwise triple of shape (m x n).
func DealElemTriple(m, n int) (*TripleShare, *TripleShare) {
	a := RandTensor(m, n)
	b := RandTensor(m, n)
	c := fixed.MulElem(a, b)
	a0, a1 := Split(a)
	b0, b1 := Split(b)
	c0, c1 := Split(c)
	return &TripleShare{A: a0, B: b0, C: c0}, &TripleShare{A: a1, B: b1, C: c1}
}

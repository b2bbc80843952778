package fixed

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	eps := 1.0 / float64(uint64(1)<<DefaultFracBits)
	for _, x := range []float64{0, 1, -1, 0.5, -0.5, 3.14159, -123.456, 1e-4} {
		got := Decode(Encode(x, DefaultFracBits), DefaultFracBits)
		require.InDelta(t, x, got, eps, "x=%f", x)
	}
}

func TestTruncAfterProduct(t *testing.T) {
	frac := DefaultFracBits
	a, b := 3.5, -2.25
	prod := Encode(a, frac) * Encode(b, frac) //scale 2^2f
	got := Decode(Trunc(prod, frac), frac)
	require.InDelta(t, a*b, got, 2.0/float64(uint64(1)<<frac))
}

func TestMatMulMatchesFloat(t *testing.T) {
	frac := DefaultFracBits
	A := mat.NewDense(2, 3, []float64{1, -2, 0.5, 0.25, 3, -1})
	B := mat.NewDense(3, 2, []float64{2, 0, -1, 1.5, 4, -0.5})

	fa := FromDense(A, frac)
	fb := FromDense(B, frac)
	fz := TruncTensor(MatMul(fa, fb), frac)

	var want mat.Dense
	want.Mul(A, B)

	got := fz.ToDense(frac)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			require.InDelta(t, want.At(i, j), got.At(i, j), 1e-3)
		}
	}
}

func TestNegAndSub(t *testing.T) {
	frac := DefaultFracBits
	a := FromVec([]float64{1, -2, 3}, frac)
	z := Add(a, Neg(a))
	for _, v := range z.Data {
		require.Zero(t, v)
	}
	s := Sub(a, a)
	for _, v := range s.Data {
		require.Zero(t, v)
	}
}

func TestTruncNegativeFloors(t *testing.T) {
	frac := uint(4)
	//Encode(-1.0625) = -17; arithmetic shift by frac floors to -2
	v := Encode(-1.0625, frac)
	require.Equal(t, int64(math.Floor(-1.0625)), int64(Trunc(v, frac)))
}

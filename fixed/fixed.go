//Fixed-point encoding of reals into the ring Z_2^64.
//Values are stored in two's complement with F fractional bits, so the
//ring wrap-around gives signed arithmetic for free as long as
//intermediate magnitudes stay well below 2^(63-F).
package fixed

import "math"

//Default number of fractional bits. Enough precision for inference on
//inputs normalized to [0,1] while leaving headroom for a product of two
//encoded values before truncation.
const DefaultFracBits uint = 16

//Encode maps a float to its fixed-point representative in Z_2^64.
func Encode(x float64, frac uint) uint64 {
	return uint64(int64(math.Round(x * float64(uint64(1)<<frac))))
}

//Decode maps a ring element back to a float, interpreting the element
//in two's complement.
func Decode(v uint64, frac uint) float64 {
	return float64(int64(v)) / float64(uint64(1)<<frac)
}

//EncodeSlice encodes a vector of floats.
func EncodeSlice(xs []float64, frac uint) []uint64 {
	vs := make([]uint64, len(xs))
	for i, x := range xs {
		vs[i] = Encode(x, frac)
	}
	return vs
}

//DecodeSlice decodes a vector of ring elements.
func DecodeSlice(vs []uint64, frac uint) []float64 {
	xs := make([]float64, len(vs))
	for i, v := range vs {
		xs[i] = Decode(v, frac)
	}
	return xs
}

//Trunc divides an encoded value by 2^frac with arithmetic shift,
//bringing the product of two encoded values back to single scale.
func Trunc(v uint64, frac uint) uint64 {
	return uint64(int64(v) >> frac)
}

//Two-party additive secret sharing over Z_2^64, with Beaver triples
//dealt by a third, non-colluding crypto provider. This is the standard
//role split for three-server private inference: two compute servers
//hold the shares, the provider only ever deals correlated randomness.
package mpc

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/oblivml/mpcserve/fixed"
)

//Party identifies one of the two compute servers.
type Party int

const (
	Alice Party = 0
	Bob   Party = 1
)

//Provider is the index of the crypto provider in a three-worker cluster.
const Provider = 2

//RandTensor samples a tensor with entries uniform in Z_2^64.
func RandTensor(rows, cols int) *fixed.Tensor {
	t := fixed.NewTensor(rows, cols)
	buf := make([]byte, 8*len(t.Data))
	if _, err := rand.Read(buf); err != nil {
		panic(err) //crypto/rand never fails on supported platforms
	}
	for i := range t.Data {
		t.Data[i] = binary.LittleEndian.Uint64(buf[8*i : 8*i+8])
	}
	return t
}

//Split produces a fresh 2-of-2 additive sharing of x. Either share
//alone is uniformly distributed and reveals nothing.
func Split(x *fixed.Tensor) (*fixed.Tensor, *fixed.Tensor) {
	s0 := RandTensor(x.Rows, x.Cols)
	s1 := fixed.Sub(x, s0)
	return s0, s1
}

//Reconstruct recombines the two shares.
func Reconstruct(s0, s1 *fixed.Tensor) *fixed.Tensor {
	return fixed.Add(s0, s1)
}

//AddPlain adds a public tensor to a sharing. Only Alice adds the
//constant, otherwise it would be counted twice.
func AddPlain(party Party, s, c *fixed.Tensor) *fixed.Tensor {
	if party == Alice {
		return fixed.Add(s, c)
	}
	return s.Copy()
}

//MulPublic multiplies a sharing by a public ring element. Both parties
//scale their share; the result keeps the product scale and must be
//truncated by the caller if c carries fractional bits.
func MulPublic(s *fixed.Tensor, c uint64) *fixed.Tensor {
	return fixed.MulScalar(s, c)
}

//Truncate rescales a sharing after a fixed-point product. This is the
//local two-party truncation: Alice floors her share, Bob negates,
//floors, negates back. Off by at most one unit in the last place except
//with probability ~2^(bits(x)+1-64).
func Truncate(party Party, s *fixed.Tensor, frac uint) *fixed.Tensor {
	z := fixed.NewTensor(s.Rows, s.Cols)
	if party == Alice {
		for i, v := range s.Data {
			z.Data[i] = v >> frac
		}
		return z
	}
	for i, v := range s.Data {
		z.Data[i] = -((-v) >> frac)
	}
	return z
}

//Package heUtils implements the homomorphic-encryption serving mode:
//a single server evaluates the model on CKKS-encrypted inputs, for
//clients that prefer ciphertexts over secret shares. One sample is
//packed per ciphertext, one feature per slot.
package heUtils

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

//Box wraps the classes needed to perform encrypted operations, like a
//crypto-toolbox.
type Box struct {
	Params    ckks.Parameters
	Encoder   *ckks.Encoder
	Encryptor *rlwe.Encryptor
	Decryptor *rlwe.Decryptor
	Evaluator *ckks.Evaluator

	sk *rlwe.SecretKey
}

//NewBox initializes parameters and keys. maxDim is the widest layer
//width of the networks the box will evaluate: rotation keys cover the
//power-of-two shifts of the inner-sum reduction and the output slot
//placements up to that width.
func NewBox(maxDim int) (*Box, error) {
	params, err := ckks.NewParametersFromLiteral(ckks.ParametersLiteral{
		LogN:            13,
		LogQ:            []int{55, 45, 45, 45, 45, 45, 45},
		LogP:            []int{61},
		LogDefaultScale: 45,
	})
	if err != nil {
		return nil, fmt.Errorf("heUtils: creating CKKS parameters: %w", err)
	}
	if maxDim > params.N()/2 {
		return nil, fmt.Errorf("heUtils: dimension %d exceeds %d slots", maxDim, params.N()/2)
	}

	kgen := rlwe.NewKeyGenerator(params)
	sk := kgen.GenSecretKeyNew()
	pk := kgen.GenPublicKeyNew(sk)
	rlk := kgen.GenRelinearizationKeyNew(sk)

	var galEls []uint64
	for shift := 1; shift < nextPow2(maxDim); shift <<= 1 {
		galEls = append(galEls, params.GaloisElement(shift))
	}
	for j := 1; j < maxDim; j++ {
		galEls = append(galEls, params.GaloisElement(-j))
	}
	gks := make([]*rlwe.GaloisKey, 0, len(galEls))
	for _, el := range galEls {
		gks = append(gks, kgen.GenGaloisKeyNew(el, sk))
	}
	evk := rlwe.NewMemEvaluationKeySet(rlk, gks...)

	return &Box{
		Params:    params,
		Encoder:   ckks.NewEncoder(params),
		Encryptor: rlwe.NewEncryptor(params, pk),
		Decryptor: rlwe.NewDecryptor(params, sk),
		Evaluator: ckks.NewEvaluator(params, evk),
		sk:        sk,
	}, nil
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

//EncryptVec packs a flattened sample into the first len(xs) slots.
func (b *Box) EncryptVec(xs []float64) (*rlwe.Ciphertext, error) {
	vec := make([]float64, b.Params.N()/2)
	copy(vec, xs)
	pt := ckks.NewPlaintext(b.Params, b.Params.MaxLevel())
	if err := b.Encoder.Encode(vec, pt); err != nil {
		return nil, fmt.Errorf("heUtils: encoding input: %w", err)
	}
	ct, err := b.Encryptor.EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("heUtils: encrypting input: %w", err)
	}
	return ct, nil
}

//DecryptVec returns the first n slots.
func (b *Box) DecryptVec(ct *rlwe.Ciphertext, n int) ([]float64, error) {
	pt := b.Decryptor.DecryptNew(ct)
	out := make([]float64, b.Params.N()/2)
	if err := b.Encoder.Decode(pt, out); err != nil {
		return nil, fmt.Errorf("heUtils: decoding: %w", err)
	}
	return out[:n], nil
}

//mulPlainRescale multiplies by an encoded vector and rescales.
func (b *Box) mulPlainRescale(ct *rlwe.Ciphertext, vec []float64) (*rlwe.Ciphertext, error) {
	padded := make([]float64, b.Params.N()/2)
	copy(padded, vec)
	pt := ckks.NewPlaintext(b.Params, ct.Level())
	if err := b.Encoder.Encode(padded, pt); err != nil {
		return nil, err
	}
	out, err := b.Evaluator.MulNew(ct, pt)
	if err != nil {
		return nil, err
	}
	if err := b.Evaluator.Rescale(out, out); err != nil {
		return nil, err
	}
	return out, nil
}

//addPlain adds an encoded vector at the ciphertext's own scale.
func (b *Box) addPlain(ct *rlwe.Ciphertext, vec []float64) error {
	padded := make([]float64, b.Params.N()/2)
	copy(padded, vec)
	pt := ckks.NewPlaintext(b.Params, ct.Level())
	pt.Scale = ct.Scale
	if err := b.Encoder.Encode(padded, pt); err != nil {
		return err
	}
	return b.Evaluator.Add(ct, pt, ct)
}

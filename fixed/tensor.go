package fixed

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

//Tensor is a row-major matrix over Z_2^64. All arithmetic wraps mod 2^64.
type Tensor struct {
	Rows int      `json:"rows"`
	Cols int      `json:"cols"`
	Data []uint64 `json:"data"`
}

func NewTensor(rows, cols int) *Tensor {
	return &Tensor{Rows: rows, Cols: cols, Data: make([]uint64, rows*cols)}
}

func (t *Tensor) At(i, j int) uint64 {
	return t.Data[i*t.Cols+j]
}

func (t *Tensor) Set(i, j int, v uint64) {
	t.Data[i*t.Cols+j] = v
}

func (t *Tensor) Copy() *Tensor {
	c := NewTensor(t.Rows, t.Cols)
	copy(c.Data, t.Data)
	return c
}

//SameShape reports whether two tensors have identical dimensions.
func (t *Tensor) SameShape(o *Tensor) bool {
	return t.Rows == o.Rows && t.Cols == o.Cols
}

//FromDense encodes a gonum matrix into a fixed-point tensor.
func FromDense(m *mat.Dense, frac uint) *Tensor {
	r, c := m.Dims()
	t := NewTensor(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			t.Set(i, j, Encode(m.At(i, j), frac))
		}
	}
	return t
}

//ToDense decodes a fixed-point tensor into a gonum matrix.
func (t *Tensor) ToDense(frac uint) *mat.Dense {
	m := mat.NewDense(t.Rows, t.Cols, nil)
	for i := 0; i < t.Rows; i++ {
		for j := 0; j < t.Cols; j++ {
			m.Set(i, j, Decode(t.At(i, j), frac))
		}
	}
	return m
}

//FromVec encodes a single row vector.
func FromVec(xs []float64, frac uint) *Tensor {
	return &Tensor{Rows: 1, Cols: len(xs), Data: EncodeSlice(xs, frac)}
}

func Add(a, b *Tensor) *Tensor {
	mustSameShape(a, b)
	z := NewTensor(a.Rows, a.Cols)
	for i := range a.Data {
		z.Data[i] = a.Data[i] + b.Data[i]
	}
	return z
}

func Sub(a, b *Tensor) *Tensor {
	mustSameShape(a, b)
	z := NewTensor(a.Rows, a.Cols)
	for i := range a.Data {
		z.Data[i] = a.Data[i] - b.Data[i]
	}
	return z
}

func Neg(a *Tensor) *Tensor {
	z := NewTensor(a.Rows, a.Cols)
	for i := range a.Data {
		z.Data[i] = -a.Data[i]
	}
	return z
}

//MulElem is the Hadamard product in the ring. Both operands at scale
//2^frac yield a result at scale 2^2frac; see TruncTensor.
func MulElem(a, b *Tensor) *Tensor {
	mustSameShape(a, b)
	z := NewTensor(a.Rows, a.Cols)
	for i := range a.Data {
		z.Data[i] = a.Data[i] * b.Data[i]
	}
	return z
}

//MulScalar multiplies every entry by a public ring element.
func MulScalar(a *Tensor, c uint64) *Tensor {
	z := NewTensor(a.Rows, a.Cols)
	for i := range a.Data {
		z.Data[i] = a.Data[i] * c
	}
	return z
}

//MatMul is the ring matrix product a @ b.
func MatMul(a, b *Tensor) *Tensor {
	if a.Cols != b.Rows {
		panic(fmt.Sprintf("fixed: matmul shape mismatch %dx%d @ %dx%d", a.Rows, a.Cols, b.Rows, b.Cols))
	}
	z := NewTensor(a.Rows, b.Cols)
	for i := 0; i < a.Rows; i++ {
		for k := 0; k < a.Cols; k++ {
			aik := a.Data[i*a.Cols+k]
			if aik == 0 {
				continue
			}
			for j := 0; j < b.Cols; j++ {
				z.Data[i*b.Cols+j] += aik * b.Data[k*b.Cols+j]
			}
		}
	}
	return z
}

//TruncTensor rescales every entry from 2^2frac back to 2^frac.
func TruncTensor(a *Tensor, frac uint) *Tensor {
	z := NewTensor(a.Rows, a.Cols)
	for i := range a.Data {
		z.Data[i] = Trunc(a.Data[i], frac)
	}
	return z
}

func mustSameShape(a, b *Tensor) {
	if !a.SameShape(b) {
		panic(fmt.Sprintf("fixed: shape mismatch %dx%d vs %dx%d", a.Rows, a.Cols, b.Rows, b.Cols))
	}
}

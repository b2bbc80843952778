package model

import (
	"fmt"
	"math"
)

//Activation is a low-degree polynomial approximation of a non-linearity
//over a bounded interval. Polynomials are the only non-linearity the
//shared-arithmetic evaluation can run, so exact ReLU/sigmoid are
//replaced at load time by their approximations.
type Activation struct {
	Kind   string    `json:"kind"` //"identity", "relu", "sigmoid", "square", "poly"
	Coeffs []float64 `json:"coeffs,omitempty"`
	//Interval the approximation was fitted on, for relu/sigmoid kinds.
	A float64 `json:"a,omitempty"`
	B float64 `json:"b,omitempty"`
}

//Degree of the polynomial, -1 for identity.
func (a *Activation) Degree() int {
	return len(a.poly()) - 1
}

//poly resolves the kind to concrete coefficients c0..cd.
func (a *Activation) poly() []float64 {
	switch a.Kind {
	case "", "identity":
		return []float64{0, 1}
	case "square":
		return []float64{0, 0, 1}
	case "poly":
		return a.Coeffs
	case "relu":
		//quadratic fit of max(0,x) on [-B,B]: 0.25B + 0.5x + 0.25x^2/B
		b := a.B
		if b == 0 {
			b = 1
		}
		return []float64{0.25 * b, 0.5, 0.25 / b}
	case "sigmoid":
		//classic cubic fit on [-5,5]
		return []float64{0.5, 0.197, 0, -0.004}
	}
	return nil
}

//Poly returns the resolved coefficients. Identity maps to [0, 1].
func (a *Activation) Poly() []float64 {
	return a.poly()
}

//Eval evaluates the approximation on a plain value.
func (a *Activation) Eval(x float64) float64 {
	c := a.poly()
	y := 0.0
	for i := len(c) - 1; i >= 0; i-- {
		y = y*x + c[i]
	}
	return y
}

//Exact evaluates the original non-linearity, for accuracy comparisons.
func (a *Activation) Exact(x float64) float64 {
	switch a.Kind {
	case "relu":
		return math.Max(0, x)
	case "sigmoid":
		return 1 / (1 + math.Exp(-x))
	case "square":
		return x * x
	default:
		return a.Eval(x)
	}
}

//MulDepth is the number of shared multiplications needed per sample,
//hence the number of elementwise triples a request consumes here.
func (a *Activation) MulDepth() int {
	d := a.Degree()
	if d < 2 {
		return 0
	}
	return d - 1
}

func (a *Activation) validate() error {
	switch a.Kind {
	case "", "identity", "square", "relu", "sigmoid":
	case "poly":
		if len(a.Coeffs) == 0 || len(a.Coeffs) > 4 {
			return fmt.Errorf("model: poly activation supports degree 1..3, got %d coefficients", len(a.Coeffs))
		}
	default:
		return fmt.Errorf("model: unknown activation %q", a.Kind)
	}
	return nil
}

package heUtils

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/oblivml/mpcserve/model"
	"github.com/oblivml/mpcserve/plainUtils"
)

func TestEncryptDecryptRoundtrip(t *testing.T) {
	box, err := NewBox(4)
	require.NoError(t, err)

	x := []float64{0.5, -1.25, 3.0, 0.0}
	ct, err := box.EncryptVec(x)
	require.NoError(t, err)
	got, err := box.DecryptVec(ct, len(x))
	require.NoError(t, err)
	require.Less(t, plainUtils.MaxAbs(x, got), 1e-6)
}

func TestDenseMatchesGonum(t *testing.T) {
	//5 inputs is deliberately not a power of two
	box, err := NewBox(5)
	require.NoError(t, err)

	W := mat.NewDense(5, 3, []float64{
		0.1, -0.2, 0.3,
		0.4, 0.5, -0.6,
		-0.7, 0.8, 0.9,
		0.2, -0.1, 0.05,
		-0.3, 0.6, -0.4,
	})
	bias := []float64{0.25, -0.5, 1.0}
	x := []float64{1.0, -0.5, 0.25, 2.0, -1.5}

	var want mat.Dense
	want.Mul(mat.NewDense(1, 5, x), W)
	wantFlat := plainUtils.RowFlatten(&want)
	for j := range wantFlat {
		wantFlat[j] += bias[j]
	}

	ct, err := box.EncryptVec(x)
	require.NoError(t, err)
	out, err := box.Dense(ct, W, bias)
	require.NoError(t, err)
	got, err := box.DecryptVec(out, 3)
	require.NoError(t, err)
	require.Less(t, plainUtils.MaxAbs(wantFlat, got), 1e-4)
}

func squareNetwork() *model.Network {
	return &model.Network{Layers: []model.Layer{
		{
			Weight: model.Kernel{Rows: 4, Cols: 6, W: []float64{
				0.12, -0.08, 0.25, 0.31, -0.22, 0.05,
				-0.17, 0.29, 0.04, -0.33, 0.18, 0.21,
				0.09, -0.26, 0.35, 0.02, -0.14, -0.07,
				0.28, 0.11, -0.19, 0.23, 0.06, -0.31,
			}},
			Bias:       model.Bias{B: []float64{0.1, -0.2, 0.05, 0.3, -0.15, 0.0}, Len: 6},
			Activation: model.Activation{Kind: "square"},
		},
		{
			Weight: model.Kernel{Rows: 6, Cols: 3, W: []float64{
				0.2, -0.1, 0.3,
				-0.25, 0.15, 0.05,
				0.1, 0.35, -0.2,
				-0.3, 0.08, 0.12,
				0.22, -0.18, 0.27,
				0.04, 0.3, -0.09,
			}},
			Bias:       model.Bias{B: []float64{0.5, -0.25, 0.1}, Len: 3},
			Activation: model.Activation{Kind: "identity"},
		},
	}}
}

func TestEncryptedInferenceMatchesPlain(t *testing.T) {
	n := squareNetwork()
	box, err := NewBox(6) //widest layer width
	require.NoError(t, err)

	x := []float64{0.6, -0.4, 0.8, -0.2}
	want, err := n.EvalPlain(mat.NewDense(1, 4, x))
	require.NoError(t, err)

	got, err := box.Predict(n, x)
	require.NoError(t, err)
	require.Less(t, plainUtils.MaxAbs(plainUtils.RowFlatten(want), got), 1e-3)
	require.Equal(t, plainUtils.ArgMax(plainUtils.RowFlatten(want)), plainUtils.ArgMax(got))
}

func TestEncryptedInferenceRejectsRelu(t *testing.T) {
	n := squareNetwork()
	n.Layers[0].Activation = model.Activation{Kind: "relu", B: 4}

	box, err := NewBox(6)
	require.NoError(t, err)

	_, err = box.Predict(n, []float64{0.1, 0.2, 0.3, 0.4})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not supported under encryption")
}

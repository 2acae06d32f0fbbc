package activation_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw965/crowdl/blas32/tensor/2d"
	"github.com/sw965/crowdl/nn/activation"
	"gonum.org/v1/gonum/blas/blas32"
)

func TestGet(t *testing.T) {
	for _, name := range []string{"tanh", "sigmoid", "softmax", "relu", "linear", "softplus", "hardtanh"} {
		f, err := activation.Get(name)
		require.NoError(t, err)
		assert.Equal(t, name, f.Name())
	}

	_, err := activation.Get("swish")
	assert.True(t, errors.Is(err, activation.ErrUnknown))
	assert.Contains(t, activation.Names(), "tanh")
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	z, err := tensor2d.NewFromRows([][]float32{
		{1, 2, 3},
		{1000, 1000, 1000},
	})
	require.NoError(t, err)

	y := activation.Softmax.Forward(z)
	for _, s := range tensor2d.Sum1(y).Data {
		assert.InDelta(t, 1.0, s, 1e-5)
	}
	assert.InDelta(t, 1.0/3.0, y.Data[3], 1e-5)
}

// 数値微分との比較
func numericalBackward(f activation.Function, z, dy blas32.General) blas32.General {
	h := float32(1e-3)
	dz := tensor2d.NewZerosLike(z)
	loss := func(z blas32.General) float32 {
		y := f.Forward(z)
		sum := float32(0.0)
		for i := range y.Data {
			sum += y.Data[i] * dy.Data[i]
		}
		return sum
	}
	for i := range z.Data {
		tmp := z.Data[i]
		z.Data[i] = tmp + h
		l1 := loss(z)
		z.Data[i] = tmp - h
		l2 := loss(z)
		z.Data[i] = tmp
		dz.Data[i] = (l1 - l2) / (2 * h)
	}
	return dz
}

func TestBackwardMatchesNumerical(t *testing.T) {
	z, err := tensor2d.NewFromRows([][]float32{
		{0.3, -0.5, 1.2},
		{-1.1, 0.7, 0.05},
	})
	require.NoError(t, err)
	dy, err := tensor2d.NewFromRows([][]float32{
		{0.2, -0.4, 0.9},
		{1.0, 0.5, -0.3},
	})
	require.NoError(t, err)

	for _, name := range []string{"tanh", "sigmoid", "softmax", "linear", "softplus"} {
		f, err := activation.Get(name)
		require.NoError(t, err)
		y := f.Forward(z)
		dz, err := f.Backward(z, y, dy)
		require.NoError(t, err)
		expected := numericalBackward(f, tensor2d.Clone(z), dy)
		for i := range dz.Data {
			assert.InDelta(t, expected.Data[i], dz.Data[i], 2e-2, name)
		}
	}
}

func TestBackwardShapeMismatch(t *testing.T) {
	z := tensor2d.NewZeros(2, 2)
	_, err := activation.Tanh.Backward(z, z, tensor2d.NewZeros(1, 2))
	assert.Error(t, err)
}

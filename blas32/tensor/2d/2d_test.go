package tensor2d_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw965/crowdl/blas32/tensor/2d"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

func TestDot(t *testing.T) {
	a := blas32.General{Rows: 2, Cols: 3, Stride: 3, Data: []float32{1, 2, 3, 4, 5, 6}}
	b := blas32.General{Rows: 3, Cols: 1, Stride: 1, Data: []float32{1, 0, -1}}

	y, err := tensor2d.Dot(blas.NoTrans, blas.NoTrans, a, b)
	require.NoError(t, err)
	assert.Equal(t, []float32{-2, -2}, y.Data)

	yt, err := tensor2d.Dot(blas.Trans, blas.NoTrans, a, a)
	require.NoError(t, err)
	assert.Equal(t, 3, yt.Rows)
	assert.Equal(t, 3, yt.Cols)
	assert.Equal(t, float32(17), yt.Data[0])

	_, err = tensor2d.Dot(blas.NoTrans, blas.NoTrans, a, a)
	assert.True(t, errors.Is(err, tensor2d.ErrShape))
}

func TestAddRowVectorAndSums(t *testing.T) {
	gen := tensor2d.NewZeros(2, 3)
	err := tensor2d.AddRowVector(gen, blas32.Vector{N: 3, Inc: 1, Data: []float32{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 1, 2, 3}, gen.Data)
	assert.Equal(t, []float32{2, 4, 6}, tensor2d.Sum0(gen).Data)
	assert.Equal(t, []float32{6, 6}, tensor2d.Sum1(gen).Data)
	assert.Equal(t, []float32{1, 2, 3}, tensor2d.Mean0(gen).Data)

	err = tensor2d.AddRowVector(gen, blas32.Vector{N: 2, Inc: 1, Data: []float32{1, 2}})
	assert.True(t, errors.Is(err, tensor2d.ErrShape))
}

func TestRowsAndArgMax(t *testing.T) {
	gen, err := tensor2d.NewFromRows([][]float32{
		{0.1, 0.9, 0.0},
		{0.8, 0.1, 0.1},
		{0.2, 0.2, 0.6},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 2}, tensor2d.ArgMax1(gen))

	sub, err := tensor2d.Rows(gen, []int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, []float32{0.2, 0.2, 0.6, 0.1, 0.9, 0.0}, sub.Data)

	_, err = tensor2d.Rows(gen, []int{3})
	assert.Error(t, err)

	_, err = tensor2d.NewFromRows([][]float32{{1, 2}, {3}})
	assert.True(t, errors.Is(err, tensor2d.ErrShape))
}

func TestAxpyMulElem(t *testing.T) {
	x := blas32.General{Rows: 2, Cols: 2, Stride: 2, Data: []float32{1, 1, 1, 1}}
	y := blas32.General{Rows: 2, Cols: 2, Stride: 2, Data: []float32{3, 3, 3, 3}}
	require.NoError(t, tensor2d.Axpy(2, x, y))
	assert.Equal(t, []float32{5, 5, 5, 5}, y.Data)

	m, err := tensor2d.MulElem(x, y)
	require.NoError(t, err)
	assert.True(t, tensor2d.Equal(m, y))

	assert.Error(t, tensor2d.Axpy(1, x, tensor2d.NewZeros(1, 2)))
}

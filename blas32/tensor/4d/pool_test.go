package tensor4d_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw965/crowdl/blas32/tensor/4d"
)

func newImage() tensor4d.General {
	img := tensor4d.NewZeros(1, 1, 4, 4)
	for i := range img.Data {
		img.Data[i] = float32(i)
	}
	return img
}

func TestClampWindow(t *testing.T) {
	r, c := tensor4d.ClampWindow(tensor4d.Shape{Channels: 5, Rows: 1, Cols: 1}, 2, 2)
	assert.Equal(t, 1, r)
	assert.Equal(t, 1, c)

	r, c = tensor4d.ClampWindow(tensor4d.Shape{Channels: 1, Rows: 4, Cols: 3}, 2, 2)
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
}

func TestPoolShapeDropsRemainder(t *testing.T) {
	s, err := tensor4d.PoolShape(tensor4d.Shape{Channels: 3, Rows: 5, Cols: 4}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, tensor4d.Shape{Channels: 3, Rows: 2, Cols: 2}, s)
}

func TestPoolRejectsEmptyWindow(t *testing.T) {
	s := tensor4d.Shape{Channels: 1, Rows: 4, Cols: 4}
	_, err := tensor4d.PoolShape(s, 0, 0)
	assert.ErrorIs(t, err, tensor4d.ErrShape)
	_, err = tensor4d.PoolShape(s, 2, -1)
	assert.ErrorIs(t, err, tensor4d.ErrShape)

	img := newImage()
	_, _, err = img.MaxPool(0, 2)
	assert.ErrorIs(t, err, tensor4d.ErrShape)
	_, err = img.SumPool(2, 0)
	assert.ErrorIs(t, err, tensor4d.ErrShape)
}

func TestMaxPoolAndUnpool(t *testing.T) {
	img := newImage()
	out, argmax, err := img.MaxPool(2, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 7, 13, 15}, out.Data)
	assert.Equal(t, []int{5, 7, 13, 15}, argmax)

	dy := tensor4d.NewZerosLike(out)
	copy(dy.Data, []float32{1, 2, 3, 4})
	dx := tensor4d.MaxUnpool(dy, argmax, img.Shape())
	expected := make([]float32, 16)
	expected[5], expected[7], expected[13], expected[15] = 1, 2, 3, 4
	assert.Equal(t, expected, dx.Data)
}

func TestSumPoolAndUnpool(t *testing.T) {
	img := newImage()
	out, err := img.SumPool(2, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0 + 1 + 4 + 5, 2 + 3 + 6 + 7, 8 + 9 + 12 + 13, 10 + 11 + 14 + 15}, out.Data)

	dy := tensor4d.NewZerosLike(out)
	copy(dy.Data, []float32{1, 2, 3, 4})
	dx := tensor4d.SumUnpool(dy, img.Shape(), 2, 2)
	assert.Equal(t, []float32{1, 1, 2, 2, 1, 1, 2, 2, 3, 3, 4, 4, 3, 3, 4, 4}, dx.Data)
}

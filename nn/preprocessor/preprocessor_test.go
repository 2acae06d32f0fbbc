package preprocessor_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw965/crowdl/blas32/tensor/2d"
	"github.com/sw965/crowdl/blas32/tensor/4d"
	"github.com/sw965/crowdl/nn/preprocessor"
)

func TestConvolutionInputPreProcessor(t *testing.T) {
	x := tensor4d.FromFlat(tensor2d.NewZeros(5, 4))
	p := preprocessor.NewConvolutionInputPreProcessor(2, 2)

	y, err := p.PreProcess(x)
	require.NoError(t, err)
	assert.Equal(t, 5, y.Batches)
	assert.Equal(t, tensor4d.Shape{Channels: 1, Rows: 2, Cols: 2}, y.Shape())

	back, err := p.Backprop(y, x.Shape())
	require.NoError(t, err)
	assert.Equal(t, x.Shape(), back.Shape())

	_, err = preprocessor.NewConvolutionInputPreProcessor(3, 3).PreProcess(x)
	assert.True(t, errors.Is(err, tensor4d.ErrShape))
}

func TestConvolutionPostProcessor(t *testing.T) {
	x := tensor4d.NewZeros(3, 5, 2, 2)
	p := preprocessor.NewConvolutionPostProcessor()
	y, err := p.PreProcess(x)
	require.NoError(t, err)
	assert.Equal(t, tensor4d.FlatShape(20), y.Shape())

	shape, err := p.OutputShape(x.Shape())
	require.NoError(t, err)
	assert.Equal(t, 20, shape.Cols)
}

func TestComposableAndSpecRoundTrip(t *testing.T) {
	p := preprocessor.NewComposableInputPreProcessor(
		preprocessor.NewConvolutionInputPreProcessor(2, 2),
		preprocessor.NewConvolutionPostProcessor(),
	)
	shape, err := p.OutputShape(tensor4d.FlatShape(8))
	require.NoError(t, err)
	assert.Equal(t, tensor4d.FlatShape(8), shape)

	restored, err := preprocessor.FromSpec(p.Spec())
	require.NoError(t, err)
	assert.Equal(t, p.Spec(), restored.Spec())

	_, err = preprocessor.FromSpec(preprocessor.Spec{Kind: "binomial_sampling"})
	assert.True(t, errors.Is(err, preprocessor.ErrUnknownKind))
}

package factory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw965/crowdl/blas32/tensor/4d"
	"github.com/sw965/crowdl/nn/conf"
	"github.com/sw965/crowdl/nn/layers"
	"github.com/sw965/crowdl/nn/layers/factory"
	"github.com/sw965/crowdl/solver"
)

func TestGetFactory(t *testing.T) {
	assert.Equal(t, conf.LayerFactory{Kind: conf.KindRBM, Pretrain: true}, factory.GetFactory(conf.KindRBM))
	assert.Equal(t, conf.LayerFactory{Kind: conf.KindAutoEncoder, Pretrain: true}, factory.GetFactory(conf.KindAutoEncoder))
	assert.Equal(t, conf.LayerFactory{Kind: conf.KindConvolution}, factory.GetFactory(conf.KindConvolution))
	assert.Equal(t, conf.LayerFactory{Kind: conf.KindRBM}, factory.DefaultLayerFactory(conf.KindRBM))
	assert.Equal(t, conf.LayerFactory{Kind: conf.KindRBM, Pretrain: true}, factory.PretrainLayerFactory(conf.KindRBM))
}

func TestCreateEveryKind(t *testing.T) {
	tests := []struct {
		kind conf.LayerKind
		want interface{}
	}{
		{conf.KindRBM, &layers.RBM{}},
		{conf.KindAutoEncoder, &layers.AutoEncoder{}},
		{conf.KindOutput, &layers.Output{}},
		{conf.KindConvolution, &layers.Convolution{}},
		{conf.KindSubsampling, &layers.Subsampling{}},
		{conf.KindConvolutionDownSample, &layers.ConvolutionDownSample{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			c, err := conf.NewBuilder().NIn(4).NOut(3).LayerFactory(factory.DefaultLayerFactory(tt.kind)).Build()
			require.NoError(t, err)
			l, err := factory.Create(c)
			require.NoError(t, err)
			assert.IsType(t, tt.want, l)
			assert.Equal(t, tt.kind, l.Kind())
		})
	}
}

func TestCreateCopiesConfiguration(t *testing.T) {
	c, err := conf.NewBuilder().NIn(9).NOut(3).LayerFactory(factory.DefaultLayerFactory(conf.KindOutput)).Build()
	require.NoError(t, err)
	l, err := factory.Create(c)
	require.NoError(t, err)
	_, err = l.Init(tensorShape(4))
	require.NoError(t, err)
	assert.Equal(t, 4, l.Conf().NIn)
	assert.Equal(t, 9, c.NIn)
}

func TestCreateRejectsPretrainOnNonPretrainable(t *testing.T) {
	c, err := conf.NewBuilder().NIn(4).NOut(3).Build()
	require.NoError(t, err)
	c.LayerFactory = factory.PretrainLayerFactory(conf.KindOutput)
	_, err = factory.Create(c)
	assert.ErrorIs(t, err, conf.ErrInvalidConfiguration)
}

func TestCreateAttachesListeners(t *testing.T) {
	c, err := conf.NewBuilder().
		NIn(784).
		NOut(600).
		ApplySparsity(true).
		Sparsity(0.1).
		Iterations(2).
		OptimizationAlgo(conf.IterationGradientDescent).
		LayerFactory(factory.PretrainLayerFactory(conf.KindRBM)).
		Build()
	require.NoError(t, err)

	calls := 0
	l, err := factory.Create(c, solver.ListenerFunc(func(int, float64) { calls++ }), solver.NewScoreIterationListener(2))
	require.NoError(t, err)
	rbm, ok := l.(*layers.RBM)
	require.True(t, ok)

	_, err = rbm.Init(tensorShape(6))
	require.NoError(t, err)
	assert.Equal(t, 600, rbm.Conf().NOut)
	assert.Equal(t, 6, rbm.Conf().NIn)

	x := tensor4d.NewZeros(3, 1, 1, 6)
	_, err = rbm.Pretrain(x)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func tensorShape(n int) tensor4d.Shape {
	return tensor4d.FlatShape(n)
}

package multilayer_test

import (
	"bufio"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw965/crowdl/blas32/tensor/4d"
	"github.com/sw965/crowdl/dataset"
	"github.com/sw965/crowdl/eval"
	cmath "github.com/sw965/crowdl/math"
	crand "github.com/sw965/crowdl/math/rand"
	"github.com/sw965/crowdl/nn/conf"
	"github.com/sw965/crowdl/nn/layers"
	"github.com/sw965/crowdl/nn/layers/factory"
	"github.com/sw965/crowdl/nn/lossfunc"
	"github.com/sw965/crowdl/nn/multilayer"
	"github.com/sw965/crowdl/nn/preprocessor"
	"github.com/sw965/crowdl/solver"
	"gonum.org/v1/gonum/blas/blas32"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newNetwork(t *testing.T, c *conf.MultiLayerConfiguration, opts ...multilayer.Option) *multilayer.MultiLayerNetwork {
	t.Helper()
	opts = append([]multilayer.Option{multilayer.WithLogger(quiet())}, opts...)
	n, err := multilayer.New(c, opts...)
	require.NoError(t, err)
	return n
}

func iris(t *testing.T) (*dataset.DataSet, *dataset.DataSet) {
	t.Helper()
	it, err := dataset.NewIrisIterator(150, 150)
	require.NoError(t, err)
	next, err := it.Next()
	require.NoError(t, err)
	next.NormalizeZeroMeanZeroUnitVariance()
	train, test, err := next.SplitTestAndTrain(110)
	require.NoError(t, err)
	return train, test
}

func evaluate(t *testing.T, n *multilayer.MultiLayerNetwork, x tensor4d.General, labels blas32.General) *eval.Evaluation {
	t.Helper()
	out, err := n.Output(x)
	require.NoError(t, err)
	require.Equal(t, labels.Rows, out.Rows)
	require.Equal(t, labels.Cols, out.Cols)

	e := eval.New()
	require.NoError(t, e.Eval(labels, out))
	assert.GreaterOrEqual(t, e.Accuracy(), 0.0)
	assert.LessOrEqual(t, e.Accuracy(), 1.0)
	t.Log("Score " + e.Stats())
	return e
}

func writeFace(t *testing.T, path string, shade uint8, rng *rand.Rand) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			noise := rng.IntN(32)
			img.SetGray(x, y, color.Gray{Y: uint8(min(int(shade)+noise, 255))})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

// faces lays out a small LFW-style directory: one directory per person.
func faces(t *testing.T, people, perPerson int) string {
	t.Helper()
	rng := crand.NewMt19937(1)
	dir := t.TempDir()
	for p := 0; p < people; p++ {
		personDir := filepath.Join(dir, "person_"+strconv.Itoa(p))
		require.NoError(t, os.MkdirAll(personDir, 0755))
		for i := 0; i < perPerson; i++ {
			writeFace(t, filepath.Join(personDir, "face_"+strconv.Itoa(i)+".png"), uint8(60*p+20), rng)
		}
	}
	return dir
}

func TestDbnFaces(t *testing.T) {
	layerFactory := factory.GetFactory(conf.KindRBM)
	iter, err := dataset.NewLFWIterator(28, 28, dataset.WithDir(faces(t, 3, 4)), dataset.WithBatch(12))
	require.NoError(t, err)

	next, err := iter.Next()
	require.NoError(t, err)
	next.NormalizeZeroMeanZeroUnitVariance()

	c, err := conf.NewBuilder().
		OptimizationAlgo(conf.ConjugateGradient).
		ConstrainGradientToUnitNorm(true).
		WeightInit(conf.WeightInitDistribution).Dist(conf.NewNormalDistribution(1, 1e-5)).
		Iterations(3).LearningRate(1e-3).
		NIn(next.NumInputs()).NOut(next.NumOutcomes()).
		VisibleUnit(conf.VisibleGaussian).HiddenUnit(conf.HiddenRectified).
		LayerFactory(layerFactory).
		List(4).HiddenLayerSizes(24, 12, 6).
		OverrideAll(conf.ConfOverrideFunc(func(i int, b *conf.Builder) {
			if i == 3 {
				b.LayerFactory(factory.DefaultLayerFactory(conf.KindOutput))
				b.ActivationFunction("softmax")
				b.LossFunction(lossfunc.MCXENT)
			}
		})).
		Build()
	require.NoError(t, err)

	network := newNetwork(t, c)
	require.NoError(t, network.Fit(next))

	out, err := network.Output(tensor4d.FromFlat(next.Features))
	require.NoError(t, err)
	assert.Equal(t, 12, out.Rows)
	assert.Equal(t, 3, out.Cols)
}

func TestConvolutionWithSubSampling(t *testing.T) {
	layerFactory := factory.GetFactory(conf.KindConvolutionDownSample)
	batchSize := 110

	c, err := conf.NewBuilder().
		OptimizationAlgo(conf.ConjugateGradient).
		Iterations(20).WeightInit(conf.WeightInitVI).StepFunction(conf.GradientStepFunction).
		ActivationFunction("tanh").FilterSize(5, 1, 2, 2).
		NIn(4).NOut(3).BatchSize(batchSize).
		VisibleUnit(conf.VisibleGaussian).
		HiddenUnit(conf.HiddenRectified).
		LayerFactory(layerFactory).
		List(3).
		InputPreProcessor(0, preprocessor.NewConvolutionInputPreProcessor(2, 2)).
		PreProcessor(1, preprocessor.NewConvolutionPostProcessor()).
		HiddenLayerSizes(1).
		Override(0, conf.ConfOverrideFunc(func(i int, b *conf.Builder) {
			b.LayerFactory(factory.GetFactory(conf.KindConvolution))
			b.ConvolutionType(conf.ConvolutionMax)
			b.FeatureMapSize(2, 2)
		})).
		Override(1, conf.ConfOverrideFunc(func(i int, b *conf.Builder) {
			b.LayerFactory(factory.GetFactory(conf.KindSubsampling))
		})).
		Override(2, conf.ClassifierOverride(2)).
		Build()
	require.NoError(t, err)

	network := newNetwork(t, c)
	network.SetIterationListeners(solver.NewScoreIterationListener(10))
	require.NoError(t, network.Init())

	ls := network.Layers()
	assert.IsType(t, &layers.Convolution{}, ls[0])
	assert.IsType(t, &layers.Subsampling{}, ls[1])
	assert.IsType(t, &layers.Output{}, ls[2])
	assert.Equal(t, tensor4d.Shape{Channels: 5, Rows: 1, Cols: 1}, ls[0].OutputShape())
	assert.Equal(t, 5, ls[2].Conf().NIn)

	train, _ := iris(t)
	x, err := train.FeaturesTensor(1, 2, 2)
	require.NoError(t, err)
	require.NoError(t, network.FitArrays(x, train.Labels))

	evaluate(t, network, x, train.Labels)
}

func TestBackPropConvolution(t *testing.T) {
	layerFactory := factory.GetFactory(conf.KindConvolutionDownSample)
	batchSize := 110

	c, err := conf.NewBuilder().
		OptimizationAlgo(conf.ConjugateGradient).
		Iterations(100).WeightInit(conf.WeightInitVI).StepFunction(conf.GradientStepFunction).
		ActivationFunction("tanh").FilterSize(5, 1, 2, 2).
		NIn(4).NOut(3).BatchSize(batchSize).
		VisibleUnit(conf.VisibleGaussian).
		HiddenUnit(conf.HiddenRectified).
		LayerFactory(layerFactory).
		List(2).Backward(true).
		PreProcessor(0, preprocessor.NewConvolutionPostProcessor()).
		HiddenLayerSizes(4).
		Override(1, conf.ClassifierOverride(1)).
		Build()
	require.NoError(t, err)

	network := newNetwork(t, c)
	train, _ := iris(t)
	x, err := train.FeaturesTensor(1, 2, 2)
	require.NoError(t, err)

	before, err := network.ScoreArrays(x, train.Labels)
	require.NoError(t, err)
	require.NoError(t, network.FitArrays(x, train.Labels))
	after, err := network.ScoreArrays(x, train.Labels)
	require.NoError(t, err)
	assert.Less(t, after, before)

	e := evaluate(t, network, x, train.Labels)
	assert.Greater(t, e.Accuracy(), 0.5)
}

func TestBackProp(t *testing.T) {
	layerFactory := factory.GetFactory(conf.KindAutoEncoder)
	c, err := conf.NewBuilder().
		OptimizationAlgo(conf.ConjugateGradient).LossFunction(lossfunc.RMSE_XENT).
		Iterations(100).WeightInit(conf.WeightInitDistribution).Momentum(0.5).
		ActivationFunction("tanh").
		Dist(conf.NewNormalDistribution(1e-1, 1e-1)).
		NIn(4).NOut(3).VisibleUnit(conf.VisibleGaussian).HiddenUnit(conf.HiddenRectified).
		LayerFactory(layerFactory).
		List(2).Backward(true).Pretrain(false).
		HiddenLayerSizes(3).
		Override(1, conf.ConfOverrideFunc(func(i int, b *conf.Builder) {
			b.ActivationFunction("softmax")
			b.LossFunction(lossfunc.MCXENT)
			b.WeightInit(conf.WeightInitZero)
			b.LayerFactory(factory.GetFactory(conf.KindOutput))
		})).
		Build()
	require.NoError(t, err)

	network := newNetwork(t, c)
	var scores []float64
	network.SetIterationListeners(
		solver.NewScoreIterationListener(1),
		solver.ListenerFunc(func(_ int, score float64) { scores = append(scores, score) }),
	)

	train, test := iris(t)
	network.SetInput(tensor4d.FromFlat(train.Features))
	network.SetLabels(train.Labels)
	require.NoError(t, network.Fit(train))
	assert.NotEmpty(t, scores)

	e := evaluate(t, network, tensor4d.FromFlat(test.Features), test.Labels)
	assert.Greater(t, e.Accuracy(), 1.0/3.0)
}

func TestDbn(t *testing.T) {
	c, err := conf.NewBuilder().
		Iterations(50).LayerFactory(factory.PretrainLayerFactory(conf.KindRBM)).
		WeightInit(conf.WeightInitDistribution).Dist(conf.NewUniformDistribution(0, 1)).
		ActivationFunction("tanh").Momentum(0.9).
		OptimizationAlgo(conf.LBFGS).
		ConstrainGradientToUnitNorm(true).K(1).Regularization(true).L2(2e-4).
		VisibleUnit(conf.VisibleGaussian).HiddenUnit(conf.HiddenRectified).
		LossFunction(lossfunc.RMSE_XENT).
		NIn(4).NOut(3).List(2).
		HiddenLayerSizes(3).
		Override(1, conf.ClassifierOverride(1)).
		Build()
	require.NoError(t, err)

	conf2, err := conf.NewBuilder().
		LayerFactory(factory.GetFactory(conf.KindRBM)).
		NIn(784).NOut(600).ApplySparsity(true).Sparsity(0.1).
		Build()
	require.NoError(t, err)
	l, err := factory.Create(conf2, solver.NewScoreIterationListener(2))
	require.NoError(t, err)
	require.IsType(t, &layers.RBM{}, l)
	_, err = l.Init(tensor4d.FlatShape(784))
	require.NoError(t, err)
	assert.Equal(t, 784*600+600+784, l.NumParams())

	d := newNetwork(t, c)

	it, err := dataset.NewIrisIterator(150, 150)
	require.NoError(t, err)
	next, err := it.Next()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "iris.txt")
	require.NoError(t, next.SaveTxt(path, "\t"))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	lines := 0
	for sc := bufio.NewScanner(f); sc.Scan(); {
		lines++
	}
	assert.Equal(t, 150, lines)

	next.NormalizeZeroMeanZeroUnitVariance()
	train, test, err := next.SplitTestAndTrain(110)
	require.NoError(t, err)

	require.NoError(t, d.Fit(train))
	evaluate(t, d, tensor4d.FromFlat(test.Features), test.Labels)
}

func smallConf(t *testing.T, backward bool) *conf.MultiLayerConfiguration {
	t.Helper()
	c, err := conf.NewBuilder().
		Iterations(10).ActivationFunction("tanh").
		WeightInit(conf.WeightInitVI).
		LayerFactory(factory.DefaultLayerFactory(conf.KindAutoEncoder)).
		NIn(4).NOut(2).
		List(2).Backward(backward).
		HiddenLayerSizes(3).
		Override(1, conf.ClassifierOverride(1)).
		Build()
	require.NoError(t, err)
	return c
}

func TestNotInitialized(t *testing.T) {
	n := newNetwork(t, smallConf(t, false))
	assert.False(t, n.IsInitialized())

	_, err := n.Params()
	assert.ErrorIs(t, err, multilayer.ErrNotInitialized)
	assert.ErrorIs(t, n.SetParams(nil), multilayer.ErrNotInitialized)

	require.NoError(t, n.Init())
	assert.True(t, n.IsInitialized())
	assert.Equal(t, tensor4d.FlatShape(4), n.InputShape())
	assert.Equal(t, 4*3+3+4+3*2+2, n.NumParams())
}

func TestOutputInitializesFromInput(t *testing.T) {
	n := newNetwork(t, smallConf(t, false))
	out, err := n.Output(tensor4d.NewZeros(5, 1, 2, 2))
	require.NoError(t, err)
	assert.True(t, n.IsInitialized())
	assert.Equal(t, 5, out.Rows)
	assert.Equal(t, 2, out.Cols)

	acts, err := n.FeedForward(tensor4d.NewZeros(5, 1, 2, 2))
	require.NoError(t, err)
	assert.Len(t, acts, 3)

	_, err = n.Output(tensor4d.NewZeros(5, 1, 1, 3))
	assert.ErrorIs(t, err, tensor4d.ErrShape)
}

func TestNewRejectsMissingOutputLayer(t *testing.T) {
	c, err := conf.NewBuilder().NIn(4).NOut(2).List(2).HiddenLayerSizes(3).Build()
	require.NoError(t, err)
	_, err = multilayer.New(c)
	assert.ErrorIs(t, err, conf.ErrInvalidConfiguration)
}

func TestInferredNInIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	c, err := conf.NewBuilder().
		ActivationFunction("tanh").FilterSize(5, 1, 2, 2).
		NIn(4).NOut(3).
		LayerFactory(factory.GetFactory(conf.KindConvolutionDownSample)).
		List(2).
		PreProcessor(0, preprocessor.NewConvolutionPostProcessor()).
		HiddenLayerSizes(4).
		Override(1, conf.ClassifierOverride(1)).
		Build()
	require.NoError(t, err)

	n, err := multilayer.New(c, multilayer.WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, n.InitWithShape(tensor4d.Shape{Channels: 1, Rows: 2, Cols: 2}))

	assert.Equal(t, 5, n.Layers()[1].Conf().NIn)
	assert.Equal(t, 4, n.Configuration().Conf(1).NIn)
	assert.Contains(t, buf.String(), "configured nIn does not match the input")
}

func TestParamsRoundTrip(t *testing.T) {
	n := newNetwork(t, smallConf(t, false))
	require.NoError(t, n.Init())

	params, err := n.Params()
	require.NoError(t, err)
	for i := range params {
		params[i] = float32(i) * 0.01
	}
	require.NoError(t, n.SetParams(params))
	got, err := n.Params()
	require.NoError(t, err)
	assert.Equal(t, params, got)

	assert.Error(t, n.SetParams(params[1:]))
}

func TestBackpropGradient(t *testing.T) {
	const eps = 1e-3
	const tol = 1e-2

	n := newNetwork(t, smallConf(t, true))
	require.NoError(t, n.Init())

	rng := crand.NewMt19937(7)
	x := tensor4d.NewZeros(6, 1, 1, 4)
	for i := range x.Data {
		x.Data[i] = float32(rng.Float64()*2.0 - 1.0)
	}
	classes := make([]int, 6)
	for i := range classes {
		classes[i] = i % 2
	}
	labels, err := dataset.OneHot(classes, 2)
	require.NoError(t, err)

	params, err := n.Params()
	require.NoError(t, err)
	for i := range params {
		params[i] = float32(rng.Float64() - 0.5)
	}
	require.NoError(t, n.SetParams(params))

	score, grad, err := n.BackpropGradient(x, labels)
	require.NoError(t, err)
	require.Len(t, grad, n.NumParams())

	want, err := n.ScoreArrays(x, labels)
	require.NoError(t, err)
	assert.InDelta(t, want, score, 1e-5)

	for i := range params {
		p := append([]float32(nil), params...)
		p[i] += eps
		require.NoError(t, n.SetParams(p))
		plus, err := n.ScoreArrays(x, labels)
		require.NoError(t, err)
		p[i] -= 2 * eps
		require.NoError(t, n.SetParams(p))
		minus, err := n.ScoreArrays(x, labels)
		require.NoError(t, err)
		assert.InDelta(t, cmath.CentralDifference(plus, minus, eps), float64(grad[i]), tol, "param %d", i)
	}
}

func TestFitWithoutBackwardTrainsOnlyOutput(t *testing.T) {
	n := newNetwork(t, smallConf(t, false))
	train, _ := iris(t)
	x := tensor4d.FromFlat(train.Features)

	require.NoError(t, n.Init())
	hidden := append([]float32(nil), n.Layers()[0].Params()...)
	before, err := n.ScoreArrays(x, train.Labels)
	require.NoError(t, err)

	require.NoError(t, n.Fit(train))

	assert.Equal(t, hidden, n.Layers()[0].Params())
	after, err := n.ScoreArrays(x, train.Labels)
	require.NoError(t, err)
	assert.Less(t, after, before)
}

func TestFitInputRequiresInput(t *testing.T) {
	n := newNetwork(t, smallConf(t, false))
	assert.Error(t, n.FitInput())
}

func TestFitRejectsMismatchedLabels(t *testing.T) {
	n := newNetwork(t, smallConf(t, false))
	labels, err := dataset.OneHot([]int{0, 1}, 2)
	require.NoError(t, err)
	err = n.FitArrays(tensor4d.NewZeros(3, 1, 1, 4), labels)
	assert.ErrorIs(t, err, tensor4d.ErrShape)
}

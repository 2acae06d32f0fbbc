package layers

import (
	"log/slog"
	"math/rand/v2"

	"github.com/pkg/errors"
	"github.com/sw965/crowdl/blas32/tensor/2d"
	"github.com/sw965/crowdl/blas32/tensor/4d"
	crand "github.com/sw965/crowdl/math/rand"
	"github.com/sw965/crowdl/nn/activation"
	"github.com/sw965/crowdl/nn/conf"
	"github.com/sw965/crowdl/solver"
	"gonum.org/v1/gonum/blas/blas32"
)

var (
	ErrNotInitialized = errors.New("layers: layer not initialized")
	ErrNoForward      = errors.New("layers: backprop without a training forward pass")
)

// Layer works on NCHW batches. Dense layers see every example flattened.
// Backprop uses what the last Activate(x, true) cached and returns
// dL/dx together with the gradient flattened in Params order.
type Layer interface {
	Conf() *conf.NeuralNetConfiguration
	Kind() conf.LayerKind
	Init(in tensor4d.Shape) (tensor4d.Shape, error)
	InputShape() tensor4d.Shape
	OutputShape() tensor4d.Shape
	Activate(x tensor4d.General, training bool) (tensor4d.General, error)
	Backprop(dy tensor4d.General) (tensor4d.General, []float32, error)
	Penalty() float64
	NumParams() int
	Params() []float32
	SetParams(p []float32) error
	ParamTable() ParamTable
	SetIterationListeners(listeners ...solver.IterationListener)
	SetLogger(logger *slog.Logger)
}

// Pretrainable layers learn unsupervised from their own input.
type Pretrainable interface {
	Layer
	Pretrain(x tensor4d.General) (float64, error)
	ReconstructionScore(x tensor4d.General) (float64, error)
}

type base struct {
	conf        *conf.NeuralNetConfiguration
	act         activation.Function
	in          tensor4d.Shape
	out         tensor4d.Shape
	params      ParamTable
	rng         *rand.Rand
	listeners   []solver.IterationListener
	logger      *slog.Logger
	initialized bool
}

func newBase(c *conf.NeuralNetConfiguration) (base, error) {
	act, err := activation.Get(c.ActivationFunction)
	if err != nil {
		return base{}, err
	}
	return base{
		conf:   c,
		act:    act,
		rng:    crand.NewMt19937(c.Seed),
		logger: slog.Default(),
	}, nil
}

func (l *base) Conf() *conf.NeuralNetConfiguration {
	return l.conf
}

func (l *base) InputShape() tensor4d.Shape {
	return l.in
}

func (l *base) OutputShape() tensor4d.Shape {
	return l.out
}

func (l *base) NumParams() int {
	return l.params.NumParams()
}

func (l *base) Params() []float32 {
	return l.params.Flatten()
}

func (l *base) SetParams(p []float32) error {
	if !l.initialized {
		return ErrNotInitialized
	}
	return l.params.Set(p)
}

func (l *base) ParamTable() ParamTable {
	return l.params
}

func (l *base) SetIterationListeners(listeners ...solver.IterationListener) {
	l.listeners = listeners
}

func (l *base) SetLogger(logger *slog.Logger) {
	l.logger = logger
}

func (l *base) solver() *solver.Solver {
	return solver.New(l.conf, l.listeners, l.logger)
}

// Penalty is the L2 term 0.5 * l2 * ||W||^2 added to every score.
func (l *base) Penalty() float64 {
	if !l.conf.UseRegularization || l.conf.L2 == 0 {
		return 0.0
	}
	w, ok := l.params.Get(WeightKey)
	if !ok {
		return 0.0
	}
	var sum float64
	for _, e := range w.Data {
		sum += float64(e) * float64(e)
	}
	return 0.5 * float64(l.conf.L2) * sum
}

// regularize adds the gradient of Penalty to dW.
func (l *base) regularize(dW blas32.General) error {
	if !l.conf.UseRegularization || l.conf.L2 == 0 {
		return nil
	}
	w, _ := l.params.Get(WeightKey)
	return tensor2d.Axpy(l.conf.L2, w, dW)
}

func (l *base) checkInput(x tensor4d.General) error {
	if !l.initialized {
		return ErrNotInitialized
	}
	if x.Shape() != l.in {
		return errors.Wrapf(tensor4d.ErrShape, "input %v, layer expects %v", x.Shape(), l.in)
	}
	return nil
}

package multilayer

import (
	"log/slog"

	"github.com/pkg/errors"
	"github.com/sw965/crowdl/blas32/tensor/2d"
	"github.com/sw965/crowdl/blas32/tensor/4d"
	"github.com/sw965/crowdl/dataset"
	"github.com/sw965/crowdl/nn/conf"
	"github.com/sw965/crowdl/nn/layers"
	"github.com/sw965/crowdl/nn/layers/factory"
	"github.com/sw965/crowdl/solver"
	"gonum.org/v1/gonum/blas/blas32"
)

var ErrNotInitialized = errors.New("multilayer: network not initialized")

type Option func(*MultiLayerNetwork)

func WithLogger(logger *slog.Logger) Option {
	return func(n *MultiLayerNetwork) {
		n.logger = logger
	}
}

// MultiLayerNetwork stacks the layers of a MultiLayerConfiguration. Layer
// inputs go through the configured input preprocessor and layer outputs
// through the output preprocessor, except for the last layer.
type MultiLayerNetwork struct {
	conf      *conf.MultiLayerConfiguration
	layers    []layers.Layer
	listeners []solver.IterationListener
	logger    *slog.Logger

	inShape     tensor4d.Shape
	initialized bool

	input  tensor4d.General
	labels blas32.General
}

func New(c *conf.MultiLayerConfiguration, opts ...Option) (*MultiLayerNetwork, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	n := &MultiLayerNetwork{conf: c.Clone(), logger: slog.Default()}
	for _, opt := range opts {
		opt(n)
	}

	n.layers = make([]layers.Layer, n.conf.NumLayers())
	for i := range n.layers {
		l, err := factory.Create(n.conf.Conf(i))
		if err != nil {
			return nil, errors.WithMessagef(err, "layer %d", i)
		}
		l.SetLogger(n.logger.With("layer", i))
		n.layers[i] = l
	}
	if _, ok := n.layers[len(n.layers)-1].(*layers.Output); !ok {
		return nil, errors.Wrapf(conf.ErrInvalidConfiguration, "last layer is %s, want %s",
			n.layers[len(n.layers)-1].Kind(), conf.KindOutput)
	}
	return n, nil
}

func (n *MultiLayerNetwork) SetIterationListeners(listeners ...solver.IterationListener) {
	n.listeners = listeners
	for _, l := range n.layers {
		l.SetIterationListeners(listeners...)
	}
}

func (n *MultiLayerNetwork) Layers() []layers.Layer {
	return n.layers
}

func (n *MultiLayerNetwork) OutputLayer() *layers.Output {
	return n.layers[len(n.layers)-1].(*layers.Output)
}

func (n *MultiLayerNetwork) Configuration() *conf.MultiLayerConfiguration {
	return n.conf
}

// Init takes the input to be a flat vector of the first layer's nIn.
func (n *MultiLayerNetwork) Init() error {
	nIn := n.conf.Conf(0).NIn
	if nIn <= 0 {
		return errors.Wrap(conf.ErrInvalidConfiguration, "first layer nIn is not set, use InitWithShape")
	}
	return n.InitWithShape(tensor4d.FlatShape(nIn))
}

// InitWithShape infers every layer's input shape from the one before it.
func (n *MultiLayerNetwork) InitWithShape(in tensor4d.Shape) error {
	s := in
	var err error
	for i, l := range n.layers {
		if p := n.conf.InputPreProcessor(i); p != nil {
			if s, err = p.OutputShape(s); err != nil {
				return errors.WithMessagef(err, "layer %d input preprocessor", i)
			}
		}
		if s, err = l.Init(s); err != nil {
			return errors.WithMessagef(err, "layer %d", i)
		}
		if p := n.conf.OutputPreProcessor(i); p != nil && i < len(n.layers)-1 {
			if s, err = p.OutputShape(s); err != nil {
				return errors.WithMessagef(err, "layer %d output preprocessor", i)
			}
		}
		n.logger.Debug("layer initialized", "layer", i, "kind", l.Kind(), "in", l.InputShape(), "out", l.OutputShape(), "params", l.NumParams())
	}
	n.inShape = in
	n.initialized = true
	return nil
}

func (n *MultiLayerNetwork) IsInitialized() bool {
	return n.initialized
}

func (n *MultiLayerNetwork) InputShape() tensor4d.Shape {
	return n.inShape
}

// prepare initializes from x when needed and reshapes x when only its layout differs.
func (n *MultiLayerNetwork) prepare(x tensor4d.General) (tensor4d.General, error) {
	if !n.initialized {
		if err := n.InitWithShape(x.Shape()); err != nil {
			return tensor4d.General{}, err
		}
	}
	if x.Shape() == n.inShape {
		return x, nil
	}
	if x.Shape().Features() != n.inShape.Features() {
		return tensor4d.General{}, errors.Wrapf(tensor4d.ErrShape, "input %v, network expects %v", x.Shape(), n.inShape)
	}
	return x.Reshape(n.inShape.Channels, n.inShape.Rows, n.inShape.Cols)
}

// trace is one forward pass. acts[i] is the input of layer i before its input
// preprocessor, and pre[i] is the same after it.
type trace struct {
	acts []tensor4d.General
	pre  []tensor4d.General
	out  []tensor4d.General
}

func (n *MultiLayerNetwork) forward(x tensor4d.General, upTo int, training bool) (*trace, error) {
	t := &trace{acts: []tensor4d.General{x}}
	h := x
	var err error
	for i := 0; i <= upTo && i < len(n.layers); i++ {
		if p := n.conf.InputPreProcessor(i); p != nil {
			if h, err = p.PreProcess(h); err != nil {
				return nil, errors.WithMessagef(err, "layer %d input preprocessor", i)
			}
		}
		t.pre = append(t.pre, h)
		if i == upTo {
			break
		}
		if h, err = n.layers[i].Activate(h, training); err != nil {
			return nil, errors.WithMessagef(err, "layer %d", i)
		}
		t.out = append(t.out, h)
		if p := n.conf.OutputPreProcessor(i); p != nil && i < len(n.layers)-1 {
			if h, err = p.PreProcess(h); err != nil {
				return nil, errors.WithMessagef(err, "layer %d output preprocessor", i)
			}
		}
		t.acts = append(t.acts, h)
	}
	return t, nil
}

// layerInput is what layer i sees when the network is fed x.
func (n *MultiLayerNetwork) layerInput(x tensor4d.General, i int) (tensor4d.General, error) {
	t, err := n.forward(x, i, false)
	if err != nil {
		return tensor4d.General{}, err
	}
	return t.pre[i], nil
}

// FeedForward returns the input followed by the activations of every layer.
func (n *MultiLayerNetwork) FeedForward(x tensor4d.General) ([]tensor4d.General, error) {
	x, err := n.prepare(x)
	if err != nil {
		return nil, err
	}
	t, err := n.forward(x, len(n.layers), false)
	if err != nil {
		return nil, err
	}
	return t.acts, nil
}

func (n *MultiLayerNetwork) Output(x tensor4d.General) (blas32.General, error) {
	acts, err := n.FeedForward(x)
	if err != nil {
		return blas32.General{}, err
	}
	return acts[len(acts)-1].ToGeneral(), nil
}

// Predict returns the most likely class of every example.
func (n *MultiLayerNetwork) Predict(x tensor4d.General) ([]int, error) {
	y, err := n.Output(x)
	if err != nil {
		return nil, err
	}
	return tensor2d.ArgMax1(y), nil
}

func (n *MultiLayerNetwork) penalty() float64 {
	var sum float64
	for _, l := range n.layers[:len(n.layers)-1] {
		sum += l.Penalty()
	}
	return sum
}

func (n *MultiLayerNetwork) ScoreArrays(x tensor4d.General, labels blas32.General) (float64, error) {
	x, err := n.prepare(x)
	if err != nil {
		return 0.0, err
	}
	last := len(n.layers) - 1
	h, err := n.layerInput(x, last)
	if err != nil {
		return 0.0, err
	}
	score, err := n.OutputLayer().Score(h, labels)
	if err != nil {
		return 0.0, err
	}
	return score + n.penalty(), nil
}

func (n *MultiLayerNetwork) Score(ds *dataset.DataSet) (float64, error) {
	return n.ScoreArrays(tensor4d.FromFlat(ds.Features), ds.Labels)
}

func (n *MultiLayerNetwork) SetInput(x tensor4d.General) {
	n.input = x
}

func (n *MultiLayerNetwork) Input() tensor4d.General {
	return n.input
}

func (n *MultiLayerNetwork) SetLabels(labels blas32.General) {
	n.labels = labels
}

func (n *MultiLayerNetwork) Labels() blas32.General {
	return n.labels
}

func (n *MultiLayerNetwork) NumParams() int {
	sum := 0
	for _, l := range n.layers {
		sum += l.NumParams()
	}
	return sum
}

// Params concatenates the parameters of every layer in order.
func (n *MultiLayerNetwork) Params() ([]float32, error) {
	if !n.initialized {
		return nil, ErrNotInitialized
	}
	params := make([]float32, 0, n.NumParams())
	for _, l := range n.layers {
		params = append(params, l.Params()...)
	}
	return params, nil
}

func (n *MultiLayerNetwork) SetParams(params []float32) error {
	if !n.initialized {
		return ErrNotInitialized
	}
	if len(params) != n.NumParams() {
		return errors.Errorf("multilayer: %d params, want %d", len(params), n.NumParams())
	}
	off := 0
	for _, l := range n.layers {
		k := l.NumParams()
		if k == 0 {
			continue
		}
		if err := l.SetParams(params[off : off+k]); err != nil {
			return err
		}
		off += k
	}
	return nil
}

package conf

import (
	"maps"
	"slices"

	"github.com/pkg/errors"
	"github.com/sw965/crowdl/nn/lossfunc"
	"github.com/sw965/crowdl/nn/preprocessor"
)

// ConfOverride adjusts the builder of layer i before it is built.
type ConfOverride interface {
	OverrideLayer(i int, b *Builder)
}

type ConfOverrideFunc func(i int, b *Builder)

func (f ConfOverrideFunc) OverrideLayer(i int, b *Builder) {
	f(i, b)
}

// ClassifierOverride turns the layer at its index into a softmax output layer.
type ClassifierOverride int

func (c ClassifierOverride) OverrideLayer(i int, b *Builder) {
	if i != int(c) {
		return
	}
	b.LayerFactory(LayerFactory{Kind: KindOutput})
	b.ActivationFunction("softmax")
	b.LossFunction(lossfunc.MCXENT)
	b.WeightInit(WeightInitZero)
}

type MultiLayerConfiguration struct {
	Confs               []*NeuralNetConfiguration
	HiddenLayerSizes    []int
	InputPreProcessors  map[int]preprocessor.Processor
	OutputPreProcessors map[int]preprocessor.Processor
	Pretrain            bool
	Backward            bool
}

func (m *MultiLayerConfiguration) NumLayers() int {
	return len(m.Confs)
}

func (m *MultiLayerConfiguration) Conf(i int) *NeuralNetConfiguration {
	return m.Confs[i]
}

func (m *MultiLayerConfiguration) InputPreProcessor(i int) preprocessor.Processor {
	return m.InputPreProcessors[i]
}

func (m *MultiLayerConfiguration) OutputPreProcessor(i int) preprocessor.Processor {
	return m.OutputPreProcessors[i]
}

func (m *MultiLayerConfiguration) Validate() error {
	n := len(m.Confs)
	if n == 0 {
		return errors.Wrap(ErrInvalidConfiguration, "no layers")
	}
	for i, c := range m.Confs {
		if c == nil {
			return errors.Wrapf(ErrInvalidConfiguration, "layer %d is nil", i)
		}
		if err := c.Validate(); err != nil {
			return errors.Wrapf(err, "layer %d", i)
		}
	}
	for _, ps := range []map[int]preprocessor.Processor{m.InputPreProcessors, m.OutputPreProcessors} {
		for i := range ps {
			if i < 0 || i >= n {
				return errors.Wrapf(ErrInvalidConfiguration, "preprocessor index %d out of range [0, %d)", i, n)
			}
		}
	}
	return nil
}

func (m *MultiLayerConfiguration) Clone() *MultiLayerConfiguration {
	confs := make([]*NeuralNetConfiguration, len(m.Confs))
	for i, c := range m.Confs {
		confs[i] = c.Clone()
	}
	return &MultiLayerConfiguration{
		Confs:               confs,
		HiddenLayerSizes:    slices.Clone(m.HiddenLayerSizes),
		InputPreProcessors:  maps.Clone(m.InputPreProcessors),
		OutputPreProcessors: maps.Clone(m.OutputPreProcessors),
		Pretrain:            m.Pretrain,
		Backward:            m.Backward,
	}
}

type ListBuilder struct {
	base                *Builder
	n                   int
	hiddenLayerSizes    []int
	overrideAll         []ConfOverride
	overrides           map[int][]ConfOverride
	inputPreProcessors  map[int]preprocessor.Processor
	outputPreProcessors map[int]preprocessor.Processor
	pretrain            bool
	backward            bool
}

func newListBuilder(base *Builder, n int) *ListBuilder {
	return &ListBuilder{
		base:                base.Clone(),
		n:                   n,
		overrides:           map[int][]ConfOverride{},
		inputPreProcessors:  map[int]preprocessor.Processor{},
		outputPreProcessors: map[int]preprocessor.Processor{},
		pretrain:            true,
	}
}

func (l *ListBuilder) HiddenLayerSizes(sizes ...int) *ListBuilder {
	l.hiddenLayerSizes = slices.Clone(sizes)
	return l
}

func (l *ListBuilder) Override(i int, o ConfOverride) *ListBuilder {
	l.overrides[i] = append(l.overrides[i], o)
	return l
}

// OverrideAll registers an override that is consulted for every layer.
func (l *ListBuilder) OverrideAll(o ConfOverride) *ListBuilder {
	l.overrideAll = append(l.overrideAll, o)
	return l
}

func (l *ListBuilder) InputPreProcessor(i int, p preprocessor.Processor) *ListBuilder {
	l.inputPreProcessors[i] = p
	return l
}

// PreProcessor registers a processor applied to the output of layer i.
func (l *ListBuilder) PreProcessor(i int, p preprocessor.Processor) *ListBuilder {
	l.outputPreProcessors[i] = p
	return l
}

func (l *ListBuilder) Pretrain(pretrain bool) *ListBuilder {
	l.pretrain = pretrain
	return l
}

func (l *ListBuilder) Backward(backward bool) *ListBuilder {
	l.backward = backward
	return l
}

func (l *ListBuilder) Build() (*MultiLayerConfiguration, error) {
	if l.n < 1 {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "list(%d)", l.n)
	}
	if len(l.hiddenLayerSizes) > l.n-1 {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "%d hidden layer sizes for %d layers", len(l.hiddenLayerSizes), l.n)
	}
	for i := range l.overrides {
		if i < 0 || i >= l.n {
			return nil, errors.Wrapf(ErrInvalidConfiguration, "override index %d out of range [0, %d)", i, l.n)
		}
	}

	base := l.base.conf
	confs := make([]*NeuralNetConfiguration, l.n)
	for i := range confs {
		b := l.base.Clone()

		// 隠れ層のサイズが足りない場合は0(初期化時に推論)
		nIn := 0
		if i == 0 {
			nIn = base.NIn
		} else if i-1 < len(l.hiddenLayerSizes) {
			nIn = l.hiddenLayerSizes[i-1]
		}
		nOut := 0
		if i == l.n-1 {
			nOut = base.NOut
		} else if i < len(l.hiddenLayerSizes) {
			nOut = l.hiddenLayerSizes[i]
		}
		b.NIn(nIn).NOut(nOut)

		for _, o := range l.overrideAll {
			o.OverrideLayer(i, b)
		}
		for _, o := range l.overrides[i] {
			o.OverrideLayer(i, b)
		}

		c, err := b.Build()
		if err != nil {
			return nil, errors.Wrapf(err, "layer %d", i)
		}
		confs[i] = c
	}

	m := &MultiLayerConfiguration{
		Confs:               confs,
		HiddenLayerSizes:    slices.Clone(l.hiddenLayerSizes),
		InputPreProcessors:  maps.Clone(l.inputPreProcessors),
		OutputPreProcessors: maps.Clone(l.outputPreProcessors),
		Pretrain:            l.pretrain,
		Backward:            l.backward,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

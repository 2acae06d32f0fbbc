package factory

import (
	"github.com/pkg/errors"
	"github.com/sw965/crowdl/nn/conf"
	"github.com/sw965/crowdl/nn/layers"
	"github.com/sw965/crowdl/solver"
)

// GetFactory pretrains the kinds that can be pretrained.
func GetFactory(kind conf.LayerKind) conf.LayerFactory {
	return conf.LayerFactory{Kind: kind, Pretrain: kind.Pretrainable()}
}

func DefaultLayerFactory(kind conf.LayerKind) conf.LayerFactory {
	return conf.LayerFactory{Kind: kind}
}

func PretrainLayerFactory(kind conf.LayerKind) conf.LayerFactory {
	return conf.LayerFactory{Kind: kind, Pretrain: true}
}

// Create builds the layer c.LayerFactory names from a copy of c.
func Create(c *conf.NeuralNetConfiguration, listeners ...solver.IterationListener) (layers.Layer, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c = c.Clone()

	var l layers.Layer
	var err error
	switch c.LayerFactory.Kind {
	case conf.KindRBM:
		l, err = layers.NewRBM(c)
	case conf.KindAutoEncoder:
		l, err = layers.NewAutoEncoder(c)
	case conf.KindOutput:
		l, err = layers.NewOutput(c)
	case conf.KindConvolution:
		l, err = layers.NewConvolution(c)
	case conf.KindSubsampling:
		l, err = layers.NewSubsampling(c)
	case conf.KindConvolutionDownSample:
		l, err = layers.NewConvolutionDownSample(c)
	default:
		return nil, errors.Wrapf(conf.ErrInvalidConfiguration, "unknown layer kind %q", c.LayerFactory.Kind)
	}
	if err != nil {
		return nil, err
	}
	l.SetIterationListeners(listeners...)
	return l, nil
}

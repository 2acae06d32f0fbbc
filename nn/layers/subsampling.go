package layers

import (
	"github.com/pkg/errors"
	"github.com/sw965/crowdl/blas32/tensor/4d"
	"github.com/sw965/crowdl/nn/conf"
)

type pooling struct {
	kind   conf.ConvolutionType
	rows   int
	cols   int
	in     tensor4d.Shape
	out    tensor4d.Shape
	argmax []int
}

func (p *pooling) init(in tensor4d.Shape, window [2]int, kind conf.ConvolutionType) (tensor4d.Shape, error) {
	if window[0] < 1 || window[1] < 1 {
		return tensor4d.Shape{}, errors.Wrapf(tensor4d.ErrShape, "pooling window %dx%d", window[0], window[1])
	}
	p.kind = kind
	p.in = in
	p.rows, p.cols = tensor4d.ClampWindow(in, window[0], window[1])
	if p.kind == conf.ConvolutionNone {
		p.out = in
		return p.out, nil
	}
	out, err := tensor4d.PoolShape(in, p.rows, p.cols)
	if err != nil {
		return tensor4d.Shape{}, err
	}
	p.out = out
	return p.out, nil
}

func (p *pooling) clamped(window [2]int) bool {
	return p.rows != window[0] || p.cols != window[1]
}

func (p *pooling) forward(x tensor4d.General, training bool) (tensor4d.General, error) {
	switch p.kind {
	case conf.ConvolutionMax:
		y, argmax, err := x.MaxPool(p.rows, p.cols)
		if err != nil {
			return tensor4d.General{}, err
		}
		if training {
			p.argmax = argmax
		}
		return y, nil
	case conf.ConvolutionSum:
		return x.SumPool(p.rows, p.cols)
	case conf.ConvolutionAvg:
		y, err := x.SumPool(p.rows, p.cols)
		if err != nil {
			return tensor4d.General{}, err
		}
		for i := range y.Data {
			y.Data[i] /= float32(p.rows * p.cols)
		}
		return y, nil
	}
	return x, nil
}

func (p *pooling) backward(dy tensor4d.General) (tensor4d.General, error) {
	if dy.Shape() != p.out {
		return tensor4d.General{}, errors.Wrapf(tensor4d.ErrShape, "pooling backprop got %v, want %v", dy.Shape(), p.out)
	}
	switch p.kind {
	case conf.ConvolutionMax:
		if p.argmax == nil || len(p.argmax) != dy.N() {
			return tensor4d.General{}, ErrNoForward
		}
		return tensor4d.MaxUnpool(dy, p.argmax, p.in), nil
	case conf.ConvolutionSum:
		return tensor4d.SumUnpool(dy, p.in, p.rows, p.cols), nil
	case conf.ConvolutionAvg:
		dx := tensor4d.SumUnpool(dy, p.in, p.rows, p.cols)
		for i := range dx.Data {
			dx.Data[i] /= float32(p.rows * p.cols)
		}
		return dx, nil
	}
	return dy, nil
}

// Subsampling pools every channel over conf.StrideSize windows. It has no parameters.
type Subsampling struct {
	base
	pool pooling
}

func NewSubsampling(c *conf.NeuralNetConfiguration) (*Subsampling, error) {
	b, err := newBase(c)
	if err != nil {
		return nil, err
	}
	return &Subsampling{base: b}, nil
}

func (s *Subsampling) Kind() conf.LayerKind {
	return conf.KindSubsampling
}

func (s *Subsampling) Init(in tensor4d.Shape) (tensor4d.Shape, error) {
	out, err := s.pool.init(in, s.conf.StrideSize, s.conf.ConvolutionType)
	if err != nil {
		return tensor4d.Shape{}, err
	}
	s.in = in
	s.out = out
	if s.pool.clamped(s.conf.StrideSize) {
		s.logger.Debug("pooling window clamped to the input", "window", s.conf.StrideSize, "input", in)
	}
	s.conf.NIn = in.Features()
	s.conf.NOut = s.out.Features()
	s.initialized = true
	return s.out, nil
}

func (s *Subsampling) Activate(x tensor4d.General, training bool) (tensor4d.General, error) {
	if err := s.checkInput(x); err != nil {
		return tensor4d.General{}, err
	}
	return s.pool.forward(x, training)
}

func (s *Subsampling) Backprop(dy tensor4d.General) (tensor4d.General, []float32, error) {
	dx, err := s.pool.backward(dy)
	return dx, nil, err
}

// ConvolutionDownSample is a convolution followed by pooling over conf.FeatureMapSize.
type ConvolutionDownSample struct {
	Convolution
	pool pooling
}

func NewConvolutionDownSample(c *conf.NeuralNetConfiguration) (*ConvolutionDownSample, error) {
	conv, err := NewConvolution(c)
	if err != nil {
		return nil, err
	}
	return &ConvolutionDownSample{Convolution: *conv}, nil
}

func (c *ConvolutionDownSample) Kind() conf.LayerKind {
	return conf.KindConvolutionDownSample
}

func (c *ConvolutionDownSample) Init(in tensor4d.Shape) (tensor4d.Shape, error) {
	if err := c.initConvolution(in); err != nil {
		return tensor4d.Shape{}, err
	}
	out, err := c.pool.init(c.convOut, c.conf.FeatureMapSize, c.conf.ConvolutionType)
	if err != nil {
		return tensor4d.Shape{}, err
	}
	c.out = out
	if c.pool.clamped(c.conf.FeatureMapSize) {
		c.logger.Debug("pooling window clamped to the feature maps", "window", c.conf.FeatureMapSize, "maps", c.convOut)
	}
	c.conf.NOut = c.out.Features()
	return c.out, nil
}

func (c *ConvolutionDownSample) Activate(x tensor4d.General, training bool) (tensor4d.General, error) {
	y, err := c.convolve(x, training)
	if err != nil {
		return tensor4d.General{}, err
	}
	return c.pool.forward(y, training)
}

func (c *ConvolutionDownSample) Backprop(dy tensor4d.General) (tensor4d.General, []float32, error) {
	dconv, err := c.pool.backward(dy)
	if err != nil {
		return tensor4d.General{}, nil, err
	}
	return c.backpropConvolution(dconv)
}

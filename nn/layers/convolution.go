package layers

import (
	"github.com/pkg/errors"
	"github.com/sw965/crowdl/blas32/tensor/2d"
	"github.com/sw965/crowdl/blas32/tensor/4d"
	"github.com/sw965/crowdl/nn/conf"
	"github.com/sw965/crowdl/nn/weights"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Convolution is a valid, stride 1 convolution with conf.FilterSize =
// (filters, channels, rows, cols), computed as im2col x W.
type Convolution struct {
	base
	filters    int
	filterRows int
	filterCols int
	convOut    tensor4d.Shape
	w          blas32.General
	b          blas32.General

	batches int
	col     blas32.General
	z       blas32.General
	y       blas32.General
}

func NewConvolution(c *conf.NeuralNetConfiguration) (*Convolution, error) {
	b, err := newBase(c)
	if err != nil {
		return nil, err
	}
	return &Convolution{base: b}, nil
}

func (c *Convolution) Kind() conf.LayerKind {
	return conf.KindConvolution
}

func (c *Convolution) initConvolution(in tensor4d.Shape) error {
	fs := c.conf.FilterSize
	if fs[1] != in.Channels {
		c.logger.Warn("configured filter channels do not match the input, using the input channels",
			"configured", fs[1], "inferred", in.Channels)
		c.conf.FilterSize[1] = in.Channels
	}
	c.filters, c.filterRows, c.filterCols = fs[0], fs[2], fs[3]
	if c.filterRows > in.Rows || c.filterCols > in.Cols {
		return errors.Wrapf(tensor4d.ErrShape, "filter %dx%d larger than input %v", c.filterRows, c.filterCols, in)
	}

	w, err := weights.Init(in.Channels*c.filterRows*c.filterCols, c.filters, c.conf.WeightInit, c.conf.Dist, c.rng)
	if err != nil {
		return err
	}
	c.w = w
	c.b = tensor2d.NewZeros(1, c.filters)
	c.params = ParamTable{{Key: WeightKey, Value: c.w}, {Key: BiasKey, Value: c.b}}
	c.in = in
	c.convOut = tensor4d.Shape{
		Channels: c.filters,
		Rows:     in.Rows - c.filterRows + 1,
		Cols:     in.Cols - c.filterCols + 1,
	}
	c.out = c.convOut
	c.conf.NIn = in.Features()
	c.conf.NOut = c.convOut.Features()
	c.initialized = true
	return nil
}

func (c *Convolution) Init(in tensor4d.Shape) (tensor4d.Shape, error) {
	if err := c.initConvolution(in); err != nil {
		return tensor4d.Shape{}, err
	}
	return c.out, nil
}

func (c *Convolution) convolve(x tensor4d.General, training bool) (tensor4d.General, error) {
	if err := c.checkInput(x); err != nil {
		return tensor4d.General{}, err
	}
	if x.Batches == 0 {
		return tensor4d.NewZerosShape(0, c.convOut), nil
	}
	col, err := x.Im2Col(c.filterRows, c.filterCols)
	if err != nil {
		return tensor4d.General{}, err
	}
	z, err := tensor2d.Dot(blas.NoTrans, blas.NoTrans, col, c.w)
	if err != nil {
		return tensor4d.General{}, err
	}
	if err := tensor2d.AddRowVector(z, tensor2d.ToVector(c.b)); err != nil {
		return tensor4d.General{}, err
	}
	y := c.act.Forward(z)
	if training {
		c.batches, c.col, c.z, c.y = x.Batches, col, z, y
	}

	// rows of y are (batch, outRow, outCol) and its cols are filters
	view := blas32.General{Rows: x.Batches, Cols: c.convOut.Features(), Stride: c.convOut.Features(), Data: y.Data}
	nhwc, err := tensor4d.FromGeneral(view, c.convOut.Rows, c.convOut.Cols, c.filters)
	if err != nil {
		return tensor4d.General{}, err
	}
	return nhwc.Transpose0312(), nil
}

func (c *Convolution) Activate(x tensor4d.General, training bool) (tensor4d.General, error) {
	return c.convolve(x, training)
}

func (c *Convolution) backpropConvolution(dy tensor4d.General) (tensor4d.General, []float32, error) {
	if c.z.Data == nil {
		return tensor4d.General{}, nil, ErrNoForward
	}
	if dy.Shape() != c.convOut || dy.Batches != c.batches {
		return tensor4d.General{}, nil, errors.Wrapf(tensor4d.ErrShape, "convolution backprop got %v", dy.Shape())
	}
	nhwc := dy.Transpose0231()
	dyMat := blas32.General{Rows: c.z.Rows, Cols: c.filters, Stride: c.filters, Data: nhwc.Data}
	dz, err := c.act.Backward(c.z, c.y, dyMat)
	if err != nil {
		return tensor4d.General{}, nil, err
	}

	dW, err := tensor2d.Dot(blas.Trans, blas.NoTrans, c.col, dz)
	if err != nil {
		return tensor4d.General{}, nil, err
	}
	if err := c.regularize(dW); err != nil {
		return tensor4d.General{}, nil, err
	}
	db := blas32.General{Rows: 1, Cols: c.filters, Stride: c.filters, Data: tensor2d.Sum0(dz).Data}

	dcol, err := tensor2d.Dot(blas.NoTrans, blas.Trans, dz, c.w)
	if err != nil {
		return tensor4d.General{}, nil, err
	}
	dx, err := tensor4d.Col2Im(dcol, c.batches, c.in, c.filterRows, c.filterCols)
	if err != nil {
		return tensor4d.General{}, nil, err
	}
	grads := ParamTable{{Key: WeightKey, Value: dW}, {Key: BiasKey, Value: db}}
	return dx, c.params.Gradient(grads), nil
}

func (c *Convolution) Backprop(dy tensor4d.General) (tensor4d.General, []float32, error) {
	return c.backpropConvolution(dy)
}

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

// dense is y = act(xW + b) over flattened examples.
type dense struct {
	base
	kind conf.LayerKind
	w    blas32.General
	b    blas32.General

	x blas32.General
	z blas32.General
	y blas32.General
}

func newDense(c *conf.NeuralNetConfiguration, kind conf.LayerKind) (dense, error) {
	b, err := newBase(c)
	if err != nil {
		return dense{}, err
	}
	return dense{base: b, kind: kind}, nil
}

func (d *dense) Kind() conf.LayerKind {
	return d.kind
}

func (d *dense) initDense(in tensor4d.Shape) error {
	nIn := in.Features()
	if d.conf.NIn != 0 && d.conf.NIn != nIn {
		d.logger.Warn("configured nIn does not match the input, using the input size",
			"kind", d.kind, "configured", d.conf.NIn, "inferred", nIn)
	}
	d.conf.NIn = nIn
	nOut := d.conf.NOut
	if nOut <= 0 {
		return errors.Wrapf(conf.ErrInvalidConfiguration, "%s layer: nOut is not set", d.kind)
	}

	w, err := weights.Init(nIn, nOut, d.conf.WeightInit, d.conf.Dist, d.rng)
	if err != nil {
		return err
	}
	d.w = w
	d.b = tensor2d.NewZeros(1, nOut)
	d.params = ParamTable{{Key: WeightKey, Value: d.w}, {Key: BiasKey, Value: d.b}}
	d.in = in
	d.out = tensor4d.FlatShape(nOut)
	d.initialized = true
	return nil
}

func (d *dense) Init(in tensor4d.Shape) (tensor4d.Shape, error) {
	if err := d.initDense(in); err != nil {
		return tensor4d.Shape{}, err
	}
	return d.out, nil
}

func (d *dense) preOutput(x blas32.General) (blas32.General, error) {
	z, err := tensor2d.Dot(blas.NoTrans, blas.NoTrans, x, d.w)
	if err != nil {
		return blas32.General{}, err
	}
	if err := tensor2d.AddRowVector(z, tensor2d.ToVector(d.b)); err != nil {
		return blas32.General{}, err
	}
	return z, nil
}

func (d *dense) forward(x tensor4d.General, training bool) (blas32.General, error) {
	if err := d.checkInput(x); err != nil {
		return blas32.General{}, err
	}
	x2 := x.ToGeneral()
	z, err := d.preOutput(x2)
	if err != nil {
		return blas32.General{}, err
	}
	y := d.act.Forward(z)
	if training {
		d.x, d.z, d.y = x2, z, y
	}
	return y, nil
}

func (d *dense) Activate(x tensor4d.General, training bool) (tensor4d.General, error) {
	y, err := d.forward(x, training)
	if err != nil {
		return tensor4d.General{}, err
	}
	return tensor4d.FromFlat(y), nil
}

// backpropDelta takes dL/dz of the cached forward pass.
func (d *dense) backpropDelta(dz blas32.General) (tensor4d.General, ParamTable, error) {
	dW, err := tensor2d.Dot(blas.Trans, blas.NoTrans, d.x, dz)
	if err != nil {
		return tensor4d.General{}, nil, err
	}
	if err := d.regularize(dW); err != nil {
		return tensor4d.General{}, nil, err
	}
	db := blas32.General{Rows: 1, Cols: dz.Cols, Stride: dz.Cols, Data: tensor2d.Sum0(dz).Data}

	dx, err := tensor2d.Dot(blas.NoTrans, blas.Trans, dz, d.w)
	if err != nil {
		return tensor4d.General{}, nil, err
	}
	dx4, err := tensor4d.FromGeneralShape(dx, d.in)
	if err != nil {
		return tensor4d.General{}, nil, err
	}
	return dx4, ParamTable{{Key: WeightKey, Value: dW}, {Key: BiasKey, Value: db}}, nil
}

func (d *dense) Backprop(dy tensor4d.General) (tensor4d.General, []float32, error) {
	if d.z.Data == nil {
		return tensor4d.General{}, nil, ErrNoForward
	}
	dz, err := d.act.Backward(d.z, d.y, dy.ToGeneral())
	if err != nil {
		return tensor4d.General{}, nil, err
	}
	dx, grads, err := d.backpropDelta(dz)
	if err != nil {
		return tensor4d.General{}, nil, err
	}
	return dx, d.params.Gradient(grads), nil
}

package layers

import (
	"github.com/pkg/errors"
	"github.com/sw965/crowdl/blas32/tensor/4d"
	"github.com/sw965/crowdl/nn/conf"
	"github.com/sw965/crowdl/nn/lossfunc"
	"gonum.org/v1/gonum/blas/blas32"
)

// Output is a dense layer scored against labels with conf.LossFunction.
type Output struct {
	dense
	loss lossfunc.LossFunction
}

func NewOutput(c *conf.NeuralNetConfiguration) (*Output, error) {
	d, err := newDense(c, conf.KindOutput)
	if err != nil {
		return nil, err
	}
	if !c.LossFunction.Valid() {
		return nil, errors.Wrapf(lossfunc.ErrUnknown, "%q", c.LossFunction)
	}
	return &Output{dense: d, loss: c.LossFunction}, nil
}

func (o *Output) Score(x tensor4d.General, labels blas32.General) (float64, error) {
	y, err := o.forward(x, false)
	if err != nil {
		return 0.0, err
	}
	score, err := o.loss.Score(labels, y)
	if err != nil {
		return 0.0, err
	}
	return score + o.Penalty(), nil
}

// BackpropLabels scores the cached training forward pass and backpropagates the loss.
func (o *Output) BackpropLabels(labels blas32.General) (float64, tensor4d.General, []float32, error) {
	if o.z.Data == nil {
		return 0.0, tensor4d.General{}, nil, ErrNoForward
	}
	score, err := o.loss.Score(labels, o.y)
	if err != nil {
		return 0.0, tensor4d.General{}, nil, err
	}
	dz, err := lossfunc.OutputDelta(o.loss, o.act, labels, o.z, o.y)
	if err != nil {
		return 0.0, tensor4d.General{}, nil, err
	}
	dx, grads, err := o.backpropDelta(dz)
	if err != nil {
		return 0.0, tensor4d.General{}, nil, err
	}
	return score + o.Penalty(), dx, o.params.Gradient(grads), nil
}

func (o *Output) Gradient(x tensor4d.General, labels blas32.General) (float64, []float32, error) {
	if _, err := o.forward(x, true); err != nil {
		return 0.0, nil, err
	}
	score, _, grad, err := o.BackpropLabels(labels)
	return score, grad, err
}

// Fit trains only this layer on x.
func (o *Output) Fit(x tensor4d.General, labels blas32.General) (float64, error) {
	if err := o.checkInput(x); err != nil {
		return 0.0, err
	}
	model := &objective{layer: o, eval: func() (float64, []float32, error) {
		return o.Gradient(x, labels)
	}}
	return o.solver().Optimize(model)
}

package multilayer

import (
	"github.com/pkg/errors"
	"github.com/sw965/crowdl/blas32/tensor/4d"
	"github.com/sw965/crowdl/blas32/vector"
	"github.com/sw965/crowdl/dataset"
	"github.com/sw965/crowdl/nn/layers"
	"github.com/sw965/crowdl/solver"
	"gonum.org/v1/gonum/blas/blas32"
)

func (n *MultiLayerNetwork) Fit(ds *dataset.DataSet) error {
	return n.FitArrays(tensor4d.FromFlat(ds.Features), ds.Labels)
}

// FitArrays pretrains the pretrainable hidden layers when the configuration
// asks for it and then finetunes. Finetuning backpropagates through the
// whole network when Backward is set and trains the output layer alone otherwise.
func (n *MultiLayerNetwork) FitArrays(x tensor4d.General, labels blas32.General) error {
	x, err := n.prepare(x)
	if err != nil {
		return err
	}
	if x.Batches != labels.Rows {
		return errors.Wrapf(tensor4d.ErrShape, "%d examples, %d labels", x.Batches, labels.Rows)
	}
	n.SetInput(x)
	n.SetLabels(labels)

	if n.conf.Pretrain {
		if err := n.Pretrain(x); err != nil {
			return err
		}
	}
	return n.Finetune(x, labels)
}

// FitInput fits on what SetInput and SetLabels stored.
func (n *MultiLayerNetwork) FitInput() error {
	if n.input.Data == nil || n.labels.Data == nil {
		return errors.New("multilayer: input and labels must be set")
	}
	return n.FitArrays(n.input, n.labels)
}

func (n *MultiLayerNetwork) Pretrain(x tensor4d.General) error {
	x, err := n.prepare(x)
	if err != nil {
		return err
	}
	for i, l := range n.layers[:len(n.layers)-1] {
		p, ok := l.(layers.Pretrainable)
		if !ok || !l.Conf().LayerFactory.Pretrain {
			continue
		}
		h, err := n.layerInput(x, i)
		if err != nil {
			return err
		}
		score, err := p.Pretrain(h)
		if err != nil {
			return errors.WithMessagef(err, "pretrain layer %d", i)
		}
		n.logger.Info("pretrained layer", "layer", i, "kind", l.Kind(), "score", score)
	}
	return nil
}

func (n *MultiLayerNetwork) Finetune(x tensor4d.General, labels blas32.General) error {
	x, err := n.prepare(x)
	if err != nil {
		return err
	}
	last := len(n.layers) - 1
	var score float64
	if n.conf.Backward {
		s := solver.New(n.layers[last].Conf(), n.listeners, n.logger)
		score, err = s.Optimize(&backprop{n: n, x: x, labels: labels})
	} else {
		var h tensor4d.General
		if h, err = n.layerInput(x, last); err != nil {
			return err
		}
		score, err = n.OutputLayer().Fit(h, labels)
	}
	if err != nil {
		return errors.WithMessage(err, "finetune")
	}
	n.logger.Info("finetuned", "backward", n.conf.Backward, "score", score)
	return nil
}

// BackpropGradient returns the score of the batch and its gradient with
// respect to Params.
func (n *MultiLayerNetwork) BackpropGradient(x tensor4d.General, labels blas32.General) (float64, []float32, error) {
	x, err := n.prepare(x)
	if err != nil {
		return 0.0, nil, err
	}
	last := len(n.layers) - 1
	t, err := n.forward(x, last, true)
	if err != nil {
		return 0.0, nil, err
	}
	out := n.OutputLayer()
	if _, err := out.Activate(t.pre[last], true); err != nil {
		return 0.0, nil, err
	}
	score, eps, grad, err := out.BackpropLabels(labels)
	if err != nil {
		return 0.0, nil, err
	}

	grads := make([][]float32, len(n.layers))
	grads[last] = grad
	for i := last; i >= 0; i-- {
		if i < last {
			if p := n.conf.OutputPreProcessor(i); p != nil {
				if eps, err = p.Backprop(eps, t.out[i].Shape()); err != nil {
					return 0.0, nil, err
				}
			}
			if eps, grads[i], err = n.layers[i].Backprop(eps); err != nil {
				return 0.0, nil, errors.WithMessagef(err, "backprop layer %d", i)
			}
		}
		if i == 0 {
			break
		}
		if p := n.conf.InputPreProcessor(i); p != nil {
			if eps, err = p.Backprop(eps, t.acts[i].Shape()); err != nil {
				return 0.0, nil, err
			}
		}
	}

	flat := make([]float32, 0, n.NumParams())
	for _, g := range grads {
		flat = append(flat, g...)
	}
	return score + n.penalty(), flat, nil
}

// backprop adapts the whole network to solver.Model.
type backprop struct {
	n      *MultiLayerNetwork
	x      tensor4d.General
	labels blas32.General
}

func (b *backprop) NumParams() int {
	return b.n.NumParams()
}

func (b *backprop) Params() []float64 {
	p, _ := b.n.Params()
	return vector.ToFloat64(blas32.Vector{N: len(p), Inc: 1, Data: p})
}

func (b *backprop) SetParams(x []float64) error {
	return b.n.SetParams(vector.FromFloat64(x).Data)
}

func (b *backprop) ScoreAndGradient() (float64, []float64, error) {
	score, grad, err := b.n.BackpropGradient(b.x, b.labels)
	if err != nil {
		return 0.0, nil, err
	}
	return score, vector.ToFloat64(blas32.Vector{N: len(grad), Inc: 1, Data: grad}), nil
}

package layers

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/sw965/crowdl/blas32/tensor/2d"
	"github.com/sw965/crowdl/blas32/tensor/4d"
	"github.com/sw965/crowdl/blas32/vector"
	crand "github.com/sw965/crowdl/math/rand"
	"github.com/sw965/crowdl/nn/activation"
	"github.com/sw965/crowdl/nn/conf"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// RBM is a restricted Boltzmann machine trained by k-step contrastive divergence.
// Fed forward it is a dense layer with conf.ActivationFunction.
type RBM struct {
	dense
	vb blas32.General
}

func NewRBM(c *conf.NeuralNetConfiguration) (*RBM, error) {
	d, err := newDense(c, conf.KindRBM)
	if err != nil {
		return nil, err
	}
	return &RBM{dense: d}, nil
}

func (r *RBM) Init(in tensor4d.Shape) (tensor4d.Shape, error) {
	if err := r.initDense(in); err != nil {
		return tensor4d.Shape{}, err
	}
	r.vb = tensor2d.NewZeros(1, r.conf.NIn)
	r.params = append(r.params, Param{Key: VisibleBiasKey, Value: r.vb})
	return r.out, nil
}

// PropUp returns the pre-activations and mean activations of the hidden units.
func (r *RBM) PropUp(v blas32.General) (blas32.General, blas32.General, error) {
	z, err := r.preOutput(v)
	if err != nil {
		return blas32.General{}, blas32.General{}, err
	}
	switch r.conf.HiddenUnit {
	case conf.HiddenBinary:
		return z, tensor2d.Apply(z, activation.Sigmoid), nil
	case conf.HiddenGaussian:
		return z, tensor2d.Clone(z), nil
	case conf.HiddenRectified:
		return z, tensor2d.Apply(z, activation.ReLU), nil
	case conf.HiddenSoftmax:
		return z, activation.Softmax.Forward(z), nil
	}
	return blas32.General{}, blas32.General{}, errors.Wrapf(conf.ErrInvalidConfiguration, "hidden unit %q", r.conf.HiddenUnit)
}

// PropDown returns the mean activations of the visible units.
func (r *RBM) PropDown(h blas32.General) (blas32.General, error) {
	z, err := tensor2d.Dot(blas.NoTrans, blas.Trans, h, r.w)
	if err != nil {
		return blas32.General{}, err
	}
	if err := tensor2d.AddRowVector(z, tensor2d.ToVector(r.vb)); err != nil {
		return blas32.General{}, err
	}
	switch r.conf.VisibleUnit {
	case conf.VisibleBinary:
		return tensor2d.Apply(z, activation.Sigmoid), nil
	case conf.VisibleGaussian, conf.VisibleLinear:
		return z, nil
	case conf.VisibleSoftmax:
		return activation.Softmax.Forward(z), nil
	}
	return blas32.General{}, errors.Wrapf(conf.ErrInvalidConfiguration, "visible unit %q", r.conf.VisibleUnit)
}

func (r *RBM) sampleHidden(z, mean blas32.General) blas32.General {
	s := tensor2d.NewZerosLike(mean)
	for i, m := range mean.Data {
		switch r.conf.HiddenUnit {
		case conf.HiddenBinary:
			s.Data[i] = crand.Bernoulli(m, r.rng)
		case conf.HiddenGaussian:
			s.Data[i] = m + crand.NormFloat32(r.rng)
		case conf.HiddenRectified:
			// noisy ReLU
			std := math32.Sqrt(activation.Sigmoid(z.Data[i]))
			s.Data[i] = activation.ReLU(z.Data[i] + std*crand.NormFloat32(r.rng))
		default:
			s.Data[i] = m
		}
	}
	return s
}

func (r *RBM) sampleVisible(mean blas32.General) blas32.General {
	s := tensor2d.NewZerosLike(mean)
	for i, m := range mean.Data {
		switch r.conf.VisibleUnit {
		case conf.VisibleBinary:
			s.Data[i] = crand.Bernoulli(m, r.rng)
		case conf.VisibleGaussian:
			s.Data[i] = m + crand.NormFloat32(r.rng)
		default:
			s.Data[i] = m
		}
	}
	return s
}

// GibbsHVH runs one hidden -> visible -> hidden step and returns the visible mean
// and the hidden mean and sample.
func (r *RBM) GibbsHVH(h blas32.General) (blas32.General, blas32.General, blas32.General, error) {
	vMean, err := r.PropDown(h)
	if err != nil {
		return blas32.General{}, blas32.General{}, blas32.General{}, err
	}
	v := r.sampleVisible(vMean)
	z, hMean, err := r.PropUp(v)
	if err != nil {
		return blas32.General{}, blas32.General{}, blas32.General{}, err
	}
	return vMean, hMean, r.sampleHidden(z, hMean), nil
}

func (r *RBM) reconstruct(v blas32.General) (blas32.General, error) {
	_, h, err := r.PropUp(v)
	if err != nil {
		return blas32.General{}, err
	}
	return r.PropDown(h)
}

func (r *RBM) ReconstructionScore(x tensor4d.General) (float64, error) {
	if err := r.checkInput(x); err != nil {
		return 0.0, err
	}
	v := x.ToGeneral()
	recon, err := r.reconstruct(v)
	if err != nil {
		return 0.0, err
	}
	score, err := r.conf.LossFunction.Score(v, recon)
	if err != nil {
		return 0.0, err
	}
	return score + r.Penalty(), nil
}

// ContrastiveDivergence returns the reconstruction score of v and the CD-k
// gradient, signed so that descending it raises the likelihood.
func (r *RBM) ContrastiveDivergence(v blas32.General) (float64, []float32, error) {
	z0, h0Mean, err := r.PropUp(v)
	if err != nil {
		return 0.0, nil, err
	}
	h := r.sampleHidden(z0, h0Mean)

	var vkMean, hkMean blas32.General
	for i := 0; i < max(r.conf.K, 1); i++ {
		vkMean, hkMean, h, err = r.GibbsHVH(h)
		if err != nil {
			return 0.0, nil, err
		}
	}

	n := float32(v.Rows)
	if n == 0 {
		return 0.0, make([]float32, r.NumParams()), nil
	}

	// dW = -(v0' h0 - vk' hk) / n
	positive, err := tensor2d.Dot(blas.Trans, blas.NoTrans, v, h0Mean)
	if err != nil {
		return 0.0, nil, err
	}
	negative, err := tensor2d.Dot(blas.Trans, blas.NoTrans, vkMean, hkMean)
	if err != nil {
		return 0.0, nil, err
	}
	dW, err := tensor2d.Sub(negative, positive)
	if err != nil {
		return 0.0, nil, err
	}
	tensor2d.Scal(1.0/n, dW)
	if err := r.regularize(dW); err != nil {
		return 0.0, nil, err
	}

	h0Avg := tensor2d.Mean0(h0Mean)
	db := vector.Clone(tensor2d.Mean0(hkMean))
	blas32.Axpy(-1.0, h0Avg, db)
	if r.conf.ApplySparsity {
		// + (h0 - sparsity)
		blas32.Axpy(1.0, h0Avg, db)
		blas32.Axpy(-1.0, vector.NewFilled(r.conf.NOut, r.conf.Sparsity), db)
	}

	dvb := vector.Clone(tensor2d.Mean0(vkMean))
	blas32.Axpy(-1.0, tensor2d.Mean0(v), dvb)

	recon, err := r.reconstruct(v)
	if err != nil {
		return 0.0, nil, err
	}
	score, err := r.conf.LossFunction.Score(v, recon)
	if err != nil {
		return 0.0, nil, err
	}
	if math.IsInf(score, 0) {
		return 0.0, nil, errors.New("layers: rbm reconstruction score is infinite")
	}

	grads := ParamTable{
		{Key: WeightKey, Value: dW},
		{Key: BiasKey, Value: blas32.General{Rows: 1, Cols: db.N, Stride: db.N, Data: db.Data}},
		{Key: VisibleBiasKey, Value: blas32.General{Rows: 1, Cols: dvb.N, Stride: dvb.N, Data: dvb.Data}},
	}
	return score + r.Penalty(), r.params.Gradient(grads), nil
}

func (r *RBM) Pretrain(x tensor4d.General) (float64, error) {
	if err := r.checkInput(x); err != nil {
		return 0.0, err
	}
	v := x.ToGeneral()
	model := &objective{layer: r, eval: func() (float64, []float32, error) {
		return r.ContrastiveDivergence(v)
	}}
	return r.solver().Optimize(model)
}

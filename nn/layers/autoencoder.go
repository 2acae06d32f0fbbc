package layers

import (
	"github.com/sw965/crowdl/blas32/tensor/2d"
	"github.com/sw965/crowdl/blas32/tensor/4d"
	crand "github.com/sw965/crowdl/math/rand"
	"github.com/sw965/crowdl/nn/conf"
	"github.com/sw965/crowdl/nn/lossfunc"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// AutoEncoder is a denoising autoencoder with tied weights.
// Encode is act(xW + b) and decode is act(yW' + vb).
type AutoEncoder struct {
	dense
	vb blas32.General
}

func NewAutoEncoder(c *conf.NeuralNetConfiguration) (*AutoEncoder, error) {
	d, err := newDense(c, conf.KindAutoEncoder)
	if err != nil {
		return nil, err
	}
	return &AutoEncoder{dense: d}, nil
}

func (a *AutoEncoder) Init(in tensor4d.Shape) (tensor4d.Shape, error) {
	if err := a.initDense(in); err != nil {
		return tensor4d.Shape{}, err
	}
	a.vb = tensor2d.NewZeros(1, a.conf.NIn)
	a.params = append(a.params, Param{Key: VisibleBiasKey, Value: a.vb})
	return a.out, nil
}

// Corrupt zeroes every input with probability conf.CorruptionLevel.
func (a *AutoEncoder) Corrupt(x blas32.General) blas32.General {
	keep := 1.0 - a.conf.CorruptionLevel
	corrupted := tensor2d.Clone(x)
	for i := range corrupted.Data {
		corrupted.Data[i] *= crand.Bernoulli(keep, a.rng)
	}
	return corrupted
}

func (a *AutoEncoder) encode(x blas32.General) (blas32.General, blas32.General, error) {
	z, err := a.preOutput(x)
	if err != nil {
		return blas32.General{}, blas32.General{}, err
	}
	return z, a.act.Forward(z), nil
}

func (a *AutoEncoder) decode(y blas32.General) (blas32.General, blas32.General, error) {
	z, err := tensor2d.Dot(blas.NoTrans, blas.Trans, y, a.w)
	if err != nil {
		return blas32.General{}, blas32.General{}, err
	}
	if err := tensor2d.AddRowVector(z, tensor2d.ToVector(a.vb)); err != nil {
		return blas32.General{}, blas32.General{}, err
	}
	return z, a.act.Forward(z), nil
}

func (a *AutoEncoder) Reconstruct(x blas32.General) (blas32.General, error) {
	_, y, err := a.encode(x)
	if err != nil {
		return blas32.General{}, err
	}
	_, recon, err := a.decode(y)
	return recon, err
}

func (a *AutoEncoder) ReconstructionScore(x tensor4d.General) (float64, error) {
	if err := a.checkInput(x); err != nil {
		return 0.0, err
	}
	v := x.ToGeneral()
	recon, err := a.Reconstruct(v)
	if err != nil {
		return 0.0, err
	}
	score, err := a.conf.LossFunction.Score(v, recon)
	if err != nil {
		return 0.0, err
	}
	return score + a.Penalty(), nil
}

// ReconstructionGradient scores the reconstruction of corrupted against x
// and differentiates it through both uses of the tied weights.
func (a *AutoEncoder) ReconstructionGradient(x, corrupted blas32.General) (float64, []float32, error) {
	z1, y, err := a.encode(corrupted)
	if err != nil {
		return 0.0, nil, err
	}
	z2, recon, err := a.decode(y)
	if err != nil {
		return 0.0, nil, err
	}
	score, err := a.conf.LossFunction.Score(x, recon)
	if err != nil {
		return 0.0, nil, err
	}

	dz2, err := lossfunc.OutputDelta(a.conf.LossFunction, a.act, x, z2, recon)
	if err != nil {
		return 0.0, nil, err
	}
	dvb := blas32.General{Rows: 1, Cols: dz2.Cols, Stride: dz2.Cols, Data: tensor2d.Sum0(dz2).Data}
	// decoder half: dz2' y
	dW, err := tensor2d.Dot(blas.Trans, blas.NoTrans, dz2, y)
	if err != nil {
		return 0.0, nil, err
	}

	dy, err := tensor2d.Dot(blas.NoTrans, blas.NoTrans, dz2, a.w)
	if err != nil {
		return 0.0, nil, err
	}
	dz1, err := a.act.Backward(z1, y, dy)
	if err != nil {
		return 0.0, nil, err
	}
	db := blas32.General{Rows: 1, Cols: dz1.Cols, Stride: dz1.Cols, Data: tensor2d.Sum0(dz1).Data}
	// encoder half: corrupted' dz1
	dWEnc, err := tensor2d.Dot(blas.Trans, blas.NoTrans, corrupted, dz1)
	if err != nil {
		return 0.0, nil, err
	}
	if err := tensor2d.Axpy(1.0, dWEnc, dW); err != nil {
		return 0.0, nil, err
	}
	if err := a.regularize(dW); err != nil {
		return 0.0, nil, err
	}

	grads := ParamTable{{Key: WeightKey, Value: dW}, {Key: BiasKey, Value: db}, {Key: VisibleBiasKey, Value: dvb}}
	return score + a.Penalty(), a.params.Gradient(grads), nil
}

// Pretrain corrupts x once and minimizes the reconstruction score.
func (a *AutoEncoder) Pretrain(x tensor4d.General) (float64, error) {
	if err := a.checkInput(x); err != nil {
		return 0.0, err
	}
	v := x.ToGeneral()
	corrupted := a.Corrupt(v)
	model := &objective{layer: a, eval: func() (float64, []float32, error) {
		return a.ReconstructionGradient(v, corrupted)
	}}
	return a.solver().Optimize(model)
}

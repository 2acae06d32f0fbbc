package lossfunc

import (
	"math"
	"slices"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/sw965/crowdl/blas32/tensor/2d"
	"github.com/sw965/crowdl/nn/activation"
	"gonum.org/v1/gonum/blas/blas32"
)

var ErrUnknown = errors.New("lossfunc: unknown loss function")

type LossFunction string

const (
	MSE                         LossFunction = "MSE"
	EXPLL                       LossFunction = "EXPLL"
	XENT                        LossFunction = "XENT"
	MCXENT                      LossFunction = "MCXENT"
	RMSE_XENT                   LossFunction = "RMSE_XENT"
	SQUARED_LOSS                LossFunction = "SQUARED_LOSS"
	RECONSTRUCTION_CROSSENTROPY LossFunction = "RECONSTRUCTION_CROSSENTROPY"
	NEGATIVELOGLIKELIHOOD       LossFunction = "NEGATIVELOGLIKELIHOOD"
)

var all = []LossFunction{
	MSE, EXPLL, XENT, MCXENT, RMSE_XENT, SQUARED_LOSS, RECONSTRUCTION_CROSSENTROPY, NEGATIVELOGLIKELIHOOD,
}

func All() []LossFunction {
	return slices.Clone(all)
}

func (l LossFunction) Valid() bool {
	return slices.Contains(all, l)
}

const eps = 1e-7

func clip(y float32) float32 {
	return math32.Min(math32.Max(y, eps), 1.0-eps)
}

func check(l LossFunction, labels, output blas32.General) error {
	if !l.Valid() {
		return errors.Wrapf(ErrUnknown, "%q", string(l))
	}
	if !tensor2d.SameShape(labels, output) {
		return errors.Wrapf(tensor2d.ErrShape, "%s: labels %dx%d, output %dx%d", l, labels.Rows, labels.Cols, output.Rows, output.Cols)
	}
	return nil
}

func sumSquares(labels, output blas32.General) float64 {
	sum := 0.0
	for i := range output.Data {
		diff := float64(output.Data[i] - labels.Data[i])
		sum += diff * diff
	}
	return sum
}

// Score is the loss averaged over the rows (examples) of the batch.
func (l LossFunction) Score(labels, output blas32.General) (float64, error) {
	if err := check(l, labels, output); err != nil {
		return 0.0, err
	}
	n := float64(output.Rows)
	if n == 0 {
		return 0.0, nil
	}

	sum := 0.0
	switch l {
	case MSE:
		sum = 0.5 * sumSquares(labels, output)
	case SQUARED_LOSS:
		sum = sumSquares(labels, output)
	case RMSE_XENT:
		return math.Sqrt(sumSquares(labels, output) / n), nil
	case EXPLL:
		for i, y := range output.Data {
			sum += float64(y - labels.Data[i]*math32.Log(clip(y)))
		}
	case XENT, RECONSTRUCTION_CROSSENTROPY:
		for i, y := range output.Data {
			t := labels.Data[i]
			y = clip(y)
			sum -= float64(t*math32.Log(y) + (1.0-t)*math32.Log(1.0-y))
		}
	case MCXENT, NEGATIVELOGLIKELIHOOD:
		for i, y := range output.Data {
			sum -= float64(labels.Data[i] * math32.Log(clip(y)))
		}
	}
	return sum / n, nil
}

// Gradient returns dScore/doutput.
func (l LossFunction) Gradient(labels, output blas32.General) (blas32.General, error) {
	if err := check(l, labels, output); err != nil {
		return blas32.General{}, err
	}
	grad := tensor2d.NewZerosLike(output)
	if output.Rows == 0 {
		return grad, nil
	}
	n := float32(output.Rows)

	switch l {
	case MSE:
		for i, y := range output.Data {
			grad.Data[i] = (y - labels.Data[i]) / n
		}
	case SQUARED_LOSS:
		for i, y := range output.Data {
			grad.Data[i] = 2.0 * (y - labels.Data[i]) / n
		}
	case RMSE_XENT:
		rmse := float32(math.Sqrt(sumSquares(labels, output) / float64(n)))
		if rmse == 0 {
			return grad, nil
		}
		for i, y := range output.Data {
			grad.Data[i] = (y - labels.Data[i]) / (n * rmse)
		}
	case EXPLL:
		for i, y := range output.Data {
			grad.Data[i] = (1.0 - labels.Data[i]/clip(y)) / n
		}
	case XENT, RECONSTRUCTION_CROSSENTROPY:
		for i, y := range output.Data {
			y = clip(y)
			grad.Data[i] = (y - labels.Data[i]) / (y * (1.0 - y)) / n
		}
	case MCXENT, NEGATIVELOGLIKELIHOOD:
		for i, y := range output.Data {
			grad.Data[i] = -labels.Data[i] / clip(y) / n
		}
	}
	return grad, nil
}

// OutputDelta returns dScore/dz for y = act(z).
// Softmax with MCXENT/NLL and sigmoid with XENT collapse to (y - t) / n.
func OutputDelta(l LossFunction, act activation.Function, labels, z, y blas32.General) (blas32.General, error) {
	if err := check(l, labels, y); err != nil {
		return blas32.General{}, err
	}

	name := act.Name()
	shortcut := (name == activation.Softmax.Name() && (l == MCXENT || l == NEGATIVELOGLIKELIHOOD)) ||
		(name == activation.SigmoidFunc.Name() && (l == XENT || l == RECONSTRUCTION_CROSSENTROPY))
	if shortcut {
		delta := tensor2d.NewZerosLike(y)
		if y.Rows == 0 {
			return delta, nil
		}
		n := float32(y.Rows)
		for i, e := range y.Data {
			delta.Data[i] = (e - labels.Data[i]) / n
		}
		return delta, nil
	}

	dy, err := l.Gradient(labels, y)
	if err != nil {
		return blas32.General{}, err
	}
	return act.Backward(z, y, dy)
}

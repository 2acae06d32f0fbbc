package activation

import (
	"slices"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/sw965/crowdl/blas32/tensor/2d"
	"golang.org/x/exp/maps"
	"gonum.org/v1/gonum/blas/blas32"
)

var ErrUnknown = errors.New("activation: unknown function")

// Function maps the pre-activations z of a batch (one example per row) to y.
// Backward returns dL/dz given dL/dy, with z and y from the same Forward call.
type Function interface {
	Name() string
	Forward(z blas32.General) blas32.General
	Backward(z, y, dy blas32.General) (blas32.General, error)
}

type elementwise struct {
	name       string
	f          func(float32) float32
	derivative func(z, y float32) float32
}

func (e elementwise) Name() string {
	return e.name
}

func (e elementwise) Forward(z blas32.General) blas32.General {
	return tensor2d.Apply(z, e.f)
}

func (e elementwise) Backward(z, y, dy blas32.General) (blas32.General, error) {
	if !tensor2d.SameShape(z, dy) || !tensor2d.SameShape(y, dy) {
		return blas32.General{}, errors.Wrapf(tensor2d.ErrShape, "%s backward", e.name)
	}
	dz := tensor2d.NewZerosLike(dy)
	for i := range dz.Data {
		dz.Data[i] = dy.Data[i] * e.derivative(z.Data[i], y.Data[i])
	}
	return dz, nil
}

func Sigmoid(x float32) float32 {
	return 1.0 / (1.0 + math32.Exp(-x))
}

func ReLU(x float32) float32 {
	return math32.Max(x, 0.0)
}

var (
	Linear Function = elementwise{
		name:       "linear",
		f:          func(x float32) float32 { return x },
		derivative: func(_, _ float32) float32 { return 1.0 },
	}

	SigmoidFunc Function = elementwise{
		name:       "sigmoid",
		f:          Sigmoid,
		derivative: func(_, y float32) float32 { return y * (1.0 - y) },
	}

	Tanh Function = elementwise{
		name:       "tanh",
		f:          math32.Tanh,
		derivative: func(_, y float32) float32 { return 1.0 - y*y },
	}

	ReLUFunc Function = elementwise{
		name: "relu",
		f:    ReLU,
		derivative: func(z, _ float32) float32 {
			if z > 0 {
				return 1.0
			}
			return 0.0
		},
	}

	SoftPlus Function = elementwise{
		name: "softplus",
		f: func(x float32) float32 {
			// オーバーフロー対策
			if x > 20 {
				return x
			}
			return math32.Log1p(math32.Exp(x))
		},
		derivative: func(z, _ float32) float32 { return Sigmoid(z) },
	}

	HardTanh Function = elementwise{
		name: "hardtanh",
		f: func(x float32) float32 {
			return math32.Max(-1.0, math32.Min(1.0, x))
		},
		derivative: func(z, _ float32) float32 {
			if z > -1.0 && z < 1.0 {
				return 1.0
			}
			return 0.0
		},
	}
)

type softmax struct{}

var Softmax Function = softmax{}

func (softmax) Name() string {
	return "softmax"
}

func (softmax) Forward(z blas32.General) blas32.General {
	y := tensor2d.NewZerosLike(z)
	for r := 0; r < z.Rows; r++ {
		zr := tensor2d.Row(z, r)
		yr := tensor2d.Row(y, r)
		maxZ := slices.Max(zr) // オーバーフロー対策
		sum := float32(0.0)
		for i, e := range zr {
			yr[i] = math32.Exp(e - maxZ)
			sum += yr[i]
		}
		for i := range yr {
			yr[i] /= sum
		}
	}
	return y
}

// Backward is the row-wise Jacobian-vector product dz = y * (dy - <dy, y>).
func (softmax) Backward(_, y, dy blas32.General) (blas32.General, error) {
	if !tensor2d.SameShape(y, dy) {
		return blas32.General{}, errors.Wrap(tensor2d.ErrShape, "softmax backward")
	}
	dz := tensor2d.NewZerosLike(dy)
	for r := 0; r < y.Rows; r++ {
		yr := tensor2d.Row(y, r)
		dyr := tensor2d.Row(dy, r)
		dzr := tensor2d.Row(dz, r)
		dot := float32(0.0)
		for i := range yr {
			dot += yr[i] * dyr[i]
		}
		for i := range yr {
			dzr[i] = yr[i] * (dyr[i] - dot)
		}
	}
	return dz, nil
}

var registry = map[string]Function{
	Linear.Name():      Linear,
	SigmoidFunc.Name(): SigmoidFunc,
	Tanh.Name():        Tanh,
	ReLUFunc.Name():    ReLUFunc,
	SoftPlus.Name():    SoftPlus,
	HardTanh.Name():    HardTanh,
	Softmax.Name():     Softmax,
}

func Get(name string) (Function, error) {
	f, ok := registry[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknown, "%q", name)
	}
	return f, nil
}

func Names() []string {
	names := maps.Keys(registry)
	slices.Sort(names)
	return names
}

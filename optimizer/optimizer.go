package optimizer

import (
	"github.com/pkg/errors"
	"github.com/sw965/crowdl/nn/conf"
)

type Momentum struct {
	Momentum float64
	Velocity []float64
}

func NewMomentum(momentum float64, n int) *Momentum {
	return &Momentum{Momentum: momentum, Velocity: make([]float64, n)}
}

// Train advances the velocity and adds it to w.
func (opt *Momentum) Train(w, grad []float64, lr float64) {
	GradientStepFunction{}.Step(w, opt.Direction(grad, lr), 1.0)
}

// Direction advances the velocity without touching the parameters and returns a copy of it.
func (opt *Momentum) Direction(grad []float64, lr float64) []float64 {
	dir := make([]float64, len(grad))
	for i := range grad {
		opt.Velocity[i] = (opt.Momentum * opt.Velocity[i]) - (lr * grad[i])
		dir[i] = opt.Velocity[i]
	}
	return dir
}

func (opt *Momentum) Reset() {
	for i := range opt.Velocity {
		opt.Velocity[i] = 0.0
	}
}

// StepFunction moves x along dir.
type StepFunction interface {
	Step(x, dir []float64, step float64)
}

// DefaultStepFunction scales dir by the line-search step.
type DefaultStepFunction struct{}

func (DefaultStepFunction) Step(x, dir []float64, step float64) {
	for i := range x {
		x[i] += step * dir[i]
	}
}

// GradientStepFunction adds dir as is.
type GradientStepFunction struct{}

func (GradientStepFunction) Step(x, dir []float64, _ float64) {
	for i := range x {
		x[i] += dir[i]
	}
}

// NegativeGradientStepFunction subtracts dir, for directions that are raw gradients.
type NegativeGradientStepFunction struct{}

func (NegativeGradientStepFunction) Step(x, dir []float64, _ float64) {
	for i := range x {
		x[i] -= dir[i]
	}
}

func NewStepFunction(kind conf.StepFunction) (StepFunction, error) {
	switch kind {
	case conf.DefaultStepFunction, "":
		return DefaultStepFunction{}, nil
	case conf.GradientStepFunction:
		return GradientStepFunction{}, nil
	case conf.NegativeGradientStepFunction:
		return NegativeGradientStepFunction{}, nil
	}
	return nil, errors.Errorf("optimizer: unknown step function %q", kind)
}

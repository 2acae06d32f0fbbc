package solver

import (
	"log/slog"
	"math"

	"github.com/pkg/errors"
	"github.com/sw965/crowdl/nn/conf"
	"github.com/sw965/crowdl/optimizer"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// Model is anything whose flattened parameters can be scored and differentiated.
// ScoreAndGradient evaluates at the parameters last passed to SetParams.
type Model interface {
	NumParams() int
	Params() []float64
	SetParams(x []float64) error
	ScoreAndGradient() (float64, []float64, error)
}

type Solver struct {
	conf      *conf.NeuralNetConfiguration
	listeners []IterationListener
	logger    *slog.Logger
}

func New(c *conf.NeuralNetConfiguration, listeners []IterationListener, logger *slog.Logger) *Solver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Solver{conf: c, listeners: listeners, logger: logger}
}

func (s *Solver) notify(iteration int, score float64) {
	for _, l := range s.listeners {
		l.IterationDone(iteration, score)
	}
}

func (s *Solver) constrain(grad []float64) {
	if !s.conf.ConstrainGradientToUnitNorm {
		return
	}
	norm := floats.Norm(grad, 2)
	if norm > 0.0 {
		floats.Scale(1.0/norm, grad)
	}
}

// evaluator remembers the point it last evaluated, since gonum asks for
// Func and Grad at the same x separately. It also keeps the best point seen.
type evaluator struct {
	s     *Solver
	model Model

	x     []float64
	score float64
	grad  []float64
	err   error

	bestX     []float64
	bestScore float64
}

func newEvaluator(s *Solver, model Model) *evaluator {
	return &evaluator{s: s, model: model, bestScore: math.Inf(1)}
}

func (e *evaluator) eval(x []float64) (float64, []float64) {
	if e.x != nil && floats.Equal(e.x, x) {
		return e.score, e.grad
	}
	if e.err != nil {
		return math.Inf(1), make([]float64, len(x))
	}

	e.x = append(e.x[:0], x...)
	if err := e.model.SetParams(x); err != nil {
		e.err = err
		return math.Inf(1), make([]float64, len(x))
	}
	score, grad, err := e.model.ScoreAndGradient()
	if err != nil {
		e.err = err
		return math.Inf(1), make([]float64, len(x))
	}
	if math.IsNaN(score) {
		e.err = errors.New("solver: score is NaN")
		return math.Inf(1), make([]float64, len(x))
	}
	e.s.constrain(grad)
	e.score, e.grad = score, grad

	if score < e.bestScore {
		e.bestScore = score
		e.bestX = append(e.bestX[:0], x...)
	}
	return score, grad
}

type recorder struct {
	s *Solver
}

func (r *recorder) Init() error {
	return nil
}

func (r *recorder) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if op&optimize.MajorIteration != 0 {
		r.s.notify(stats.MajorIterations, loc.F)
	}
	return nil
}

func (s *Solver) method() (optimize.Method, error) {
	switch s.conf.OptimizationAlgo {
	case conf.GradientDescent:
		return &optimize.GradientDescent{}, nil
	case conf.ConjugateGradient:
		return &optimize.CG{}, nil
	case conf.LBFGS:
		return &optimize.LBFGS{Store: 10}, nil
	}
	return nil, errors.Errorf("solver: no gonum method for %s", s.conf.OptimizationAlgo)
}

// earlyStop reports the line-search failures gonum raises when the
// objective stops decreasing. CD gradients are not exact, so these end
// optimization rather than fail it.
func earlyStop(err error) bool {
	return errors.Is(err, optimize.ErrLinesearcherFailure) ||
		errors.Is(err, optimize.ErrNoProgress) ||
		errors.Is(err, optimize.ErrNonDescentDirection)
}

// Optimize runs conf.Iterations iterations of the configured algorithm and
// leaves model at the best parameters found. It returns their score.
func (s *Solver) Optimize(model Model) (float64, error) {
	if model.NumParams() == 0 {
		score, _, err := model.ScoreAndGradient()
		return score, err
	}
	if s.conf.OptimizationAlgo == conf.IterationGradientDescent {
		return s.iterate(model)
	}

	method, err := s.method()
	if err != nil {
		return 0.0, err
	}

	e := newEvaluator(s, model)
	init := model.Params()
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			f, _ := e.eval(x)
			return f
		},
		Grad: func(grad, x []float64) {
			_, g := e.eval(x)
			copy(grad, g)
		},
	}
	settings := &optimize.Settings{
		MajorIterations: s.conf.Iterations,
		Converger:       &optimize.FunctionConverge{Absolute: 1e-10, Iterations: 20},
		Recorder:        &recorder{s: s},
	}

	result, err := optimize.Minimize(problem, init, settings, method)
	if e.err != nil {
		return 0.0, e.err
	}
	if err != nil {
		if !earlyStop(err) {
			return 0.0, errors.Wrap(err, "solver")
		}
		s.logger.Debug("line search stopped early", "algo", s.conf.OptimizationAlgo, "error", err)
	}
	if result != nil {
		s.logger.Debug("optimization finished", "algo", s.conf.OptimizationAlgo, "status", result.Status.String(), "iterations", result.MajorIterations)
	}

	if e.bestX == nil {
		e.bestX = init
	}
	if err := model.SetParams(e.bestX); err != nil {
		return 0.0, err
	}
	score, _, err := model.ScoreAndGradient()
	return score, err
}

// iterate is plain iterative descent. DEFAULT backtracks on the step size,
// GRADIENT applies the momentum velocity as is and NEGATIVE_GRADIENT
// subtracts learningRate * gradient.
func (s *Solver) iterate(model Model) (float64, error) {
	step, err := optimizer.NewStepFunction(s.conf.StepFunction)
	if err != nil {
		return 0.0, err
	}
	lr := float64(s.conf.LearningRate)
	x := model.Params()
	momentum := optimizer.NewMomentum(float64(s.conf.Momentum), len(x))

	score, grad, err := model.ScoreAndGradient()
	if err != nil {
		return 0.0, err
	}

	for i := 0; i < s.conf.Iterations; i++ {
		s.constrain(grad)

		switch step.(type) {
		case optimizer.NegativeGradientStepFunction:
			dir := make([]float64, len(grad))
			floats.ScaleTo(dir, lr, grad)
			step.Step(x, dir, 1.0)
		case optimizer.GradientStepFunction:
			momentum.Train(x, grad, lr)
		default:
			dir := momentum.Direction(grad, lr)
			accepted := false
			for size := 1.0; size > 1e-3; size *= 0.5 {
				candidate := make([]float64, len(x))
				copy(candidate, x)
				step.Step(candidate, dir, size)
				if err := model.SetParams(candidate); err != nil {
					return 0.0, err
				}
				f, _, err := model.ScoreAndGradient()
				if err != nil {
					return 0.0, err
				}
				if f <= score {
					x = candidate
					accepted = true
					break
				}
			}
			if !accepted {
				momentum.Reset()
			}
		}

		if err := model.SetParams(x); err != nil {
			return 0.0, err
		}
		score, grad, err = model.ScoreAndGradient()
		if err != nil {
			return 0.0, err
		}
		s.notify(i+1, score)
	}
	return score, nil
}

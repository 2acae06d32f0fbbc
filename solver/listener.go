package solver

import (
	"log/slog"
)

type IterationListener interface {
	IterationDone(iteration int, score float64)
}

type ListenerFunc func(iteration int, score float64)

func (f ListenerFunc) IterationDone(iteration int, score float64) {
	f(iteration, score)
}

// ScoreIterationListener logs the score every PrintIterations iterations.
type ScoreIterationListener struct {
	PrintIterations int
	Logger          *slog.Logger
}

func NewScoreIterationListener(printIterations int) *ScoreIterationListener {
	if printIterations <= 0 {
		printIterations = 1
	}
	return &ScoreIterationListener{PrintIterations: printIterations, Logger: slog.Default()}
}

func (l *ScoreIterationListener) IterationDone(iteration int, score float64) {
	if iteration%l.PrintIterations != 0 {
		return
	}
	l.Logger.Info("score at iteration", "iteration", iteration, "score", score)
}

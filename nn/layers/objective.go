package layers

import (
	"github.com/sw965/crowdl/blas32/vector"
	"gonum.org/v1/gonum/blas/blas32"
)

// objective adapts a layer and one of its scores to solver.Model.
type objective struct {
	layer Layer
	eval  func() (float64, []float32, error)
}

func wrap32(p []float32) blas32.Vector {
	return blas32.Vector{N: len(p), Inc: 1, Data: p}
}

func (o *objective) NumParams() int {
	return o.layer.NumParams()
}

func (o *objective) Params() []float64 {
	return vector.ToFloat64(wrap32(o.layer.Params()))
}

func (o *objective) SetParams(x []float64) error {
	return o.layer.SetParams(vector.FromFloat64(x).Data)
}

func (o *objective) ScoreAndGradient() (float64, []float64, error) {
	score, grad, err := o.eval()
	if err != nil {
		return 0.0, nil, err
	}
	return score, vector.ToFloat64(wrap32(grad)), nil
}

package layers

import (
	"github.com/pkg/errors"
	"github.com/sw965/crowdl/blas32/tensor/2d"
	"gonum.org/v1/gonum/blas/blas32"
)

type ParamKey string

const (
	WeightKey      ParamKey = "W"
	BiasKey        ParamKey = "b"
	VisibleBiasKey ParamKey = "vb"
)

type Param struct {
	Key   ParamKey
	Value blas32.General
}

// ParamTable is ordered. Params and gradients are flattened in this order.
type ParamTable []Param

func (t ParamTable) Get(key ParamKey) (blas32.General, bool) {
	for _, p := range t {
		if p.Key == key {
			return p.Value, true
		}
	}
	return blas32.General{}, false
}

func (t ParamTable) NumParams() int {
	n := 0
	for _, p := range t {
		n += tensor2d.N(p.Value)
	}
	return n
}

func (t ParamTable) Flatten() []float32 {
	flat := make([]float32, 0, t.NumParams())
	for _, p := range t {
		flat = append(flat, tensor2d.Flatten(p.Value).Data...)
	}
	return flat
}

func (t ParamTable) Set(flat []float32) error {
	if len(flat) != t.NumParams() {
		return errors.Errorf("layers: %d params, want %d", len(flat), t.NumParams())
	}
	off := 0
	for _, p := range t {
		for r := 0; r < p.Value.Rows; r++ {
			row := tensor2d.Row(p.Value, r)
			copy(row, flat[off:off+len(row)])
			off += len(row)
		}
	}
	return nil
}

// Gradient flattens grads in the order of t. Keys missing from grads are zero.
func (t ParamTable) Gradient(grads ParamTable) []float32 {
	flat := make([]float32, 0, t.NumParams())
	for _, p := range t {
		if g, ok := grads.Get(p.Key); ok {
			flat = append(flat, tensor2d.Flatten(g).Data...)
		} else {
			flat = append(flat, make([]float32, tensor2d.N(p.Value))...)
		}
	}
	return flat
}

package vector

import (
	"slices"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/blas/blas32"
)

func NewZeros(n int) blas32.Vector {
	return blas32.Vector{
		N:    n,
		Inc:  1,
		Data: make([]float32, n),
	}
}

func NewZerosLike(vec blas32.Vector) blas32.Vector {
	return NewZeros(vec.N)
}

func NewFilled(n int, v float32) blas32.Vector {
	vec := NewZeros(n)
	for i := range vec.Data {
		vec.Data[i] = v
	}
	return vec
}

func Clone(vec blas32.Vector) blas32.Vector {
	return blas32.Vector{
		N:    vec.N,
		Inc:  vec.Inc,
		Data: slices.Clone(vec.Data),
	}
}

func Norm2(vec blas32.Vector) float32 {
	if vec.N == 0 {
		return 0.0
	}
	return blas32.Nrm2(vec)
}

func ArgMax[S ~[]E, E constraints.Ordered](s S) int {
	if len(s) == 0 {
		return -1
	}
	idx := 0
	for i, e := range s {
		if e > s[idx] {
			idx = i
		}
	}
	return idx
}

func ToFloat64(vec blas32.Vector) []float64 {
	y := make([]float64, len(vec.Data))
	for i, e := range vec.Data {
		y[i] = float64(e)
	}
	return y
}

func FromFloat64(x []float64) blas32.Vector {
	vec := NewZeros(len(x))
	for i, e := range x {
		vec.Data[i] = float32(e)
	}
	return vec
}

package tensor2d

import (
	"slices"

	"github.com/pkg/errors"
	"github.com/sw965/crowdl/blas32/vector"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

var ErrShape = errors.New("tensor2d: shape mismatch")

func NewZeros(rows, cols int) blas32.General {
	return blas32.General{
		Rows:   rows,
		Cols:   cols,
		Stride: cols,
		Data:   make([]float32, rows*cols),
	}
}

func NewZerosLike(gen blas32.General) blas32.General {
	return NewZeros(gen.Rows, gen.Cols)
}

func NewFromRows(rows [][]float32) (blas32.General, error) {
	if len(rows) == 0 {
		return NewZeros(0, 0), nil
	}
	cols := len(rows[0])
	gen := NewZeros(len(rows), cols)
	for r, row := range rows {
		if len(row) != cols {
			return blas32.General{}, errors.Wrapf(ErrShape, "row %d has %d cols, want %d", r, len(row), cols)
		}
		copy(gen.Data[r*cols:], row)
	}
	return gen, nil
}

func N(gen blas32.General) int {
	return gen.Rows * gen.Cols
}

func Clone(gen blas32.General) blas32.General {
	return blas32.General{
		Rows:   gen.Rows,
		Cols:   gen.Cols,
		Stride: gen.Stride,
		Data:   slices.Clone(gen.Data),
	}
}

func At(gen blas32.General, row, col int) int {
	return row*gen.Stride + col
}

func Row(gen blas32.General, row int) []float32 {
	offset := row * gen.Stride
	return gen.Data[offset : offset+gen.Cols]
}

func ToVector(gen blas32.General) blas32.Vector {
	return blas32.Vector{
		N:    N(gen),
		Inc:  1,
		Data: gen.Data,
	}
}

func Flatten(gen blas32.General) blas32.Vector {
	return blas32.Vector{
		N:    N(gen),
		Inc:  1,
		Data: slices.Clone(gen.Data),
	}
}

func SameShape(a, b blas32.General) bool {
	return a.Rows == b.Rows && a.Cols == b.Cols
}

func Equal(a, b blas32.General) bool {
	if !SameShape(a, b) {
		return false
	}
	for r := 0; r < a.Rows; r++ {
		if !slices.Equal(Row(a, r), Row(b, r)) {
			return false
		}
	}
	return true
}

func Scal(alpha float32, gen blas32.General) {
	vec := ToVector(gen)
	blas32.Scal(alpha, vec)
}

func Axpy(alpha float32, x, y blas32.General) error {
	if !SameShape(x, y) {
		return errors.Wrapf(ErrShape, "axpy %dx%d into %dx%d", x.Rows, x.Cols, y.Rows, y.Cols)
	}
	if N(x) == 0 {
		return nil
	}
	blas32.Axpy(alpha, ToVector(x), ToVector(y))
	return nil
}

func Sub(a, b blas32.General) (blas32.General, error) {
	y := Clone(a)
	err := Axpy(-1.0, b, y)
	return y, err
}

func MulElem(a, b blas32.General) (blas32.General, error) {
	if !SameShape(a, b) {
		return blas32.General{}, errors.Wrapf(ErrShape, "hadamard %dx%d with %dx%d", a.Rows, a.Cols, b.Rows, b.Cols)
	}
	y := NewZerosLike(a)
	for i := range y.Data {
		y.Data[i] = a.Data[i] * b.Data[i]
	}
	return y, nil
}

func Apply(gen blas32.General, f func(float32) float32) blas32.General {
	y := NewZerosLike(gen)
	for i, e := range gen.Data {
		y.Data[i] = f(e)
	}
	return y
}

func AddRowVector(gen blas32.General, vec blas32.Vector) error {
	if gen.Cols != vec.N {
		return errors.Wrapf(ErrShape, "broadcast vector of %d onto %d cols", vec.N, gen.Cols)
	}
	for r := 0; r < gen.Rows; r++ {
		row := Row(gen, r)
		for c := range row {
			row[c] += vec.Data[c]
		}
	}
	return nil
}

func Sum0(gen blas32.General) blas32.Vector {
	sums := make([]float32, gen.Cols)
	for c := 0; c < gen.Cols; c++ {
		var sum float32
		for r := 0; r < gen.Rows; r++ {
			idx := At(gen, r, c)
			sum += gen.Data[idx]
		}
		sums[c] = sum
	}

	return blas32.Vector{
		N:    gen.Cols,
		Inc:  1,
		Data: sums,
	}
}

func Mean0(gen blas32.General) blas32.Vector {
	sums := Sum0(gen)
	if gen.Rows == 0 {
		return sums
	}
	blas32.Scal(1.0/float32(gen.Rows), sums)
	return sums
}

func Sum1(gen blas32.General) blas32.Vector {
	sums := make([]float32, gen.Rows)
	for r := 0; r < gen.Rows; r++ {
		offset := r * gen.Stride
		var sum float32
		for c := 0; c < gen.Cols; c++ {
			sum += gen.Data[offset+c]
		}
		sums[r] = sum
	}
	return blas32.Vector{
		N:    gen.Rows,
		Inc:  1,
		Data: sums,
	}
}

func ArgMax1(gen blas32.General) []int {
	idxs := make([]int, gen.Rows)
	for r := range idxs {
		idxs[r] = vector.ArgMax(Row(gen, r))
	}
	return idxs
}

func Rows(gen blas32.General, idxs []int) (blas32.General, error) {
	y := NewZeros(len(idxs), gen.Cols)
	for i, idx := range idxs {
		if idx < 0 || idx >= gen.Rows {
			return blas32.General{}, errors.Wrapf(ErrShape, "row %d out of range [0, %d)", idx, gen.Rows)
		}
		copy(Row(y, i), Row(gen, idx))
	}
	return y, nil
}

func Dot(tA, tB blas.Transpose, a, b blas32.General) (blas32.General, error) {
	m, k := a.Rows, a.Cols
	if tA == blas.Trans {
		m, k = k, m
	}
	kb, n := b.Rows, b.Cols
	if tB == blas.Trans {
		kb, n = n, kb
	}
	if k != kb {
		return blas32.General{}, errors.Wrapf(ErrShape, "dot (%dx%d)·(%dx%d)", m, k, kb, n)
	}

	y := NewZeros(m, n)
	if m == 0 || n == 0 || k == 0 {
		return y, nil
	}
	blas32.Gemm(tA, tB, 1.0, a, b, 0.0, y)
	return y, nil
}

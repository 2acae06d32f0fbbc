package tensor4d

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/blas/blas32"
)

var ErrShape = errors.New("tensor4d: shape mismatch")

// Shape is the layout of a single example. A flat vector of n features is Shape{1, 1, n}.
type Shape struct {
	Channels int `yaml:"channels" json:"channels"`
	Rows     int `yaml:"rows" json:"rows"`
	Cols     int `yaml:"cols" json:"cols"`
}

func FlatShape(n int) Shape {
	return Shape{Channels: 1, Rows: 1, Cols: n}
}

func (s Shape) Features() int {
	return s.Channels * s.Rows * s.Cols
}

func (s Shape) IsFlat() bool {
	return s.Channels == 1 && s.Rows == 1
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d)", s.Channels, s.Rows, s.Cols)
}

type General struct {
	Batches       int
	Channels      int
	Rows          int
	Cols          int
	BatchStride   int
	ChannelStride int
	RowStride     int
	Data          []float32
}

func NewZeros(batches, chs, rows, cols int) General {
	rowStride := cols
	chStride := rows * rowStride
	batchStride := chs * chStride
	n := batches * batchStride

	return General{
		Batches:       batches,
		Channels:      chs,
		Rows:          rows,
		Cols:          cols,
		BatchStride:   batchStride,
		ChannelStride: chStride,
		RowStride:     rowStride,
		Data:          make([]float32, n),
	}
}

func NewZerosLike(gen General) General {
	return NewZeros(gen.Batches, gen.Channels, gen.Rows, gen.Cols)
}

func NewZerosShape(batches int, s Shape) General {
	return NewZeros(batches, s.Channels, s.Rows, s.Cols)
}

func wrap(batches, chs, rows, cols int, data []float32) General {
	g := NewZeros(0, chs, rows, cols)
	g.Batches = batches
	g.Data = data
	return g
}

// FromGeneral views every row of gen as a (chs, rows, cols) image. The data is shared.
func FromGeneral(gen blas32.General, chs, rows, cols int) (General, error) {
	if gen.Cols != chs*rows*cols {
		return General{}, errors.Wrapf(ErrShape, "cannot view %d cols as (%d, %d, %d)", gen.Cols, chs, rows, cols)
	}
	data := gen.Data
	if gen.Stride != gen.Cols {
		data = make([]float32, 0, gen.Rows*gen.Cols)
		for r := 0; r < gen.Rows; r++ {
			off := r * gen.Stride
			data = append(data, gen.Data[off:off+gen.Cols]...)
		}
	}
	return wrap(gen.Rows, chs, rows, cols, data[:gen.Rows*gen.Cols]), nil
}

func FromGeneralShape(gen blas32.General, s Shape) (General, error) {
	return FromGeneral(gen, s.Channels, s.Rows, s.Cols)
}

// FromFlat is FromGeneral with Shape{1, 1, gen.Cols}.
func FromFlat(gen blas32.General) General {
	g, _ := FromGeneral(gen, 1, 1, gen.Cols)
	return g
}

// ToGeneral views the tensor as a (Batches x C*H*W) matrix. The data is shared.
func (g General) ToGeneral() blas32.General {
	cols := g.Channels * g.Rows * g.Cols
	return blas32.General{
		Rows:   g.Batches,
		Cols:   cols,
		Stride: cols,
		Data:   g.Data,
	}
}

func (g General) Reshape(chs, rows, cols int) (General, error) {
	if chs*rows*cols != g.Channels*g.Rows*g.Cols {
		return General{}, errors.Wrapf(ErrShape, "cannot reshape %v into (%d, %d, %d)", g.Shape(), chs, rows, cols)
	}
	return wrap(g.Batches, chs, rows, cols, g.Data), nil
}

func (g General) Shape() Shape {
	return Shape{Channels: g.Channels, Rows: g.Rows, Cols: g.Cols}
}

func (g General) N() int {
	return g.Batches * g.Channels * g.Rows * g.Cols
}

func (g General) Clone() General {
	return General{
		Batches:       g.Batches,
		Channels:      g.Channels,
		Rows:          g.Rows,
		Cols:          g.Cols,
		BatchStride:   g.BatchStride,
		ChannelStride: g.ChannelStride,
		RowStride:     g.RowStride,
		Data:          slices.Clone(g.Data),
	}
}

func (g General) At(batch, ch, row, col int) int {
	return (batch * g.BatchStride) + (ch * g.ChannelStride) + (row * g.RowStride) + col
}

func (g General) ToVector() blas32.Vector {
	return blas32.Vector{
		N:    g.N(),
		Inc:  1,
		Data: g.Data,
	}
}

func (g General) Axpy(alpha float32, x General) error {
	if g.N() != x.N() {
		return errors.Wrapf(ErrShape, "axpy %d elements into %d", x.N(), g.N())
	}
	if g.N() == 0 {
		return nil
	}
	blas32.Axpy(alpha, x.ToVector(), g.ToVector())
	return nil
}

// Transpose0231 moves channels last: (B, C, H, W) -> (B, H, W, C).
func (g *General) Transpose0231() General {
	dst := NewZeros(g.Batches, g.Rows, g.Cols, g.Channels)
	idx := 0
	for b := 0; b < g.Batches; b++ {
		for r := 0; r < g.Rows; r++ {
			for col := 0; col < g.Cols; col++ {
				for c := 0; c < g.Channels; c++ {
					dst.Data[idx] = g.Data[g.At(b, c, r, col)]
					idx++
				}
			}
		}
	}
	return dst
}

// Transpose0312 moves the last axis to the front: (B, H, W, C) -> (B, C, H, W).
func (g *General) Transpose0312() General {
	dst := NewZeros(g.Batches, g.Cols, g.Channels, g.Rows)
	idx := 0
	for b := 0; b < g.Batches; b++ {
		for col := 0; col < g.Cols; col++ {
			for c := 0; c < g.Channels; c++ {
				srcBase := g.At(b, c, 0, col)
				for r := 0; r < g.Rows; r++ {
					dst.Data[idx] = g.Data[srcBase+r*g.RowStride]
					idx++
				}
			}
		}
	}
	return dst
}

func (g General) ConvOutputRows(filterRows int) int {
	return g.Rows - filterRows + 1
}

func (g General) ConvOutputCols(filterCols int) int {
	return g.Cols - filterCols + 1
}

// Im2Col lays out every (filterRows x filterCols) patch of every image as one row.
// Rows are ordered (batch, outRow, outCol). Columns are ordered (channel, filterRow, filterCol).
func (g General) Im2Col(filterRows, filterCols int) (blas32.General, error) {
	outRows := g.ConvOutputRows(filterRows)
	outCols := g.ConvOutputCols(filterCols)
	if outRows <= 0 || outCols <= 0 {
		return blas32.General{}, errors.Wrapf(ErrShape, "filter %dx%d larger than image %dx%d", filterRows, filterCols, g.Rows, g.Cols)
	}

	chs := g.Channels
	newCols := chs * filterRows * filterCols
	newData := make([]float32, g.Batches*outRows*outCols*newCols)
	newIdx := 0

	for b := 0; b < g.Batches; b++ {
		for or := 0; or < outRows; or++ {
			for oc := 0; oc < outCols; oc++ {
				for ch := 0; ch < chs; ch++ {
					for fr := 0; fr < filterRows; fr++ {
						for fc := 0; fc < filterCols; fc++ {
							newData[newIdx] = g.Data[g.At(b, ch, fr+or, fc+oc)]
							newIdx++
						}
					}
				}
			}
		}
	}

	return blas32.General{
		Rows:   g.Batches * outRows * outCols,
		Cols:   newCols,
		Stride: newCols,
		Data:   newData,
	}, nil
}

// Col2Im is the adjoint of Im2Col: overlapping patches are summed back into an image of imgShape.
func Col2Im(col blas32.General, batches int, imgShape Shape, filterRows, filterCols int) (General, error) {
	img := NewZerosShape(batches, imgShape)
	outRows := img.ConvOutputRows(filterRows)
	outCols := img.ConvOutputCols(filterCols)
	chs := imgShape.Channels

	if col.Rows != batches*outRows*outCols {
		return General{}, errors.Wrapf(ErrShape, "col2im: %d rows, want %d", col.Rows, batches*outRows*outCols)
	}
	if col.Cols != chs*filterRows*filterCols {
		return General{}, errors.Wrapf(ErrShape, "col2im: %d cols, want %d", col.Cols, chs*filterRows*filterCols)
	}

	for b := 0; b < batches; b++ {
		for or := 0; or < outRows; or++ {
			for oc := 0; oc < outCols; oc++ {
				rowOff := (b*outRows*outCols + or*outCols + oc) * col.Stride
				colIdx := rowOff
				for ch := 0; ch < chs; ch++ {
					for fr := 0; fr < filterRows; fr++ {
						for fc := 0; fc < filterCols; fc++ {
							img.Data[img.At(b, ch, fr+or, fc+oc)] += col.Data[colIdx]
							colIdx++
						}
					}
				}
			}
		}
	}
	return img, nil
}

package tensor4d

import (
	"github.com/pkg/errors"
)

// ClampWindow shrinks a pooling window that does not fit inside s.
func ClampWindow(s Shape, poolRows, poolCols int) (int, int) {
	return min(poolRows, s.Rows), min(poolCols, s.Cols)
}

// PoolShape is the output of non-overlapping pooling. Trailing rows and cols that do not fill a window are dropped.
func PoolShape(s Shape, poolRows, poolCols int) (Shape, error) {
	if poolRows < 1 || poolCols < 1 {
		return Shape{}, errors.Wrapf(ErrShape, "pooling window %dx%d", poolRows, poolCols)
	}
	return Shape{Channels: s.Channels, Rows: s.Rows / poolRows, Cols: s.Cols / poolCols}, nil
}

// MaxPool also returns, for every output element, the index into g.Data it was taken from.
func (g General) MaxPool(poolRows, poolCols int) (General, []int, error) {
	s, err := PoolShape(g.Shape(), poolRows, poolCols)
	if err != nil {
		return General{}, nil, err
	}
	out := NewZerosShape(g.Batches, s)
	argmax := make([]int, out.N())
	for b := 0; b < out.Batches; b++ {
		for ch := 0; ch < out.Channels; ch++ {
			for or := 0; or < out.Rows; or++ {
				for oc := 0; oc < out.Cols; oc++ {
					best := g.At(b, ch, or*poolRows, oc*poolCols)
					for pr := 0; pr < poolRows; pr++ {
						for pc := 0; pc < poolCols; pc++ {
							idx := g.At(b, ch, or*poolRows+pr, oc*poolCols+pc)
							if g.Data[idx] > g.Data[best] {
								best = idx
							}
						}
					}
					o := out.At(b, ch, or, oc)
					out.Data[o] = g.Data[best]
					argmax[o] = best
				}
			}
		}
	}
	return out, argmax, nil
}

func (g General) SumPool(poolRows, poolCols int) (General, error) {
	s, err := PoolShape(g.Shape(), poolRows, poolCols)
	if err != nil {
		return General{}, err
	}
	out := NewZerosShape(g.Batches, s)
	for b := 0; b < out.Batches; b++ {
		for ch := 0; ch < out.Channels; ch++ {
			for or := 0; or < out.Rows; or++ {
				for oc := 0; oc < out.Cols; oc++ {
					var sum float32
					for pr := 0; pr < poolRows; pr++ {
						for pc := 0; pc < poolCols; pc++ {
							sum += g.Data[g.At(b, ch, or*poolRows+pr, oc*poolCols+pc)]
						}
					}
					out.Data[out.At(b, ch, or, oc)] = sum
				}
			}
		}
	}
	return out, nil
}

// MaxUnpool routes each element of dy back to where MaxPool took it from.
func MaxUnpool(dy General, argmax []int, in Shape) General {
	dx := NewZerosShape(dy.Batches, in)
	for i, idx := range argmax {
		dx.Data[idx] += dy.Data[i]
	}
	return dx
}

// SumUnpool copies each element of dy into every cell of its window.
func SumUnpool(dy General, in Shape, poolRows, poolCols int) General {
	dx := NewZerosShape(dy.Batches, in)
	for b := 0; b < dy.Batches; b++ {
		for ch := 0; ch < dy.Channels; ch++ {
			for or := 0; or < dy.Rows; or++ {
				for oc := 0; oc < dy.Cols; oc++ {
					e := dy.Data[dy.At(b, ch, or, oc)]
					for pr := 0; pr < poolRows; pr++ {
						for pc := 0; pc < poolCols; pc++ {
							dx.Data[dx.At(b, ch, or*poolRows+pr, oc*poolCols+pc)] = e
						}
					}
				}
			}
		}
	}
	return dx
}

package math

import (
	"golang.org/x/exp/constraints"
)

// CentralDifference approximates f'(x) from f(x+h) and f(x-h).
func CentralDifference[X constraints.Float](plusY, minusY, h X) X {
	return (plusY - minusY) / (2.0 * h)
}

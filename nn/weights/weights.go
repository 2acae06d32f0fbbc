package weights

import (
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"github.com/sw965/crowdl/blas32/tensor/2d"
	"github.com/sw965/crowdl/nn/conf"
	"gonum.org/v1/gonum/blas/blas32"
)

func uniform(gen blas32.General, lower, upper float64, rng *rand.Rand) {
	for i := range gen.Data {
		gen.Data[i] = float32(lower + (upper-lower)*rng.Float64())
	}
}

// Init returns an nIn x nOut weight matrix initialized by scheme.
func Init(nIn, nOut int, scheme conf.WeightInit, dist *conf.Distribution, rng *rand.Rand) (blas32.General, error) {
	if nIn <= 0 || nOut <= 0 {
		return blas32.General{}, errors.Errorf("weights: cannot init %dx%d", nIn, nOut)
	}
	w := tensor2d.NewZeros(nIn, nOut)
	fanIn := float64(nIn)
	fanSum := float64(nIn + nOut)

	switch scheme {
	case conf.WeightInitZero:
	case conf.WeightInitVI:
		r := math.Sqrt(6.0) / math.Sqrt(fanSum+1.0)
		uniform(w, -r, r, rng)
	case conf.WeightInitSize:
		r := 1.0 / math.Sqrt(fanIn)
		uniform(w, -r, r, rng)
	case conf.WeightInitNormalized:
		r := math.Sqrt(6.0 / fanSum)
		uniform(w, -r, r, rng)
		tensor2d.Scal(0.5, w)
	case conf.WeightInitUniform:
		r := 1.0 / fanIn
		uniform(w, -r, r, rng)
	case conf.WeightInitDistribution:
		if dist == nil {
			return blas32.General{}, errors.New("weights: DISTRIBUTION without a distribution")
		}
		for i := range w.Data {
			w.Data[i] = dist.Sample(rng)
		}
	default:
		return blas32.General{}, errors.Errorf("weights: unknown scheme %q", scheme)
	}
	return w, nil
}

package rand

import (
	"math/rand/v2"

	"github.com/seehuhn/mt19937"
)

func NewMt19937(seed int64) *rand.Rand {
	src := mt19937.New()
	src.Seed(seed)
	return rand.New(src)
}

func Bernoulli(p float32, rng *rand.Rand) float32 {
	if rng.Float32() < p {
		return 1.0
	}
	return 0.0
}

func NormFloat32(rng *rand.Rand) float32 {
	return float32(rng.NormFloat64())
}

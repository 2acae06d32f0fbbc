package weights_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sw965/crowdl/math/rand"
	"github.com/sw965/crowdl/nn/conf"
	"github.com/sw965/crowdl/nn/weights"
)

func TestInitSchemes(t *testing.T) {
	rng := rand.NewMt19937(3)
	tests := []struct {
		scheme conf.WeightInit
		bound  float64
	}{
		{conf.WeightInitVI, math.Sqrt(6) / math.Sqrt(10+5+1)},
		{conf.WeightInitSize, 1 / math.Sqrt(10)},
		{conf.WeightInitNormalized, 0.5 * math.Sqrt(6.0/15)},
		{conf.WeightInitUniform, 0.1},
		{conf.WeightInitZero, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.scheme), func(t *testing.T) {
			w, err := weights.Init(10, 5, tt.scheme, nil, rng)
			require.NoError(t, err)
			assert.Equal(t, 10, w.Rows)
			assert.Equal(t, 5, w.Cols)
			for _, e := range w.Data {
				assert.LessOrEqual(t, math.Abs(float64(e)), tt.bound+1e-6)
			}
		})
	}
}

func TestInitDistribution(t *testing.T) {
	rng := rand.NewMt19937(3)
	w, err := weights.Init(4, 3, conf.WeightInitDistribution, conf.NewNormalDistribution(1, 1e-5), rng)
	require.NoError(t, err)
	for _, e := range w.Data {
		assert.InDelta(t, 1.0, e, 1e-3)
	}

	_, err = weights.Init(4, 3, conf.WeightInitDistribution, nil, rng)
	assert.Error(t, err)
	_, err = weights.Init(0, 3, conf.WeightInitVI, nil, rng)
	assert.Error(t, err)
}

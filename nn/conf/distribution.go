package conf

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

type DistributionKind string

const (
	NormalKind   DistributionKind = "normal"
	UniformKind  DistributionKind = "uniform"
	BinomialKind DistributionKind = "binomial"
)

// Distribution is used by WeightInitDistribution.
type Distribution struct {
	Kind        DistributionKind `yaml:"kind" json:"kind" validate:"oneof=normal uniform binomial" jsonschema:"enum=normal,enum=uniform,enum=binomial"`
	Mean        float64          `yaml:"mean,omitempty" json:"mean,omitempty"`
	Std         float64          `yaml:"std,omitempty" json:"std,omitempty" validate:"gte=0"`
	Lower       float64          `yaml:"lower,omitempty" json:"lower,omitempty"`
	Upper       float64          `yaml:"upper,omitempty" json:"upper,omitempty" validate:"gtefield=Lower"`
	Trials      int              `yaml:"trials,omitempty" json:"trials,omitempty" validate:"gte=0"`
	Probability float64          `yaml:"probability,omitempty" json:"probability,omitempty" validate:"gte=0,lte=1"`
}

func NewNormalDistribution(mean, std float64) *Distribution {
	return &Distribution{Kind: NormalKind, Mean: mean, Std: std}
}

func NewUniformDistribution(lower, upper float64) *Distribution {
	return &Distribution{Kind: UniformKind, Lower: lower, Upper: upper}
}

func NewBinomialDistribution(trials int, p float64) *Distribution {
	return &Distribution{Kind: BinomialKind, Trials: trials, Probability: p}
}

func (d *Distribution) Sample(rng *rand.Rand) float32 {
	switch d.Kind {
	case NormalKind:
		if d.Std == 0 {
			return float32(d.Mean)
		}
		return float32(distuv.Normal{Mu: d.Mean, Sigma: d.Std, Src: rng}.Rand())
	case UniformKind:
		if d.Upper == d.Lower {
			return float32(d.Lower)
		}
		return float32(distuv.Uniform{Min: d.Lower, Max: d.Upper, Src: rng}.Rand())
	case BinomialKind:
		return float32(distuv.Binomial{N: float64(d.Trials), P: d.Probability, Src: rng}.Rand())
	}
	return 0.0
}

func (d *Distribution) Clone() *Distribution {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

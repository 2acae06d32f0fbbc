package conf

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/sw965/crowdl/nn/activation"
	"github.com/sw965/crowdl/nn/lossfunc"
)

var ErrInvalidConfiguration = errors.New("conf: invalid configuration")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	err := v.RegisterValidation("activation", func(fl validator.FieldLevel) bool {
		_, err := activation.Get(fl.Field().String())
		return err == nil
	})
	if err != nil {
		panic(err.Error())
	}
	err = v.RegisterValidation("lossfunc", func(fl validator.FieldLevel) bool {
		return lossfunc.LossFunction(fl.Field().String()).Valid()
	})
	if err != nil {
		panic(err.Error())
	}
	return v
}

// NeuralNetConfiguration holds the hyperparameters of a single layer.
type NeuralNetConfiguration struct {
	Seed                        int64                 `yaml:"seed" json:"seed"`
	Iterations                  int                   `yaml:"iterations" json:"iterations" validate:"gte=1"`
	LearningRate                float32               `yaml:"learningRate" json:"learningRate" validate:"gt=0"`
	Momentum                    float32               `yaml:"momentum" json:"momentum" validate:"gte=0,lt=1"`
	K                           int                   `yaml:"k" json:"k" validate:"gte=1"`
	UseRegularization           bool                  `yaml:"useRegularization" json:"useRegularization"`
	L2                          float32               `yaml:"l2" json:"l2" validate:"gte=0"`
	ConstrainGradientToUnitNorm bool                  `yaml:"constrainGradientToUnitNorm" json:"constrainGradientToUnitNorm"`
	OptimizationAlgo            OptimizationAlgorithm `yaml:"optimizationAlgo" json:"optimizationAlgo" validate:"oneof=GRADIENT_DESCENT CONJUGATE_GRADIENT LBFGS ITERATION_GRADIENT_DESCENT"`
	StepFunction                StepFunction          `yaml:"stepFunction" json:"stepFunction" validate:"oneof=DEFAULT GRADIENT NEGATIVE_GRADIENT"`
	ActivationFunction          string                `yaml:"activationFunction" json:"activationFunction" validate:"activation"`
	LossFunction                lossfunc.LossFunction `yaml:"lossFunction" json:"lossFunction" validate:"lossfunc"`
	WeightInit                  WeightInit            `yaml:"weightInit" json:"weightInit" validate:"oneof=VI ZERO SIZE DISTRIBUTION NORMALIZED UNIFORM"`
	Dist                        *Distribution         `yaml:"dist,omitempty" json:"dist,omitempty"`
	VisibleUnit                 VisibleUnit           `yaml:"visibleUnit" json:"visibleUnit" validate:"oneof=BINARY GAUSSIAN SOFTMAX LINEAR"`
	HiddenUnit                  HiddenUnit            `yaml:"hiddenUnit" json:"hiddenUnit" validate:"oneof=BINARY GAUSSIAN RECTIFIED SOFTMAX"`
	NIn                         int                   `yaml:"nIn" json:"nIn" validate:"gte=0"`
	NOut                        int                   `yaml:"nOut" json:"nOut" validate:"gte=0"`
	ApplySparsity               bool                  `yaml:"applySparsity" json:"applySparsity"`
	Sparsity                    float32               `yaml:"sparsity" json:"sparsity" validate:"gte=0,lte=1"`
	CorruptionLevel             float32               `yaml:"corruptionLevel" json:"corruptionLevel" validate:"gte=0,lt=1"`
	BatchSize                   int                   `yaml:"batchSize" json:"batchSize" validate:"gte=0"`
	FilterSize                  [4]int                `yaml:"filterSize,flow" json:"filterSize" validate:"dive,gte=1"`
	FeatureMapSize              [2]int                `yaml:"featureMapSize,flow" json:"featureMapSize" validate:"dive,gte=1"`
	StrideSize                  [2]int                `yaml:"strideSize,flow" json:"strideSize" validate:"dive,gte=1"`
	ConvolutionType             ConvolutionType       `yaml:"convolutionType" json:"convolutionType" validate:"oneof=MAX AVG SUM NONE"`
	LayerFactory                LayerFactory          `yaml:"layerFactory" json:"layerFactory"`
}

func (c *NeuralNetConfiguration) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrapf(ErrInvalidConfiguration, "%v", err)
	}
	if c.WeightInit == WeightInitDistribution && c.Dist == nil {
		return errors.Wrap(ErrInvalidConfiguration, "weight init DISTRIBUTION without a distribution")
	}
	if c.LayerFactory.Pretrain && !c.LayerFactory.Kind.Pretrainable() {
		return errors.Wrapf(ErrInvalidConfiguration, "%s layers cannot be pretrained", c.LayerFactory.Kind)
	}
	return nil
}

func (c *NeuralNetConfiguration) Clone() *NeuralNetConfiguration {
	clone := *c
	clone.Dist = c.Dist.Clone()
	return &clone
}

// Builder is the fluent form of NeuralNetConfiguration.
type Builder struct {
	conf NeuralNetConfiguration
}

func NewBuilder() *Builder {
	return &Builder{conf: NeuralNetConfiguration{
		Seed:               123,
		Iterations:         1000,
		LearningRate:       1e-1,
		Momentum:           0.5,
		K:                  1,
		OptimizationAlgo:   ConjugateGradient,
		StepFunction:       DefaultStepFunction,
		ActivationFunction: "sigmoid",
		LossFunction:       lossfunc.RECONSTRUCTION_CROSSENTROPY,
		WeightInit:         WeightInitVI,
		VisibleUnit:        VisibleBinary,
		HiddenUnit:         HiddenBinary,
		CorruptionLevel:    0.3,
		BatchSize:          10,
		FilterSize:         [4]int{2, 2, 2, 2},
		FeatureMapSize:     [2]int{2, 2},
		StrideSize:         [2]int{2, 2},
		ConvolutionType:    ConvolutionMax,
		LayerFactory:       LayerFactory{Kind: KindRBM, Pretrain: true},
	}}
}

// FromConfiguration starts a builder from an existing configuration.
func FromConfiguration(c *NeuralNetConfiguration) *Builder {
	return &Builder{conf: *c.Clone()}
}

func (b *Builder) Clone() *Builder {
	return FromConfiguration(&b.conf)
}

func (b *Builder) Seed(seed int64) *Builder {
	b.conf.Seed = seed
	return b
}

func (b *Builder) Iterations(n int) *Builder {
	b.conf.Iterations = n
	return b
}

func (b *Builder) LearningRate(lr float32) *Builder {
	b.conf.LearningRate = lr
	return b
}

func (b *Builder) Momentum(m float32) *Builder {
	b.conf.Momentum = m
	return b
}

func (b *Builder) K(k int) *Builder {
	b.conf.K = k
	return b
}

func (b *Builder) Regularization(use bool) *Builder {
	b.conf.UseRegularization = use
	return b
}

func (b *Builder) L2(l2 float32) *Builder {
	b.conf.L2 = l2
	return b
}

func (b *Builder) ConstrainGradientToUnitNorm(constrain bool) *Builder {
	b.conf.ConstrainGradientToUnitNorm = constrain
	return b
}

func (b *Builder) OptimizationAlgo(algo OptimizationAlgorithm) *Builder {
	b.conf.OptimizationAlgo = algo
	return b
}

func (b *Builder) StepFunction(f StepFunction) *Builder {
	b.conf.StepFunction = f
	return b
}

func (b *Builder) ActivationFunction(name string) *Builder {
	b.conf.ActivationFunction = name
	return b
}

func (b *Builder) LossFunction(l lossfunc.LossFunction) *Builder {
	b.conf.LossFunction = l
	return b
}

func (b *Builder) WeightInit(w WeightInit) *Builder {
	b.conf.WeightInit = w
	return b
}

func (b *Builder) Dist(d *Distribution) *Builder {
	b.conf.Dist = d.Clone()
	return b
}

func (b *Builder) VisibleUnit(u VisibleUnit) *Builder {
	b.conf.VisibleUnit = u
	return b
}

func (b *Builder) HiddenUnit(u HiddenUnit) *Builder {
	b.conf.HiddenUnit = u
	return b
}

func (b *Builder) NIn(n int) *Builder {
	b.conf.NIn = n
	return b
}

func (b *Builder) NOut(n int) *Builder {
	b.conf.NOut = n
	return b
}

func (b *Builder) ApplySparsity(apply bool) *Builder {
	b.conf.ApplySparsity = apply
	return b
}

func (b *Builder) Sparsity(target float32) *Builder {
	b.conf.Sparsity = target
	return b
}

func (b *Builder) CorruptionLevel(level float32) *Builder {
	b.conf.CorruptionLevel = level
	return b
}

func (b *Builder) BatchSize(n int) *Builder {
	b.conf.BatchSize = n
	return b
}

// FilterSize is (numFeatureMaps, channels, rows, cols).
func (b *Builder) FilterSize(maps, chs, rows, cols int) *Builder {
	b.conf.FilterSize = [4]int{maps, chs, rows, cols}
	return b
}

func (b *Builder) FeatureMapSize(rows, cols int) *Builder {
	b.conf.FeatureMapSize = [2]int{rows, cols}
	return b
}

func (b *Builder) StrideSize(rows, cols int) *Builder {
	b.conf.StrideSize = [2]int{rows, cols}
	return b
}

func (b *Builder) ConvolutionType(t ConvolutionType) *Builder {
	b.conf.ConvolutionType = t
	return b
}

func (b *Builder) LayerFactory(f LayerFactory) *Builder {
	b.conf.LayerFactory = f
	return b
}

func (b *Builder) Build() (*NeuralNetConfiguration, error) {
	c := b.conf.Clone()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (b *Builder) List(n int) *ListBuilder {
	return newListBuilder(b, n)
}

package conf

import "slices"

type OptimizationAlgorithm string

const (
	GradientDescent          OptimizationAlgorithm = "GRADIENT_DESCENT"
	ConjugateGradient        OptimizationAlgorithm = "CONJUGATE_GRADIENT"
	LBFGS                    OptimizationAlgorithm = "LBFGS"
	IterationGradientDescent OptimizationAlgorithm = "ITERATION_GRADIENT_DESCENT"
)

type WeightInit string

const (
	WeightInitVI           WeightInit = "VI"
	WeightInitZero         WeightInit = "ZERO"
	WeightInitSize         WeightInit = "SIZE"
	WeightInitDistribution WeightInit = "DISTRIBUTION"
	WeightInitNormalized   WeightInit = "NORMALIZED"
	WeightInitUniform      WeightInit = "UNIFORM"
)

type VisibleUnit string

const (
	VisibleBinary   VisibleUnit = "BINARY"
	VisibleGaussian VisibleUnit = "GAUSSIAN"
	VisibleSoftmax  VisibleUnit = "SOFTMAX"
	VisibleLinear   VisibleUnit = "LINEAR"
)

type HiddenUnit string

const (
	HiddenBinary    HiddenUnit = "BINARY"
	HiddenGaussian  HiddenUnit = "GAUSSIAN"
	HiddenRectified HiddenUnit = "RECTIFIED"
	HiddenSoftmax   HiddenUnit = "SOFTMAX"
)

type ConvolutionType string

const (
	ConvolutionMax  ConvolutionType = "MAX"
	ConvolutionAvg  ConvolutionType = "AVG"
	ConvolutionSum  ConvolutionType = "SUM"
	ConvolutionNone ConvolutionType = "NONE"
)

type StepFunction string

const (
	DefaultStepFunction          StepFunction = "DEFAULT"
	GradientStepFunction         StepFunction = "GRADIENT"
	NegativeGradientStepFunction StepFunction = "NEGATIVE_GRADIENT"
)

type LayerKind string

const (
	KindRBM                   LayerKind = "RBM"
	KindAutoEncoder           LayerKind = "AUTOENCODER"
	KindOutput                LayerKind = "OUTPUT"
	KindConvolution           LayerKind = "CONVOLUTION"
	KindSubsampling           LayerKind = "SUBSAMPLING"
	KindConvolutionDownSample LayerKind = "CONVOLUTION_DOWNSAMPLE"
)

var layerKinds = []LayerKind{
	KindRBM, KindAutoEncoder, KindOutput, KindConvolution, KindSubsampling, KindConvolutionDownSample,
}

func (k LayerKind) Valid() bool {
	return slices.Contains(layerKinds, k)
}

func (k LayerKind) Pretrainable() bool {
	return k == KindRBM || k == KindAutoEncoder
}

// LayerFactory names the layer a configuration builds. Pretrain marks layers
// that are trained unsupervised before finetuning.
type LayerFactory struct {
	Kind     LayerKind `yaml:"kind" json:"kind" validate:"oneof=RBM AUTOENCODER OUTPUT CONVOLUTION SUBSAMPLING CONVOLUTION_DOWNSAMPLE"`
	Pretrain bool      `yaml:"pretrain" json:"pretrain"`
}

package preprocessor

import (
	"github.com/pkg/errors"
	"github.com/sw965/crowdl/blas32/tensor/4d"
)

var ErrUnknownKind = errors.New("preprocessor: unknown kind")

// Processor reshapes activations between layers. Every processor here is a pure reshape,
// so Backprop only restores the incoming layout.
type Processor interface {
	PreProcess(x tensor4d.General) (tensor4d.General, error)
	Backprop(epsilon tensor4d.General, in tensor4d.Shape) (tensor4d.General, error)
	OutputShape(in tensor4d.Shape) (tensor4d.Shape, error)
	Spec() Spec
}

const (
	KindConvolutionInput = "convolution_input"
	KindConvolutionPost  = "convolution_post"
	KindComposable       = "composable"
)

// Spec is the serialized form of a Processor.
type Spec struct {
	Kind     string `yaml:"kind" json:"kind" jsonschema:"enum=convolution_input,enum=convolution_post,enum=composable"`
	Rows     int    `yaml:"rows,omitempty" json:"rows,omitempty"`
	Cols     int    `yaml:"cols,omitempty" json:"cols,omitempty"`
	Children []Spec `yaml:"children,omitempty" json:"children,omitempty"`
}

func FromSpec(spec Spec) (Processor, error) {
	switch spec.Kind {
	case KindConvolutionInput:
		return NewConvolutionInputPreProcessor(spec.Rows, spec.Cols), nil
	case KindConvolutionPost:
		return NewConvolutionPostProcessor(), nil
	case KindComposable:
		ps := make([]Processor, len(spec.Children))
		for i, child := range spec.Children {
			p, err := FromSpec(child)
			if err != nil {
				return nil, err
			}
			ps[i] = p
		}
		return NewComposableInputPreProcessor(ps...), nil
	}
	return nil, errors.Wrapf(ErrUnknownKind, "%q", spec.Kind)
}

func restore(epsilon tensor4d.General, in tensor4d.Shape) (tensor4d.General, error) {
	return epsilon.Reshape(in.Channels, in.Rows, in.Cols)
}

// ConvolutionInputPreProcessor turns flat rows into (features/(rows*cols), rows, cols) images.
type ConvolutionInputPreProcessor struct {
	Rows int
	Cols int
}

func NewConvolutionInputPreProcessor(rows, cols int) *ConvolutionInputPreProcessor {
	return &ConvolutionInputPreProcessor{Rows: rows, Cols: cols}
}

func (p *ConvolutionInputPreProcessor) OutputShape(in tensor4d.Shape) (tensor4d.Shape, error) {
	pixels := p.Rows * p.Cols
	features := in.Features()
	if pixels <= 0 || features%pixels != 0 {
		return tensor4d.Shape{}, errors.Wrapf(tensor4d.ErrShape, "%d features do not tile %dx%d images", features, p.Rows, p.Cols)
	}
	return tensor4d.Shape{Channels: features / pixels, Rows: p.Rows, Cols: p.Cols}, nil
}

func (p *ConvolutionInputPreProcessor) PreProcess(x tensor4d.General) (tensor4d.General, error) {
	out, err := p.OutputShape(x.Shape())
	if err != nil {
		return tensor4d.General{}, err
	}
	return x.Reshape(out.Channels, out.Rows, out.Cols)
}

func (p *ConvolutionInputPreProcessor) Backprop(epsilon tensor4d.General, in tensor4d.Shape) (tensor4d.General, error) {
	return restore(epsilon, in)
}

func (p *ConvolutionInputPreProcessor) Spec() Spec {
	return Spec{Kind: KindConvolutionInput, Rows: p.Rows, Cols: p.Cols}
}

// ConvolutionPostProcessor flattens feature maps back into rows.
type ConvolutionPostProcessor struct{}

func NewConvolutionPostProcessor() *ConvolutionPostProcessor {
	return &ConvolutionPostProcessor{}
}

func (p *ConvolutionPostProcessor) OutputShape(in tensor4d.Shape) (tensor4d.Shape, error) {
	return tensor4d.FlatShape(in.Features()), nil
}

func (p *ConvolutionPostProcessor) PreProcess(x tensor4d.General) (tensor4d.General, error) {
	return x.Reshape(1, 1, x.Shape().Features())
}

func (p *ConvolutionPostProcessor) Backprop(epsilon tensor4d.General, in tensor4d.Shape) (tensor4d.General, error) {
	return restore(epsilon, in)
}

func (p *ConvolutionPostProcessor) Spec() Spec {
	return Spec{Kind: KindConvolutionPost}
}

// ComposableInputPreProcessor applies its processors in order.
type ComposableInputPreProcessor struct {
	Processors []Processor
}

func NewComposableInputPreProcessor(ps ...Processor) *ComposableInputPreProcessor {
	return &ComposableInputPreProcessor{Processors: ps}
}

func (p *ComposableInputPreProcessor) OutputShape(in tensor4d.Shape) (tensor4d.Shape, error) {
	var err error
	for _, child := range p.Processors {
		in, err = child.OutputShape(in)
		if err != nil {
			return tensor4d.Shape{}, err
		}
	}
	return in, nil
}

func (p *ComposableInputPreProcessor) PreProcess(x tensor4d.General) (tensor4d.General, error) {
	var err error
	for _, child := range p.Processors {
		x, err = child.PreProcess(x)
		if err != nil {
			return tensor4d.General{}, err
		}
	}
	return x, nil
}

func (p *ComposableInputPreProcessor) Backprop(epsilon tensor4d.General, in tensor4d.Shape) (tensor4d.General, error) {
	return restore(epsilon, in)
}

func (p *ComposableInputPreProcessor) Spec() Spec {
	children := make([]Spec, len(p.Processors))
	for i, child := range p.Processors {
		children[i] = child.Spec()
	}
	return Spec{Kind: KindComposable, Children: children}
}

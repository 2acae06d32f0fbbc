package conf

import (
	"encoding/json"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/sw965/crowdl/nn/preprocessor"
	"gopkg.in/yaml.v3"
)

// Document is the on-disk form of a MultiLayerConfiguration.
type Document struct {
	Confs               []*NeuralNetConfiguration `yaml:"confs" json:"confs" jsonschema:"required"`
	HiddenLayerSizes    []int                     `yaml:"hiddenLayerSizes,flow,omitempty" json:"hiddenLayerSizes,omitempty"`
	InputPreProcessors  map[int]preprocessor.Spec `yaml:"inputPreProcessors,omitempty" json:"inputPreProcessors,omitempty"`
	OutputPreProcessors map[int]preprocessor.Spec `yaml:"outputPreProcessors,omitempty" json:"outputPreProcessors,omitempty"`
	Pretrain            bool                      `yaml:"pretrain" json:"pretrain"`
	Backward            bool                      `yaml:"backward" json:"backward"`
}

func specs(ps map[int]preprocessor.Processor) map[int]preprocessor.Spec {
	if len(ps) == 0 {
		return nil
	}
	y := make(map[int]preprocessor.Spec, len(ps))
	for i, p := range ps {
		y[i] = p.Spec()
	}
	return y
}

func processors(ss map[int]preprocessor.Spec) (map[int]preprocessor.Processor, error) {
	y := make(map[int]preprocessor.Processor, len(ss))
	for i, s := range ss {
		p, err := preprocessor.FromSpec(s)
		if err != nil {
			return nil, errors.Wrapf(err, "preprocessor %d", i)
		}
		y[i] = p
	}
	return y, nil
}

func (m *MultiLayerConfiguration) Document() *Document {
	return &Document{
		Confs:               m.Confs,
		HiddenLayerSizes:    m.HiddenLayerSizes,
		InputPreProcessors:  specs(m.InputPreProcessors),
		OutputPreProcessors: specs(m.OutputPreProcessors),
		Pretrain:            m.Pretrain,
		Backward:            m.Backward,
	}
}

func (d *Document) Configuration() (*MultiLayerConfiguration, error) {
	in, err := processors(d.InputPreProcessors)
	if err != nil {
		return nil, err
	}
	out, err := processors(d.OutputPreProcessors)
	if err != nil {
		return nil, err
	}
	m := &MultiLayerConfiguration{
		Confs:               d.Confs,
		HiddenLayerSizes:    d.HiddenLayerSizes,
		InputPreProcessors:  in,
		OutputPreProcessors: out,
		Pretrain:            d.Pretrain,
		Backward:            d.Backward,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// UnmarshalYAML starts from the NewBuilder defaults so a layer only lists what it changes.
func (c *NeuralNetConfiguration) UnmarshalYAML(value *yaml.Node) error {
	type plain NeuralNetConfiguration
	p := plain(NewBuilder().conf)
	if err := value.Decode(&p); err != nil {
		return err
	}
	*c = NeuralNetConfiguration(p)
	return nil
}

// UnmarshalYAML decodes a layer factory as a whole, an unset pretrain is false.
func (f *LayerFactory) UnmarshalYAML(value *yaml.Node) error {
	type plain LayerFactory
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*f = LayerFactory(p)
	return nil
}

func (m *MultiLayerConfiguration) MarshalYAML() (interface{}, error) {
	return m.Document(), nil
}

func (m *MultiLayerConfiguration) UnmarshalYAML(value *yaml.Node) error {
	var d Document
	if err := value.Decode(&d); err != nil {
		return err
	}
	parsed, err := d.Configuration()
	if err != nil {
		return err
	}
	*m = *parsed
	return nil
}

func (m *MultiLayerConfiguration) ToYAML() ([]byte, error) {
	return yaml.Marshal(m)
}

func ParseYAML(data []byte) (*MultiLayerConfiguration, error) {
	var m MultiLayerConfiguration
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "parse configuration")
	}
	return &m, nil
}

func LoadYAML(path string) (*MultiLayerConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return ParseYAML(data)
}

func (m *MultiLayerConfiguration) SaveYAML(path string) error {
	data, err := m.ToYAML()
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "write %s", path)
}

// JSONSchema describes the YAML document accepted by ParseYAML.
func JSONSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := r.Reflect(&Document{})
	return json.MarshalIndent(schema, "", "  ")
}

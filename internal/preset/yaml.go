package preset

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/journal-harness/internal/model"
)

type yamlPreset struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Config      map[string]any `yaml:"config"`
}

type yamlFile struct {
	Presets []yamlPreset `yaml:"presets"`
}

// ParseYAML reads a presets file:
//
//	presets:
//	  - name: haiku-vs-gpt
//	    config:
//	      experiment_type: position
//	      providers: [{provider: anthropic, model: claude-haiku-4-5}]
//
// Each config goes through Decode, so older or partial configs import with
// defaults filled in.
func ParseYAML(data []byte) ([]model.ExperimentPreset, error) {
	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "preset: parse yaml")
	}

	out := make([]model.ExperimentPreset, 0, len(f.Presets))
	for i, p := range f.Presets {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, eris.Wrapf(model.ErrInvalidConfig, "preset #%d has no name", i+1)
		}
		raw, err := json.Marshal(p.Config)
		if err != nil {
			return nil, eris.Wrapf(err, "preset: re-encode config of %q", name)
		}
		out = append(out, model.ExperimentPreset{
			Name:        name,
			Description: p.Description,
			Config:      Decode(raw),
		})
	}
	return out, nil
}

// MarshalYAML writes presets in the format ParseYAML reads.
func MarshalYAML(presets []model.ExperimentPreset) ([]byte, error) {
	f := yamlFile{Presets: make([]yamlPreset, 0, len(presets))}
	for _, p := range presets {
		raw, err := Encode(p.Config)
		if err != nil {
			return nil, err
		}
		var cfg map[string]any
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, eris.Wrapf(err, "preset: flatten config of %q", p.Name)
		}
		f.Presets = append(f.Presets, yamlPreset{Name: p.Name, Description: p.Description, Config: cfg})
	}
	b, err := yaml.Marshal(f)
	if err != nil {
		return nil, eris.Wrap(err, "preset: marshal yaml")
	}
	return b, nil
}

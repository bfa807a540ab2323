// Package preset decodes, migrates and applies experiment presets.
//
// Presets are stored as JSON blobs tagged with a schema version. Decoding is
// lenient: unknown fields are ignored, missing or invalid fields take their
// defaults, and every fallback is logged. Version 1 blobs (flat
// "provider:model" strings and a sweep list) are migrated on read.
package preset

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/journal-harness/internal/model"
	"github.com/sells-group/journal-harness/internal/prompt"
)

// Default values applied to missing preset fields.
const (
	DefaultProvider    = "stub"
	DefaultModel       = "echo"
	DefaultTemperature = 0.7
)

// Defaults returns a complete configuration at the current schema version.
func Defaults() model.PresetConfig {
	temp := DefaultTemperature
	return model.PresetConfig{
		SchemaVersion: model.PresetSchemaVersion,
		Type:          model.ExperimentPersona,
		Provider:      DefaultProvider,
		Model:         DefaultModel,
		Persona:       model.PersonaSupportive,
		Temperature:   &temp,
		EntryOrder:    model.OrderReverse,
		PromptVersion: prompt.Version,
	}
}

// v1Config is the first stored schema.
type v1Config struct {
	ProviderModel string   `json:"provider_model"`
	Persona       string   `json:"persona"`
	Temperature   *float64 `json:"temperature"`
	EntryCount    int      `json:"entry_count"`
	Order         string   `json:"order"`
	Type          string   `json:"type"`
	Needle        string   `json:"needle"`
	Sweep         []string `json:"sweep"`
}

// v1Keys are field names only the first schema used. A blob without a
// schema version is read as v1 only when it carries one of them.
var v1Keys = []string{"provider_model", "entry_count", "order", "type", "needle", "sweep"}

// Decode turns a stored blob of any known schema version into a complete
// current configuration. It never fails: undecodable input yields Defaults.
//
// Unversioned blobs are what clients send; they are read with current field
// names, after a v1 migration when v1 field names are present, so current
// names win over v1 ones.
func Decode(raw []byte) model.PresetConfig {
	log := zap.L().With(zap.String("component", "preset"))

	if len(strings.TrimSpace(string(raw))) == 0 {
		log.Warn("preset: empty config blob, using defaults")
		return Defaults()
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		log.Warn("preset: undecodable config blob, using defaults", zap.Error(err))
		return Defaults()
	}
	version := 0
	if v, ok := fields["schema_version"]; ok {
		if err := json.Unmarshal(v, &version); err != nil {
			log.Warn("preset: malformed schema_version, treating blob as unversioned", zap.Error(err))
			version = 0
		}
	}

	legacy := version == 1 || (version == 0 && hasAnyKey(fields, v1Keys))

	var cfg model.PresetConfig
	switch {
	case legacy:
		var old v1Config
		if err := decodeLooseInto(fields, &old); err != nil {
			log.Warn("preset: undecodable v1 config, using defaults", zap.Error(err))
			return Defaults()
		}
		cfg = migrateV1(old)
		log.Info("preset: migrated v1 config", zap.Int("schema_version", version))
		if version == 0 {
			// Current field names in an unversioned blob override v1 ones.
			if err := decodeLooseInto(fields, &cfg); err != nil {
				log.Warn("preset: undecodable config, using defaults", zap.Error(err))
				return Defaults()
			}
		}
	default:
		switch {
		case version == 0:
			log.Debug("preset: unversioned config, decoding with current field names")
		case version > model.PresetSchemaVersion:
			log.Warn("preset: config from a newer schema, decoding known fields only",
				zap.Int("schema_version", version))
		}
		if err := decodeLooseInto(fields, &cfg); err != nil {
			log.Warn("preset: undecodable config, using defaults", zap.Error(err))
			return Defaults()
		}
	}
	return fill(cfg)
}

func hasAnyKey(fields map[string]json.RawMessage, keys []string) bool {
	for _, k := range keys {
		if _, ok := fields[k]; ok {
			return true
		}
	}
	return false
}

// decodeLooseInto decodes field by field so one malformed value only loses
// that field. Fields dst does not know are ignored.
func decodeLooseInto(fields map[string]json.RawMessage, dst any) error {
	for name, value := range fields {
		one, err := json.Marshal(map[string]json.RawMessage{name: value})
		if err != nil {
			return eris.Wrapf(err, "preset: re-encode field %q", name)
		}
		if err := json.Unmarshal(one, dst); err != nil {
			zap.L().Warn("preset: dropping malformed field", zap.String("field", name), zap.Error(err))
		}
	}
	return nil
}

func migrateV1(old v1Config) model.PresetConfig {
	cfg := model.PresetConfig{
		Type:        model.ExperimentType(old.Type),
		Persona:     model.Persona(old.Persona),
		Temperature: old.Temperature,
		MaxEntries:  old.EntryCount,
		EntryOrder:  model.EntryOrder(old.Order),
		NeedleFact:  old.Needle,
	}
	if old.ProviderModel != "" {
		if pm, err := model.ParseProviderModel(old.ProviderModel); err == nil {
			cfg.Provider, cfg.Model = pm.Provider, pm.Model
		} else {
			zap.L().Warn("preset: dropping malformed v1 provider_model", zap.String("value", old.ProviderModel))
		}
	}
	for _, s := range old.Sweep {
		pm, err := model.ParseProviderModel(s)
		if err != nil {
			zap.L().Warn("preset: dropping malformed v1 sweep entry", zap.String("value", s))
			continue
		}
		cfg.Providers = append(cfg.Providers, pm)
	}
	return cfg
}

// fill replaces missing or invalid values with defaults.
func fill(cfg model.PresetConfig) model.PresetConfig {
	d := Defaults()
	cfg.SchemaVersion = model.PresetSchemaVersion
	var defaulted []string

	if t, err := model.ParseExperimentType(string(cfg.Type)); err == nil {
		cfg.Type = t
	} else {
		if cfg.Type != "" {
			zap.L().Warn("preset: unknown experiment type, using default", zap.String("value", string(cfg.Type)))
		}
		cfg.Type = d.Type
		defaulted = append(defaulted, "experiment_type")
	}
	if p, err := model.ParsePersona(string(cfg.Persona)); err == nil {
		cfg.Persona = p
	} else {
		if cfg.Persona != "" {
			zap.L().Warn("preset: unknown persona, using default", zap.String("value", string(cfg.Persona)))
		}
		cfg.Persona = d.Persona
		defaulted = append(defaulted, "persona")
	}
	if o, err := model.ParseEntryOrder(string(cfg.EntryOrder)); err == nil {
		cfg.EntryOrder = o
	} else {
		zap.L().Warn("preset: unknown entry order, using default", zap.String("value", string(cfg.EntryOrder)))
		cfg.EntryOrder = d.EntryOrder
	}
	if cfg.Provider == "" || cfg.Model == "" {
		if cfg.Provider != "" || cfg.Model != "" {
			zap.L().Warn("preset: provider and model must be set together, using defaults",
				zap.String("provider", cfg.Provider), zap.String("model", cfg.Model))
		}
		cfg.Provider, cfg.Model = d.Provider, d.Model
		defaulted = append(defaulted, "provider", "model")
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Temperature == nil || *cfg.Temperature < 0 || *cfg.Temperature > 2 {
		cfg.Temperature = d.Temperature
		defaulted = append(defaulted, "temperature")
	}
	if cfg.MaxEntries < 0 {
		cfg.MaxEntries = 0
	}
	if cfg.PromptVersion == "" {
		cfg.PromptVersion = d.PromptVersion
	}
	if len(defaulted) > 0 {
		zap.L().Info("preset: filled missing fields with defaults", zap.Strings("fields", defaulted))
	}
	return cfg
}

// Encode serialises cfg at the current schema version.
func Encode(cfg model.PresetConfig) ([]byte, error) {
	cfg.SchemaVersion = model.PresetSchemaVersion
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "preset: encode config")
	}
	return b, nil
}

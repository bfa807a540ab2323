package model

import "time"

// PresetSchemaVersion is the schema version written by this build.
const PresetSchemaVersion = 2

// PresetConfig is the versioned, serialisable configuration held by a preset.
// Every field is optional; the preset package fills missing values on decode.
type PresetConfig struct {
	SchemaVersion int             `json:"schema_version" yaml:"schema_version"`
	Type          ExperimentType  `json:"experiment_type,omitempty" yaml:"experiment_type,omitempty"`
	Provider      string          `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model         string          `json:"model,omitempty" yaml:"model,omitempty"`
	Providers     []ProviderModel `json:"providers,omitempty" yaml:"providers,omitempty"`
	Persona       Persona         `json:"persona,omitempty" yaml:"persona,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxEntries    int             `json:"max_entries,omitempty" yaml:"max_entries,omitempty"`
	EntryOrder    EntryOrder      `json:"entry_order,omitempty" yaml:"entry_order,omitempty"`
	NeedleFact    string          `json:"needle_fact,omitempty" yaml:"needle_fact,omitempty"`
	PromptVersion string          `json:"prompt_version,omitempty" yaml:"prompt_version,omitempty"`
}

// IsSweep reports whether the preset fans out across several providers.
func (c PresetConfig) IsSweep() bool {
	return len(c.Providers) > 0
}

// ExperimentPreset is a named, reusable configuration bundle.
type ExperimentPreset struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Config      PresetConfig `json:"config"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

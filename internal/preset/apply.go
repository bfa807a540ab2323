package preset

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/journal-harness/internal/model"
)

// Overrides are request fields that take precedence over a preset. Zero
// values leave the preset value in place.
type Overrides struct {
	AthleteID   string                `json:"athlete_id"`
	Provider    string                `json:"provider,omitempty"`
	Model       string                `json:"model,omitempty"`
	Providers   []model.ProviderModel `json:"providers,omitempty"`
	Persona     model.Persona         `json:"persona,omitempty"`
	Temperature *float64              `json:"temperature,omitempty"`
	MaxEntries  *int                  `json:"max_entries,omitempty"`
	EntryOrder  model.EntryOrder      `json:"entry_order,omitempty"`
	NeedleFact  string                `json:"needle_fact,omitempty"`
}

// Plan is what applying a preset produces: exactly one of Single or Batch
// is set.
type Plan struct {
	Single *model.ExperimentConfig
	Batch  *model.BatchRequest
}

// Apply merges overrides into cfg. A provider-sweep list (from the preset or
// the overrides) yields a batch; otherwise a single experiment. The result
// is validated.
func Apply(cfg model.PresetConfig, o Overrides) (Plan, error) {
	if strings.TrimSpace(o.AthleteID) == "" {
		return Plan{}, eris.Wrap(model.ErrInvalidConfig, "athlete id is required")
	}
	if o.Provider != "" {
		cfg.Provider = o.Provider
	}
	if o.Model != "" {
		cfg.Model = o.Model
	}
	if len(o.Providers) > 0 {
		cfg.Providers = o.Providers
	}
	if o.Persona != "" {
		cfg.Persona = o.Persona
	}
	if o.Temperature != nil {
		cfg.Temperature = o.Temperature
	}
	if o.MaxEntries != nil {
		cfg.MaxEntries = *o.MaxEntries
	}
	if o.EntryOrder != "" {
		cfg.EntryOrder = o.EntryOrder
	}
	if o.NeedleFact != "" {
		cfg.NeedleFact = o.NeedleFact
	}

	temp := DefaultTemperature
	if cfg.Temperature != nil {
		temp = *cfg.Temperature
	}

	// An explicit single provider override wins over the preset's sweep.
	if cfg.IsSweep() && (o.Provider == "" || len(o.Providers) > 0) {
		req := model.BatchRequest{
			AthleteID:     o.AthleteID,
			Type:          cfg.Type,
			Providers:     cfg.Providers,
			Persona:       cfg.Persona,
			Temperature:   temp,
			MaxEntries:    cfg.MaxEntries,
			EntryOrder:    cfg.EntryOrder,
			NeedleFact:    cfg.NeedleFact,
			PromptVersion: cfg.PromptVersion,
		}
		if _, err := req.Configs(""); err != nil {
			return Plan{}, err
		}
		return Plan{Batch: &req}, nil
	}

	single := model.ExperimentConfig{
		AthleteID:     o.AthleteID,
		Type:          cfg.Type,
		Provider:      cfg.Provider,
		Model:         cfg.Model,
		Persona:       cfg.Persona,
		Temperature:   temp,
		MaxEntries:    cfg.MaxEntries,
		EntryOrder:    cfg.EntryOrder,
		NeedleFact:    cfg.NeedleFact,
		PromptVersion: cfg.PromptVersion,
	}
	single, err := single.Normalize()
	if err != nil {
		return Plan{}, err
	}
	return Plan{Single: &single}, nil
}

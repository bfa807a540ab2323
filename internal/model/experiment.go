package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrInvalidConfig is returned when an experiment request cannot be run as
// specified. It is always returned before any run is created.
var ErrInvalidConfig = eris.New("invalid configuration")

// ExperimentType identifies which probe a run executes.
type ExperimentType string

const (
	ExperimentPosition    ExperimentType = "position"
	ExperimentPersona     ExperimentType = "persona"
	ExperimentCompression ExperimentType = "compression"
)

// ParseExperimentType maps a stored or user-supplied value onto an ExperimentType.
func ParseExperimentType(s string) (ExperimentType, error) {
	switch t := ExperimentType(strings.ToLower(strings.TrimSpace(s))); t {
	case ExperimentPosition, ExperimentPersona, ExperimentCompression:
		return t, nil
	default:
		return "", eris.Wrapf(ErrInvalidConfig, "unsupported experiment type %q", s)
	}
}

// ExperimentStatus is the lifecycle state of an ExperimentRun.
type ExperimentStatus string

const (
	StatusPending   ExperimentStatus = "pending"
	StatusRunning   ExperimentStatus = "running"
	StatusCompleted ExperimentStatus = "completed"
	StatusFailed    ExperimentStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s ExperimentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseExperimentStatus maps a stored value onto an ExperimentStatus.
func ParseExperimentStatus(s string) (ExperimentStatus, error) {
	switch st := ExperimentStatus(s); st {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return st, nil
	default:
		return "", eris.Errorf("unknown experiment status %q", s)
	}
}

// EntryOrder controls how journal entries are ordered before truncation.
type EntryOrder string

const (
	OrderReverse       EntryOrder = "reverse"
	OrderChronological EntryOrder = "chronological"
)

// ParseEntryOrder maps a value onto an EntryOrder. Empty means reverse.
func ParseEntryOrder(s string) (EntryOrder, error) {
	switch o := EntryOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return OrderReverse, nil
	case OrderReverse, OrderChronological:
		return o, nil
	default:
		return "", eris.Wrapf(ErrInvalidConfig, "unsupported entry order %q", s)
	}
}

// NeedlePosition is where a needle fact is placed inside the rendered entries.
type NeedlePosition string

const (
	PositionStart  NeedlePosition = "start"
	PositionMiddle NeedlePosition = "middle"
	PositionEnd    NeedlePosition = "end"
)

// NeedlePositions lists the canonical probe positions in display order.
var NeedlePositions = []NeedlePosition{PositionStart, PositionMiddle, PositionEnd}

// ParseNeedlePosition maps a stored value onto a NeedlePosition.
func ParseNeedlePosition(s string) (NeedlePosition, error) {
	switch p := NeedlePosition(s); p {
	case PositionStart, PositionMiddle, PositionEnd:
		return p, nil
	default:
		return "", eris.Errorf("unknown needle position %q", s)
	}
}

// Persona is a fixed coaching voice applied to the system prompt.
type Persona string

const (
	PersonaIntense    Persona = "intense"
	PersonaSupportive Persona = "supportive"
)

// Personas is the closed set of supported personas in canonical order.
var Personas = []Persona{PersonaIntense, PersonaSupportive}

// ParsePersona maps a value onto a Persona; unknown values are rejected.
func ParsePersona(s string) (Persona, error) {
	p := Persona(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Personas {
		if p == known {
			return p, nil
		}
	}
	return "", eris.Wrapf(ErrInvalidConfig, "unknown persona %q", s)
}

// ExperimentRun is one invocation of one experiment type against one provider+model.
type ExperimentRun struct {
	ID            string           `json:"id"`
	BatchID       string           `json:"batch_id,omitempty"`
	Provider      string           `json:"provider"`
	Model         string           `json:"model"`
	Temperature   float64          `json:"temperature"`
	PromptVersion string           `json:"prompt_version"`
	AthleteID     string           `json:"athlete_id"`
	Persona       Persona          `json:"persona"`
	Type          ExperimentType   `json:"experiment_type"`
	EntriesUsed   int              `json:"entries_used"`
	EntryOrder    EntryOrder       `json:"entry_order"`
	NeedleFact    string           `json:"needle_fact,omitempty"`
	Status        ExperimentStatus `json:"status"`
	Error         string           `json:"error,omitempty"`
	InputTokens   int              `json:"input_tokens"`
	OutputTokens  int              `json:"output_tokens"`
	TokensUsed    int              `json:"tokens_used"`
	EstimatedCost float64          `json:"estimated_cost"`
	Deleted       bool             `json:"deleted,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}

// Label identifies the provider+model pair of a run, e.g. "anthropic:claude-haiku".
func (r ExperimentRun) Label() string {
	return r.Provider + ":" + r.Model
}

// Duration is the wall time between start and completion, zero while unfinished.
func (r ExperimentRun) Duration() time.Duration {
	if r.StartedAt == nil || r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(*r.StartedAt)
}

// ExperimentConfig is everything needed to create and execute one run.
type ExperimentConfig struct {
	AthleteID     string         `json:"athlete_id"`
	Type          ExperimentType `json:"experiment_type"`
	Provider      string         `json:"provider"`
	Model         string         `json:"model"`
	Persona       Persona        `json:"persona"`
	Temperature   float64        `json:"temperature"`
	MaxEntries    int            `json:"max_entries,omitempty"`
	EntryOrder    EntryOrder     `json:"entry_order"`
	NeedleFact    string         `json:"needle_fact,omitempty"`
	PromptVersion string         `json:"prompt_version,omitempty"`
	BatchID       string         `json:"batch_id,omitempty"`
}

// Validate rejects configurations that must never reach a provider.
func (c ExperimentConfig) Validate() error {
	_, err := c.Normalize()
	return err
}

// Normalize validates c and returns it with enum values in their canonical
// form and the provider lowercased. Runs are only ever created from a
// normalized config.
func (c ExperimentConfig) Normalize() (ExperimentConfig, error) {
	c.AthleteID = strings.TrimSpace(c.AthleteID)
	if c.AthleteID == "" {
		return c, eris.Wrap(ErrInvalidConfig, "athlete id is required")
	}
	t, err := ParseExperimentType(string(c.Type))
	if err != nil {
		return c, err
	}
	p, err := ParsePersona(string(c.Persona))
	if err != nil {
		return c, err
	}
	o, err := ParseEntryOrder(string(c.EntryOrder))
	if err != nil {
		return c, err
	}
	c.Type, c.Persona, c.EntryOrder = t, p, o

	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.Model = strings.TrimSpace(c.Model)
	if c.Provider == "" || c.Model == "" {
		return c, eris.Wrapf(ErrInvalidConfig, "provider and model are required (got %q:%q)", c.Provider, c.Model)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return c, eris.Wrapf(ErrInvalidConfig, "temperature %.2f out of range [0,2]", c.Temperature)
	}
	if c.MaxEntries < 0 {
		return c, eris.Wrapf(ErrInvalidConfig, "max entries must not be negative (got %d)", c.MaxEntries)
	}
	if c.Type == ExperimentPosition && strings.TrimSpace(c.NeedleFact) == "" {
		return c, eris.Wrap(ErrInvalidConfig, "position experiments require a needle fact")
	}
	return c, nil
}

// ProviderModel is one provider+model pair requested in a batch.
type ProviderModel struct {
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model" yaml:"model"`
}

// String renders the pair in "provider:model" form.
func (p ProviderModel) String() string {
	return p.Provider + ":" + p.Model
}

// ParseProviderModel parses a "provider:model" pair. The model part may itself
// contain colons (e.g. "ollama:llama3.1:8b").
func ParseProviderModel(s string) (ProviderModel, error) {
	provider, model, ok := strings.Cut(strings.TrimSpace(s), ":")
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)
	if !ok || provider == "" || model == "" {
		return ProviderModel{}, eris.Wrapf(ErrInvalidConfig, "malformed provider:model pair %q", s)
	}
	return ProviderModel{Provider: provider, Model: model}, nil
}

// BatchRequest fans one experiment out across several provider+model pairs.
type BatchRequest struct {
	AthleteID     string          `json:"athlete_id"`
	Type          ExperimentType  `json:"experiment_type"`
	Providers     []ProviderModel `json:"providers"`
	Persona       Persona         `json:"persona"`
	Temperature   float64         `json:"temperature"`
	MaxEntries    int             `json:"max_entries,omitempty"`
	EntryOrder    EntryOrder      `json:"entry_order"`
	NeedleFact    string          `json:"needle_fact,omitempty"`
	PromptVersion string          `json:"prompt_version,omitempty"`
}

// Configs expands the request into one validated ExperimentConfig per pair.
func (b BatchRequest) Configs(batchID string) ([]ExperimentConfig, error) {
	if len(b.Providers) == 0 {
		return nil, eris.Wrap(ErrInvalidConfig, "provider list is empty")
	}
	configs := make([]ExperimentConfig, 0, len(b.Providers))
	for _, pm := range b.Providers {
		if strings.TrimSpace(pm.Provider) == "" || strings.TrimSpace(pm.Model) == "" {
			return nil, eris.Wrapf(ErrInvalidConfig, "malformed provider:model pair %q", pm.String())
		}
		c := ExperimentConfig{
			AthleteID:     b.AthleteID,
			Type:          b.Type,
			Provider:      strings.ToLower(strings.TrimSpace(pm.Provider)),
			Model:         strings.TrimSpace(pm.Model),
			Persona:       b.Persona,
			Temperature:   b.Temperature,
			MaxEntries:    b.MaxEntries,
			EntryOrder:    b.EntryOrder,
			NeedleFact:    b.NeedleFact,
			PromptVersion: b.PromptVersion,
			BatchID:       batchID,
		}
		c, err := c.Normalize()
		if err != nil {
			return nil, err
		}
		configs = append(configs, c)
	}
	return configs, nil
}

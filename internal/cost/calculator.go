// Package cost estimates the monetary cost of provider calls from token counts.
package cost

import (
	"sort"
	"strings"
)

// ModelRate holds token pricing for models whose id contains Match (USD per 1K tokens).
type ModelRate struct {
	Match  string  `yaml:"match" mapstructure:"match"`
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates is the pricing table keyed by provider name.
type Rates struct {
	Providers map[string][]ModelRate `yaml:"providers" mapstructure:"providers"`
	// Local lists providers that run on local hardware and always cost zero.
	Local []string `yaml:"local" mapstructure:"local"`
	// Fallback prices unknown provider/model combinations.
	Fallback ModelRate `yaml:"fallback" mapstructure:"fallback"`
}

// Calculator computes costs for provider calls. It is safe for concurrent use
// because its table is never mutated after construction.
type Calculator struct {
	rates Rates
	local map[string]bool
}

// NewCalculator creates a Calculator with the given rates. Model matches are
// sorted longest first so the most specific substring wins.
func NewCalculator(rates Rates) *Calculator {
	table := make(map[string][]ModelRate, len(rates.Providers))
	for provider, models := range rates.Providers {
		sorted := append([]ModelRate(nil), models...)
		for i := range sorted {
			sorted[i].Match = strings.ToLower(sorted[i].Match)
		}
		sort.SliceStable(sorted, func(i, j int) bool {
			return len(sorted[i].Match) > len(sorted[j].Match)
		})
		table[strings.ToLower(provider)] = sorted
	}
	rates.Providers = table

	local := make(map[string]bool, len(rates.Local))
	for _, p := range rates.Local {
		local[strings.ToLower(p)] = true
	}
	return &Calculator{rates: rates, local: local}
}

// Rate returns the pricing used for a provider/model pair and whether it came
// from the table rather than the fallback.
func (c *Calculator) Rate(provider, model string) (ModelRate, bool) {
	provider = strings.ToLower(provider)
	if c.local[provider] {
		return ModelRate{Match: "*"}, true
	}
	model = strings.ToLower(model)
	for _, r := range c.rates.Providers[provider] {
		if r.Match == "" || strings.Contains(model, r.Match) {
			return r, true
		}
	}
	return c.rates.Fallback, false
}

// Estimate computes the cost in USD for one call. Unknown combinations are
// priced at the fallback rate instead of failing.
func (c *Calculator) Estimate(provider, model string, inputTokens, outputTokens int) float64 {
	if inputTokens <= 0 && outputTokens <= 0 {
		return 0
	}
	rate, _ := c.Rate(provider, model)
	in := (float64(max(inputTokens, 0)) / 1000) * rate.Input
	out := (float64(max(outputTokens, 0)) / 1000) * rate.Output
	return in + out
}

// IsLocal reports whether the provider runs locally and is therefore free.
func (c *Calculator) IsLocal(provider string) bool {
	return c.local[strings.ToLower(provider)]
}

// Merge overlays override rates on top of base. Override model lists replace
// the base list for the same provider.
func Merge(base, override Rates) Rates {
	out := Rates{
		Providers: make(map[string][]ModelRate, len(base.Providers)+len(override.Providers)),
		Local:     append(append([]string(nil), base.Local...), override.Local...),
		Fallback:  base.Fallback,
	}
	for p, models := range base.Providers {
		out.Providers[p] = models
	}
	for p, models := range override.Providers {
		if len(models) > 0 {
			out.Providers[p] = models
		}
	}
	if override.Fallback.Input > 0 || override.Fallback.Output > 0 {
		out.Fallback = override.Fallback
	}
	return out
}

// DefaultRates returns the built-in pricing table.
func DefaultRates() Rates {
	return Rates{
		Providers: map[string][]ModelRate{
			"anthropic": {
				{Match: "haiku", Input: 0.0008, Output: 0.004},
				{Match: "sonnet", Input: 0.003, Output: 0.015},
				{Match: "opus", Input: 0.015, Output: 0.075},
			},
			"openai": {
				{Match: "gpt-4o-mini", Input: 0.00015, Output: 0.0006},
				{Match: "gpt-4o", Input: 0.0025, Output: 0.01},
				{Match: "gpt-4.1-mini", Input: 0.0004, Output: 0.0016},
				{Match: "gpt-4.1", Input: 0.002, Output: 0.008},
				{Match: "o3", Input: 0.002, Output: 0.008},
			},
			"gemini": {
				{Match: "flash", Input: 0.0003, Output: 0.0025},
				{Match: "pro", Input: 0.00125, Output: 0.01},
			},
			"perplexity": {
				{Match: "sonar-pro", Input: 0.003, Output: 0.015},
				{Match: "sonar", Input: 0.001, Output: 0.001},
			},
		},
		Local:    []string{"ollama", "local", "lmstudio", "stub"},
		Fallback: ModelRate{Match: "*", Input: 0.015, Output: 0.075},
	}
}

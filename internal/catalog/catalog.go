// Package catalog holds the model catalog the selector scores against.
// The built-in catalog covers five models across three cost tiers; an
// optional TOML file can replace it.
package catalog

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/openclaw/smartroute/internal/analyzer"
)

// CostTier buckets models by price.
type CostTier string

const (
	TierEconomy  CostTier = "economy"
	TierBalanced CostTier = "balanced"
	TierPremium  CostTier = "premium"
)

// Model describes a routable model.
type Model struct {
	ID       string   `toml:"id" json:"id"`
	Provider string   `toml:"provider" json:"provider"`
	Tier     CostTier `toml:"tier" json:"tier"`

	// IdealMin/IdealMax bound the complexity range the model is best at.
	IdealMin float64 `toml:"ideal_min" json:"idealMin"`
	IdealMax float64 `toml:"ideal_max" json:"idealMax"`

	// Strengths lists task types the model is notably good at.
	Strengths []string `toml:"strengths" json:"strengths"`

	// Prices are USD per 1000 tokens.
	PromptPrice     float64 `toml:"prompt_price" json:"promptPrice"`
	CompletionPrice float64 `toml:"completion_price" json:"completionPrice"`
}

// HasStrength reports whether the model lists the task type as a strength.
func (m Model) HasStrength(t analyzer.TaskType) bool {
	for _, s := range m.Strengths {
		if s == t.String() {
			return true
		}
	}
	return false
}

// Cost returns the USD cost for a prompt/completion token split.
func (m Model) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*m.PromptPrice +
		float64(completionTokens)/1000*m.CompletionPrice
}

// Catalog is an ordered list of models. Order matters: the selector breaks
// score ties by first-seen, so iteration must be deterministic.
type Catalog struct {
	Models []Model `toml:"models"`
}

// Default returns the built-in five-model catalog.
func Default() *Catalog {
	return &Catalog{Models: []Model{
		{
			ID: "claude-haiku", Provider: "anthropic", Tier: TierEconomy,
			IdealMin: 0.0, IdealMax: 0.35,
			Strengths:   []string{"query", "writing"},
			PromptPrice: 0.00025, CompletionPrice: 0.00125,
		},
		{
			ID: "gpt-4o-mini", Provider: "openai", Tier: TierEconomy,
			IdealMin: 0.0, IdealMax: 0.4,
			Strengths:   []string{"query"},
			PromptPrice: 0.00015, CompletionPrice: 0.0006,
		},
		{
			ID: "claude-sonnet", Provider: "anthropic", Tier: TierBalanced,
			IdealMin: 0.3, IdealMax: 0.75,
			Strengths:   []string{"code", "writing"},
			PromptPrice: 0.003, CompletionPrice: 0.015,
		},
		{
			ID: "gpt-4o", Provider: "openai", Tier: TierBalanced,
			IdealMin: 0.35, IdealMax: 0.8,
			Strengths:   []string{"code", "debugging"},
			PromptPrice: 0.0025, CompletionPrice: 0.01,
		},
		{
			ID: "claude-opus", Provider: "anthropic", Tier: TierPremium,
			IdealMin: 0.6, IdealMax: 1.0,
			Strengths:   []string{"reasoning", "debugging"},
			PromptPrice: 0.015, CompletionPrice: 0.075,
		},
	}}
}

// Load reads a catalog from a TOML file. An empty path returns the default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	var c Catalog
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(c.Models) == 0 {
		return nil, fmt.Errorf("catalog %s defines no models", path)
	}
	for i, m := range c.Models {
		if m.ID == "" || m.Provider == "" {
			return nil, fmt.Errorf("catalog model %d missing id or provider", i)
		}
	}
	return &c, nil
}

// Lookup finds a model by ID (or "provider/id").
func (c *Catalog) Lookup(name string) (Model, bool) {
	for _, m := range c.Models {
		if m.ID == name || m.Provider+"/"+m.ID == name {
			return m, true
		}
	}
	return Model{}, false
}

// Fallback returns the fixed mid-tier model used when selection fails.
func (c *Catalog) Fallback() Model {
	for _, m := range c.Models {
		if m.Tier == TierBalanced {
			return m
		}
	}
	return c.Models[0]
}

// MostExpensive returns the priciest model, the savings baseline.
func (c *Catalog) MostExpensive() Model {
	best := c.Models[0]
	for _, m := range c.Models[1:] {
		if m.PromptPrice+m.CompletionPrice > best.PromptPrice+best.CompletionPrice {
			best = m
		}
	}
	return best
}

// ByTier returns all models in a tier, in catalog order.
func (c *Catalog) ByTier(tier CostTier) []Model {
	var out []Model
	for _, m := range c.Models {
		if m.Tier == tier {
			out = append(out, m)
		}
	}
	return out
}

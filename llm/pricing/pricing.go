// Package pricing converts token usage into a USD cost estimate using a
// static per-model rate table.
package pricing

import (
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ModelPrice is the list price of one model in USD per 1M tokens.
type ModelPrice struct {
	Model            string  `yaml:"model" json:"model"`
	InputPerMillion  float64 `yaml:"input_per_million" json:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million" json:"output_per_million"`
}

// Cost returns the price of the given usage. Negative counts are treated as 0.
func (p ModelPrice) Cost(inputTokens, outputTokens int) float64 {
	in := float64(max(inputTokens, 0))
	out := float64(max(outputTokens, 0))
	return (in*p.InputPerMillion + out*p.OutputPerMillion) / 1_000_000
}

var defaultPrices = []ModelPrice{
	// DeepSeek
	{Model: "deepseek/deepseek-chat", InputPerMillion: 0.14, OutputPerMillion: 0.28},
	{Model: "deepseek/deepseek-v3.2", InputPerMillion: 0.20, OutputPerMillion: 0.50},
	{Model: "deepseek/deepseek-v3", InputPerMillion: 0.20, OutputPerMillion: 0.50},
	{Model: "deepseek/deepseek-coder", InputPerMillion: 0.14, OutputPerMillion: 0.28},
	// Anthropic
	{Model: "anthropic/claude-3.7-sonnet", InputPerMillion: 3, OutputPerMillion: 15},
	{Model: "anthropic/claude-3.5-sonnet", InputPerMillion: 3, OutputPerMillion: 15},
	{Model: "anthropic/claude-3.5-haiku", InputPerMillion: 0.25, OutputPerMillion: 1.25},
	{Model: "anthropic/claude-haiku-4.5", InputPerMillion: 0.25, OutputPerMillion: 1.25},
	{Model: "anthropic/claude-3-opus", InputPerMillion: 15, OutputPerMillion: 75},
	{Model: "anthropic/claude-3-sonnet", InputPerMillion: 3, OutputPerMillion: 15},
	{Model: "anthropic/claude-3-haiku", InputPerMillion: 0.25, OutputPerMillion: 1.25},
	// Google
	{Model: "google/gemini-2.5-pro", InputPerMillion: 1.25, OutputPerMillion: 5},
	{Model: "google/gemini-2.5-flash", InputPerMillion: 0.30, OutputPerMillion: 2.50},
	{Model: "google/gemini-2.0-flash", InputPerMillion: 0.20, OutputPerMillion: 0.50},
	{Model: "google/gemini-pro", InputPerMillion: 0.5, OutputPerMillion: 1.5},
	// OpenAI
	{Model: "openai/gpt-5", InputPerMillion: 2.5, OutputPerMillion: 10},
	{Model: "openai/gpt-4-turbo", InputPerMillion: 10, OutputPerMillion: 30},
	{Model: "openai/gpt-4o-mini", InputPerMillion: 0.15, OutputPerMillion: 0.60},
	{Model: "openai/gpt-4", InputPerMillion: 30, OutputPerMillion: 60},
	{Model: "openai/gpt-3.5-turbo", InputPerMillion: 0.5, OutputPerMillion: 1.5},
	// xAI
	{Model: "xai/grok-4", InputPerMillion: 3, OutputPerMillion: 15},
	{Model: "xai/grok-3", InputPerMillion: 2, OutputPerMillion: 10},
	// Perplexity
	{Model: "perplexity/sonar-pro", InputPerMillion: 3, OutputPerMillion: 15},
}

// DefaultPrices returns a copy of the built-in rate table.
func DefaultPrices() []ModelPrice {
	out := make([]ModelPrice, len(defaultPrices))
	copy(out, defaultPrices)
	return out
}

// Table is an immutable model -> price index. Every entry is reachable both
// by its full "vendor/model" id and by the bare model name.
type Table struct {
	prices map[string]ModelPrice
}

// NewTable indexes prices. Later entries override earlier ones.
func NewTable(prices ...ModelPrice) *Table {
	t := &Table{prices: make(map[string]ModelPrice, len(prices)*2)}
	for _, p := range prices {
		key := strings.ToLower(strings.TrimSpace(p.Model))
		if key == "" {
			continue
		}
		t.prices[key] = p
		if _, bare, ok := strings.Cut(key, "/"); ok && bare != "" {
			t.prices[bare] = p
		}
	}
	return t
}

// Lookup resolves a model id: first the full lower-cased id, then the id
// with its vendor prefix stripped.
func (t *Table) Lookup(model string) (ModelPrice, bool) {
	key := strings.ToLower(strings.TrimSpace(model))
	if p, ok := t.prices[key]; ok {
		return p, true
	}
	if i := strings.LastIndex(key, "/"); i >= 0 {
		if p, ok := t.prices[key[i+1:]]; ok {
			return p, true
		}
	}
	return ModelPrice{}, false
}

// Cost returns the USD cost of the usage, or 0 for unknown models.
func (t *Table) Cost(model string, inputTokens, outputTokens int) float64 {
	p, ok := t.Lookup(model)
	if !ok {
		return 0
	}
	return round(p.Cost(inputTokens, outputTokens))
}

var defaultTable = NewTable(defaultPrices...)

// CalculateCost prices usage against the built-in table. Unknown models cost 0.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	return defaultTable.Cost(model, inputTokens, outputTokens)
}

// round keeps 8 decimal places, the precision of the ledger column.
func round(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}

// Calculator wraps a Table and logs a warning the first time an unknown model
// is priced.
type Calculator struct {
	table  *Table
	logger *zap.Logger
	warned sync.Map
}

// NewCalculator builds a calculator over the built-in prices plus overrides.
func NewCalculator(overrides []ModelPrice, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	prices := append(DefaultPrices(), overrides...)
	return &Calculator{
		table:  NewTable(prices...),
		logger: logger.With(zap.String("component", "pricing")),
	}
}

// Cost returns the USD cost of the usage; unknown models fail closed to 0.
func (c *Calculator) Cost(model string, inputTokens, outputTokens int) float64 {
	if _, ok := c.table.Lookup(model); !ok {
		if _, seen := c.warned.LoadOrStore(strings.ToLower(model), struct{}{}); !seen {
			c.logger.Warn("no price for model, recording zero cost",
				zap.String("model", model),
				zap.Int("input_tokens", inputTokens),
				zap.Int("output_tokens", outputTokens))
		}
		return 0
	}
	return c.table.Cost(model, inputTokens, outputTokens)
}

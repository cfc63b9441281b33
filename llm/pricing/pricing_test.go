package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

func TestCalculateCost_KnownModels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		in    int
		out   int
		want  float64
	}{
		{"deepseek/deepseek-v3.2", 1_000_000, 1_000_000, 0.70},
		{"anthropic/claude-3.5-haiku", 2000, 1000, 0.00175},
		{"google/gemini-2.5-flash", 1_000_000, 0, 0.30},
		{"openai/gpt-4", 0, 500_000, 30},
		{"claude-3.5-haiku", 2000, 1000, 0.00175},
		{"ANTHROPIC/Claude-3.5-Haiku", 2000, 1000, 0.00175},
		{"other-gateway/gemini-2.5-flash", 1_000_000, 0, 0.30},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.InDelta(t, tt.want, CalculateCost(tt.model, tt.in, tt.out), 1e-9)
		})
	}
}

func TestCalculateCost_UnknownModelIsZero(t *testing.T) {
	t.Parallel()

	assert.Zero(t, CalculateCost("acme/unknown-model", 1000, 1000))
	assert.Zero(t, CalculateCost("", 1000, 1000))
}

func TestCalculateCost_NegativeTokensClamped(t *testing.T) {
	t.Parallel()

	assert.Zero(t, CalculateCost("openai/gpt-4", -10, -10))
}

func TestCalculateCost_Properties(t *testing.T) {
	models := make([]string, 0, len(defaultPrices))
	for _, p := range defaultPrices {
		models = append(models, p.Model)
	}

	rapid.Check(t, func(rt *rapid.T) {
		model := rapid.SampledFrom(models).Draw(rt, "model")
		in := rapid.IntRange(0, 5_000_000).Draw(rt, "in")
		out := rapid.IntRange(0, 5_000_000).Draw(rt, "out")

		cost := CalculateCost(model, in, out)
		if cost < 0 {
			rt.Fatalf("negative cost %v", cost)
		}
		if again := CalculateCost(model, in, out); again != cost {
			rt.Fatalf("cost not deterministic: %v != %v", cost, again)
		}
		if more := CalculateCost(model, in+1000, out); more < cost {
			rt.Fatalf("cost decreased with more input tokens")
		}
	})
}

func TestCalculator_WarnsOncePerUnknownModel(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	c := NewCalculator(nil, zap.New(core))

	assert.Zero(t, c.Cost("acme/mystery", 10, 10))
	assert.Zero(t, c.Cost("acme/mystery", 10, 10))
	assert.Zero(t, c.Cost("acme/other", 10, 10))

	assert.Equal(t, 2, logs.FilterMessage("no price for model, recording zero cost").Len())
}

func TestCalculator_OverridesWin(t *testing.T) {
	t.Parallel()

	c := NewCalculator([]ModelPrice{
		{Model: "anthropic/claude-3.5-haiku", InputPerMillion: 1, OutputPerMillion: 1},
		{Model: "acme/house-model", InputPerMillion: 2, OutputPerMillion: 4},
	}, nil)

	assert.InDelta(t, 2.0, c.Cost("anthropic/claude-3.5-haiku", 1_000_000, 1_000_000), 1e-9)
	assert.InDelta(t, 6.0, c.Cost("acme/house-model", 1_000_000, 1_000_000), 1e-9)
	assert.InDelta(t, 6.0, c.Cost("house-model", 1_000_000, 1_000_000), 1e-9)
}

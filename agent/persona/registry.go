package persona

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Bindings maps each persona, and the synthesis voice, to a backend.
type Bindings struct {
	Personas  map[Key]ModelRef
	Synthesis ModelRef
}

// DefaultBindings routes every persona through the "gateway" provider.
func DefaultBindings() Bindings {
	return Bindings{
		Personas: map[Key]ModelRef{
			Structural: {Provider: "gateway", Model: "deepseek/deepseek-v3.2"},
			Strategic:  {Provider: "gateway", Model: "anthropic/claude-3.5-haiku"},
			Pragmatic:  {Provider: "gateway", Model: "google/gemini-2.5-flash"},
		},
		Synthesis: ModelRef{Provider: "gateway", Model: "anthropic/claude-3.5-haiku"},
	}
}

// Roster is the result of loading personas: the deliberating set, the
// synthesis voice, and the constitution both were rendered from.
type Roster struct {
	Personas     Set
	Synthesis    Definition
	Constitution *Constitution
	// Degraded is true when the fallback constitution was used.
	Degraded bool
}

// Registry renders persona definitions from a constitution and a binding table.
type Registry struct {
	bindings Bindings
	keys     []Key
	logger   *zap.Logger
}

// NewRegistry validates the binding table. Personas are kept in canonical order.
func NewRegistry(bindings Bindings, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	keys := make([]Key, 0, len(bindings.Personas))
	for _, k := range allKeys {
		ref, ok := bindings.Personas[k]
		if !ok {
			continue
		}
		if ref.Model == "" {
			return nil, fmt.Errorf("persona %q has no model binding", k)
		}
		keys = append(keys, k)
	}
	for k := range bindings.Personas {
		if !k.Valid() {
			return nil, fmt.Errorf("unknown persona %q", k)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no personas bound")
	}
	if bindings.Synthesis.Model == "" {
		return nil, fmt.Errorf("synthesis has no model binding")
	}
	return &Registry{
		bindings: bindings,
		keys:     keys,
		logger:   logger.With(zap.String("component", "persona_registry")),
	}, nil
}

// DefinitionsFor loads the constitution from src and renders every bound
// persona. It never fails: when src is nil or errors, the fallback
// constitution is used.
func (r *Registry) DefinitionsFor(ctx context.Context, src Source) Set {
	return r.Load(ctx, src).Personas
}

// Load is DefinitionsFor plus the synthesis definition.
func (r *Registry) Load(ctx context.Context, src Source) Roster {
	var (
		c        *Constitution
		degraded bool
	)
	if src != nil {
		loaded, err := src.Load(ctx)
		if err != nil {
			r.logger.Warn("constitution unavailable, using fallback instructions",
				zap.String("source", src.Name()),
				zap.Error(err))
		} else {
			c = loaded
		}
	}
	if c == nil {
		c = FallbackConstitution()
		degraded = true
	}
	return r.Render(c, degraded)
}

// Render builds a roster from an already loaded constitution.
func (r *Registry) Render(c *Constitution, degraded bool) Roster {
	defs := make([]Definition, 0, len(r.keys))
	for _, k := range r.keys {
		defs = append(defs, Definition{
			Key:                k,
			DisplayName:        roles[k].displayName,
			SystemInstructions: renderInstructions(k, len(r.keys), c),
			ProposalStyle:      roles[k].proposalStyle,
			Binding:            r.bindings.Personas[k],
		})
	}
	// keys and bindings were validated in NewRegistry
	set, _ := NewSet(defs...)
	return Roster{
		Personas: set,
		Synthesis: Definition{
			Key:                Voice,
			DisplayName:        c.Identity.Name,
			SystemInstructions: renderVoice(c),
			Binding:            r.bindings.Synthesis,
		},
		Constitution: c,
		Degraded:     degraded,
	}
}

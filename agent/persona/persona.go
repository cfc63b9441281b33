package persona

import (
	"fmt"
	"strings"
)

// Key identifies one of the fixed deliberation roles.
type Key string

const (
	Structural Key = "structural"
	Strategic  Key = "strategic"
	Pragmatic  Key = "pragmatic"
)

var allKeys = []Key{Structural, Strategic, Pragmatic}

// Keys returns every persona key in canonical order.
func Keys() []Key {
	out := make([]Key, len(allKeys))
	copy(out, allKeys)
	return out
}

// Valid reports whether k is a known persona key.
func (k Key) Valid() bool {
	for _, known := range allKeys {
		if k == known {
			return true
		}
	}
	return false
}

func (k Key) String() string { return string(k) }

// ParseKey converts a configuration string into a Key.
func ParseKey(s string) (Key, error) {
	k := Key(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown persona %q", s)
	}
	return k, nil
}

// ModelRef binds a persona to a backend. Provider names a registered
// llm.Provider; Model is the model id sent to it.
type ModelRef struct {
	Provider string `yaml:"provider" env:"PROVIDER" json:"provider"`
	Model    string `yaml:"model" env:"MODEL" json:"model"`
}

func (m ModelRef) String() string {
	if m.Provider == "" {
		return m.Model
	}
	return m.Provider + ":" + m.Model
}

// Definition is everything the engine needs to speak as one persona.
// Values are immutable once built by the Registry.
type Definition struct {
	Key                Key
	DisplayName        string
	SystemInstructions string
	// ProposalStyle is the closing instruction of the opening prompt,
	// e.g. "Be thorough and structural."
	ProposalStyle string
	Binding       ModelRef
}

// Set is an ordered collection of definitions with unique keys.
type Set struct {
	defs []Definition
}

// NewSet validates that keys are known and unique.
func NewSet(defs ...Definition) (Set, error) {
	seen := make(map[Key]bool, len(defs))
	out := make([]Definition, 0, len(defs))
	for _, d := range defs {
		if !d.Key.Valid() {
			return Set{}, fmt.Errorf("unknown persona %q", d.Key)
		}
		if seen[d.Key] {
			return Set{}, fmt.Errorf("duplicate persona %q", d.Key)
		}
		if d.Binding.Model == "" {
			return Set{}, fmt.Errorf("persona %q has no model binding", d.Key)
		}
		seen[d.Key] = true
		out = append(out, d)
	}
	return Set{defs: out}, nil
}

// Get returns the definition for k.
func (s Set) Get(k Key) (Definition, bool) {
	for _, d := range s.defs {
		if d.Key == k {
			return d, true
		}
	}
	return Definition{}, false
}

// Keys returns the keys in set order.
func (s Set) Keys() []Key {
	out := make([]Key, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, d.Key)
	}
	return out
}

// All returns a copy of the definitions in set order.
func (s Set) All() []Definition {
	out := make([]Definition, len(s.defs))
	copy(out, s.defs)
	return out
}

func (s Set) Len() int { return len(s.defs) }

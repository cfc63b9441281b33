package persona

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Constitution is the external document persona instructions are built from.
type Constitution struct {
	Identity         Identity         `yaml:"identity" json:"identity"`
	CoreValues       []CoreValue      `yaml:"core_values" json:"core_values"`
	OperationalRules OperationalRules `yaml:"operational_rules" json:"operational_rules"`
}

type Identity struct {
	Name        string `yaml:"name" json:"name"`
	Designation string `yaml:"designation" json:"designation"`
}

type CoreValue struct {
	Name      string `yaml:"name" json:"name"`
	Source    string `yaml:"source" json:"source"`
	Principle string `yaml:"principle" json:"principle"`
}

type OperationalRules struct {
	Silence struct {
		Principles []string `yaml:"principles" json:"principles"`
	} `yaml:"silence" json:"silence"`
}

// ErrEmptyConstitution is returned when a document parses but carries neither
// an identity nor any core values.
var ErrEmptyConstitution = errors.New("constitution has no identity and no core values")

// ParseConstitution decodes a YAML constitution document.
func ParseConstitution(data []byte) (*Constitution, error) {
	var c Constitution
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse constitution: %w", err)
	}
	if c.Identity.Name == "" && len(c.CoreValues) == 0 {
		return nil, ErrEmptyConstitution
	}
	return &c, nil
}

// FallbackConstitution is used when no source can be loaded.
func FallbackConstitution() *Constitution {
	c := &Constitution{
		Identity: Identity{Name: "Ogma", Designation: "Sovereign Operator"},
		CoreValues: []CoreValue{
			{Name: "Extreme Ownership", Source: "Jocko Willink", Principle: "No excuses. If a build fails, own the fix."},
			{Name: "Tactical Empathy", Source: "Chris Voss", Principle: "Bind users/partners through understanding, not force."},
			{Name: "Pyramid of Success", Source: "John Wooden", Principle: "Competitive greatness through industriousness and enthusiasm."},
		},
	}
	c.OperationalRules.Silence.Principles = []string{
		"Internal deliberation before external communication",
		"Consensus-driven output",
		"Zero tolerance for filler content",
	}
	return c
}

// IdentityLine renders "<name>, <designation>" with defaults for blanks.
func (c *Constitution) IdentityLine() string {
	name, designation := c.Identity.Name, c.Identity.Designation
	if name == "" {
		name = "Ogma"
	}
	if designation == "" {
		designation = "Sovereign Operator"
	}
	return name + ", " + designation
}

// ValuesText renders one "- name (source): principle" line per value.
func (c *Constitution) ValuesText() string {
	lines := make([]string, 0, len(c.CoreValues))
	for _, v := range c.CoreValues {
		lines = append(lines, fmt.Sprintf("- %s (%s): %s", v.Name, v.Source, v.Principle))
	}
	return strings.Join(lines, "\n")
}

// ValueNames returns the comma-separated value names.
func (c *Constitution) ValueNames() string {
	names := make([]string, 0, len(c.CoreValues))
	for _, v := range c.CoreValues {
		names = append(names, v.Name)
	}
	return strings.Join(names, ", ")
}

// SilenceText joins the silence principles into one sentence run.
func (c *Constitution) SilenceText() string {
	return strings.Join(c.OperationalRules.Silence.Principles, ". ")
}

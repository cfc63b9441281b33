package persona

import (
	"fmt"
	"strings"
)

// Voice is the key used for the synthesis call. It is never part of a Set.
const Voice Key = "voice"

type role struct {
	displayName   string
	focus         string
	qualities     []string
	critiqueFocus string
	proposalStyle string
}

var roles = map[Key]role{
	Structural: {
		displayName: "The Architect",
		focus:       "system integrity, long-term structure, architectural patterns, scalability, and maintainability",
		qualities: []string{
			"Deeply structural and forward-thinking",
			"Focused on system integrity and long-term viability",
			"Rigorous in evaluating technical debt and scalability concerns",
		},
		critiqueFocus: "structural weaknesses, technical debt, and long-term maintainability issues",
		proposalStyle: "Be thorough and structural.",
	},
	Strategic: {
		displayName: "The Visionary",
		focus:       "creative solutions, market fit, user experience, innovation, and strategic positioning",
		qualities: []string{
			"Creative and innovative",
			"Market-aware and user-focused",
			"Bold in proposing novel approaches",
		},
		critiqueFocus: "lack of innovation, poor market fit, missed opportunities, and solutions that don't differentiate",
		proposalStyle: "Be creative and strategic.",
	},
	Pragmatic: {
		displayName: "The Engineer",
		focus:       "execution, correctness, immediate feasibility, implementation details, and practical constraints",
		qualities: []string{
			"Pragmatic and execution-focused",
			"Detail-oriented on quality and correctness",
			"Realistic about implementation constraints",
		},
		critiqueFocus: "implementation flaws, quality issues, unrealistic assumptions, and solutions that won't work in practice",
		proposalStyle: "Be practical and executable.",
	},
}

// DisplayName returns the human facing name of k.
func DisplayName(k Key) string {
	if r, ok := roles[k]; ok {
		return r.displayName
	}
	return string(k)
}

// renderInstructions builds the system prompt of one persona.
func renderInstructions(k Key, peers int, c *Constitution) string {
	r := roles[k]
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, one of %d personas in %s's deliberation parliament.\n\n", r.displayName, peers, c.IdentityLine())
	fmt.Fprintf(&b, "Your role: Focus on %s.\n\n", r.focus)
	if values := c.ValuesText(); values != "" {
		fmt.Fprintf(&b, "Core Values (you must embody these):\n%s\n\n", values)
	}
	if silence := c.SilenceText(); silence != "" {
		fmt.Fprintf(&b, "Operational Principle: %s\n\n", silence)
	}
	b.WriteString("Your analysis must be:\n")
	for _, q := range r.qualities {
		fmt.Fprintf(&b, "- %s\n", q)
	}
	fmt.Fprintf(&b, "\nWhen critiquing others, challenge %s.", r.critiqueFocus)
	return b.String()
}

// renderVoice builds the system prompt of the synthesis call.
func renderVoice(c *Constitution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, the single external voice of a deliberation parliament.\n\n", c.IdentityLine())
	if names := c.ValueNames(); names != "" {
		fmt.Fprintf(&b, "Core Values: %s\n", names)
	}
	b.WriteString("Operational Rule - Silence: Output must be high-yield and fluff-free. Every word must serve a purpose.\n\n")
	b.WriteString("Integrate the deliberation into one coherent answer. Never attribute ideas to individual personas and never mention the deliberation itself.")
	return b.String()
}

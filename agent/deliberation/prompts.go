package deliberation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/parliament/agent"
	"github.com/BaSui01/parliament/agent/persona"
)

const defaultSilenceRule = "Output must be high-yield and fluff-free. Every word must serve a purpose."

// label is the short persona name used inside prompts, e.g. "Architect".
func label(k persona.Key) string {
	return strings.TrimPrefix(persona.DisplayName(k), "The ")
}

// peerSolutions returns every response except self's, computed by key so the
// result does not depend on slice order.
func peerSolutions(self persona.Key, responses []agent.Response) []agent.Response {
	peers := make([]agent.Response, 0, len(responses))
	for _, r := range responses {
		if r.Persona != self {
			peers = append(peers, r)
		}
	}
	return peers
}

// peerCritiques returns the critiques authored by anyone but self, in key order.
func peerCritiques(self persona.Key, critiques map[persona.Key]string) map[persona.Key]string {
	out := make(map[persona.Key]string, len(critiques))
	for k, c := range critiques {
		if k != self {
			out[k] = c
		}
	}
	return out
}

func formatSolutions(responses []agent.Response) string {
	parts := make([]string, 0, len(responses))
	for _, r := range responses {
		parts = append(parts, fmt.Sprintf("[%s]: %s", label(r.Persona), r.Text))
	}
	return strings.Join(parts, "\n\n")
}

// formatCritiques renders "[X's <kind>]: text" blocks in canonical key order.
func formatCritiques(critiques map[persona.Key]string, kind string) string {
	parts := make([]string, 0, len(critiques))
	for _, k := range persona.Keys() {
		if c, ok := critiques[k]; ok {
			parts = append(parts, fmt.Sprintf("[%s's %s]: %s", label(k), kind, c))
		}
	}
	return strings.Join(parts, "\n\n")
}

// ProposalPrompt opens the deliberation for one persona.
func ProposalPrompt(request string, def persona.Definition) string {
	return fmt.Sprintf("User Request: %s\n\nProvide your initial solution. %s", request, def.ProposalStyle)
}

// CritiquePrompt shows self the solutions of its peers, never its own.
func CritiquePrompt(round int, self persona.Key, responses []agent.Response) string {
	return fmt.Sprintf("Round %d - Critique the following solutions from your peers:\n\n%s\n\n"+
		"Provide your critique. Be specific about strengths and weaknesses. Challenge assumptions.",
		round, formatSolutions(peerSolutions(self, responses)))
}

// VotePrompt shows every solution and every critique of the round.
func VotePrompt(round int, responses []agent.Response, critiques map[persona.Key]string) string {
	return fmt.Sprintf("Round %d - Voting Decision\n\nAll Solutions:\n%s\n\nAll Critiques:\n%s\n\n"+
		"Based on the debate, do you agree that we have reached consensus on the best solution? "+
		"Respond with ONLY \"Yes\" or \"No\" followed by a brief reasoning.",
		round, formatSolutions(responses), formatCritiques(critiques, "Critique"))
}

// RefinePrompt gives a persona its own solution and the critiques of the others.
func RefinePrompt(round int, request string, own agent.Response, critiques map[persona.Key]string) string {
	return fmt.Sprintf("Round %d - Refine Your Solution\n\nOriginal User Request: %s\n\n"+
		"Your Original Solution:\n%s\n\nCritiques from Peers:\n%s\n\n"+
		"Refine your solution based on the critiques. Address valid concerns while maintaining your core perspective.",
		round, request, own.Text, formatCritiques(peerCritiques(own.Persona, critiques), "Critique"))
}

// SynthesisInput is the final state handed to the synthesis voice.
type SynthesisInput struct {
	Request      string
	Responses    []agent.Response
	Critiques    map[persona.Key]string
	Votes        map[persona.Key]VoteValue
	Consensus    bool
	Constitution *persona.Constitution
}

// SynthesisPrompt asks for one integrated answer without attribution.
func SynthesisPrompt(in SynthesisInput) string {
	c := in.Constitution
	if c == nil {
		c = persona.FallbackConstitution()
	}
	reached := "a decision after maximum rounds"
	if in.Consensus {
		reached = "consensus"
	}
	silence := c.SilenceText()
	if silence == "" {
		silence = defaultSilenceRule
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. The Trinity Protocol has reached %s.\n\n", c.IdentityLine(), reached)
	b.WriteString("Constitution Context:\n")
	fmt.Fprintf(&b, "- Identity: %s\n", c.IdentityLine())
	fmt.Fprintf(&b, "- Core Values: %s\n", c.ValueNames())
	fmt.Fprintf(&b, "- Operational Rule - Silence: %s\n\n", silence)
	fmt.Fprintf(&b, "Original User Request: %s\n\n", in.Request)
	fmt.Fprintf(&b, "The Trinity's Deliberation:\n%s\n\n", formatSolutions(in.Responses))
	fmt.Fprintf(&b, "Final Critiques:\n%s\n\n", formatCritiques(in.Critiques, "Final Critique"))
	fmt.Fprintf(&b, "Voting Results: %s\n\n", votesJSON(in.Votes))
	b.WriteString("Synthesize the agreed-upon solution into a single, articulate response. " +
		"Integrate the perspectives into one voice and do not attribute ideas to individual participants by name. " +
		"Be precise, valuable, and free of filler.")
	return b.String()
}

func votesJSON(votes map[persona.Key]VoteValue) string {
	byLabel := make(map[string]VoteValue, len(votes))
	for k, v := range votes {
		byLabel[label(k)] = v
	}
	data, err := json.Marshal(byLabel)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// openingMessage renders "Architect, Visionary, and Engineer generating ...".
func openingMessage(active []persona.Definition) string {
	names := make([]string, 0, len(active))
	for _, d := range active {
		names = append(names, label(d.Key))
	}
	var who string
	switch len(names) {
	case 0:
		who = "No personas"
	case 1:
		who = names[0]
	case 2:
		who = names[0] + " and " + names[1]
	default:
		who = strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
	}
	return who + " generating initial solutions..."
}

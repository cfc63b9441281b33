package deliberation

import (
	"github.com/BaSui01/parliament/agent"
	"github.com/BaSui01/parliament/agent/persona"
)

// VoteValue is the binary outcome of one persona's vote.
type VoteValue string

const (
	Yes VoteValue = "Yes"
	No  VoteValue = "No"
)

// Vote is one persona's classified answer plus the raw text it gave.
type Vote struct {
	Persona   persona.Key `json:"persona"`
	Value     VoteValue   `json:"value"`
	Rationale string      `json:"rationale"`
}

// Round is one append-only transcript entry.
type Round struct {
	Number int `json:"round"`
	// Responses are the solutions the round debated, in persona key order.
	Responses        []agent.Response          `json:"responses"`
	Critiques        map[persona.Key]string    `json:"critiques"`
	Votes            map[persona.Key]VoteValue `json:"votes"`
	Rationales       map[persona.Key]string    `json:"rationales,omitempty"`
	ConsensusReached bool                      `json:"consensus_reached"`
}

// Result is handed to the caller; the engine keeps no reference to it.
type Result struct {
	DeliberationID   string        `json:"deliberation_id"`
	FinalResponse    string        `json:"final_response"`
	Rounds           []Round       `json:"rounds"`
	ConsensusReached bool          `json:"consensus_reached"`
	ActivePersonas   []persona.Key `json:"active_personas"`
	TotalCostUSD     float64       `json:"total_cost_usd"`
}

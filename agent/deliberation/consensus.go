package deliberation

import (
	"strings"

	"github.com/BaSui01/parliament/agent/persona"
)

// ClassifyVote maps raw vote text to Yes only when it starts with "yes",
// ignoring case and surrounding whitespace. Hedged or empty answers are No.
func ClassifyVote(text string) VoteValue {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "yes") {
		return Yes
	}
	return No
}

// QuorumThreshold is the strict majority of n voters: n/2 + 1.
func QuorumThreshold(n int) int {
	return n/2 + 1
}

// HasConsensus reports whether the Yes votes reach a strict majority of the
// personas that voted. No votes at all is never consensus.
func HasConsensus(votes map[persona.Key]VoteValue) bool {
	if len(votes) == 0 {
		return false
	}
	yes := 0
	for _, v := range votes {
		if v == Yes {
			yes++
		}
	}
	return yes >= QuorumThreshold(len(votes))
}

package deliberation

import (
	"go.uber.org/zap"
)

// Stage names are part of the progress wire format consumed by clients.
type Stage string

const (
	StageInitial         Stage = "initial"
	StageInitialComplete Stage = "initial_complete"
	StageRoundStart      Stage = "round_start"
	StageCritiques       Stage = "critiques"
	StageVotes           Stage = "votes"
	StageRoundComplete   Stage = "round_complete"
	StageRefine          Stage = "refine"
	StageSynthesis       Stage = "synthesis"
	StageComplete        Stage = "complete"
	// StagePersonaDropped is emitted once per persona removed from the active set.
	StagePersonaDropped Stage = "persona_dropped"
)

// Event is one lifecycle notification. Round is zero outside the loop.
type Event struct {
	Stage   Stage  `json:"stage"`
	Round   int    `json:"round,omitempty"`
	Agent   string `json:"agent,omitempty"`
	Message string `json:"message"`
}

// Reporter observes progress. It cannot fail the deliberation.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

// notify delivers e synchronously and swallows reporter panics.
func notify(r Reporter, e Event, logger *zap.Logger) {
	if r == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn("progress reporter panicked",
				zap.String("stage", string(e.Stage)),
				zap.Any("panic", rec))
		}
	}()
	r.Report(e)
}

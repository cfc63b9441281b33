package deliberation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/parliament/agent"
	"github.com/BaSui01/parliament/agent/persona"
	"github.com/BaSui01/parliament/internal/ctxkeys"
	"github.com/BaSui01/parliament/ledger"
	"github.com/BaSui01/parliament/llm/retry"
)

// Outcome labels reported to the Observer.
const (
	OutcomeConsensus        = "consensus"
	OutcomeNoConsensus      = "no_consensus"
	OutcomeNoActivePersonas = "no_active_personas"
	OutcomeSynthesisFailed  = "synthesis_failed"
)

// CostRecorder receives one entry per successful backend call. Record must
// not block; ledger.Recorder is the production implementation.
type CostRecorder interface {
	Record(ctx context.Context, e ledger.Entry)
}

// Observer receives per-run and per-drop measurements.
type Observer interface {
	ObserveDeliberation(outcome string, rounds int, duration time.Duration, costUSD float64)
	ObservePersonaDropped(persona, stage string)
}

// Engine runs the propose / critique / vote / refine / synthesize protocol.
// It holds no per-request state and is safe for concurrent Run calls.
type Engine struct {
	roster   persona.Roster
	invoker  agent.Invoker
	cfg      Config
	retryer  retry.Retryer
	ledger   CostRecorder
	observer Observer
	tracer   trace.Tracer
	logger   *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLedger forwards every successful call to r.
func WithLedger(r CostRecorder) Option {
	return func(e *Engine) { e.ledger = r }
}

// WithObserver reports outcomes and persona drops to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithTracer replaces the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// NewEngine validates cfg and the roster.
func NewEngine(roster persona.Roster, invoker agent.Invoker, cfg Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if invoker == nil {
		return nil, errors.New("deliberation: invoker is required")
	}
	if roster.Personas.Len() == 0 {
		return nil, errors.New("deliberation: roster has no personas")
	}
	if roster.Synthesis.Binding.Model == "" {
		return nil, errors.New("deliberation: synthesis voice has no model binding")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("deliberation: invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "deliberation"))

	e := &Engine{
		roster:  roster,
		invoker: invoker,
		cfg:     cfg,
		retryer: retry.NewBackoffRetryer(cfg.Retry, logger),
		tracer:  otel.Tracer("github.com/BaSui01/parliament/agent/deliberation"),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Run deliberates on request and returns the synthesized answer with the full
// transcript. sessionID attributes ledger entries; nil skips cost recording.
// reporter may be nil. Only *NoActivePersonasError and *SynthesisError are
// returned; every other failure degrades the run instead.
func (e *Engine) Run(ctx context.Context, request string, sessionID *string, reporter Reporter) (*Result, error) {
	id := uuid.NewString()
	ctx = ctxkeys.WithDeliberationID(ctx, id)
	if sessionID != nil {
		ctx = ctxkeys.WithSessionID(ctx, *sessionID)
	}
	ctx, span := e.tracer.Start(ctx, "deliberation.run", trace.WithAttributes(
		attribute.String("deliberation.id", id),
		attribute.Int("deliberation.max_rounds", e.cfg.MaxRounds),
		attribute.Int("deliberation.personas", e.roster.Personas.Len()),
	))
	defer span.End()

	r := e.newRun(id, request, sessionID, reporter)
	start := time.Now()
	r.logger.Info("deliberation started", zap.Int("personas", len(r.active)))

	result, err := r.execute(ctx)
	elapsed := time.Since(start)

	outcome := OutcomeNoConsensus
	switch {
	case IsNoActivePersonas(err):
		outcome = OutcomeNoActivePersonas
	case IsSynthesisError(err):
		outcome = OutcomeSynthesisFailed
	case err == nil && result.ConsensusReached:
		outcome = OutcomeConsensus
	}
	if e.observer != nil {
		e.observer.ObserveDeliberation(outcome, len(r.rounds), elapsed, r.cost)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		r.logger.Error("deliberation failed",
			zap.String("outcome", outcome),
			zap.Int("rounds", len(r.rounds)),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("deliberation.consensus", result.ConsensusReached),
		attribute.Int("deliberation.rounds", len(result.Rounds)),
	)
	r.logger.Info("deliberation completed",
		zap.String("outcome", outcome),
		zap.Int("rounds", len(result.Rounds)),
		zap.Int("active_personas", len(result.ActivePersonas)),
		zap.Float64("cost_usd", result.TotalCostUSD),
		zap.Duration("duration", elapsed))
	return result, nil
}

// run is the mutable state of one deliberation. Only the controller
// goroutine touches it; fan-out goroutines write to their own slots.
type run struct {
	e         *Engine
	id        string
	request   string
	sessionID *string
	reporter  Reporter
	logger    *zap.Logger

	active   []persona.Definition
	failures map[persona.Key]error
	rounds   []Round
	cost     float64
}

func (e *Engine) newRun(id, request string, sessionID *string, reporter Reporter) *run {
	active := e.roster.Personas.All()
	sort.SliceStable(active, func(i, j int) bool {
		return keyIndex(active[i].Key) < keyIndex(active[j].Key)
	})
	return &run{
		e:         e,
		id:        id,
		request:   request,
		sessionID: sessionID,
		reporter:  reporter,
		logger:    e.logger.With(zap.String("deliberation_id", id)),
		active:    active,
		failures:  make(map[persona.Key]error),
	}
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	r.notify(Event{Stage: StageInitial, Message: openingMessage(r.active)})
	responses, err := r.propose(ctx)
	if err != nil {
		return nil, err
	}
	r.notify(Event{Stage: StageInitialComplete, Message: "Initial solutions generated"})

	for round := 1; round <= r.e.cfg.MaxRounds; round++ {
		r.notify(Event{Stage: StageRoundStart, Round: round,
			Message: fmt.Sprintf("Round %d: Trinity models deliberating...", round)})

		rec, voted, err := r.deliberateRound(ctx, round, responses)
		if err != nil {
			return nil, err
		}
		r.rounds = append(r.rounds, rec)

		// 投票阶段掉线后人数不足时，下一轮也无法投票，不再付费精炼
		quorumLost := voted && len(r.active) < r.e.cfg.MinVotingPersonas

		msg := fmt.Sprintf("Round %d complete, continuing...", round)
		switch {
		case rec.ConsensusReached:
			msg = fmt.Sprintf("Consensus reached in round %d!", round)
		case !voted || quorumLost:
			msg = fmt.Sprintf("Round %d complete, too few active personas to vote", round)
		case round == r.e.cfg.MaxRounds:
			msg = fmt.Sprintf("Round %d complete, maximum rounds reached", round)
		}
		r.notify(Event{Stage: StageRoundComplete, Round: round, Message: msg})

		if rec.ConsensusReached || !voted || round == r.e.cfg.MaxRounds {
			break
		}
		if quorumLost {
			r.logger.Warn("active personas below voting minimum, skipping refinement",
				zap.Int("round", round),
				zap.Int("active", len(r.active)),
				zap.Int("min_voting_personas", r.e.cfg.MinVotingPersonas))
			break
		}

		r.notify(Event{Stage: StageRefine, Round: round, Message: "Refining solutions based on critiques..."})
		responses, err = r.refine(ctx, round, responses, rec.Critiques)
		if err != nil {
			return nil, err
		}
	}

	last := r.rounds[len(r.rounds)-1]
	r.notify(Event{Stage: StageSynthesis, Message: "Synthesizing final response..."})
	text, err := r.synthesize(ctx, last)
	if err != nil {
		return nil, err
	}
	r.notify(Event{Stage: StageComplete, Message: "Response ready"})

	active := make([]persona.Key, 0, len(r.active))
	for _, d := range r.active {
		active = append(active, d.Key)
	}
	return &Result{
		DeliberationID:   r.id,
		FinalResponse:    text,
		Rounds:           r.rounds,
		ConsensusReached: last.ConsensusReached,
		ActivePersonas:   active,
		TotalCostUSD:     r.cost,
	}, nil
}

// deliberateRound runs critique and vote. voted is false when the active set
// was below MinVotingPersonas and the round closed without a vote.
func (r *run) deliberateRound(ctx context.Context, round int, responses map[persona.Key]agent.Response) (Round, bool, error) {
	rec := Round{
		Number:     round,
		Critiques:  map[persona.Key]string{},
		Votes:      map[persona.Key]VoteValue{},
		Rationales: map[persona.Key]string{},
	}
	if r.belowQuorumFloor(round, "critique") {
		rec.Responses = r.ordered(responses)
		return rec, false, nil
	}

	r.notify(Event{Stage: StageCritiques, Round: round, Message: "Generating critiques..."})
	critiques, err := r.critique(ctx, round, r.ordered(responses))
	if err != nil {
		return rec, false, err
	}
	if r.belowQuorumFloor(round, "vote") {
		rec.Responses = r.ordered(responses)
		rec.Critiques = r.activeText(critiques)
		return rec, false, nil
	}

	r.notify(Event{Stage: StageVotes, Round: round, Message: "Trinity models voting..."})
	votes, err := r.vote(ctx, round, r.ordered(responses), critiques)
	if err != nil {
		return rec, false, err
	}

	rec.Responses = r.ordered(responses)
	rec.Critiques = r.activeText(critiques)
	for k, v := range votes {
		rec.Votes[k] = v.Value
		rec.Rationales[k] = v.Rationale
	}
	rec.ConsensusReached = len(rec.Votes) >= r.e.cfg.MinVotingPersonas && HasConsensus(rec.Votes)
	r.logger.Debug("round closed",
		zap.Int("round", round),
		zap.Int("votes", len(rec.Votes)),
		zap.Bool("consensus", rec.ConsensusReached))
	return rec, true, nil
}

func (r *run) belowQuorumFloor(round int, next string) bool {
	if len(r.active) >= r.e.cfg.MinVotingPersonas {
		return false
	}
	r.logger.Warn("active personas below voting minimum, closing round without a vote",
		zap.Int("round", round),
		zap.String("skipped", next),
		zap.Int("active", len(r.active)),
		zap.Int("min_voting_personas", r.e.cfg.MinVotingPersonas))
	return true
}

// call invokes one persona, retrying through the engine's retryer, and
// forwards the priced response to the ledger.
func (r *run) call(ctx context.Context, def persona.Definition, prompt string) (agent.Response, error) {
	resp, err := retry.DoWithResult(ctx, r.e.retryer, func() (agent.Response, error) {
		return r.e.invoker.Invoke(ctx, def, prompt)
	})
	if err != nil {
		var be *agent.BackendError
		if !errors.As(err, &be) {
			err = &agent.BackendError{Persona: def.Key, Model: def.Binding.Model, Cause: err}
		}
		return agent.Response{}, err
	}
	resp.Persona = def.Key
	r.record(ctx, resp)
	return resp, nil
}

func (r *run) record(ctx context.Context, resp agent.Response) {
	if r.e.ledger == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("cost recorder panicked", zap.Any("panic", rec))
		}
	}()
	r.e.ledger.Record(ctx, ledger.NewEntry(r.sessionID, resp.ModelName, resp.InputTokens, resp.OutputTokens, resp.CostUSD))
}

// drop removes failed personas from the active set for good.
func (r *run) drop(stage string, round int, failed map[persona.Key]error) error {
	if len(failed) == 0 {
		return nil
	}
	kept := make([]persona.Definition, 0, len(r.active))
	for _, def := range r.active {
		err, lost := failed[def.Key]
		if !lost {
			kept = append(kept, def)
			continue
		}
		r.failures[def.Key] = err
		r.logger.Warn("persona dropped",
			zap.String("persona", string(def.Key)),
			zap.String("model", def.Binding.Model),
			zap.String("stage", stage),
			zap.Int("round", round),
			zap.Error(err))
		if r.e.observer != nil {
			r.e.observer.ObservePersonaDropped(string(def.Key), stage)
		}
		r.notify(Event{Stage: StagePersonaDropped, Round: round, Agent: label(def.Key),
			Message: label(def.Key) + " is unavailable and left the deliberation"})
	}
	r.active = kept
	if len(kept) == 0 {
		failures := make(map[persona.Key]error, len(r.failures))
		for k, err := range r.failures {
			failures[k] = err
		}
		return &NoActivePersonasError{Stage: stage, Failures: failures}
	}
	return nil
}

// ordered returns the responses of the active personas in key order.
func (r *run) ordered(responses map[persona.Key]agent.Response) []agent.Response {
	out := make([]agent.Response, 0, len(r.active))
	for _, def := range r.active {
		if resp, ok := responses[def.Key]; ok {
			out = append(out, resp)
		}
	}
	return out
}

func (r *run) activeText(m map[persona.Key]string) map[persona.Key]string {
	out := make(map[persona.Key]string, len(m))
	for _, def := range r.active {
		if v, ok := m[def.Key]; ok {
			out[def.Key] = v
		}
	}
	return out
}

func (r *run) notify(e Event) {
	notify(r.reporter, e, r.logger)
}

func keyIndex(k persona.Key) int {
	for i, key := range persona.Keys() {
		if key == k {
			return i
		}
	}
	return len(persona.Keys())
}

package deliberation_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/parliament/agent"
	"github.com/BaSui01/parliament/agent/deliberation"
	"github.com/BaSui01/parliament/agent/persona"
	"github.com/BaSui01/parliament/ledger"
	"github.com/BaSui01/parliament/llm"
	"github.com/BaSui01/parliament/testutil"
	"github.com/BaSui01/parliament/testutil/mocks"
)

func testRoster(t *testing.T) persona.Roster {
	t.Helper()
	reg, err := persona.NewRegistry(persona.DefaultBindings(), nil)
	require.NoError(t, err)
	return reg.Render(persona.FallbackConstitution(), false)
}

func newEngine(t *testing.T, inv agent.Invoker, cfg deliberation.Config, opts ...deliberation.Option) *deliberation.Engine {
	t.Helper()
	e, err := deliberation.NewEngine(testRoster(t), inv, cfg, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return e
}

type eventLog struct {
	mu     sync.Mutex
	events []deliberation.Event
}

func (l *eventLog) Report(e deliberation.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) stages() []deliberation.Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]deliberation.Stage, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Stage)
	}
	return out
}

type entryLog struct {
	mu      sync.Mutex
	entries []ledger.Entry
}

func (l *entryLog) Record(_ context.Context, e ledger.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

func (l *entryLog) all() []ledger.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ledger.Entry(nil), l.entries...)
}

type outcomeLog struct {
	mu       sync.Mutex
	outcomes []string
	dropped  []string
}

func (o *outcomeLog) ObserveDeliberation(outcome string, _ int, _ time.Duration, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *outcomeLog) ObservePersonaDropped(p, stage string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped = append(o.dropped, p+"@"+stage)
}

func strPtr(s string) *string { return &s }

func TestEngine_ConsensusInFirstRound(t *testing.T) {
	inv := mocks.NewScriptedInvoker()
	entries := &entryLog{}
	obs := &outcomeLog{}
	e := newEngine(t, inv, deliberation.DefaultConfig(),
		deliberation.WithLedger(entries), deliberation.WithObserver(obs))
	events := &eventLog{}

	res, err := e.Run(testutil.TestContext(t), "Design a cache", strPtr("session-1"), events)
	require.NoError(t, err)

	assert.True(t, res.ConsensusReached)
	require.Len(t, res.Rounds, 1)
	assert.Equal(t, 1, res.Rounds[0].Number)
	assert.True(t, res.Rounds[0].ConsensusReached)
	assert.Len(t, res.Rounds[0].Votes, 3)
	assert.Equal(t, "voice synthesis r0", res.FinalResponse)
	assert.NotEmpty(t, res.DeliberationID)
	assert.Equal(t, persona.Keys(), res.ActivePersonas)

	assert.Len(t, inv.CallsFor(mocks.StageProposal), 3)
	assert.Len(t, inv.CallsFor(mocks.StageCritique), 3)
	assert.Len(t, inv.CallsFor(mocks.StageVote), 3)
	assert.Empty(t, inv.CallsFor(mocks.StageRefine))
	assert.Len(t, inv.CallsFor(mocks.StageSynthesis), 1)

	// every successful call is priced and forwarded
	assert.InDelta(t, 0.010, res.TotalCostUSD, 1e-9)
	got := entries.all()
	require.Len(t, got, 10)
	ids := map[string]bool{}
	for _, en := range got {
		assert.Equal(t, "session-1", en.SessionID)
		assert.NotEmpty(t, en.Model)
		ids[en.InteractionID] = true
	}
	assert.Len(t, ids, 10, "interaction ids must be unique")

	assert.Equal(t, []deliberation.Stage{
		deliberation.StageInitial,
		deliberation.StageInitialComplete,
		deliberation.StageRoundStart,
		deliberation.StageCritiques,
		deliberation.StageVotes,
		deliberation.StageRoundComplete,
		deliberation.StageSynthesis,
		deliberation.StageComplete,
	}, events.stages())
	assert.Equal(t, "Architect, Visionary, and Engineer generating initial solutions...", events.events[0].Message)
	assert.Equal(t, "Consensus reached in round 1!", events.events[5].Message)
	assert.Equal(t, []string{deliberation.OutcomeConsensus}, obs.outcomes)
}

func TestEngine_NoConsensusStopsAtMaxRounds(t *testing.T) {
	inv := mocks.NewScriptedInvoker().WithVotes(func(persona.Key, int) string {
		return "No, the trade-offs are unresolved."
	})
	e := newEngine(t, inv, deliberation.DefaultConfig())
	events := &eventLog{}

	res, err := e.Run(testutil.TestContext(t), "Plan a migration", nil, events)
	require.NoError(t, err)

	assert.False(t, res.ConsensusReached)
	require.Len(t, res.Rounds, 4)
	for i, r := range res.Rounds {
		assert.Equal(t, i+1, r.Number)
		assert.False(t, r.ConsensusReached)
	}
	// the last round does not refine
	refines := inv.CallsFor(mocks.StageRefine)
	assert.Len(t, refines, 9)
	for _, c := range refines {
		assert.Less(t, c.Round, 4)
	}

	synth := inv.CallsFor(mocks.StageSynthesis)
	require.Len(t, synth, 1)
	assert.Contains(t, synth[0].Prompt, "has reached a decision after maximum rounds")
	assert.Contains(t, synth[0].Prompt, "Original User Request: Plan a migration")
	assert.Contains(t, synth[0].Prompt, `Voting Results: {"Architect":"No","Engineer":"No","Visionary":"No"}`)

	// round 4 debated the solutions refined in round 3
	assert.Equal(t, "structural refine r3", res.Rounds[3].Responses[0].Text)
	assert.Contains(t, events.stages(), deliberation.StageRefine)
}

func TestEngine_ConsensusInLaterRound(t *testing.T) {
	inv := mocks.NewScriptedInvoker().WithVotes(func(k persona.Key, round int) string {
		if round >= 2 && k != persona.Strategic {
			return "  YES - converged"
		}
		return "Not yet"
	})
	e := newEngine(t, inv, deliberation.DefaultConfig())

	res, err := e.Run(context.Background(), "q", nil, nil)
	require.NoError(t, err)

	require.Len(t, res.Rounds, 2)
	assert.False(t, res.Rounds[0].ConsensusReached)
	assert.True(t, res.Rounds[1].ConsensusReached)
	assert.True(t, res.ConsensusReached)
	assert.Equal(t, deliberation.No, res.Rounds[1].Votes[persona.Strategic])
	assert.Equal(t, "Not yet", res.Rounds[1].Rationales[persona.Strategic])
	assert.Len(t, inv.CallsFor(mocks.StageRefine), 3)
}

func TestEngine_CritiqueNeverSeesOwnSolution(t *testing.T) {
	inv := mocks.NewScriptedInvoker().
		WithVotes(func(persona.Key, int) string { return "No" }).
		WithResponder(func(def persona.Definition, stage mocks.Stage, round int, _ string) (string, error) {
			return fmt.Sprintf("SOLUTION-%s-%s-%d", def.Key, stage, round), nil
		})
	cfg := deliberation.DefaultConfig()
	cfg.MaxRounds = 2
	e := newEngine(t, inv, cfg)

	_, err := e.Run(context.Background(), "q", nil, nil)
	require.NoError(t, err)

	critiques := inv.CallsFor(mocks.StageCritique)
	require.Len(t, critiques, 6)
	for _, c := range critiques {
		assert.NotContains(t, c.Prompt, "SOLUTION-"+string(c.Persona)+"-", "persona %s saw its own solution", c.Persona)
		for _, peer := range persona.Keys() {
			if peer != c.Persona {
				assert.Contains(t, c.Prompt, "SOLUTION-"+string(peer)+"-")
			}
		}
	}
}

func TestEngine_RefineSeesOwnSolutionAndPeerCritiques(t *testing.T) {
	inv := mocks.NewScriptedInvoker().
		WithVotes(func(persona.Key, int) string { return "No" }).
		WithResponder(func(def persona.Definition, stage mocks.Stage, round int, _ string) (string, error) {
			return fmt.Sprintf("%s-%s-%d", strings.ToUpper(string(def.Key)), stage, round), nil
		})
	cfg := deliberation.DefaultConfig()
	cfg.MaxRounds = 2
	e := newEngine(t, inv, cfg)

	_, err := e.Run(context.Background(), "Build it", nil, nil)
	require.NoError(t, err)

	refines := inv.CallsFor(mocks.StageRefine)
	require.Len(t, refines, 3)
	for _, c := range refines {
		own := strings.ToUpper(string(c.Persona))
		assert.Contains(t, c.Prompt, "Original User Request: Build it")
		assert.Contains(t, c.Prompt, "Your Original Solution:\n"+own+"-proposal-0")
		assert.NotContains(t, c.Prompt, own+"-critique-1", "own critique must not be fed back")
		for _, peer := range persona.Keys() {
			if peer != c.Persona {
				assert.Contains(t, c.Prompt, strings.ToUpper(string(peer))+"-critique-1")
			}
		}
	}
}

func TestEngine_DropsFailedPersona(t *testing.T) {
	inv := mocks.NewScriptedInvoker().WithFailure(persona.Strategic, mocks.StageProposal, 0)
	obs := &outcomeLog{}
	e := newEngine(t, inv, deliberation.DefaultConfig(), deliberation.WithObserver(obs))
	events := &eventLog{}

	res, err := e.Run(context.Background(), "q", nil, events)
	require.NoError(t, err)

	assert.Equal(t, []persona.Key{persona.Structural, persona.Pragmatic}, res.ActivePersonas)
	require.Len(t, res.Rounds, 1)
	assert.Len(t, res.Rounds[0].Responses, 2)
	assert.Len(t, res.Rounds[0].Votes, 2)
	assert.True(t, res.ConsensusReached)
	for _, c := range inv.Calls() {
		if c.Stage != mocks.StageProposal {
			assert.NotEqual(t, persona.Strategic, c.Persona, "dropped persona was invoked again")
		}
	}
	assert.Equal(t, []string{"strategic@propose"}, obs.dropped)
	assert.Contains(t, events.stages(), deliberation.StagePersonaDropped)
}

func TestEngine_DroppedMidRoundIsExcludedFromRecord(t *testing.T) {
	inv := mocks.NewScriptedInvoker().WithFailure(persona.Pragmatic, mocks.StageVote, 1)
	e := newEngine(t, inv, deliberation.DefaultConfig())

	res, err := e.Run(context.Background(), "q", nil, nil)
	require.NoError(t, err)

	r := res.Rounds[0]
	assert.Len(t, r.Responses, 2)
	assert.NotContains(t, r.Critiques, persona.Pragmatic)
	assert.NotContains(t, r.Votes, persona.Pragmatic)
	assert.True(t, r.ConsensusReached)
}

func TestEngine_AllPersonasFail(t *testing.T) {
	inv := mocks.NewScriptedInvoker()
	for _, k := range persona.Keys() {
		inv.WithFailure(k, mocks.StageProposal, 0)
	}
	obs := &outcomeLog{}
	e := newEngine(t, inv, deliberation.DefaultConfig(), deliberation.WithObserver(obs))

	res, err := e.Run(context.Background(), "q", nil, nil)
	require.Error(t, err)
	assert.Nil(t, res)

	var nap *deliberation.NoActivePersonasError
	require.ErrorAs(t, err, &nap)
	assert.Equal(t, "propose", nap.Stage)
	assert.Len(t, nap.Failures, 3)
	assert.True(t, agent.IsBackendError(err))
	assert.Empty(t, inv.CallsFor(mocks.StageSynthesis))
	assert.Equal(t, []string{deliberation.OutcomeNoActivePersonas}, obs.outcomes)
}

func TestEngine_LastPersonaLostLater(t *testing.T) {
	inv := mocks.NewScriptedInvoker().WithVotes(func(persona.Key, int) string { return "No" })
	for _, k := range persona.Keys() {
		inv.WithFailure(k, mocks.StageRefine, 1)
	}
	e := newEngine(t, inv, deliberation.DefaultConfig())

	_, err := e.Run(context.Background(), "q", nil, nil)
	var nap *deliberation.NoActivePersonasError
	require.ErrorAs(t, err, &nap)
	assert.Equal(t, "refine", nap.Stage)
}

func TestEngine_BelowVotingMinimumGoesToSynthesis(t *testing.T) {
	inv := mocks.NewScriptedInvoker().
		WithFailure(persona.Structural, mocks.StageProposal, 0).
		WithFailure(persona.Strategic, mocks.StageProposal, 0)
	e := newEngine(t, inv, deliberation.DefaultConfig())
	events := &eventLog{}

	res, err := e.Run(context.Background(), "q", nil, events)
	require.NoError(t, err)

	assert.False(t, res.ConsensusReached)
	require.Len(t, res.Rounds, 1)
	assert.Empty(t, res.Rounds[0].Votes)
	assert.Len(t, res.Rounds[0].Responses, 1)
	assert.Empty(t, inv.CallsFor(mocks.StageCritique))
	assert.Empty(t, inv.CallsFor(mocks.StageVote))
	assert.Len(t, inv.CallsFor(mocks.StageSynthesis), 1)
	assert.NotContains(t, events.stages(), deliberation.StageVotes)
}

func TestEngine_VoteStageDropsSkipRefinement(t *testing.T) {
	inv := mocks.NewScriptedInvoker().
		WithVotes(func(persona.Key, int) string { return "No" }).
		WithFailure(persona.Structural, mocks.StageVote, 1).
		WithFailure(persona.Strategic, mocks.StageVote, 1)
	e := newEngine(t, inv, deliberation.DefaultConfig())
	events := &eventLog{}

	res, err := e.Run(context.Background(), "q", nil, events)
	require.NoError(t, err)

	assert.False(t, res.ConsensusReached)
	require.Len(t, res.Rounds, 1)
	assert.Equal(t, []persona.Key{persona.Pragmatic}, res.ActivePersonas)
	assert.Empty(t, inv.CallsFor(mocks.StageRefine))
	assert.Len(t, inv.CallsFor(mocks.StageSynthesis), 1)
	assert.NotContains(t, events.stages(), deliberation.StageRefine)
}

func TestEngine_SinglePersonaQuorumWhenMinimumIsOne(t *testing.T) {
	inv := mocks.NewScriptedInvoker().
		WithFailure(persona.Structural, mocks.StageProposal, 0).
		WithFailure(persona.Strategic, mocks.StageProposal, 0)
	cfg := deliberation.DefaultConfig()
	cfg.MinVotingPersonas = 1
	e := newEngine(t, inv, cfg)

	res, err := e.Run(context.Background(), "q", nil, nil)
	require.NoError(t, err)
	assert.True(t, res.ConsensusReached)
	assert.Equal(t, deliberation.Yes, res.Rounds[0].Votes[persona.Pragmatic])
}

func TestEngine_SynthesisFailure(t *testing.T) {
	cause := errors.New("gateway down")
	inv := mocks.NewScriptedInvoker().WithSynthesisError(cause)
	obs := &outcomeLog{}
	e := newEngine(t, inv, deliberation.DefaultConfig(), deliberation.WithObserver(obs))

	res, err := e.Run(context.Background(), "q", nil, nil)
	assert.Nil(t, res)
	var se *deliberation.SynthesisError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, []string{deliberation.OutcomeSynthesisFailed}, obs.outcomes)
}

func TestEngine_ReporterAndLedgerPanicsAreContained(t *testing.T) {
	noVotes := func(persona.Key, int) string { return "No" }

	clean := newEngine(t, mocks.NewScriptedInvoker().WithVotes(noVotes), deliberation.DefaultConfig(),
		deliberation.WithLedger(&entryLog{}))
	want, err := clean.Run(context.Background(), "q", strPtr("s"), &eventLog{})
	require.NoError(t, err)

	panicky := deliberation.ReporterFunc(func(deliberation.Event) { panic("ui gone") })
	badLedger := recorderFunc(func(context.Context, ledger.Entry) { panic("ledger gone") })
	e := newEngine(t, mocks.NewScriptedInvoker().WithVotes(noVotes), deliberation.DefaultConfig(),
		deliberation.WithLedger(badLedger))

	got, err := e.Run(context.Background(), "q", strPtr("s"), panicky)
	require.NoError(t, err)
	require.Len(t, got.Rounds, 4)
	assert.Equal(t, want.FinalResponse, got.FinalResponse)
	assert.Equal(t, want.Rounds, got.Rounds)
	assert.Equal(t, want.ConsensusReached, got.ConsensusReached)
	assert.False(t, got.ConsensusReached)
}

type recorderFunc func(context.Context, ledger.Entry)

func (f recorderFunc) Record(ctx context.Context, e ledger.Entry) { f(ctx, e) }

func TestEngine_NilSessionStillForwardsWithEmptySession(t *testing.T) {
	entries := &entryLog{}
	e := newEngine(t, mocks.NewScriptedInvoker(), deliberation.DefaultConfig(), deliberation.WithLedger(entries))

	_, err := e.Run(context.Background(), "q", nil, nil)
	require.NoError(t, err)
	for _, en := range entries.all() {
		assert.Empty(t, en.SessionID)
	}
}

func TestEngine_RetriesRetryableBackendErrors(t *testing.T) {
	scripted := mocks.NewScriptedInvoker()
	var mu sync.Mutex
	failedOnce := false
	inv := agent.InvokerFunc(func(ctx context.Context, def persona.Definition, prompt string) (agent.Response, error) {
		mu.Lock()
		first := def.Key == persona.Structural && !failedOnce
		if first {
			failedOnce = true
		}
		mu.Unlock()
		if first {
			return agent.Response{}, &agent.BackendError{Persona: def.Key, Cause: &llm.Error{
				Code: llm.ErrUpstreamError, Message: "503", Retryable: true,
			}}
		}
		return scripted.Invoke(ctx, def, prompt)
	})

	cfg := deliberation.DefaultConfig()
	cfg.Retry.MaxRetries = 2
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = time.Millisecond
	e := newEngine(t, inv, cfg)

	res, err := e.Run(context.Background(), "q", nil, nil)
	require.NoError(t, err)
	assert.Len(t, res.ActivePersonas, 3)
}

func TestEngine_NoRetryByDefault(t *testing.T) {
	var calls int
	var mu sync.Mutex
	scripted := mocks.NewScriptedInvoker()
	inv := agent.InvokerFunc(func(ctx context.Context, def persona.Definition, prompt string) (agent.Response, error) {
		if def.Key == persona.Structural {
			mu.Lock()
			calls++
			mu.Unlock()
			return agent.Response{}, &agent.BackendError{Persona: def.Key, Cause: &llm.Error{Retryable: true, Message: "503"}}
		}
		return scripted.Invoke(ctx, def, prompt)
	})
	e := newEngine(t, inv, deliberation.DefaultConfig())

	res, err := e.Run(context.Background(), "q", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.NotContains(t, res.ActivePersonas, persona.Structural)
}

func TestEngine_CancelledContext(t *testing.T) {
	e := newEngine(t, mocks.NewScriptedInvoker(), deliberation.DefaultConfig())

	_, err := e.Run(testutil.CancelledContext(), "q", nil, nil)
	assert.True(t, deliberation.IsNoActivePersonas(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewEngine_Validation(t *testing.T) {
	roster := testRoster(t)
	inv := mocks.NewScriptedInvoker()

	_, err := deliberation.NewEngine(roster, nil, deliberation.DefaultConfig(), nil)
	assert.Error(t, err)

	_, err = deliberation.NewEngine(persona.Roster{}, inv, deliberation.DefaultConfig(), nil)
	assert.Error(t, err)

	bad := deliberation.DefaultConfig()
	bad.MaxRounds = 0
	_, err = deliberation.NewEngine(roster, inv, bad, nil)
	assert.Error(t, err)

	e, err := deliberation.NewEngine(roster, inv, deliberation.DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, e.Config().MaxRounds)
}

func TestEngine_ConcurrentRunsAreIndependent(t *testing.T) {
	e := newEngine(t, mocks.NewScriptedInvoker(), deliberation.DefaultConfig())

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.Run(context.Background(), fmt.Sprintf("q%d", i), nil, nil)
			if assert.NoError(t, err) {
				ids[i] = res.DeliberationID
			}
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
}

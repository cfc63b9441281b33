package deliberation

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/parliament/agent"
	"github.com/BaSui01/parliament/agent/persona"
)

const (
	stagePropose   = "propose"
	stageCritique  = "critique"
	stageVote      = "vote"
	stageRefine    = "refine"
	stageSynthesis = "synthesis"
)

type slot struct {
	resp agent.Response
	err  error
}

// fanOut calls every active persona concurrently and waits for all of them.
// A failure never cancels the siblings; it is returned in the failure map.
func (r *run) fanOut(ctx context.Context, stage string, round int, prompt func(def persona.Definition) string) (map[persona.Key]agent.Response, map[persona.Key]error) {
	defs := r.active
	ctx, span := r.e.tracer.Start(ctx, "deliberation."+stage, trace.WithAttributes(
		attribute.Int("deliberation.round", round),
		attribute.Int("deliberation.active", len(defs)),
	))
	defer span.End()

	slots := make([]slot, len(defs))
	var g errgroup.Group
	for i, def := range defs {
		g.Go(func() error {
			resp, err := r.call(ctx, def, prompt(def))
			slots[i] = slot{resp: resp, err: err}
			return nil
		})
	}
	_ = g.Wait()

	ok := make(map[persona.Key]agent.Response, len(defs))
	var failed map[persona.Key]error
	for i, def := range defs {
		if slots[i].err != nil {
			if failed == nil {
				failed = make(map[persona.Key]error)
			}
			failed[def.Key] = slots[i].err
			continue
		}
		ok[def.Key] = slots[i].resp
		r.cost += slots[i].resp.CostUSD
	}
	if len(failed) > 0 {
		span.SetStatus(codes.Error, "persona call failed")
		span.SetAttributes(attribute.Int("deliberation.failed", len(failed)))
	}
	return ok, failed
}

func (r *run) propose(ctx context.Context) (map[persona.Key]agent.Response, error) {
	ok, failed := r.fanOut(ctx, stagePropose, 0, func(def persona.Definition) string {
		return ProposalPrompt(r.request, def)
	})
	if err := r.drop(stagePropose, 0, failed); err != nil {
		return nil, err
	}
	return ok, nil
}

func (r *run) critique(ctx context.Context, round int, current []agent.Response) (map[persona.Key]string, error) {
	ok, failed := r.fanOut(ctx, stageCritique, round, func(def persona.Definition) string {
		return CritiquePrompt(round, def.Key, current)
	})
	if err := r.drop(stageCritique, round, failed); err != nil {
		return nil, err
	}
	critiques := make(map[persona.Key]string, len(ok))
	for k, resp := range ok {
		critiques[k] = resp.Text
	}
	return critiques, nil
}

func (r *run) vote(ctx context.Context, round int, current []agent.Response, critiques map[persona.Key]string) (map[persona.Key]Vote, error) {
	ok, failed := r.fanOut(ctx, stageVote, round, func(def persona.Definition) string {
		return VotePrompt(round, current, critiques)
	})
	if err := r.drop(stageVote, round, failed); err != nil {
		return nil, err
	}
	votes := make(map[persona.Key]Vote, len(ok))
	for k, resp := range ok {
		votes[k] = Vote{Persona: k, Value: ClassifyVote(resp.Text), Rationale: resp.Text}
	}
	return votes, nil
}

func (r *run) refine(ctx context.Context, round int, responses map[persona.Key]agent.Response, critiques map[persona.Key]string) (map[persona.Key]agent.Response, error) {
	ok, failed := r.fanOut(ctx, stageRefine, round, func(def persona.Definition) string {
		return RefinePrompt(round, r.request, responses[def.Key], critiques)
	})
	if err := r.drop(stageRefine, round, failed); err != nil {
		return nil, err
	}
	return ok, nil
}

// synthesize makes the single call with the synthesis voice.
func (r *run) synthesize(ctx context.Context, last Round) (string, error) {
	ctx, span := r.e.tracer.Start(ctx, "deliberation."+stageSynthesis, trace.WithAttributes(
		attribute.Bool("deliberation.consensus", last.ConsensusReached),
	))
	defer span.End()

	prompt := SynthesisPrompt(SynthesisInput{
		Request:      r.request,
		Responses:    last.Responses,
		Critiques:    last.Critiques,
		Votes:        last.Votes,
		Consensus:    last.ConsensusReached,
		Constitution: r.e.roster.Constitution,
	})
	resp, err := r.call(ctx, r.e.roster.Synthesis, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis failed")
		r.logger.Error("synthesis failed", zap.Error(err))
		return "", &SynthesisError{Cause: err}
	}
	r.cost += resp.CostUSD
	return resp.Text, nil
}

package mocks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/BaSui01/parliament/agent"
	"github.com/BaSui01/parliament/agent/persona"
)

// Stage 是从 prompt 推断出的审议阶段
type Stage string

const (
	StageProposal  Stage = "proposal"
	StageCritique  Stage = "critique"
	StageVote      Stage = "vote"
	StageRefine    Stage = "refine"
	StageSynthesis Stage = "synthesis"
)

// DetectStage 根据 prompt 文本和调用者推断阶段与轮次（提案与合成为 0）
func DetectStage(def persona.Definition, prompt string) (Stage, int) {
	if def.Key == persona.Voice {
		return StageSynthesis, 0
	}
	var round int
	if _, err := fmt.Sscanf(prompt, "Round %d", &round); err != nil {
		return StageProposal, 0
	}
	switch {
	case strings.Contains(prompt, "Voting Decision"):
		return StageVote, round
	case strings.Contains(prompt, "Refine Your Solution"):
		return StageRefine, round
	default:
		return StageCritique, round
	}
}

// InvokerCall 记录一次 Invoke 调用
type InvokerCall struct {
	Persona persona.Key
	Stage   Stage
	Round   int
	Prompt  string
}

type failureRule struct {
	persona persona.Key
	stage   Stage
	round   int // 0 表示任意轮次
}

// ScriptedInvoker 是按人格/阶段编排回复的 agent.Invoker，供审议引擎测试使用
type ScriptedInvoker struct {
	mu sync.Mutex

	votes     func(k persona.Key, round int) string
	responder func(def persona.Definition, stage Stage, round int, prompt string) (string, error)
	failures  []failureRule
	synthErr  error

	inputTokens  int
	outputTokens int
	costUSD      float64

	calls []InvokerCall
}

var _ agent.Invoker = (*ScriptedInvoker)(nil)

// NewScriptedInvoker 创建默认全部投 Yes 的调用器
func NewScriptedInvoker() *ScriptedInvoker {
	return &ScriptedInvoker{
		votes:        func(persona.Key, int) string { return "Yes, the solutions converge." },
		inputTokens:  100,
		outputTokens: 50,
		costUSD:      0.001,
	}
}

// WithVotes 设置投票文本
func (s *ScriptedInvoker) WithVotes(fn func(k persona.Key, round int) string) *ScriptedInvoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes = fn
	return s
}

// WithResponder 覆盖非投票阶段的回复
func (s *ScriptedInvoker) WithResponder(fn func(def persona.Definition, stage Stage, round int, prompt string) (string, error)) *ScriptedInvoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responder = fn
	return s
}

// WithFailure 让指定人格在某阶段失败，round 为 0 时匹配任意轮次
func (s *ScriptedInvoker) WithFailure(k persona.Key, stage Stage, round int) *ScriptedInvoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failureRule{persona: k, stage: stage, round: round})
	return s
}

// WithSynthesisError 让合成调用失败
func (s *ScriptedInvoker) WithSynthesisError(err error) *ScriptedInvoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synthErr = err
	return s
}

// WithUsage 设置每次成功调用的用量与费用
func (s *ScriptedInvoker) WithUsage(in, out int, cost float64) *ScriptedInvoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputTokens, s.outputTokens, s.costUSD = in, out, cost
	return s
}

// Invoke 实现 agent.Invoker
func (s *ScriptedInvoker) Invoke(ctx context.Context, def persona.Definition, prompt string) (agent.Response, error) {
	stage, round := DetectStage(def, prompt)

	s.mu.Lock()
	s.calls = append(s.calls, InvokerCall{Persona: def.Key, Stage: stage, Round: round, Prompt: prompt})
	votes, responder, synthErr := s.votes, s.responder, s.synthErr
	failed := s.failsLocked(def.Key, stage, round)
	in, out, cost := s.inputTokens, s.outputTokens, s.costUSD
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return agent.Response{}, &agent.BackendError{Persona: def.Key, Model: def.Binding.Model, Cause: err}
	}
	if stage == StageSynthesis && synthErr != nil {
		return agent.Response{}, &agent.BackendError{Persona: def.Key, Model: def.Binding.Model, Cause: synthErr}
	}
	if failed {
		return agent.Response{}, &agent.BackendError{
			Persona: def.Key, Model: def.Binding.Model,
			Cause: errors.New("scripted backend failure"),
		}
	}

	var text string
	switch {
	case stage == StageVote:
		text = votes(def.Key, round)
	case responder != nil:
		var err error
		text, err = responder(def, stage, round, prompt)
		if err != nil {
			return agent.Response{}, &agent.BackendError{Persona: def.Key, Model: def.Binding.Model, Cause: err}
		}
	default:
		text = fmt.Sprintf("%s %s r%d", def.Key, stage, round)
	}

	return agent.Response{
		Persona:      def.Key,
		Text:         text,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      cost,
		ModelName:    def.Binding.Model,
	}, nil
}

func (s *ScriptedInvoker) failsLocked(k persona.Key, stage Stage, round int) bool {
	for _, f := range s.failures {
		if f.persona == k && f.stage == stage && (f.round == 0 || f.round == round) {
			return true
		}
	}
	return false
}

// Calls 返回全部调用记录
func (s *ScriptedInvoker) Calls() []InvokerCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]InvokerCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsFor 返回指定阶段的调用记录
func (s *ScriptedInvoker) CallsFor(stage Stage) []InvokerCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []InvokerCall
	for _, c := range s.calls {
		if c.Stage == stage {
			out = append(out, c)
		}
	}
	return out
}

// CallCount 返回调用次数
func (s *ScriptedInvoker) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

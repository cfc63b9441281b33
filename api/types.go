package api

import (
	"strings"
	"time"

	"github.com/BaSui01/parliament/agent/deliberation"
	"github.com/BaSui01/parliament/agent/persona"
)

// MaxPromptBytes bounds the request prompt.
const MaxPromptBytes = 32 << 10

// =============================================================================
// 审议请求与响应
// =============================================================================

// DeliberationRequest starts one deliberation.
// @Description 审议请求
type DeliberationRequest struct {
	// 用户请求文本
	Prompt string `json:"prompt" example:"Design a rate limiter for a public API"`
	// 会话 ID，为空时不记录成本
	SessionID *string `json:"session_id,omitempty" example:"7f0c..."`
	// 以 NDJSON 流式返回进度
	Stream bool `json:"stream,omitempty"`
}

// Normalize trims the prompt and treats a blank session id as absent.
func (r *DeliberationRequest) Normalize() {
	r.Prompt = strings.TrimSpace(r.Prompt)
	if r.SessionID != nil && strings.TrimSpace(*r.SessionID) == "" {
		r.SessionID = nil
	}
}

// DeliberationResponse is the final outcome returned to the client.
// @Description 审议结果
type DeliberationResponse struct {
	DeliberationID   string               `json:"deliberation_id"`
	FinalResponse    string               `json:"final_response"`
	ConsensusReached bool                 `json:"consensus_reached"`
	Rounds           []deliberation.Round `json:"rounds"`
	ActivePersonas   []persona.Key        `json:"active_personas"`
	TotalCostUSD     float64              `json:"total_cost_usd"`
	DurationMS       int64                `json:"duration_ms"`
}

// NewDeliberationResponse copies res into its wire form.
func NewDeliberationResponse(res *deliberation.Result, elapsed time.Duration) DeliberationResponse {
	rounds := res.Rounds
	if rounds == nil {
		rounds = []deliberation.Round{}
	}
	active := res.ActivePersonas
	if active == nil {
		active = []persona.Key{}
	}
	return DeliberationResponse{
		DeliberationID:   res.DeliberationID,
		FinalResponse:    res.FinalResponse,
		ConsensusReached: res.ConsensusReached,
		Rounds:           rounds,
		ActivePersonas:   active,
		TotalCostUSD:     res.TotalCostUSD,
		DurationMS:       elapsed.Milliseconds(),
	}
}

// =============================================================================
// NDJSON 流
// =============================================================================

// Stream line types.
const (
	LineProgress = "progress"
	LineResult   = "result"
	LineError    = "error"
)

// StreamError is the terminal error line payload.
type StreamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StreamLine is one NDJSON line.
type StreamLine struct {
	Type   string                `json:"type"`
	Event  *deliberation.Event   `json:"event,omitempty"`
	Result *DeliberationResponse `json:"result,omitempty"`
	Error  *StreamError          `json:"error,omitempty"`
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry is one priced backend call attributed to a session.
type Entry struct {
	SessionID     string    `json:"session_id"`
	InteractionID string    `json:"interaction_id"`
	Model         string    `json:"model_used"`
	InputTokens   int       `json:"input_tokens"`
	OutputTokens  int       `json:"output_tokens"`
	CostUSD       float64   `json:"cost_usd"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewEntry stamps a fresh interaction id and the current time.
// A nil session id yields an entry the Recorder will skip.
func NewEntry(sessionID *string, model string, inputTokens, outputTokens int, costUSD float64) Entry {
	e := Entry{
		InteractionID: uuid.NewString(),
		Model:         model,
		InputTokens:   inputTokens,
		OutputTokens:  outputTokens,
		CostUSD:       costUSD,
		Timestamp:     time.Now().UTC(),
	}
	if sessionID != nil {
		e.SessionID = *sessionID
	}
	return e
}

// TotalTokens returns input plus output tokens.
func (e Entry) TotalTokens() int { return e.InputTokens + e.OutputTokens }

// Sink persists entries. Implementations must be safe for concurrent use.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Entry) error

func (f SinkFunc) Write(ctx context.Context, e Entry) error { return f(ctx, e) }

// MultiSink writes to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, e Entry) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Write(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteError wraps a sink failure with the entry it was writing.
type WriteError struct {
	InteractionID string
	SessionID     string
	Cause         error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ledger write %s (session %s): %v", e.InteractionID, e.SessionID, e.Cause)
}

func (e *WriteError) Unwrap() error { return e.Cause }

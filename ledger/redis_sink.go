package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BaSui01/parliament/internal/cache"
)

// HashStore is the subset of *cache.Manager the RedisSink needs.
type HashStore interface {
	IncrementHash(ctx context.Context, key string, inc cache.HashIncrement, ttl time.Duration) error
	GetHash(ctx context.Context, key string) (map[string]string, error)
}

// ErrNoTotals reports a session with no running totals in Redis, either
// because nothing was spent or because the hash expired.
var ErrNoTotals = errors.New("ledger: no running totals for session")

const (
	fieldCost         = "cost_usd"
	fieldInputTokens  = "input_tokens"
	fieldOutputTokens = "output_tokens"
	fieldInteractions = "interactions"
)

// RedisSink keeps per-session running totals in a Redis hash so cost
// lookups do not hit the database.
type RedisSink struct {
	store  HashStore
	prefix string
	ttl    time.Duration
}

// NewRedisSink returns a sink writing under prefix (default "parliament:ledger").
// ttl<=0 keeps totals forever.
func NewRedisSink(store HashStore, prefix string, ttl time.Duration) *RedisSink {
	if prefix == "" {
		prefix = "parliament:ledger"
	}
	return &RedisSink{store: store, prefix: prefix, ttl: ttl}
}

func (s *RedisSink) key(sessionID string) string {
	return s.prefix + ":session:" + sessionID
}

func (s *RedisSink) Write(ctx context.Context, e Entry) error {
	return s.store.IncrementHash(ctx, s.key(e.SessionID), cache.HashIncrement{
		Ints: map[string]int64{
			fieldInputTokens:  int64(e.InputTokens),
			fieldOutputTokens: int64(e.OutputTokens),
			fieldInteractions: 1,
		},
		Floats: map[string]float64{fieldCost: e.CostUSD},
	}, s.ttl)
}

// Summarize reads the running totals. Per-model breakdown is not tracked
// here, so Models is always empty. A missing hash returns ErrNoTotals.
func (s *RedisSink) Summarize(ctx context.Context, sessionID string) (*Summary, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("ledger: redis totals require a session id")
	}
	vals, err := s.store.GetHash(ctx, s.key(sessionID))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrNoTotals
	}
	if err != nil {
		return nil, err
	}

	sum := &Summary{SessionID: sessionID, Models: []ModelUsage{}}
	if sum.TotalCostUSD, err = parseFloat(vals, fieldCost); err != nil {
		return nil, err
	}
	if sum.InputTokens, err = parseInt(vals, fieldInputTokens); err != nil {
		return nil, err
	}
	if sum.OutputTokens, err = parseInt(vals, fieldOutputTokens); err != nil {
		return nil, err
	}
	if sum.Interactions, err = parseInt(vals, fieldInteractions); err != nil {
		return nil, err
	}
	if sum.Interactions > 0 {
		sum.AvgCostUSD = sum.TotalCostUSD / float64(sum.Interactions)
	}
	return sum, nil
}

func parseInt(vals map[string]string, field string) (int64, error) {
	v, ok := vals[field]
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("ledger: bad %s %q: %w", field, v, err)
	}
	return n, nil
}

func parseFloat(vals map[string]string, field string) (float64, error) {
	v, ok := vals[field]
	if !ok {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("ledger: bad %s %q: %w", field, v, err)
	}
	return f, nil
}

// FallbackSummarizer tries each Summarizer in order and returns the first
// success. When every failure is ErrNoTotals the session has no spend and an
// empty Summary is returned.
type FallbackSummarizer []Summarizer

func (f FallbackSummarizer) Summarize(ctx context.Context, sessionID string) (*Summary, error) {
	var errs []error
	onlyMisses := true
	for _, s := range f {
		if s == nil {
			continue
		}
		sum, err := s.Summarize(ctx, sessionID)
		if err == nil {
			return sum, nil
		}
		if !errors.Is(err, ErrNoTotals) {
			onlyMisses = false
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("ledger: no summarizer configured")
	}
	if onlyMisses {
		return summarize(sessionID, nil), nil
	}
	return nil, errors.Join(errs...)
}

package ledger

import "context"

// EntryObserver receives every entry a MetricsSink sees.
// *metrics.Collector satisfies it.
type EntryObserver interface {
	RecordLedgerEntry(model string, inputTokens, outputTokens int, costUSD float64)
}

// MetricsSink turns entries into Prometheus counters. It never fails.
type MetricsSink struct {
	observer EntryObserver
}

func NewMetricsSink(o EntryObserver) *MetricsSink {
	return &MetricsSink{observer: o}
}

func (s *MetricsSink) Write(_ context.Context, e Entry) error {
	if s.observer != nil {
		s.observer.RecordLedgerEntry(e.Model, e.InputTokens, e.OutputTokens, e.CostUSD)
	}
	return nil
}

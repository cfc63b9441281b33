package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/parliament/internal/pool"
	"go.uber.org/zap"
)

// Write outcomes reported to a WriteObserver.
const (
	StatusOK      = "ok"
	StatusFailed  = "error"
	StatusDropped = "dropped"
	StatusSkipped = "skipped"
)

// WriteObserver counts write outcomes. *metrics.Collector satisfies it.
type WriteObserver interface {
	RecordLedgerWrite(status string)
}

// RecorderConfig bounds the background writers.
type RecorderConfig struct {
	Workers      int           `yaml:"workers" env:"WORKERS" json:"workers"`
	QueueSize    int           `yaml:"queue_size" env:"QUEUE_SIZE" json:"queue_size"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" json:"write_timeout"`
}

// DefaultRecorderConfig returns the defaults used by the server.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		Workers:      4,
		QueueSize:    512,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder writes entries to a Sink in the background. Record never blocks
// and never reports failure to the caller; errors are logged and counted.
type Recorder struct {
	sink     Sink
	pool     *pool.GoroutinePool
	timeout  time.Duration
	observer WriteObserver
	logger   *zap.Logger
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithWriteObserver attaches a write outcome counter.
func WithWriteObserver(o WriteObserver) RecorderOption {
	return func(r *Recorder) { r.observer = o }
}

// NewRecorder starts a Recorder over sink.
func NewRecorder(sink Sink, cfg RecorderConfig, logger *zap.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultRecorderConfig().WriteTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultRecorderConfig().QueueSize
	}
	r := &Recorder{
		sink:    sink,
		timeout: cfg.WriteTimeout,
		logger:  logger.With(zap.String("component", "ledger")),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.pool = pool.NewGoroutinePool(pool.GoroutinePoolConfig{
		MaxWorkers:   cfg.Workers,
		QueueSize:    cfg.QueueSize,
		ErrorHandler: r.handleError,
	})
	return r
}

// Record queues e for writing. The write is detached from ctx cancellation
// so abandoning a deliberation does not lose entries already priced.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.SessionID == "" {
		r.logger.Warn("cannot log compute cost: no session id provided",
			zap.String("interaction_id", e.InteractionID),
			zap.String("model", e.Model))
		r.observe(StatusSkipped)
		return
	}

	detached := context.WithoutCancel(ctx)
	err := r.pool.Submit(detached, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		if err := r.sink.Write(ctx, e); err != nil {
			return &WriteError{InteractionID: e.InteractionID, SessionID: e.SessionID, Cause: err}
		}
		r.observe(StatusOK)
		return nil
	})
	if err != nil {
		r.logger.Warn("ledger entry dropped",
			zap.String("interaction_id", e.InteractionID),
			zap.String("session_id", e.SessionID),
			zap.Error(err))
		r.observe(StatusDropped)
	}
}

// Close drains queued writes.
func (r *Recorder) Close() {
	r.pool.Close()
}

// Shutdown drains queued writes until ctx ends.
func (r *Recorder) Shutdown(ctx context.Context) error {
	return r.pool.Shutdown(ctx)
}

// Stats exposes the background pool counters.
func (r *Recorder) Stats() pool.GoroutinePoolStats {
	return r.pool.Stats()
}

func (r *Recorder) handleError(err error) {
	fields := []zap.Field{zap.Error(err)}
	var we *WriteError
	if errors.As(err, &we) {
		fields = append(fields,
			zap.String("interaction_id", we.InteractionID),
			zap.String("session_id", we.SessionID))
	}
	r.logger.Error("ledger write failed", fields...)
	r.observe(StatusFailed)
}

func (r *Recorder) observe(status string) {
	if r.observer != nil {
		r.observer.RecordLedgerWrite(status)
	}
}

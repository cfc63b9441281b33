package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/parliament/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record is the compute_ledger row.
type Record struct {
	ID            uint      `gorm:"primaryKey"`
	SessionID     string    `gorm:"column:session_id;size:128;not null;index:idx_compute_ledger_session,priority:1"`
	InteractionID string    `gorm:"column:interaction_id;size:64;not null;uniqueIndex"`
	ModelUsed     string    `gorm:"column:model_used;size:128;not null"`
	InputTokens   int       `gorm:"column:input_tokens;not null;default:0"`
	OutputTokens  int       `gorm:"column:output_tokens;not null;default:0"`
	CostUSD       float64   `gorm:"column:cost_usd;not null;default:0"`
	CreatedAt     time.Time `gorm:"column:created_at;index:idx_compute_ledger_session,priority:2"`
}

// TableName 与迁移脚本保持一致
func (Record) TableName() string { return "compute_ledger" }

func recordFrom(e Entry) Record {
	return Record{
		SessionID:     e.SessionID,
		InteractionID: e.InteractionID,
		ModelUsed:     e.Model,
		InputTokens:   e.InputTokens,
		OutputTokens:  e.OutputTokens,
		CostUSD:       e.CostUSD,
		CreatedAt:     e.Timestamp,
	}
}

// GormSink persists entries to the compute_ledger table. Writes are
// idempotent on InteractionID.
type GormSink struct {
	pm         *database.PoolManager
	maxRetries int
	logger     *zap.Logger
}

// NewGormSink wraps an open pool. maxRetries bounds transactional retries on
// deadlocks and dropped connections.
func NewGormSink(pm *database.PoolManager, maxRetries int, logger *zap.Logger) (*GormSink, error) {
	if pm == nil {
		return nil, fmt.Errorf("ledger: pool manager is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &GormSink{pm: pm, maxRetries: maxRetries, logger: logger.With(zap.String("sink", "gorm"))}, nil
}

// AutoMigrate creates the table for development setups that skip migrations.
func (s *GormSink) AutoMigrate(ctx context.Context) error {
	return s.pm.DB().WithContext(ctx).AutoMigrate(&Record{})
}

func (s *GormSink) Write(ctx context.Context, e Entry) error {
	rec := recordFrom(e)
	return s.pm.WithTransactionRetry(ctx, s.maxRetries, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "interaction_id"}},
			DoNothing: true,
		}).Create(&rec).Error
	})
}

// Entries returns a session's entries oldest first.
func (s *GormSink) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	var rows []Record
	err := s.pm.DB().WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ledger: list entries: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{
			SessionID:     r.SessionID,
			InteractionID: r.InteractionID,
			Model:         r.ModelUsed,
			InputTokens:   r.InputTokens,
			OutputTokens:  r.OutputTokens,
			CostUSD:       r.CostUSD,
			Timestamp:     r.CreatedAt,
		})
	}
	return out, nil
}

// =============================================================================
// 📑 会话成本汇总
// =============================================================================

// ModelUsage is the per-model slice of a Summary.
type ModelUsage struct {
	Model        string  `json:"model" gorm:"column:model"`
	Interactions int64   `json:"interactions" gorm:"column:interactions"`
	InputTokens  int64   `json:"input_tokens" gorm:"column:input_tokens"`
	OutputTokens int64   `json:"output_tokens" gorm:"column:output_tokens"`
	CostUSD      float64 `json:"cost_usd" gorm:"column:cost_usd"`
}

// Summary aggregates the ledger for one session, or for all sessions when
// SessionID is empty.
type Summary struct {
	SessionID    string       `json:"session_id,omitempty"`
	TotalCostUSD float64      `json:"total_cost_usd"`
	InputTokens  int64        `json:"input_tokens"`
	OutputTokens int64        `json:"output_tokens"`
	Interactions int64        `json:"interactions"`
	AvgCostUSD   float64      `json:"avg_cost_usd"`
	Models       []ModelUsage `json:"models"`
}

// TotalTokens returns input plus output tokens.
func (s Summary) TotalTokens() int64 { return s.InputTokens + s.OutputTokens }

// String renders the block injected into assistant context.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total Spend: $%.4f USD\n", s.TotalCostUSD)
	fmt.Fprintf(&b, "Total Tokens: %d (%d in / %d out)\n", s.TotalTokens(), s.InputTokens, s.OutputTokens)
	fmt.Fprintf(&b, "Interactions: %d\n", s.Interactions)
	fmt.Fprintf(&b, "Avg Cost/Interaction: $%.4f USD", s.AvgCostUSD)
	return b.String()
}

// Summarizer reads aggregated spend.
type Summarizer interface {
	Summarize(ctx context.Context, sessionID string) (*Summary, error)
}

// Summarize aggregates spend grouped by model.
func (s *GormSink) Summarize(ctx context.Context, sessionID string) (*Summary, error) {
	var rows []ModelUsage
	q := s.pm.DB().WithContext(ctx).
		Model(&Record{}).
		Select("model_used AS model, COUNT(*) AS interactions, " +
			"COALESCE(SUM(input_tokens), 0) AS input_tokens, " +
			"COALESCE(SUM(output_tokens), 0) AS output_tokens, " +
			"COALESCE(SUM(cost_usd), 0) AS cost_usd").
		Group("model_used").
		Order("model_used")
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("ledger: summarize: %w", err)
	}
	return summarize(sessionID, rows), nil
}

func summarize(sessionID string, rows []ModelUsage) *Summary {
	sum := &Summary{SessionID: sessionID, Models: rows}
	if sum.Models == nil {
		sum.Models = []ModelUsage{}
	}
	for _, r := range rows {
		sum.TotalCostUSD += r.CostUSD
		sum.InputTokens += r.InputTokens
		sum.OutputTokens += r.OutputTokens
		sum.Interactions += r.Interactions
	}
	if sum.Interactions > 0 {
		sum.AvgCostUSD = sum.TotalCostUSD / float64(sum.Interactions)
	}
	return sum
}

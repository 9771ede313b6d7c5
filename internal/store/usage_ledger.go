package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UsageLedgerEntry is an append-only record of tokens spent and their cost
// estimate for a single generation (§3). CHECK totalTokens = promptTokens +
// completionTokens is enforced at the schema level, not re-validated here.
type UsageLedgerEntry struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	GenerationID     *uuid.UUID
	Month            string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	CostEstimate     float64
	Model            string
	CreatedAt        time.Time
}

// UsageLedgerStore provides database operations for the usage ledger.
type UsageLedgerStore struct {
	db DBTX
}

// NewUsageLedgerStore creates a UsageLedgerStore backed by the given connection.
func NewUsageLedgerStore(db DBTX) *UsageLedgerStore {
	return &UsageLedgerStore{db: db}
}

const usageLedgerColumns = `id, user_id, generation_id, month, prompt_tokens, completion_tokens, total_tokens, cost_estimate, model, created_at`

func scanUsageLedgerEntry(row interface{ Scan(...any) error }) (UsageLedgerEntry, error) {
	var e UsageLedgerEntry
	err := row.Scan(&e.ID, &e.UserID, &e.GenerationID, &e.Month, &e.PromptTokens,
		&e.CompletionTokens, &e.TotalTokens, &e.CostEstimate, &e.Model, &e.CreatedAt)
	return e, err
}

// RecordUsageParams holds parameters for appending a usage ledger entry.
type RecordUsageParams struct {
	UserID           uuid.UUID
	GenerationID     *uuid.UUID
	Month            string
	PromptTokens     int64
	CompletionTokens int64
	CostEstimate     float64
	Model            string
}

// Record appends a usage ledger entry (§4.7 step 8; invariant 2 requires this
// to exist before a generation is marked completed).
func (s *UsageLedgerStore) Record(ctx context.Context, p RecordUsageParams) (UsageLedgerEntry, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO usage_ledger
		   (user_id, generation_id, month, prompt_tokens, completion_tokens, total_tokens, cost_estimate, model)
		 VALUES ($1, $2, $3, $4, $5, $4 + $5, $6, $7)
		 RETURNING `+usageLedgerColumns,
		p.UserID, p.GenerationID, p.Month, p.PromptTokens, p.CompletionTokens, p.CostEstimate, p.Model)
	e, err := scanUsageLedgerEntry(row)
	if err != nil {
		return UsageLedgerEntry{}, fmt.Errorf("recording usage for generation %v: %w", p.GenerationID, err)
	}
	return e, nil
}

// MonthlyCostForUser sums cost estimates for a user within a month, used for
// reporting/alerting outside the hot enforcement path.
func (s *UsageLedgerStore) MonthlyCostForUser(ctx context.Context, userID uuid.UUID, month string) (float64, error) {
	var total float64
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost_estimate), 0) FROM usage_ledger WHERE user_id = $1 AND month = $2`,
		userID, month).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing monthly cost for %s: %w", userID, err)
	}
	return total, nil
}

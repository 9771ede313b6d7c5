package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// GenerationStatus tracks a generation's progress (§3 invariant 1: may only
// advance pending → processing → {completed,failed}, never backwards).
type GenerationStatus string

const (
	GenerationPending    GenerationStatus = "pending"
	GenerationProcessing GenerationStatus = "processing"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
)

// RegenType distinguishes a targeted single-variant regen from a full regen (§4.6).
type RegenType string

const (
	RegenTargeted RegenType = "targeted"
	RegenFull     RegenType = "full"
)

// Generation is one attempt to produce variants for a draft (§3).
type Generation struct {
	ID                 uuid.UUID
	DraftID             uuid.UUID
	OwnerID             uuid.UUID
	Status              GenerationStatus
	ErrorMessage        *string
	IdempotencyKey      *string
	IsRegen             bool
	ParentGenerationID  *uuid.UUID
	RegenType           *RegenType
	Metadata            json.RawMessage
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CompletedAt         *time.Time
}

// GenerationStore provides database operations for generations.
type GenerationStore struct {
	db DBTX
}

// NewGenerationStore creates a GenerationStore backed by the given connection.
func NewGenerationStore(db DBTX) *GenerationStore {
	return &GenerationStore{db: db}
}

const generationColumns = `id, draft_id, owner_id, status, error_message, idempotency_key,
	is_regen, parent_generation_id, regen_type, metadata, created_at, updated_at, completed_at`

func scanGeneration(row interface{ Scan(...any) error }) (Generation, error) {
	var g Generation
	err := row.Scan(&g.ID, &g.DraftID, &g.OwnerID, &g.Status, &g.ErrorMessage, &g.IdempotencyKey,
		&g.IsRegen, &g.ParentGenerationID, &g.RegenType, &g.Metadata,
		&g.CreatedAt, &g.UpdatedAt, &g.CompletedAt)
	return g, err
}

// Get returns a single generation by ID.
func (s *GenerationStore) Get(ctx context.Context, id uuid.UUID) (Generation, error) {
	row := s.db.QueryRow(ctx, `SELECT `+generationColumns+` FROM generations WHERE id = $1`, id)
	g, err := scanGeneration(row)
	if err != nil {
		return Generation{}, fmt.Errorf("getting generation %s: %w", id, err)
	}
	return g, nil
}

// GetByIdempotencyKey returns the generation created for a given idempotency
// key, if one exists (invariant 3: at most one per non-null key).
func (s *GenerationStore) GetByIdempotencyKey(ctx context.Context, ownerID uuid.UUID, key string) (Generation, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+generationColumns+` FROM generations WHERE owner_id = $1 AND idempotency_key = $2`,
		ownerID, key)
	g, err := scanGeneration(row)
	if err != nil {
		return Generation{}, fmt.Errorf("getting generation by idempotency key: %w", err)
	}
	return g, nil
}

// CreateGenerationParams holds parameters for creating a generation.
type CreateGenerationParams struct {
	DraftID            uuid.UUID
	OwnerID            uuid.UUID
	IdempotencyKey     *string
	IsRegen            bool
	ParentGenerationID *uuid.UUID
	RegenType          *RegenType
	Metadata           json.RawMessage
}

// Create inserts a new generation in the pending state. A unique violation
// on idempotency_key is surfaced as ErrIdempotencyConflict so the admission
// layer can map it to the spec's IDEMPOTENCY_CONFLICT error code.
func (s *GenerationStore) Create(ctx context.Context, p CreateGenerationParams) (Generation, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO generations
		   (draft_id, owner_id, status, idempotency_key, is_regen, parent_generation_id, regen_type, metadata)
		 VALUES ($1, $2, 'pending', $3, $4, $5, $6, $7)
		 RETURNING `+generationColumns,
		p.DraftID, p.OwnerID, p.IdempotencyKey, p.IsRegen, p.ParentGenerationID, p.RegenType, p.Metadata)
	g, err := scanGeneration(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Generation{}, ErrIdempotencyConflict
		}
		return Generation{}, fmt.Errorf("creating generation: %w", err)
	}
	return g, nil
}

// ErrIdempotencyConflict is returned when a concurrent insert already
// claimed the same (owner, idempotency_key) pair.
var ErrIdempotencyConflict = errors.New("generation: idempotency key already in use")

// TransitionToProcessing advances a generation from pending to processing.
// The WHERE clause enforces invariant 1's forward-only ordering: a row not
// currently pending does not match and zero rows are affected.
func (s *GenerationStore) TransitionToProcessing(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE generations SET status = 'processing', updated_at = now()
		 WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("transitioning generation %s to processing: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("generation %s not in pending state: %w", id, pgx.ErrNoRows)
	}
	return nil
}

// CompleteGenerationParams holds the fields written when a generation completes.
type CompleteGenerationParams struct {
	ID uuid.UUID
}

// Complete marks a generation completed. Call only after variants and the
// usage ledger row have been persisted in the same transaction (invariant 2).
func (s *GenerationStore) Complete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE generations SET status = 'completed', completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'processing'`, id)
	if err != nil {
		return fmt.Errorf("completing generation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("generation %s not in processing state: %w", id, pgx.ErrNoRows)
	}
	return nil
}

// LatestForDraft returns the most recently created generation for a draft,
// used to set parentGenerationId on a regen (§4.6).
func (s *GenerationStore) LatestForDraft(ctx context.Context, draftID uuid.UUID) (Generation, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+generationColumns+` FROM generations WHERE draft_id = $1 ORDER BY created_at DESC LIMIT 1`,
		draftID)
	g, err := scanGeneration(row)
	if err != nil {
		return Generation{}, fmt.Errorf("getting latest generation for draft %s: %w", draftID, err)
	}
	return g, nil
}

// OldestPendingCreatedAt returns the createdAt of the longest-waiting
// pending generation, used as a queue-health signal (§6.1's /api/health).
func (s *GenerationStore) OldestPendingCreatedAt(ctx context.Context) (time.Time, error) {
	var createdAt time.Time
	err := s.db.QueryRow(ctx,
		`SELECT created_at FROM generations WHERE status = 'pending' ORDER BY created_at ASC LIMIT 1`,
	).Scan(&createdAt)
	if err != nil {
		return time.Time{}, err
	}
	return createdAt, nil
}

// Fail marks a generation failed with an error message.
func (s *GenerationStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE generations SET status = 'failed', error_message = $2, completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status IN ('pending', 'processing')`, id, errMsg)
	if err != nil {
		return fmt.Errorf("failing generation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("generation %s already terminal: %w", id, pgx.ErrNoRows)
	}
	return nil
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Platform is the target short-form content platform (§3).
type Platform string

const (
	PlatformTikTok         Platform = "tiktok"
	PlatformInstagramReels Platform = "instagram_reels"
	PlatformYouTubeShorts  Platform = "youtube_shorts"
)

// Draft is a logical "piece of content", mutated by its owner and retained
// until deleted (§3). Soft-archived, never hard-deleted from within the core.
type Draft struct {
	ID                uuid.UUID
	OwnerID           uuid.UUID
	Title             *string
	Prompt            string
	Platform          Platform
	Settings          json.RawMessage
	SelectedVariantID *uuid.UUID
	IsArchived        bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DraftStore provides database operations for drafts.
type DraftStore struct {
	db DBTX
}

// NewDraftStore creates a DraftStore backed by the given connection.
func NewDraftStore(db DBTX) *DraftStore {
	return &DraftStore{db: db}
}

const draftColumns = `id, owner_id, title, prompt, platform, settings, selected_variant_id, is_archived, created_at, updated_at`

func scanDraft(row interface{ Scan(...any) error }) (Draft, error) {
	var d Draft
	err := row.Scan(&d.ID, &d.OwnerID, &d.Title, &d.Prompt, &d.Platform, &d.Settings,
		&d.SelectedVariantID, &d.IsArchived, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// Get returns a single draft by ID, scoped to its owner.
func (s *DraftStore) Get(ctx context.Context, ownerID, id uuid.UUID) (Draft, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+draftColumns+` FROM drafts WHERE id = $1 AND owner_id = $2`, id, ownerID)
	d, err := scanDraft(row)
	if err != nil {
		return Draft{}, fmt.Errorf("getting draft %s: %w", id, err)
	}
	return d, nil
}

// CreateDraftParams holds parameters for creating a draft.
type CreateDraftParams struct {
	OwnerID  uuid.UUID
	Title    *string
	Prompt   string
	Platform Platform
	Settings json.RawMessage
}

// Create inserts a new draft.
func (s *DraftStore) Create(ctx context.Context, p CreateDraftParams) (Draft, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO drafts (owner_id, title, prompt, platform, settings, is_archived)
		 VALUES ($1, $2, $3, $4, $5, false)
		 RETURNING `+draftColumns,
		p.OwnerID, p.Title, p.Prompt, p.Platform, p.Settings)
	d, err := scanDraft(row)
	if err != nil {
		return Draft{}, fmt.Errorf("creating draft: %w", err)
	}
	return d, nil
}

// UpdateDraftParams holds the mutable fields a PATCH may change; a nil
// pointer leaves the corresponding column untouched.
type UpdateDraftParams struct {
	Title    *string
	Prompt   *string
	Settings json.RawMessage
}

// Update applies a partial update to a draft the caller owns.
func (s *DraftStore) Update(ctx context.Context, ownerID, id uuid.UUID, p UpdateDraftParams) (Draft, error) {
	row := s.db.QueryRow(ctx,
		`UPDATE drafts SET
		   title = COALESCE($3, title),
		   prompt = COALESCE($4, prompt),
		   settings = COALESCE($5, settings),
		   updated_at = now()
		 WHERE id = $1 AND owner_id = $2
		 RETURNING `+draftColumns,
		id, ownerID, p.Title, p.Prompt, p.Settings)
	d, err := scanDraft(row)
	if err != nil {
		return Draft{}, fmt.Errorf("updating draft %s: %w", id, err)
	}
	return d, nil
}

// SetSelectedVariant updates a draft's selected variant. Invariant 5
// (selectedVariantId, if set, must reference a variant whose draftId
// matches) is enforced here: the UPDATE only matches when the target
// variant's draft_id equals the draft being updated.
func (s *DraftStore) SetSelectedVariant(ctx context.Context, draftID uuid.UUID, variantID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE drafts SET selected_variant_id = $2, updated_at = now()
		 WHERE id = $1 AND EXISTS (
		   SELECT 1 FROM variants WHERE id = $2 AND draft_id = $1
		 )`, draftID, variantID)
	if err != nil {
		return fmt.Errorf("setting selected variant for draft %s: %w", draftID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("draft %s or variant %s mismatch: %w", draftID, variantID, ErrNotFound)
	}
	return nil
}

// Archive soft-archives a draft.
func (s *DraftStore) Archive(ctx context.Context, ownerID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE drafts SET is_archived = true, updated_at = now() WHERE id = $1 AND owner_id = $2`,
		id, ownerID)
	if err != nil {
		return fmt.Errorf("archiving draft %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDraftsFilters holds optional filters for listing a user's drafts.
type ListDraftsFilters struct {
	Platform      *Platform
	IncludeArchived bool
}

// List returns a page of a user's drafts, newest first.
func (s *DraftStore) List(ctx context.Context, ownerID uuid.UUID, f ListDraftsFilters, limit int, beforeCreatedAt *time.Time) ([]Draft, error) {
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE owner_id = $1`
	args := []any{ownerID}
	n := 1

	if !f.IncludeArchived {
		query += ` AND is_archived = false`
	}
	if f.Platform != nil {
		n++
		query += fmt.Sprintf(` AND platform = $%d`, n)
		args = append(args, *f.Platform)
	}
	if beforeCreatedAt != nil {
		n++
		query += fmt.Sprintf(` AND created_at < $%d`, n)
		args = append(args, *beforeCreatedAt)
	}
	n++
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, n)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing drafts for %s: %w", ownerID, err)
	}
	defer rows.Close()

	var items []Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning draft row: %w", err)
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

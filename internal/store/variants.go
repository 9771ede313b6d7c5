package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Variant is created only by the worker and immutable thereafter (§3).
// Primary key is (generationId, variantIndex); variantIndex is dense from 1.
// ID is a surrogate key that exists solely so Draft.selectedVariantId can
// reference a single variant row.
type Variant struct {
	ID           uuid.UUID
	GenerationID uuid.UUID
	VariantIndex int
	DraftID      uuid.UUID
	OwnerID      uuid.UUID
	Content      string
	VideoURL     *string
	ThumbnailURL *string
	CreatedAt    time.Time
}

// VariantStore provides database operations for variants.
type VariantStore struct {
	db DBTX
}

// NewVariantStore creates a VariantStore backed by the given connection.
func NewVariantStore(db DBTX) *VariantStore {
	return &VariantStore{db: db}
}

const variantColumns = `id, generation_id, variant_index, draft_id, owner_id, content, video_url, thumbnail_url, created_at`

func scanVariant(row interface{ Scan(...any) error }) (Variant, error) {
	var v Variant
	err := row.Scan(&v.ID, &v.GenerationID, &v.VariantIndex, &v.DraftID, &v.OwnerID,
		&v.Content, &v.VideoURL, &v.ThumbnailURL, &v.CreatedAt)
	return v, err
}

// CreateVariantParams holds parameters for inserting one variant.
type CreateVariantParams struct {
	GenerationID uuid.UUID
	VariantIndex int
	DraftID      uuid.UUID
	OwnerID      uuid.UUID
	Content      string
	VideoURL     *string
	ThumbnailURL *string
}

// CreateBatch inserts the full set of variants produced by one generation,
// one INSERT per variant, preserving the dense 1..n indexing invariant.
func (s *VariantStore) CreateBatch(ctx context.Context, variants []CreateVariantParams) ([]Variant, error) {
	out := make([]Variant, 0, len(variants))
	for _, p := range variants {
		row := s.db.QueryRow(ctx,
			`INSERT INTO variants (generation_id, variant_index, draft_id, owner_id, content, video_url, thumbnail_url)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING `+variantColumns,
			p.GenerationID, p.VariantIndex, p.DraftID, p.OwnerID, p.Content, p.VideoURL, p.ThumbnailURL)
		v, err := scanVariant(row)
		if err != nil {
			return nil, fmt.Errorf("creating variant %d for generation %s: %w", p.VariantIndex, p.GenerationID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ListByGeneration returns all variants for a generation, ordered by index.
func (s *VariantStore) ListByGeneration(ctx context.Context, generationID uuid.UUID) ([]Variant, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+variantColumns+` FROM variants WHERE generation_id = $1 ORDER BY variant_index`, generationID)
	if err != nil {
		return nil, fmt.Errorf("listing variants for generation %s: %w", generationID, err)
	}
	defer rows.Close()

	var items []Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning variant row: %w", err)
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

// Get returns a single variant by its composite primary key.
func (s *VariantStore) Get(ctx context.Context, generationID uuid.UUID, variantIndex int) (Variant, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+variantColumns+` FROM variants WHERE generation_id = $1 AND variant_index = $2`,
		generationID, variantIndex)
	v, err := scanVariant(row)
	if err != nil {
		return Variant{}, fmt.Errorf("getting variant %d of generation %s: %w", variantIndex, generationID, err)
	}
	return v, nil
}

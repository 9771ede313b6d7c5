package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AssetStatus is an asset's position in the library lifecycle (§3 SUPPLEMENT).
type AssetStatus string

const (
	AssetDraft    AssetStatus = "draft"
	AssetActive   AssetStatus = "active"
	AssetArchived AssetStatus = "archived"
)

// Asset is a persisted library item; referenced by the admission layer but
// out of the core's enforcement depth (§3).
type Asset struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	DraftID   *uuid.UUID
	VariantID *uuid.UUID
	Title     *string
	Content   *string
	Platform  *Platform
	Tags      []string
	Status    AssetStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AssetStore provides database operations for library assets.
type AssetStore struct {
	db DBTX
}

// NewAssetStore creates an AssetStore backed by the given connection.
func NewAssetStore(db DBTX) *AssetStore {
	return &AssetStore{db: db}
}

const assetColumns = `id, owner_id, draft_id, variant_id, title, content, platform, tags, status, created_at, updated_at`

func scanAsset(row interface{ Scan(...any) error }) (Asset, error) {
	var a Asset
	err := row.Scan(&a.ID, &a.OwnerID, &a.DraftID, &a.VariantID, &a.Title, &a.Content,
		&a.Platform, &a.Tags, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// CreateAssetParams holds parameters for saving a library asset.
type CreateAssetParams struct {
	OwnerID   uuid.UUID
	DraftID   *uuid.UUID
	VariantID *uuid.UUID
	Title     *string
	Content   *string
	Platform  *Platform
	Tags      []string
}

// Create saves a new library asset.
func (s *AssetStore) Create(ctx context.Context, p CreateAssetParams) (Asset, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO assets (owner_id, draft_id, variant_id, title, content, platform, tags, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'active')
		 RETURNING `+assetColumns,
		p.OwnerID, p.DraftID, p.VariantID, p.Title, p.Content, p.Platform, p.Tags)
	a, err := scanAsset(row)
	if err != nil {
		return Asset{}, fmt.Errorf("creating asset: %w", err)
	}
	return a, nil
}

// AssetCursor is the keyset position of a §6.1 opaque "{id::createdAt}"
// cursor: (created_at, id) pairs sort stably even when two assets share a
// timestamp.
type AssetCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// ListAssetsFilters holds optional filters for listing a user's library.
type ListAssetsFilters struct {
	Status   *AssetStatus
	Platform *Platform
	Tags     []string // assets matching any of these tags
}

// List returns a page of a user's library assets, newest first, starting
// strictly after after (nil fetches the first page). Callers should request
// limit+1 to detect whether another page follows.
func (s *AssetStore) List(ctx context.Context, ownerID uuid.UUID, f ListAssetsFilters, after *AssetCursor, limit int) ([]Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE owner_id = $1`
	args := []any{ownerID}
	n := 1
	if f.Status != nil {
		n++
		query += fmt.Sprintf(` AND status = $%d`, n)
		args = append(args, *f.Status)
	}
	if f.Platform != nil {
		n++
		query += fmt.Sprintf(` AND platform = $%d`, n)
		args = append(args, *f.Platform)
	}
	if len(f.Tags) > 0 {
		n++
		query += fmt.Sprintf(` AND tags && $%d`, n)
		args = append(args, f.Tags)
	}
	if after != nil {
		query += fmt.Sprintf(` AND (created_at, id) < ($%d, $%d)`, n+1, n+2)
		args = append(args, after.CreatedAt, after.ID)
		n += 2
	}
	n++
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, n)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing assets for %s: %w", ownerID, err)
	}
	defer rows.Close()

	var items []Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning asset row: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// Archive soft-archives a library asset.
func (s *AssetStore) Archive(ctx context.Context, ownerID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE assets SET status = 'archived', updated_at = now() WHERE id = $1 AND owner_id = $2`,
		id, ownerID)
	if err != nil {
		return fmt.Errorf("archiving asset %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

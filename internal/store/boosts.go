package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Boost is an additive plan upgrade (§3). At most one active per user
// (invariant 4) — enforced here by a partial unique index on
// (user_id) WHERE is_active, not by application-level locking.
type Boost struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ExpiresAt time.Time
	IsActive  bool
}

// BoostStore provides database operations for boosts.
type BoostStore struct {
	db DBTX
}

// NewBoostStore creates a BoostStore backed by the given connection.
func NewBoostStore(db DBTX) *BoostStore {
	return &BoostStore{db: db}
}

func scanBoost(row interface{ Scan(...any) error }) (Boost, error) {
	var b Boost
	err := row.Scan(&b.ID, &b.UserID, &b.ExpiresAt, &b.IsActive)
	return b, err
}

// GetActiveForUser returns the user's currently active boost, if any.
func (s *BoostStore) GetActiveForUser(ctx context.Context, userID uuid.UUID) (Boost, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, user_id, expires_at, is_active
		 FROM boosts WHERE user_id = $1 AND is_active = true
		 ORDER BY expires_at DESC LIMIT 1`, userID)
	b, err := scanBoost(row)
	if err != nil {
		return Boost{}, fmt.Errorf("getting active boost for %s: %w", userID, err)
	}
	return b, nil
}

// Create inserts a new active boost after deactivating any prior active
// boost for the same user (invariant 4). The two statements share a
// transaction only when the store was built over a pgx.Tx.
func (s *BoostStore) Create(ctx context.Context, userID uuid.UUID, expiresAt time.Time) (Boost, error) {
	if _, err := s.db.Exec(ctx,
		`UPDATE boosts SET is_active = false WHERE user_id = $1 AND is_active = true`, userID); err != nil {
		return Boost{}, fmt.Errorf("deactivating prior boosts for %s: %w", userID, err)
	}
	row := s.db.QueryRow(ctx,
		`INSERT INTO boosts (user_id, expires_at, is_active)
		 VALUES ($1, $2, true)
		 RETURNING id, user_id, expires_at, is_active`, userID, expiresAt)
	b, err := scanBoost(row)
	if err != nil {
		return Boost{}, fmt.Errorf("creating boost for %s: %w", userID, err)
	}
	return b, nil
}

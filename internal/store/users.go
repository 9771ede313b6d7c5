package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// User is the owning root for everything else in the data model (§3).
type User struct {
	ID        uuid.UUID
	Email     string
	CreatedAt time.Time
}

// UserStore provides database operations for users.
type UserStore struct {
	db DBTX
}

// NewUserStore creates a UserStore backed by the given connection.
func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.CreatedAt)
	return u, err
}

// Get returns a single user by ID.
func (s *UserStore) Get(ctx context.Context, id uuid.UUID) (User, error) {
	row := s.db.QueryRow(ctx, `SELECT id, email, created_at FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("getting user %s: %w", id, err)
	}
	return u, nil
}

// GetByEmail returns a single user by email.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRow(ctx, `SELECT id, email, created_at FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// Create inserts a new user.
func (s *UserStore) Create(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO users (email) VALUES ($1) RETURNING id, email, created_at`, email)
	u, err := scanUser(row)
	if err != nil {
		return User{}, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

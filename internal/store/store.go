// Package store implements the Durable Store (C5): relational repositories
// for every entity in §3's data model. Grounded on the teacher's
// pkg/incident/store.go layering (raw pgx SQL, no ORM/sqlc) — this module's
// retrieval slice does not carry the teacher's internal/db sqlc-generated
// package, so each repository talks to *pgxpool.Pool/pgx.Tx directly through
// a narrow DBTX interface instead.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of *pgxpool.Pool and pgx.Tx every repository needs,
// so repositories work unchanged inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner starts a transaction; satisfied by *pgxpool.Pool.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ErrNotFound is returned by Get-style methods when no row matches.
var ErrNotFound = pgx.ErrNoRows

// WithTx runs fn inside a transaction, committing on a nil return and
// rolling back otherwise. fn receives the tx so repositories constructed
// over it participate in the same transaction (§4.5 step 8's single-
// transaction draft+generation insert).
func WithTx(ctx context.Context, db Beginner, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

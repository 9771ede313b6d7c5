package queue

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// PendingGenerations is the narrow store dependency HealthChecker needs.
type PendingGenerations interface {
	OldestPendingCreatedAt(ctx context.Context) (time.Time, error)
}

// HealthChecker answers httpserver.QueueHealth by reading the oldest
// pending generation directly from the durable store, rather than querying
// the external bus — QStash exposes no queue-depth API in any retrieved
// example, but "oldest still-pending generation" is an equivalent and
// directly meaningful staleness signal for this domain.
type HealthChecker struct {
	generations PendingGenerations
}

// NewHealthChecker builds a HealthChecker over a generation store.
func NewHealthChecker(generations PendingGenerations) *HealthChecker {
	return &HealthChecker{generations: generations}
}

// OldestPendingAge returns how long the oldest pending generation has been
// waiting, or zero if the queue is empty.
func (h *HealthChecker) OldestPendingAge(ctx context.Context) (time.Duration, error) {
	createdAt, err := h.generations.OldestPendingCreatedAt(ctx)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return time.Since(createdAt), nil
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/admissiond/internal/plan"
)

// Subscription drives a user's default entitlements (§3). One active per user.
type Subscription struct {
	UserID      uuid.UUID
	Plan        plan.Plan
	Status      string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// SubscriptionStore provides database operations for subscriptions.
type SubscriptionStore struct {
	db DBTX
}

// NewSubscriptionStore creates a SubscriptionStore backed by the given connection.
func NewSubscriptionStore(db DBTX) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func scanSubscription(row interface{ Scan(...any) error }) (Subscription, error) {
	var sub Subscription
	var planStr string
	err := row.Scan(&sub.UserID, &planStr, &sub.Status, &sub.PeriodStart, &sub.PeriodEnd)
	sub.Plan = plan.Plan(planStr)
	return sub, err
}

// GetActiveForUser returns the user's current subscription.
func (s *SubscriptionStore) GetActiveForUser(ctx context.Context, userID uuid.UUID) (Subscription, error) {
	row := s.db.QueryRow(ctx,
		`SELECT user_id, plan, status, period_start, period_end
		 FROM subscriptions WHERE user_id = $1 AND status = 'active'`, userID)
	sub, err := scanSubscription(row)
	if err != nil {
		return Subscription{}, fmt.Errorf("getting active subscription for %s: %w", userID, err)
	}
	return sub, nil
}

// Upsert creates or replaces a user's active subscription.
func (s *SubscriptionStore) Upsert(ctx context.Context, sub Subscription) (Subscription, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO subscriptions (user_id, plan, status, period_start, period_end)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE
		   SET plan = EXCLUDED.plan, status = EXCLUDED.status,
		       period_start = EXCLUDED.period_start, period_end = EXCLUDED.period_end
		 RETURNING user_id, plan, status, period_start, period_end`,
		sub.UserID, string(sub.Plan), sub.Status, sub.PeriodStart, sub.PeriodEnd)
	out, err := scanSubscription(row)
	if err != nil {
		return Subscription{}, fmt.Errorf("upserting subscription for %s: %w", sub.UserID, err)
	}
	return out, nil
}

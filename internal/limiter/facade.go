package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/admissiond/internal/plan"
)

// DefaultLeaseTTL is the upper bound for any single generation (§4.4); a
// worker that exceeds it loses its slot and the user regains capacity.
const DefaultLeaseTTL = 30 * time.Minute

// IdempotencyTTL is the retention window for idempotency records (§4.4).
const IdempotencyTTL = 24 * time.Hour

// RegenCooldownSeconds bounds how often a draft may be regenerated (§4.6).
const RegenCooldownSeconds = 300

// Redis is the subset of the go-redis client surface the facade needs:
// script execution for the atomic primitives, plus a plain GET for the
// worker's read-only defense-in-depth re-check (§4.7 step 5).
type Redis interface {
	redis.Scripter
	Get(ctx context.Context, key string) *redis.StringCmd
}

// CounterResult is the outcome of a counterWithLimit call (§4.3).
type CounterResult struct {
	Allowed   bool
	Count     int64
	Remaining int64
}

// AcquireResult is the outcome of a semaphoreAcquire call.
type AcquireResult struct {
	Acquired bool
	Status   string
}

// ReleaseResult is the outcome of a semaphoreRelease call.
type ReleaseResult struct {
	Released bool
	Status   string
}

// CooldownResult is the outcome of a cooldownCheckAndSet call.
type CooldownResult struct {
	Set          bool
	TTLRemaining int64
}

// IdempotencyResult is the outcome of an idempotencyGetOrSet call.
type IdempotencyResult struct {
	IsFirst     bool
	StoredValue string
}

// Facade is the Enforcement Facade (C4): typed wrappers over the atomic
// primitives (C3) that assemble the right key, TTL, and limit from
// {userId, plan}.
type Facade struct {
	rdb Redis
}

// NewFacade builds a Facade over a Redis client.
func NewFacade(rdb Redis) *Facade {
	return &Facade{rdb: rdb}
}

func unbounded(n int) int {
	if n == plan.Unbounded {
		return -1
	}
	return n
}

func (f *Facade) runCounter(ctx context.Context, key string, increment int64, limit int, ttl time.Duration) (CounterResult, error) {
	res, err := counterWithLimitScript.Run(ctx, f.rdb, []string{key}, increment, unbounded(limit), int64(ttl.Seconds())).Result()
	if err != nil {
		return CounterResult{}, fmt.Errorf("counterWithLimit on %s: %w", key, err)
	}
	return parseCounterResult(res)
}

func parseCounterResult(res any) (CounterResult, error) {
	vals, ok := res.([]any)
	if !ok || len(vals) != 3 {
		return CounterResult{}, fmt.Errorf("unexpected counterWithLimit result shape: %#v", res)
	}
	allowed, err1 := toInt64(vals[0])
	count, err2 := toInt64(vals[1])
	remaining, err3 := toInt64(vals[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return CounterResult{}, fmt.Errorf("decoding counterWithLimit result: %v %v %v", err1, err2, err3)
	}
	return CounterResult{Allowed: allowed == 1, Count: count, Remaining: remaining}, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("not an integer: %#v", v)
	}
}

// EnforceMonthlyPool enforces the monthly generation pool (§4.5 step 4).
func (f *Facade) EnforceMonthlyPool(ctx context.Context, userID uuid.UUID, now time.Time, gensPerMonth int) (CounterResult, error) {
	key := monthlyUsageKey(userID, plan.MonthKey(now))
	ttl := time.Duration(plan.SecondsUntilMonthEnd(now)) * time.Second
	return f.runCounter(ctx, key, 1, gensPerMonth, ttl)
}

// PeekMonthlyPool reads the monthly counter without incrementing, for the
// worker's defense-in-depth re-check (§4.7 step 5).
func (f *Facade) PeekMonthlyPool(ctx context.Context, userID uuid.UUID, now time.Time, gensPerMonth int) (CounterResult, error) {
	return f.peekCounter(ctx, monthlyUsageKey(userID, plan.MonthKey(now)), gensPerMonth)
}

// EnforceHourlyBurst enforces the uniform hourly burst cap (§4.5 step 5).
func (f *Facade) EnforceHourlyBurst(ctx context.Context, userID uuid.UUID, now time.Time) (CounterResult, error) {
	key := hourlyBurstKey(userID, plan.HourKey(now))
	ttl := time.Duration(plan.SecondsUntilHourEnd(now)) * time.Second
	return f.runCounter(ctx, key, 1, plan.DefaultHourlyBurstCap, ttl)
}

// PeekHourlyBurst reads the hourly counter without incrementing (§4.7 step 5).
func (f *Facade) PeekHourlyBurst(ctx context.Context, userID uuid.UUID, now time.Time) (CounterResult, error) {
	return f.peekCounter(ctx, hourlyBurstKey(userID, plan.HourKey(now)), plan.DefaultHourlyBurstCap)
}

// EnforceFullRegenCap enforces the monthly full-regen cap (§4.6 step 4c).
// cap == plan.Unbounded means no ceiling is applied.
func (f *Facade) EnforceFullRegenCap(ctx context.Context, userID uuid.UUID, now time.Time, cap int) (CounterResult, error) {
	key := fullRegenUsageKey(userID, plan.MonthKey(now))
	ttl := time.Duration(plan.SecondsUntilMonthEnd(now)) * time.Second
	return f.runCounter(ctx, key, 1, cap, ttl)
}

// peekCounter reads a counter's current value without mutating it or
// touching its TTL.
func (f *Facade) peekCounter(ctx context.Context, key string, limit int) (CounterResult, error) {
	val, err := f.rdb.Get(ctx, key).Int64()
	if err == redis.Nil {
		return CounterResult{Allowed: true, Count: 0, Remaining: int64(limit)}, nil
	}
	if err != nil {
		return CounterResult{}, fmt.Errorf("peeking counter %s: %w", key, err)
	}
	remaining := int64(limit) - val
	if remaining < 0 {
		remaining = 0
	}
	return CounterResult{Allowed: limit < 0 || val < int64(limit), Count: val, Remaining: remaining}, nil
}

// AcquireUserConcurrency acquires one of the user's concurrency leases
// (§4.5 step 6). leaseID must be generated by the caller (Design Note c) —
// the facade never invents a second id.
func (f *Facade) AcquireUserConcurrency(ctx context.Context, userID uuid.UUID, leaseID, metadataJSON string, maxLeases int, leaseTTL time.Duration) (AcquireResult, error) {
	return f.acquire(ctx, userLeaseSetKey(userID), leaseID, metadataJSON, maxLeases, leaseTTL)
}

// ReleaseUserConcurrency releases a previously acquired user lease.
func (f *Facade) ReleaseUserConcurrency(ctx context.Context, userID uuid.UUID, leaseID string) (ReleaseResult, error) {
	return f.release(ctx, userLeaseSetKey(userID), leaseID)
}

// AcquireProviderConcurrency acquires a slot in the {provider,model,lane}
// global concurrency pool (§4.5 step 7).
func (f *Facade) AcquireProviderConcurrency(ctx context.Context, provider, model, lane, leaseID, metadataJSON string, maxLeases int, leaseTTL time.Duration) (AcquireResult, error) {
	return f.acquire(ctx, providerConcurrencyKey(provider, model, lane), leaseID, metadataJSON, maxLeases, leaseTTL)
}

// ReleaseProviderConcurrency releases a previously acquired provider lease.
func (f *Facade) ReleaseProviderConcurrency(ctx context.Context, provider, model, lane, leaseID string) (ReleaseResult, error) {
	return f.release(ctx, providerConcurrencyKey(provider, model, lane), leaseID)
}

func (f *Facade) acquire(ctx context.Context, setKey, leaseID, metadataJSON string, maxLeases int, leaseTTL time.Duration) (AcquireResult, error) {
	res, err := semaphoreAcquireScript.Run(ctx, f.rdb,
		[]string{setKey, leaseMetaKey(leaseID)},
		leaseID, metadataJSON, maxLeases, int64(leaseTTL.Seconds()),
	).Result()
	if err != nil {
		return AcquireResult{}, fmt.Errorf("semaphoreAcquire on %s: %w", setKey, err)
	}
	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		return AcquireResult{}, fmt.Errorf("unexpected semaphoreAcquire result shape: %#v", res)
	}
	acquired, err := toInt64(vals[0])
	if err != nil {
		return AcquireResult{}, err
	}
	status, _ := vals[1].(string)
	return AcquireResult{Acquired: acquired == 1, Status: status}, nil
}

func (f *Facade) release(ctx context.Context, setKey, leaseID string) (ReleaseResult, error) {
	res, err := semaphoreReleaseScript.Run(ctx, f.rdb,
		[]string{setKey, leaseMetaKey(leaseID)},
		leaseID,
	).Result()
	if err != nil {
		return ReleaseResult{}, fmt.Errorf("semaphoreRelease on %s: %w", setKey, err)
	}
	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		return ReleaseResult{}, fmt.Errorf("unexpected semaphoreRelease result shape: %#v", res)
	}
	released, err := toInt64(vals[0])
	if err != nil {
		return ReleaseResult{}, err
	}
	status, _ := vals[1].(string)
	return ReleaseResult{Released: released == 1, Status: status}, nil
}

// CheckAndSetRegenCooldown enforces the per-draft regen cooldown (§4.6 step 4b).
func (f *Facade) CheckAndSetRegenCooldown(ctx context.Context, userID, draftID uuid.UUID) (CooldownResult, error) {
	key := regenCooldownKey(userID, draftID)
	res, err := cooldownCheckAndSetScript.Run(ctx, f.rdb, []string{key}, RegenCooldownSeconds, "1").Result()
	if err != nil {
		return CooldownResult{}, fmt.Errorf("cooldownCheckAndSet on %s: %w", key, err)
	}
	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		return CooldownResult{}, fmt.Errorf("unexpected cooldownCheckAndSet result shape: %#v", res)
	}
	set, err1 := toInt64(vals[0])
	ttl, err2 := toInt64(vals[1])
	if err1 != nil || err2 != nil {
		return CooldownResult{}, fmt.Errorf("decoding cooldownCheckAndSet result: %v %v", err1, err2)
	}
	return CooldownResult{Set: set == 1, TTLRemaining: ttl}, nil
}

// GetOrSetIdempotency records {scope, key} -> value, or returns the first
// caller's value verbatim if it was already recorded (§4.5 step 2/9).
func (f *Facade) GetOrSetIdempotency(ctx context.Context, userID uuid.UUID, scope, key, value string) (IdempotencyResult, error) {
	fullKey := idempotencyKey(userID, scope, key)
	res, err := idempotencyGetOrSetScript.Run(ctx, f.rdb, []string{fullKey}, value, int64(IdempotencyTTL.Seconds())).Result()
	if err != nil {
		return IdempotencyResult{}, fmt.Errorf("idempotencyGetOrSet on %s: %w", fullKey, err)
	}
	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		return IdempotencyResult{}, fmt.Errorf("unexpected idempotencyGetOrSet result shape: %#v", res)
	}
	isFirst, err := toInt64(vals[0])
	if err != nil {
		return IdempotencyResult{}, err
	}
	stored, _ := vals[1].(string)
	return IdempotencyResult{IsFirst: isFirst == 1, StoredValue: stored}, nil
}

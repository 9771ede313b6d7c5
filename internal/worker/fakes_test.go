package worker

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/admissiond/internal/generator"
	"github.com/wisbric/admissiond/internal/store"
)

// fakeRedis duplicates internal/admission's own fakeRedis (itself modeled
// on internal/limiter/fake_redis_test.go): a marker-comment dispatcher
// standing in for a Lua interpreter, shared here because neither the
// limiter nor the admission package exports its copy.
type fakeRedis struct {
	mu      sync.Mutex
	strings map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{strings: map[string]string{}}
}

func opOf(script string) string {
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-- op:") {
			return strings.TrimPrefix(line, "-- op:")
		}
	}
	return ""
}

func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return f.dispatch(opOf(script), keys, args)
}
func (f *fakeRedis) EvalSha(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	cmd.SetErr(redis.Nil)
	return cmd
}
func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return f.dispatch(opOf(script), keys, args)
}
func (f *fakeRedis) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	cmd.SetErr(redis.Nil)
	return cmd
}
func (f *fakeRedis) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	cmd := redis.NewBoolSliceCmd(ctx)
	cmd.SetVal(make([]bool, len(hashes)))
	return cmd
}
func (f *fakeRedis) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("")
	return cmd
}
func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	v, ok := f.strings[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func argInt(a any) int64 {
	switch v := a.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// dispatch handles counterWithLimit and semaphoreRelease. The worker
// pipeline itself only runs semaphoreRelease (for both leases) and reads the
// two counters via Get; it never acquires or sets a cooldown/idempotency key.
func (f *fakeRedis) dispatch(op string, keys []string, args []any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewCmd(context.Background())

	switch op {
	case "counterWithLimit":
		key := keys[0]
		increment := argInt(args[0])
		limit := argInt(args[1])
		cur, _ := strconv.ParseInt(f.strings[key], 10, 64)
		if limit >= 0 && cur+increment > limit {
			cmd.SetVal([]any{int64(0), cur, int64(0)})
			return cmd
		}
		newCur := cur + increment
		f.strings[key] = strconv.FormatInt(newCur, 10)
		cmd.SetVal([]any{int64(1), newCur, limit - newCur})
		return cmd

	case "semaphoreRelease":
		cmd.SetVal([]any{int64(1), "released"})
		return cmd
	}

	cmd.SetErr(redis.Nil)
	return cmd
}

type fakeSubs struct {
	byUser map[uuid.UUID]store.Subscription
}

func (f *fakeSubs) GetActiveForUser(ctx context.Context, userID uuid.UUID) (store.Subscription, error) {
	if sub, ok := f.byUser[userID]; ok {
		return sub, nil
	}
	return store.Subscription{}, pgx.ErrNoRows
}

type fakeBoosts struct {
	byUser map[uuid.UUID]store.Boost
}

func (f *fakeBoosts) GetActiveForUser(ctx context.Context, userID uuid.UUID) (store.Boost, error) {
	if b, ok := f.byUser[userID]; ok {
		return b, nil
	}
	return store.Boost{}, pgx.ErrNoRows
}

// fakeGenerations backs worker.Generations entirely in memory.
type fakeGenerations struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]store.Generation
	failed map[uuid.UUID]string
}

func newFakeGenerations() *fakeGenerations {
	return &fakeGenerations{byID: map[uuid.UUID]store.Generation{}, failed: map[uuid.UUID]string{}}
}

func (f *fakeGenerations) Get(ctx context.Context, id uuid.UUID) (store.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.byID[id]
	if !ok {
		return store.Generation{}, pgx.ErrNoRows
	}
	return g, nil
}

func (f *fakeGenerations) TransitionToProcessing(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.byID[id]
	if !ok || g.Status != store.GenerationPending {
		return fmt.Errorf("generation %s not pending", id)
	}
	g.Status = store.GenerationProcessing
	f.byID[id] = g
	return nil
}

func (f *fakeGenerations) Complete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.byID[id]
	if !ok || g.Status != store.GenerationProcessing {
		return fmt.Errorf("generation %s not processing", id)
	}
	g.Status = store.GenerationCompleted
	f.byID[id] = g
	return nil
}

func (f *fakeGenerations) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := f.byID[id]
	g.Status = store.GenerationFailed
	f.byID[id] = g
	f.failed[id] = errMsg
	return nil
}

// fakeVariants records every batch it was handed.
type fakeVariants struct {
	mu      sync.Mutex
	batches [][]store.CreateVariantParams
}

func (f *fakeVariants) CreateBatch(ctx context.Context, variants []store.CreateVariantParams) ([]store.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, variants)
	out := make([]store.Variant, len(variants))
	for i, v := range variants {
		out[i] = store.Variant{ID: uuid.New(), GenerationID: v.GenerationID, VariantIndex: v.VariantIndex, DraftID: v.DraftID, OwnerID: v.OwnerID, Content: v.Content}
	}
	return out, nil
}

// fakeUsage records every ledger entry it was handed.
type fakeUsage struct {
	mu      sync.Mutex
	entries []store.RecordUsageParams
}

func (f *fakeUsage) Record(ctx context.Context, p store.RecordUsageParams) (store.UsageLedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, p)
	return store.UsageLedgerEntry{ID: uuid.New(), UserID: p.UserID, GenerationID: p.GenerationID}, nil
}

// fakeGenerators resolves every route to a single shared generator.Generator,
// letting tests swap in generator.MockGenerator or one that errors.
type fakeGenerators struct {
	gen generator.Generator
}

func (f *fakeGenerators) Get(route generator.Route) (generator.Generator, error) {
	if f.gen == nil {
		return nil, fmt.Errorf("no generator configured")
	}
	return f.gen, nil
}

type fakeLogger struct{}

func (fakeLogger) Info(msg string, args ...any)  {}
func (fakeLogger) Error(msg string, args ...any) {}

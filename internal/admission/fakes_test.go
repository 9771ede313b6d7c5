package admission

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/admissiond/internal/generator"
	"github.com/wisbric/admissiond/internal/queue"
	"github.com/wisbric/admissiond/internal/store"
)

// fakeRedis is a minimal in-memory stand-in for limiter.Redis, mirroring
// internal/limiter's own fakeRedis test double: it has no Lua interpreter,
// so it dispatches on each script's "-- op:<name>" marker comment instead of
// executing the body. Duplicated here (rather than imported) because the
// limiter package's fake lives in a _test.go file and isn't exported.
type fakeRedis struct {
	mu      sync.Mutex
	strings map[string]string
	sets    map[string]map[string]struct{}
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{strings: map[string]string{}, sets: map[string]map[string]struct{}{}}
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

func argStr(a any) string {
	switch v := a.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
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
			remaining := limit - cur
			if remaining < 0 {
				remaining = 0
			}
			cmd.SetVal([]any{int64(0), cur, remaining})
			return cmd
		}
		newCur := cur + increment
		f.strings[key] = strconv.FormatInt(newCur, 10)
		remaining := int64(-1)
		if limit >= 0 {
			remaining = limit - newCur
			if remaining < 0 {
				remaining = 0
			}
		}
		cmd.SetVal([]any{int64(1), newCur, remaining})
		return cmd

	case "semaphoreAcquire":
		setKey := keys[0]
		leaseID := argStr(args[0])
		maxLeases := argInt(args[2])
		if f.sets[setKey] == nil {
			f.sets[setKey] = map[string]struct{}{}
		}
		if int64(len(f.sets[setKey])) >= maxLeases {
			cmd.SetVal([]any{int64(0), "full"})
			return cmd
		}
		f.sets[setKey][leaseID] = struct{}{}
		cmd.SetVal([]any{int64(1), "acquired"})
		return cmd

	case "semaphoreRelease":
		setKey := keys[0]
		leaseID := argStr(args[0])
		if f.sets[setKey] != nil {
			if _, ok := f.sets[setKey][leaseID]; ok {
				delete(f.sets[setKey], leaseID)
				cmd.SetVal([]any{int64(1), "released"})
				return cmd
			}
		}
		cmd.SetVal([]any{int64(0), "not_found"})
		return cmd

	case "cooldownCheckAndSet":
		key := keys[0]
		if _, ok := f.strings[key]; ok {
			cmd.SetVal([]any{int64(0), int64(120)})
			return cmd
		}
		f.strings[key] = "1"
		cmd.SetVal([]any{int64(1), int64(0)})
		return cmd

	case "idempotencyGetOrSet":
		key := keys[0]
		value := argStr(args[0])
		if existing, ok := f.strings[key]; ok {
			cmd.SetVal([]any{int64(0), existing})
			return cmd
		}
		f.strings[key] = value
		cmd.SetVal([]any{int64(1), value})
		return cmd
	}

	cmd.SetErr(redis.Nil)
	return cmd
}

// fakeSubs and fakeBoosts back SubscriptionReader/BoostReader with a plain
// map, keyed by user, standing in for the store package's pgx-backed repos.
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

type fakeDrafts struct {
	byID map[uuid.UUID]store.Draft
}

func (f *fakeDrafts) Get(ctx context.Context, ownerID, id uuid.UUID) (store.Draft, error) {
	d, ok := f.byID[id]
	if !ok || d.OwnerID != ownerID {
		return store.Draft{}, pgx.ErrNoRows
	}
	return d, nil
}

// fakeGenerations backs GenerationRepo entirely in memory.
type fakeGenerations struct {
	mu            sync.Mutex
	byIdempotency map[string]store.Generation
	latestByDraft map[uuid.UUID]store.Generation
	failed        map[uuid.UUID]string
}

func newFakeGenerations() *fakeGenerations {
	return &fakeGenerations{
		byIdempotency: map[string]store.Generation{},
		latestByDraft: map[uuid.UUID]store.Generation{},
		failed:        map[uuid.UUID]string{},
	}
}

func (f *fakeGenerations) GetByIdempotencyKey(ctx context.Context, ownerID uuid.UUID, key string) (store.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.byIdempotency[ownerID.String()+":"+key]; ok {
		return g, nil
	}
	return store.Generation{}, pgx.ErrNoRows
}

func (f *fakeGenerations) LatestForDraft(ctx context.Context, draftID uuid.UUID) (store.Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.latestByDraft[draftID]; ok {
		return g, nil
	}
	return store.Generation{}, pgx.ErrNoRows
}

func (f *fakeGenerations) Fail(ctx context.Context, id uuid.UUID, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = errMsg
	return nil
}

// fakePersister is an in-memory Persister. It writes through to the same
// fakeGenerations the service reads idempotency lookups from (mirroring how
// the real GenerationStore.Create and GetByIdempotencyKey share one table),
// so a replayed idempotency key is visible to both step 2's fast path and
// persistAndDispatch's post-conflict re-query.
type fakePersister struct {
	mu       sync.Mutex
	gens     *fakeGenerations
	failNext error
}

func newFakePersister(gens *fakeGenerations) *fakePersister {
	return &fakePersister{gens: gens}
}

func (p *fakePersister) Persist(ctx context.Context, params PersistParams) (store.Draft, store.Generation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failNext != nil {
		err := p.failNext
		p.failNext = nil
		return store.Draft{}, store.Generation{}, err
	}

	var idemKey string
	if params.IdempotencyKey != nil {
		idemKey = params.UserID.String() + ":" + *params.IdempotencyKey
		p.gens.mu.Lock()
		_, exists := p.gens.byIdempotency[idemKey]
		p.gens.mu.Unlock()
		if exists {
			return store.Draft{}, store.Generation{}, store.ErrIdempotencyConflict
		}
	}

	var draft store.Draft
	if params.ExistingDraft != nil {
		draft = *params.ExistingDraft
	} else {
		draft = store.Draft{
			ID:       uuid.New(),
			OwnerID:  params.UserID,
			Title:    params.Title,
			Prompt:   params.Prompt,
			Platform: store.Platform(params.Platform),
		}
	}

	gen := store.Generation{
		ID:                 uuid.New(),
		DraftID:            draft.ID,
		OwnerID:            params.UserID,
		Status:             store.GenerationPending,
		IdempotencyKey:     params.IdempotencyKey,
		IsRegen:            params.IsRegen,
		ParentGenerationID: params.ParentGenerationID,
		RegenType:          params.RegenType,
		CreatedAt:          time.Now(),
	}

	p.gens.mu.Lock()
	if idemKey != "" {
		p.gens.byIdempotency[idemKey] = gen
	}
	p.gens.latestByDraft[draft.ID] = gen
	p.gens.mu.Unlock()

	return draft, gen, nil
}

// fakeDispatcher records every envelope it was handed and can be told to
// fail the next Dispatch call, for exercising the rollback path.
type fakeDispatcher struct {
	mu        sync.Mutex
	envelopes []queue.Envelope
	failNext  bool
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, env queue.Envelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failNext {
		d.failNext = false
		return errDispatchFailed
	}
	d.envelopes = append(d.envelopes, env)
	return nil
}

var errDispatchFailed = &dispatchError{"bus unavailable"}

type dispatchError struct{ msg string }

func (e *dispatchError) Error() string { return e.msg }

// fakeGenerators returns the route's own provider name, as
// generator.Registry.ProviderFor does, without needing any concrete
// Generator registered.
type fakeGenerators struct{}

func (fakeGenerators) ProviderFor(route generator.Route) string {
	return string(route.Provider)
}

// fakeLogger discards everything; tests assert on return values, not logs.
type fakeLogger struct{}

func (fakeLogger) Info(msg string, args ...any)  {}
func (fakeLogger) Error(msg string, args ...any) {}

package limiter

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis is a minimal in-memory stand-in for the Redis surface the
// facade needs. It has no Lua interpreter, so it dispatches on each
// script's "-- op:<name>" marker comment instead of executing the body.
type fakeRedis struct {
	mu      sync.Mutex
	strings map[string]string
	sets    map[string]map[string]struct{}
	now     time.Time
}

func newFakeRedis(now time.Time) *fakeRedis {
	return &fakeRedis{
		strings: map[string]string{},
		sets:    map[string]map[string]struct{}{},
		now:     now,
	}
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
	return f.dispatch(ctx, opOf(script), keys, args)
}

func (f *fakeRedis) EvalSha(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	cmd.SetErr(redis.Nil)
	return cmd
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return f.dispatch(ctx, opOf(script), keys, args)
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

func (f *fakeRedis) dispatch(ctx context.Context, op string, keys []string, args []any) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd := redis.NewCmd(ctx)
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
		setKey, metaKey := keys[0], keys[1]
		leaseID := argStr(args[0])
		metadata := argStr(args[1])
		maxLeases := argInt(args[2])
		if f.sets[setKey] == nil {
			f.sets[setKey] = map[string]struct{}{}
		}
		if int64(len(f.sets[setKey])) >= maxLeases {
			cmd.SetVal([]any{int64(0), "max_concurrency"})
			return cmd
		}
		f.sets[setKey][leaseID] = struct{}{}
		f.strings[metaKey] = metadata
		cmd.SetVal([]any{int64(1), "acquired"})
		return cmd

	case "semaphoreRelease":
		setKey, metaKey := keys[0], keys[1]
		leaseID := argStr(args[0])
		if _, ok := f.sets[setKey][leaseID]; !ok {
			cmd.SetVal([]any{int64(0), "not_found"})
			return cmd
		}
		delete(f.sets[setKey], leaseID)
		delete(f.strings, metaKey)
		cmd.SetVal([]any{int64(1), "released"})
		return cmd

	case "cooldownCheckAndSet":
		key := keys[0]
		seconds := argInt(args[0])
		value := argStr(args[1])
		if _, ok := f.strings[key]; ok {
			cmd.SetVal([]any{int64(0), seconds})
			return cmd
		}
		f.strings[key] = value
		cmd.SetVal([]any{int64(1), seconds})
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

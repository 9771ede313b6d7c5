package worker

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/admissiond/internal/generator"
	"github.com/wisbric/admissiond/internal/limiter"
	"github.com/wisbric/admissiond/internal/plan"
	"github.com/wisbric/admissiond/internal/queue"
	"github.com/wisbric/admissiond/internal/store"
)

type testHarness struct {
	pipeline   *Pipeline
	rdb        *fakeRedis
	gens       *fakeGenerations
	variants   *fakeVariants
	usage      *fakeUsage
	generators *fakeGenerators
}

func newHarness(gen generator.Generator) *testHarness {
	rdb := newFakeRedis()
	facade := limiter.NewFacade(rdb)
	gens := newFakeGenerations()
	variants := &fakeVariants{}
	usage := &fakeUsage{}
	generators := &fakeGenerators{gen: gen}

	pipeline := NewPipeline(facade, &fakeSubs{byUser: map[uuid.UUID]store.Subscription{}},
		&fakeBoosts{byUser: map[uuid.UUID]store.Boost{}}, gens, variants, usage, generators, fakeLogger{}, nil)

	return &testHarness{pipeline: pipeline, rdb: rdb, gens: gens, variants: variants, usage: usage, generators: generators}
}

// seedMonthlyUsage writes directly into the fake Redis's internal map at the
// manually-reconstructed key format internal/limiter/keys.go's unexported
// monthlyUsageKey builds, letting a test pre-exhaust the counter without a
// loop of real Process calls (mirrors internal/admission/service_test.go's
// seedMonthlyUsage).
func (h *testHarness) seedMonthlyUsage(userID uuid.UUID, now time.Time, count int) {
	key := "app:usage:" + userID.String() + ":gen_used:" + plan.MonthKey(now)
	h.rdb.mu.Lock()
	h.rdb.strings[key] = strconv.Itoa(count)
	h.rdb.mu.Unlock()
}

func seedPendingGeneration(h *testHarness, userID, draftID uuid.UUID) uuid.UUID {
	id := uuid.New()
	h.gens.byID[id] = store.Generation{ID: id, DraftID: draftID, OwnerID: userID, Status: store.GenerationPending, CreatedAt: time.Now()}
	return id
}

func baseEnvelope(userID, draftID, genID uuid.UUID) queue.Envelope {
	return queue.NewGenerationEnvelope("req-1", userID, draftID, genID, queue.LaneInteractive, 3,
		"write me a hook", "tiktok", false, nil, nil, nil,
		"anthropic", "claude-haiku-4-5", "basic",
		"user-lease-1", "provider-lease-1", time.Now())
}

func TestProcessHappyPathCompletesGeneration(t *testing.T) {
	h := newHarness(&generator.MockGenerator{})
	userID, draftID := uuid.New(), uuid.New()
	genID := seedPendingGeneration(h, userID, draftID)

	outcome := h.pipeline.Process(context.Background(), baseEnvelope(userID, draftID, genID))

	if outcome.ShouldRetry {
		t.Fatalf("expected ShouldRetry=false, got true")
	}
	got := h.gens.byID[genID]
	if got.Status != store.GenerationCompleted {
		t.Fatalf("expected generation completed, got %s", got.Status)
	}
	if len(h.variants.batches) != 1 || len(h.variants.batches[0]) != 3 {
		t.Fatalf("expected one batch of 3 variants, got %+v", h.variants.batches)
	}
	if len(h.usage.entries) != 1 {
		t.Fatalf("expected one usage ledger entry, got %d", len(h.usage.entries))
	}
}

func TestProcessRetryCapExceededFailsWithoutCallingGenerator(t *testing.T) {
	h := newHarness(&generator.MockGenerator{})
	userID, draftID := uuid.New(), uuid.New()
	genID := seedPendingGeneration(h, userID, draftID)

	env := baseEnvelope(userID, draftID, genID)
	env.RetryCount = queue.MaxRetries

	outcome := h.pipeline.Process(context.Background(), env)

	if outcome.ShouldRetry {
		t.Fatalf("expected ShouldRetry=false after hitting retry cap")
	}
	got := h.gens.byID[genID]
	if got.Status != store.GenerationFailed {
		t.Fatalf("expected generation failed, got %s", got.Status)
	}
	if h.gens.failed[genID] != "Max retries exceeded" {
		t.Fatalf("expected \"Max retries exceeded\" message, got %q", h.gens.failed[genID])
	}
	if len(h.variants.batches) != 0 {
		t.Fatalf("generator should never have been invoked past the retry cap")
	}
}

func TestProcessAlreadyCompletedIsIdempotent(t *testing.T) {
	h := newHarness(&generator.MockGenerator{})
	userID, draftID := uuid.New(), uuid.New()
	genID := uuid.New()
	h.gens.byID[genID] = store.Generation{ID: genID, DraftID: draftID, OwnerID: userID, Status: store.GenerationCompleted}

	outcome := h.pipeline.Process(context.Background(), baseEnvelope(userID, draftID, genID))

	if outcome.ShouldRetry {
		t.Fatalf("re-delivery of a completed generation must not request a retry")
	}
	if len(h.variants.batches) != 0 {
		t.Fatalf("generator must not run again for an already-completed generation")
	}
}

func TestProcessTransientProviderFailureRequestsRetry(t *testing.T) {
	h := newHarness(&generator.MockGenerator{NextErr: &generator.GenerateError{Code: generator.ErrCodeServerError, Message: "upstream 503"}})
	userID, draftID := uuid.New(), uuid.New()
	genID := seedPendingGeneration(h, userID, draftID)

	outcome := h.pipeline.Process(context.Background(), baseEnvelope(userID, draftID, genID))

	if !outcome.ShouldRetry {
		t.Fatalf("expected ShouldRetry=true for a transient 5xx")
	}
	got := h.gens.byID[genID]
	if got.Status == store.GenerationCompleted || got.Status == store.GenerationFailed {
		t.Fatalf("a transient failure must not terminate the generation, got %s", got.Status)
	}
}

func TestProcessPermanentProviderFailureFailsGeneration(t *testing.T) {
	h := newHarness(&generator.MockGenerator{NextErr: &generator.GenerateError{Code: generator.ErrCodeValidation, Message: "prompt rejected"}})
	userID, draftID := uuid.New(), uuid.New()
	genID := seedPendingGeneration(h, userID, draftID)

	outcome := h.pipeline.Process(context.Background(), baseEnvelope(userID, draftID, genID))

	if outcome.ShouldRetry {
		t.Fatalf("expected ShouldRetry=false for a permanent validation failure")
	}
	got := h.gens.byID[genID]
	if got.Status != store.GenerationFailed {
		t.Fatalf("expected generation failed, got %s", got.Status)
	}
}

func TestProcessDefenseInDepthRejectsWhenMonthlyPoolExhausted(t *testing.T) {
	h := newHarness(&generator.MockGenerator{})
	userID, draftID := uuid.New(), uuid.New()
	genID := seedPendingGeneration(h, userID, draftID)

	// Basic plan's monthly cap is 60; pre-exhaust it directly in the fake
	// Redis the peek reads from, without ever calling EnforceMonthlyPool.
	h.seedMonthlyUsage(userID, time.Now(), 60)

	outcome := h.pipeline.Process(context.Background(), baseEnvelope(userID, draftID, genID))

	if outcome.ShouldRetry {
		t.Fatalf("an exhausted re-check should fail the job outright, not request a retry")
	}
	got := h.gens.byID[genID]
	if got.Status != store.GenerationFailed {
		t.Fatalf("expected generation failed on exhausted re-check, got %s", got.Status)
	}
	if len(h.variants.batches) != 0 {
		t.Fatalf("generator must not run once the defense-in-depth re-check rejects the job")
	}
}

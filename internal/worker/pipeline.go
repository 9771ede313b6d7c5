// Package worker implements the Worker Pipeline (C8): the consumer side of
// the job envelope the Admission Pipeline (C7) dispatched to the bus.
// Grounded on internal/admission/service.go's ordered, commented-by-step
// structure — generalized from a request-handling pipeline to a
// queue-consumer pipeline — and on the teacher's pkg/escalation/engine.go
// for the "load context, re-check, act, always clean up" shape of a single
// job's processing.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/admissiond/internal/generator"
	"github.com/wisbric/admissiond/internal/limiter"
	"github.com/wisbric/admissiond/internal/plan"
	"github.com/wisbric/admissiond/internal/pricing"
	"github.com/wisbric/admissiond/internal/queue"
	"github.com/wisbric/admissiond/internal/store"
	"github.com/wisbric/admissiond/internal/telemetry"
)

// SubscriptionReader resolves a user's base plan subscription (§4.1),
// needed for the defense-in-depth re-check's plan-derived limits.
// Satisfied by *store.SubscriptionStore.
type SubscriptionReader interface {
	GetActiveForUser(ctx context.Context, userID uuid.UUID) (store.Subscription, error)
}

// BoostReader resolves a user's active plan boost, if any (§4.1).
// Satisfied by *store.BoostStore.
type BoostReader interface {
	GetActiveForUser(ctx context.Context, userID uuid.UUID) (store.Boost, error)
}

// Generations is the generation read/transition surface the worker needs.
// Satisfied by *store.GenerationStore.
type Generations interface {
	Get(ctx context.Context, id uuid.UUID) (store.Generation, error)
	TransitionToProcessing(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error
}

// Variants persists the produced content (§4.7 step 8). Satisfied by
// *store.VariantStore.
type Variants interface {
	CreateBatch(ctx context.Context, variants []store.CreateVariantParams) ([]store.Variant, error)
}

// UsageRecorder appends the cost-accounting row (§4.7 step 8). Satisfied by
// *store.UsageLedgerStore.
type UsageRecorder interface {
	Record(ctx context.Context, p store.RecordUsageParams) (store.UsageLedgerEntry, error)
}

// Generators resolves the provider a job's route names to a concrete
// Generator. Satisfied by *generator.Registry.
type Generators interface {
	Get(route generator.Route) (generator.Generator, error)
}

// Logger is the narrow structured-logging surface the pipeline depends on.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// FailureNotifier is the ops-notification hook a permanently failed
// generation fires (§[DOMAIN] Messaging / ops notification). Satisfied by
// *notify.Notifier; nil disables notification entirely.
type FailureNotifier interface {
	NotifyGenerationFailed(ctx context.Context, generationID, draftID, reason string)
}

// Pipeline implements the Worker Pipeline (C8) over constructor-injected
// capabilities, mirroring admission.Service's dependency shape.
type Pipeline struct {
	facade      *limiter.Facade
	subs        SubscriptionReader
	boosts      BoostReader
	generations Generations
	variants    Variants
	usage       UsageRecorder
	generators  Generators
	logger      Logger
	notifier    FailureNotifier
}

// NewPipeline builds a Pipeline from its constructor-injected capabilities.
// notifier may be nil to disable failure notifications entirely.
func NewPipeline(
	facade *limiter.Facade,
	subs SubscriptionReader,
	boosts BoostReader,
	generations Generations,
	variants Variants,
	usage UsageRecorder,
	generators Generators,
	logger Logger,
	notifier FailureNotifier,
) *Pipeline {
	return &Pipeline{
		facade:      facade,
		subs:        subs,
		boosts:      boosts,
		generations: generations,
		variants:    variants,
		usage:       usage,
		generators:  generators,
		logger:      logger,
		notifier:    notifier,
	}
}

// Outcome is what the HTTP handler maps to a response and status code
// (§4.7 step 10): success or a non-retryable terminal failure return 200,
// a retryable failure returns 500 with a retry hint.
type Outcome struct {
	ShouldRetry bool
	RetryAfter  time.Duration
}

// effectiveLimits resolves {plan, limits} for a user at now, duplicating
// admission.Service's private helper of the same name: the two packages
// share no common base to factor it into without introducing an import
// cycle (admission already imports nothing the worker needs to reach back
// into), so the ~15-line plan-resolution logic is kept small and repeated
// rather than abstracted prematurely.
func (p *Pipeline) effectiveLimits(ctx context.Context, userID uuid.UUID, now time.Time) (plan.Limits, error) {
	base := plan.Basic
	if sub, err := p.subs.GetActiveForUser(ctx, userID); err == nil {
		base = sub.Plan
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return plan.Limits{}, fmt.Errorf("resolving subscription: %w", err)
	}

	var boostExpiry *time.Time
	if boost, err := p.boosts.GetActiveForUser(ctx, userID); err == nil {
		boostExpiry = &boost.ExpiresAt
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return plan.Limits{}, fmt.Errorf("resolving boost: %w", err)
	}

	resolved := plan.ResolveEffectivePlan(base, boostExpiry, now)
	return plan.GetEffectiveLimits(resolved), nil
}

// Process implements §4.7's 10 steps for one delivered envelope (signature
// verification and envelope decoding, steps 1-2, already happened in the
// Handler by the time Process is called).
func (p *Pipeline) Process(ctx context.Context, env queue.Envelope) Outcome {
	now := time.Now()
	route := generator.Route{Provider: generator.Provider(env.Provider), Model: env.Model, Plan: plan.Plan(env.Plan)}

	releaseLeases := func() {
		if _, err := p.facade.ReleaseUserConcurrency(ctx, env.UserID, env.UserLeaseID); err != nil {
			p.logger.Error("releasing user lease", "error", err, "leaseId", env.UserLeaseID)
		}
		if _, err := p.facade.ReleaseProviderConcurrency(ctx, env.Provider, env.Model, string(env.Lane), env.ProviderLeaseID); err != nil {
			p.logger.Error("releasing provider lease", "error", err, "leaseId", env.ProviderLeaseID)
		}
	}
	// Step 9: leases are always released, regardless of which branch below returns.
	defer releaseLeases()

	// Step 3: retry cap.
	if env.RetryCount >= queue.MaxRetries {
		p.failPermanently(ctx, env.GenerationID, env.DraftID, "Max retries exceeded")
		return Outcome{ShouldRetry: false}
	}

	// Step 4: load context.
	gen, err := p.generations.Get(ctx, env.GenerationID)
	if err != nil {
		p.logger.Error("loading generation", "error", err, "generationId", env.GenerationID)
		return Outcome{ShouldRetry: false}
	}
	if gen.Status == store.GenerationCompleted {
		// Idempotent re-delivery: the prior attempt already finished.
		return Outcome{ShouldRetry: false}
	}

	telemetry.LifecycleEventsTotal.WithLabelValues("started").Inc()

	limits, err := p.effectiveLimits(ctx, env.UserID, now)
	if err != nil {
		p.logger.Error("resolving effective limits", "error", err, "userId", env.UserID)
		return Outcome{ShouldRetry: true, RetryAfter: 5 * time.Second}
	}

	// Step 5: defense-in-depth re-check, read-only.
	monthly, err := p.facade.PeekMonthlyPool(ctx, env.UserID, now, limits.GensPerMonth)
	if err != nil {
		p.logger.Error("peeking monthly pool", "error", err)
		return Outcome{ShouldRetry: true, RetryAfter: 5 * time.Second}
	}
	hourly, err := p.facade.PeekHourlyBurst(ctx, env.UserID, now)
	if err != nil {
		p.logger.Error("peeking hourly burst", "error", err)
		return Outcome{ShouldRetry: true, RetryAfter: 5 * time.Second}
	}
	if !monthly.Allowed || !hourly.Allowed {
		p.failPermanently(ctx, env.GenerationID, env.DraftID, "limit exhausted on re-check")
		return Outcome{ShouldRetry: false}
	}

	// Step 6: transition to processing. A generation the handler has
	// already advanced past pending (e.g. a racing concurrent delivery)
	// fails this and the job is dropped rather than double-processed.
	if err := p.generations.TransitionToProcessing(ctx, env.GenerationID); err != nil {
		p.logger.Error("transitioning generation to processing", "error", err, "generationId", env.GenerationID)
		return Outcome{ShouldRetry: false}
	}

	// Step 7: invoke the generator under the plan's deadline and token cap.
	gen7Ctx, cancel := context.WithTimeout(ctx, generator.DeadlineForPlan(limits.Plan))
	defer cancel()

	gn, err := p.generators.Get(route)
	if err != nil {
		p.logger.Error("resolving generator for route", "error", err, "provider", env.Provider)
		p.failPermanently(ctx, env.GenerationID, env.DraftID, "no generator registered for provider")
		return Outcome{ShouldRetry: false}
	}

	regenType := ""
	if env.RegenType != nil {
		regenType = string(*env.RegenType)
	}
	result, genErr := gn.Generate(gen7Ctx, generator.Request{
		Prompt:          env.Prompt,
		Platform:        env.Platform,
		VariantCount:    env.VariantCount,
		Lane:            generator.Lane(env.Lane),
		IsRegen:         env.IsRegen,
		RegenType:       regenType,
		Model:           env.Model,
		MaxOutputTokens: generator.MaxOutputTokensForPlan(limits.Plan),
		Timeout:         generator.DeadlineForPlan(limits.Plan),
	})

	// Step 8: classify the result.
	if genErr != nil {
		telemetry.ProviderCallsTotal.WithLabelValues(env.Provider, "error").Inc()
		if ge, ok := generator.AsGenerateError(genErr); ok {
			if ge.Code == generator.ErrCodeRateLimited {
				telemetry.ProviderCallsTotal.WithLabelValues(env.Provider, "429").Inc()
			}
			if ge.IsTransient() {
				return Outcome{ShouldRetry: true, RetryAfter: retryAfterFor(env.RetryCount)}
			}
		}
		p.failPermanently(ctx, env.GenerationID, env.DraftID, genErr.Error())
		return Outcome{ShouldRetry: false}
	}
	telemetry.ProviderCallsTotal.WithLabelValues(env.Provider, "success").Inc()

	variantParams := make([]store.CreateVariantParams, 0, len(result.Variants))
	for i, v := range result.Variants {
		variantParams = append(variantParams, store.CreateVariantParams{
			GenerationID: env.GenerationID,
			VariantIndex: i + 1,
			DraftID:      env.DraftID,
			OwnerID:      env.UserID,
			Content:      v.Text,
		})
	}
	if _, err := p.variants.CreateBatch(ctx, variantParams); err != nil {
		p.logger.Error("persisting variants", "error", err, "generationId", env.GenerationID)
		return Outcome{ShouldRetry: true, RetryAfter: retryAfterFor(env.RetryCount)}
	}

	cost := pricing.Estimate(result.Model, result.Usage)
	if _, err := p.usage.Record(ctx, store.RecordUsageParams{
		UserID:           env.UserID,
		GenerationID:     &env.GenerationID,
		Month:            plan.MonthKey(now),
		PromptTokens:     result.Usage.InputTokens,
		CompletionTokens: result.Usage.OutputTokens,
		CostEstimate:     cost,
		Model:            result.Model,
	}); err != nil {
		p.logger.Error("recording usage ledger entry", "error", err, "generationId", env.GenerationID)
		return Outcome{ShouldRetry: true, RetryAfter: retryAfterFor(env.RetryCount)}
	}

	if err := p.generations.Complete(ctx, env.GenerationID); err != nil {
		p.logger.Error("completing generation", "error", err, "generationId", env.GenerationID)
		return Outcome{ShouldRetry: true, RetryAfter: retryAfterFor(env.RetryCount)}
	}

	telemetry.JobCompletedTotal.WithLabelValues("success").Inc()
	telemetry.JobLatency.WithLabelValues(env.Platform).Observe(time.Since(env.CreatedAt).Seconds())
	telemetry.LifecycleEventsTotal.WithLabelValues("completed").Inc()
	return Outcome{ShouldRetry: false}
}

func (p *Pipeline) failPermanently(ctx context.Context, generationID, draftID uuid.UUID, message string) {
	if err := p.generations.Fail(ctx, generationID, message); err != nil {
		p.logger.Error("marking generation failed", "error", err, "generationId", generationID)
	}
	telemetry.JobCompletedTotal.WithLabelValues("failed").Inc()
	telemetry.LifecycleEventsTotal.WithLabelValues("failed").Inc()
	if p.notifier != nil {
		p.notifier.NotifyGenerationFailed(ctx, generationID.String(), draftID.String(), message)
	}
}

// retryAfterFor implements the bus's exponential-backoff-with-jitter policy
// at the application layer, giving the caller a concrete hint even though
// the bus itself owns the actual redelivery schedule (§4.7's retry policy).
func retryAfterFor(retryCount int) time.Duration {
	backoff := time.Duration(1<<uint(retryCount)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}

package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/admissiond/internal/generator"
	"github.com/wisbric/admissiond/internal/httpserver"
	"github.com/wisbric/admissiond/internal/limiter"
	"github.com/wisbric/admissiond/internal/plan"
	"github.com/wisbric/admissiond/internal/principal"
	"github.com/wisbric/admissiond/internal/queue"
	"github.com/wisbric/admissiond/internal/store"
	"github.com/wisbric/admissiond/internal/telemetry"
)

// Generators resolves the provider a routed model belongs to, so the
// service can acquire a provider concurrency lease keyed on the real
// provider name without importing a concrete Generator implementation.
type Generators interface {
	ProviderFor(route generator.Route) string
}

// SubscriptionReader resolves a user's base plan subscription (§4.1).
// Satisfied by *store.SubscriptionStore; tests substitute an in-memory fake.
type SubscriptionReader interface {
	GetActiveForUser(ctx context.Context, userID uuid.UUID) (store.Subscription, error)
}

// BoostReader resolves a user's active plan boost, if any (§4.1).
// Satisfied by *store.BoostStore.
type BoostReader interface {
	GetActiveForUser(ctx context.Context, userID uuid.UUID) (store.Boost, error)
}

// DraftReader resolves the owning draft for a regen's ownership check
// (§4.6 step 4a). Satisfied by *store.DraftStore.
type DraftReader interface {
	Get(ctx context.Context, ownerID, id uuid.UUID) (store.Draft, error)
}

// GenerationRepo is the slice of generation persistence the admission
// service reads/mutates outside of the Persister's single transaction.
// Satisfied by *store.GenerationStore.
type GenerationRepo interface {
	GetByIdempotencyKey(ctx context.Context, ownerID uuid.UUID, key string) (store.Generation, error)
	LatestForDraft(ctx context.Context, draftID uuid.UUID) (store.Generation, error)
	Fail(ctx context.Context, id uuid.UUID, errMsg string) error
}

// Service implements the Admission Pipeline (C7): Create (§4.5) and
// Regenerate (§4.6), built over the enforcement facade, durable store, and
// queue dispatcher as constructor-injected capabilities.
type Service struct {
	facade      *limiter.Facade
	subs        SubscriptionReader
	boosts      BoostReader
	drafts      DraftReader
	generations GenerationRepo
	persister   Persister
	dispatcher  queue.Dispatcher
	generators  Generators
	logger      interface {
		Info(msg string, args ...any)
		Error(msg string, args ...any)
	}
	providerMaxLeases int
}

// NewService builds an admission Service from its constructor-injected
// capabilities. providerMaxLeases bounds the shared {provider,model,lane}
// concurrency pool independently of any single user's own concurrency cap
// (§5) — a deployment parameter, not a constant, since it tracks the
// provider's actual upstream capacity.
func NewService(
	facade *limiter.Facade,
	subs SubscriptionReader,
	boosts BoostReader,
	drafts DraftReader,
	generations GenerationRepo,
	persister Persister,
	dispatcher queue.Dispatcher,
	generators Generators,
	logger interface {
		Info(msg string, args ...any)
		Error(msg string, args ...any)
	},
	providerMaxLeases int,
) *Service {
	return &Service{
		facade:            facade,
		subs:              subs,
		boosts:            boosts,
		drafts:            drafts,
		generations:       generations,
		persister:         persister,
		dispatcher:        dispatcher,
		generators:        generators,
		logger:            logger,
		providerMaxLeases: providerMaxLeases,
	}
}

// effectiveLimits resolves {plan, limits} for a user at now (§4.1/P8).
func (s *Service) effectiveLimits(ctx context.Context, userID uuid.UUID, now time.Time) (plan.Limits, error) {
	base := plan.Basic
	if sub, err := s.subs.GetActiveForUser(ctx, userID); err == nil {
		base = sub.Plan
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return plan.Limits{}, fmt.Errorf("resolving subscription: %w", err)
	}

	var boostExpiry *time.Time
	if boost, err := s.boosts.GetActiveForUser(ctx, userID); err == nil {
		boostExpiry = &boost.ExpiresAt
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return plan.Limits{}, fmt.Errorf("resolving boost: %w", err)
	}

	resolved := plan.ResolveEffectivePlan(base, boostExpiry, now)
	return plan.GetEffectiveLimits(resolved), nil
}

// Create implements §4.5's 11 steps.
func (s *Service) Create(ctx context.Context, requestID string, p principal.Principal, req CreateRequest) (*CreateResult, *httpserver.APIError) {
	now := time.Now()

	// Step 2: idempotency fast path.
	if req.IdempotencyKey != nil {
		if existing, err := s.generations.GetByIdempotencyKey(ctx, p.UserID, *req.IdempotencyKey); err == nil {
			telemetry.IdempotencyHitsTotal.Inc()
			return &CreateResult{
				DraftID:      existing.DraftID,
				GenerationID: existing.ID,
				Status:       string(existing.Status),
				Duplicated:   true,
			}, nil
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return nil, internalErr(s.logger, "idempotency lookup", err)
		}
	}

	// Step 3: resolve effective limits.
	limits, err := s.effectiveLimits(ctx, p.UserID, now)
	if err != nil {
		return nil, internalErr(s.logger, "resolving effective limits", err)
	}
	if req.VariantCount > limits.MaxVariants {
		return nil, httpserver.NewAPIError(httpserver.CodeForbidden,
			fmt.Sprintf("plan allows at most %d variant(s)", limits.MaxVariants))
	}

	// Step 4: monthly pool.
	monthly, err := s.facade.EnforceMonthlyPool(ctx, p.UserID, now, limits.GensPerMonth)
	if err != nil {
		return nil, internalErr(s.logger, "enforcing monthly pool", err)
	}
	if !monthly.Allowed {
		telemetry.LimitRejectionsTotal.WithLabelValues("monthly").Inc()
		return nil, httpserver.NewAPIError(httpserver.CodeQuotaExceeded, "monthly generation quota exceeded")
	}

	// Step 5: hourly burst.
	hourly, err := s.facade.EnforceHourlyBurst(ctx, p.UserID, now)
	if err != nil {
		return nil, internalErr(s.logger, "enforcing hourly burst", err)
	}
	if !hourly.Allowed {
		telemetry.LimitRejectionsTotal.WithLabelValues("hourly").Inc()
		return nil, httpserver.NewAPIError(httpserver.CodeRateLimited, "hourly request burst exceeded")
	}

	route := generator.RouteModel(limits.Plan, generator.ActionCreate)

	// Steps 6-7: acquire leases.
	userLeaseID, providerLeaseID, apiErr := s.acquireLeases(ctx, p.UserID, route, queue.LaneInteractive, limits.UserConcurrency)
	if apiErr != nil {
		return nil, apiErr
	}

	result, apiErr := s.persistAndDispatch(ctx, requestID, p.UserID, route, queue.LaneInteractive, req.VariantCount,
		req.Prompt, string(req.Platform), req.Title, nil, req.IdempotencyKey, false, nil, nil, nil,
		userLeaseID, providerLeaseID, now)
	if apiErr != nil {
		return nil, apiErr
	}
	return result, nil
}

// Regenerate implements §4.6: Create's steps 1-3 plus ownership, cooldown,
// and full-regen gating, then the shared monthly/hourly/lease/dispatch path.
func (s *Service) Regenerate(ctx context.Context, requestID string, p principal.Principal, req RegenerateRequest) (*RegenerateResult, *httpserver.APIError) {
	now := time.Now()
	regenType := req.RegenType
	if regenType == "" {
		regenType = store.RegenTargeted
	}

	if req.IdempotencyKey != nil {
		if existing, err := s.generations.GetByIdempotencyKey(ctx, p.UserID, *req.IdempotencyKey); err == nil {
			telemetry.IdempotencyHitsTotal.Inc()
			rt := regenType
			if existing.RegenType != nil {
				rt = store.RegenType(*existing.RegenType)
			}
			return &RegenerateResult{
				DraftID:      existing.DraftID,
				GenerationID: existing.ID,
				Status:       string(existing.Status),
				RegenType:    rt,
				Duplicated:   true,
			}, nil
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return nil, internalErr(s.logger, "idempotency lookup", err)
		}
	}

	// 4a: ownership check.
	draft, err := s.drafts.Get(ctx, p.UserID, req.DraftID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, httpserver.NewAPIError(httpserver.CodeForbidden, "draft not found or not owned by caller")
		}
		return nil, internalErr(s.logger, "loading draft", err)
	}

	// 4b: regen cooldown.
	cooldown, err := s.facade.CheckAndSetRegenCooldown(ctx, p.UserID, draft.ID)
	if err != nil {
		return nil, internalErr(s.logger, "checking regen cooldown", err)
	}
	if !cooldown.Set {
		telemetry.LimitRejectionsTotal.WithLabelValues("regen_cooldown").Inc()
		return nil, httpserver.NewAPIError(httpserver.CodeRateLimited,
			fmt.Sprintf("Please wait %d seconds before regenerating this draft again.", cooldown.TTLRemaining))
	}

	limits, err := s.effectiveLimits(ctx, p.UserID, now)
	if err != nil {
		return nil, internalErr(s.logger, "resolving effective limits", err)
	}
	if req.VariantCount > limits.MaxVariants {
		return nil, httpserver.NewAPIError(httpserver.CodeForbidden,
			fmt.Sprintf("plan allows at most %d variant(s)", limits.MaxVariants))
	}

	actionType := generator.ActionRegenTargeted

	// 4c: full-regen plan gating.
	if regenType == store.RegenFull {
		actionType = generator.ActionRegenFull
		if !limits.FullRegenAllowed {
			return nil, httpserver.NewAPIError(httpserver.CodeForbidden, "plan does not allow full regeneration")
		}
		if limits.FullRegenMonthlyCap != plan.Unbounded {
			fullRegen, err := s.facade.EnforceFullRegenCap(ctx, p.UserID, now, limits.FullRegenMonthlyCap)
			if err != nil {
				return nil, internalErr(s.logger, "enforcing full regen cap", err)
			}
			if !fullRegen.Allowed {
				telemetry.LimitRejectionsTotal.WithLabelValues("full_regen_cap").Inc()
				return nil, httpserver.NewAPIError(httpserver.CodeQuotaExceeded, "monthly full-regeneration quota exceeded")
			}
		}
	}
	if regenType == store.RegenTargeted && (req.Changes == nil || *req.Changes == "") {
		return nil, httpserver.NewAPIError(httpserver.CodeValidationError, "changes is required for a targeted regeneration")
	}

	monthly, err := s.facade.EnforceMonthlyPool(ctx, p.UserID, now, limits.GensPerMonth)
	if err != nil {
		return nil, internalErr(s.logger, "enforcing monthly pool", err)
	}
	if !monthly.Allowed {
		telemetry.LimitRejectionsTotal.WithLabelValues("monthly").Inc()
		return nil, httpserver.NewAPIError(httpserver.CodeQuotaExceeded, "monthly generation quota exceeded")
	}

	hourly, err := s.facade.EnforceHourlyBurst(ctx, p.UserID, now)
	if err != nil {
		return nil, internalErr(s.logger, "enforcing hourly burst", err)
	}
	if !hourly.Allowed {
		telemetry.LimitRejectionsTotal.WithLabelValues("hourly").Inc()
		return nil, httpserver.NewAPIError(httpserver.CodeRateLimited, "hourly request burst exceeded")
	}

	route := generator.RouteModel(limits.Plan, actionType)
	lane := queue.LaneInteractive

	userLeaseID, providerLeaseID, apiErr := s.acquireLeases(ctx, p.UserID, route, lane, limits.UserConcurrency)
	if apiErr != nil {
		return nil, apiErr
	}

	parent, err := s.generations.LatestForDraft(ctx, draft.ID)
	var parentID *uuid.UUID
	if err == nil {
		parentID = &parent.ID
	} else if !errors.Is(err, pgx.ErrNoRows) {
		s.releaseLeases(ctx, p.UserID, route, userLeaseID, providerLeaseID)
		return nil, internalErr(s.logger, "loading parent generation", err)
	}

	storeRegenType := regenType
	result, apiErr := s.persistAndDispatch(ctx, requestID, p.UserID, route, lane, req.VariantCount,
		draft.Prompt, string(draft.Platform), nil, &draft, req.IdempotencyKey, true, parentID, &storeRegenType, req.Changes,
		userLeaseID, providerLeaseID, now)
	if apiErr != nil {
		return nil, apiErr
	}
	return &RegenerateResult{
		DraftID:       result.DraftID,
		GenerationID:  result.GenerationID,
		Status:        result.Status,
		RegenType:     storeRegenType,
		EstimatedWait: result.EstimatedWait,
	}, nil
}

// acquireLeases implements §4.5 steps 6-7: user concurrency then provider
// concurrency, releasing the user lease if the provider acquire fails.
func (s *Service) acquireLeases(ctx context.Context, userID uuid.UUID, route generator.Route, lane queue.Lane, userConcurrency int) (userLeaseID, providerLeaseID string, apiErr *httpserver.APIError) {
	userLeaseID = uuid.NewString()
	userAcq, err := s.facade.AcquireUserConcurrency(ctx, userID, userLeaseID, "{}", userConcurrency, limiter.DefaultLeaseTTL)
	if err != nil {
		return "", "", internalErr(s.logger, "acquiring user concurrency", err)
	}
	if !userAcq.Acquired {
		telemetry.LimitRejectionsTotal.WithLabelValues("concurrency").Inc()
		return "", "", httpserver.NewAPIError(httpserver.CodeConcurrencyLimit, "too many generations already in progress")
	}

	providerName := s.generators.ProviderFor(route)
	providerLeaseID = uuid.NewString()
	providerAcq, err := s.facade.AcquireProviderConcurrency(ctx, providerName, route.Model, string(lane), providerLeaseID, "{}", s.providerMaxLeases, limiter.DefaultLeaseTTL)
	if err != nil {
		s.releaseUserLease(ctx, userID, userLeaseID)
		return "", "", internalErr(s.logger, "acquiring provider concurrency", err)
	}
	if !providerAcq.Acquired {
		s.releaseUserLease(ctx, userID, userLeaseID)
		telemetry.LimitRejectionsTotal.WithLabelValues("provider").Inc()
		return "", "", httpserver.NewAPIError(httpserver.CodeConcurrencyLimit, "provider is at capacity, try again shortly")
	}
	return userLeaseID, providerLeaseID, nil
}

func (s *Service) releaseLeases(ctx context.Context, userID uuid.UUID, route generator.Route, userLeaseID, providerLeaseID string) {
	s.releaseUserLease(ctx, userID, userLeaseID)
	providerName := s.generators.ProviderFor(route)
	if _, err := s.facade.ReleaseProviderConcurrency(ctx, providerName, route.Model, string(queue.LaneInteractive), providerLeaseID); err != nil {
		s.logger.Error("releasing provider lease on rollback", "error", err, "leaseId", providerLeaseID)
	}
}

func (s *Service) releaseUserLease(ctx context.Context, userID uuid.UUID, leaseID string) {
	if _, err := s.facade.ReleaseUserConcurrency(ctx, userID, leaseID); err != nil {
		s.logger.Error("releasing user lease on rollback", "error", err, "leaseId", leaseID)
	}
}

// persistAndDispatch implements §4.5 steps 8-11, shared by Create and
// Regenerate: persist (a new draft, for Create) or reuse (for Regenerate)
// the draft alongside a new generation row in one transaction, record the
// idempotency mapping, dispatch the job, and release leases inline only if
// dispatch fails (§4.5's rollback contract, Open Question (a)).
// existingDraft is nil for Create (a new draft is inserted) and non-nil for
// Regenerate (the already-loaded, ownership-checked draft is reused).
func (s *Service) persistAndDispatch(
	ctx context.Context,
	requestID string,
	userID uuid.UUID,
	route generator.Route,
	lane queue.Lane,
	variantCount int,
	prompt, platform string,
	title *string,
	existingDraft *store.Draft,
	idempotencyKey *string,
	isRegen bool,
	parentGenerationID *uuid.UUID,
	regenType *store.RegenType,
	regenChanges *string,
	userLeaseID, providerLeaseID string,
	now time.Time,
) (*CreateResult, *httpserver.APIError) {
	draft, gen, txErr := s.persister.Persist(ctx, PersistParams{
		UserID:             userID,
		ExistingDraft:      existingDraft,
		Title:              title,
		Prompt:             prompt,
		Platform:           platform,
		IdempotencyKey:     idempotencyKey,
		IsRegen:            isRegen,
		ParentGenerationID: parentGenerationID,
		RegenType:          regenType,
	})

	if txErr != nil {
		s.releaseLeases(ctx, userID, route, userLeaseID, providerLeaseID)
		if errors.Is(txErr, store.ErrIdempotencyConflict) {
			// Step 8 note: a unique-violated idempotency key races with
			// another request that just won; treat identically to step 2.
			if idempotencyKey != nil {
				if existing, err := s.generations.GetByIdempotencyKey(ctx, userID, *idempotencyKey); err == nil {
					telemetry.IdempotencyHitsTotal.Inc()
					return &CreateResult{
						DraftID:      existing.DraftID,
						GenerationID: existing.ID,
						Status:       string(existing.Status),
						Duplicated:   true,
					}, nil
				}
			}
			return nil, httpserver.NewAPIError(httpserver.CodeIdempotencyConflict, "idempotency key already in use")
		}
		return nil, internalErr(s.logger, "persisting draft and generation", txErr)
	}

	// Step 9: idempotency mapping.
	if idempotencyKey != nil {
		idemValue := fmt.Sprintf("%s:%s", draft.ID, gen.ID)
		if _, err := s.facade.GetOrSetIdempotency(ctx, userID, "create", *idempotencyKey, idemValue); err != nil {
			s.logger.Error("recording idempotency mapping", "error", err)
		}
	}

	var regenTypePtr *queue.RegenType
	if regenType != nil {
		qrt := queue.RegenType(*regenType)
		regenTypePtr = &qrt
	}

	env := queue.NewGenerationEnvelope(requestID, userID, draft.ID, gen.ID, lane, variantCount,
		prompt, platform, isRegen, parentGenerationID, regenTypePtr, regenChanges,
		s.generators.ProviderFor(route), route.Model, string(route.Plan),
		userLeaseID, providerLeaseID, now)

	// Step 10: dispatch.
	if err := s.dispatcher.Dispatch(ctx, env); err != nil {
		s.logger.Error("dispatching job, rolling back", "error", err, "generationId", gen.ID)
		if failErr := s.generations.Fail(ctx, gen.ID, "dispatch failed"); failErr != nil {
			s.logger.Error("marking generation failed after dispatch failure", "error", failErr)
		}
		s.releaseLeases(ctx, userID, route, userLeaseID, providerLeaseID)
		return nil, internalErr(s.logger, "dispatching job", err)
	}

	telemetry.LifecycleEventsTotal.WithLabelValues("queued").Inc()

	return &CreateResult{
		DraftID:       draft.ID,
		GenerationID:  gen.ID,
		Status:        string(gen.Status),
		EstimatedWait: queue.EstimatedWait(lane),
	}, nil
}

func internalErr(logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}, op string, err error) *httpserver.APIError {
	logger.Error(op, "error", err)
	return httpserver.NewAPIError(httpserver.CodeInternalError, "an internal error occurred")
}

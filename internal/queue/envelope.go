// Package queue implements the Queue Dispatcher (C6): publishing a signed
// job envelope to a delayed-delivery bus targeting the worker endpoint, and
// the consumer-side signature verification that guards the worker ingress.
// Grounded on the teacher's pkg/escalation/engine.go polling loop, replaced
// here by a one-shot publish (QStash or in-process; no Redis queue), and on
// other_examples' NATS draft-generation worker for the job-envelope/retry
// shape.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Lane distinguishes retry/priority policy per job (§4.7's "Retry policy").
type Lane string

const (
	LaneInteractive Lane = "interactive"
	LaneBatch       Lane = "batch"
)

// RegenType mirrors store.RegenType on the wire without importing the store
// package — the envelope is a pure serialization contract.
type RegenType string

const (
	RegenTargeted RegenType = "targeted"
	RegenFull     RegenType = "full"
)

// Envelope is the canonical on-the-wire contract between admission and
// worker (§6.2).
type Envelope struct {
	Type                string     `json:"type"`
	JobID               uuid.UUID  `json:"jobId"`
	RequestID           string     `json:"requestId"`
	UserID              uuid.UUID  `json:"userId"`
	DraftID             uuid.UUID  `json:"draftId"`
	GenerationID        uuid.UUID  `json:"generationId"`
	Lane                Lane       `json:"lane"`
	VariantCount        int        `json:"variantCount"`
	Prompt              string     `json:"prompt"`
	Platform            string     `json:"platform"`
	IsRegen             bool       `json:"isRegen"`
	ParentGenerationID  *uuid.UUID `json:"parentGenerationId"`
	RegenType           *RegenType `json:"regenType"`
	RegenChanges        *string    `json:"regenChanges"`
	// Provider, Model, and Plan are the routing decision admission already
	// made (generator.RouteModel); the worker invokes the same route rather
	// than re-deriving it, and releases the provider lease under the same
	// {provider,model,lane} key admission acquired it with.
	Provider            string     `json:"provider"`
	Model               string     `json:"model"`
	Plan                string     `json:"plan"`
	UserLeaseID         string     `json:"userLeaseId"`
	ProviderLeaseID     string     `json:"providerLeaseId"`
	RetryCount          int        `json:"retryCount"`
	CreatedAt           time.Time  `json:"createdAt"`
}

// NewGenerationEnvelope builds the envelope for a fresh admission
// (Create or Regenerate); RetryCount always starts at 0.
func NewGenerationEnvelope(requestID string, userID, draftID, generationID uuid.UUID, lane Lane, variantCount int, prompt, platform string, isRegen bool, parentGenerationID *uuid.UUID, regenType *RegenType, regenChanges *string, provider, model, plan string, userLeaseID, providerLeaseID string, createdAt time.Time) Envelope {
	return Envelope{
		Type:               "generation",
		JobID:              uuid.New(),
		RequestID:          requestID,
		UserID:             userID,
		DraftID:            draftID,
		GenerationID:       generationID,
		Lane:               lane,
		VariantCount:       variantCount,
		Prompt:             prompt,
		Platform:           platform,
		IsRegen:            isRegen,
		ParentGenerationID: parentGenerationID,
		RegenType:          regenType,
		RegenChanges:       regenChanges,
		Provider:           provider,
		Model:              model,
		Plan:               plan,
		UserLeaseID:        userLeaseID,
		ProviderLeaseID:    providerLeaseID,
		RetryCount:         0,
		CreatedAt:          createdAt,
	}
}

// MaxRetries is the per-job hard cap (§4.7 step 3) that prevents runaway
// redelivery regardless of the bus's own retry policy.
const MaxRetries = 3

// WithIncrementedRetry returns a copy of the envelope for redelivery.
func (e Envelope) WithIncrementedRetry() Envelope {
	e.RetryCount++
	return e
}

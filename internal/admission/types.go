// Package admission implements the Admission Pipeline (C7): Create (§4.5)
// and Regenerate (§4.6). Both ordered step sequences are assembled from the
// same constructor-injected capabilities — plan resolution (C1), the
// enforcement facade (C4), the durable store (C5), and the queue dispatcher
// (C6) — per Design Notes' "module-level clients... constructor-injected
// capabilities on a root service value".
package admission

import (
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/admissiond/internal/store"
)

// CreateRequest is the validated body of POST /v1/create (§4.5).
type CreateRequest struct {
	Prompt         string         `json:"prompt" validate:"required,min=10,max=5000"`
	Platform       store.Platform `json:"platform" validate:"required,oneof=tiktok instagram_reels youtube_shorts"`
	Title          *string        `json:"title,omitempty" validate:"omitempty,max=200"`
	VariantCount   int            `json:"variantCount" validate:"required,min=1,max=5"`
	IdempotencyKey *string        `json:"idempotencyKey,omitempty" validate:"omitempty,min=16,max=128"`
}

// CreateResult is the success payload for POST /v1/create and the
// idempotent-replay fast path (§4.5 steps 2 and 11).
type CreateResult struct {
	DraftID       uuid.UUID     `json:"draftId"`
	GenerationID  uuid.UUID     `json:"generationId"`
	Status        string        `json:"status"`
	EstimatedWait time.Duration `json:"estimatedWait"`
	Duplicated    bool          `json:"duplicated,omitempty"`
}

// RegenerateRequest is the validated body of POST /v1/regenerate (§4.6).
type RegenerateRequest struct {
	DraftID        uuid.UUID       `json:"draftId" validate:"required"`
	RegenType      store.RegenType `json:"regenType" validate:"omitempty,oneof=targeted full"`
	Changes        *string         `json:"changes,omitempty" validate:"omitempty,max=5000"`
	VariantCount   int             `json:"variantCount" validate:"required,min=1,max=5"`
	IdempotencyKey *string         `json:"idempotencyKey,omitempty" validate:"omitempty,min=16,max=128"`
}

// RegenerateResult is the success payload for POST /v1/regenerate (§6.1).
type RegenerateResult struct {
	DraftID       uuid.UUID       `json:"draftId"`
	GenerationID  uuid.UUID       `json:"generationId"`
	Status        string          `json:"status"`
	RegenType     store.RegenType `json:"regenType"`
	EstimatedWait time.Duration   `json:"estimatedWait"`
	Duplicated    bool            `json:"duplicated,omitempty"`
}

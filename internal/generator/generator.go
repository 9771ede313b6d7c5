// Package generator implements the Generator capability (§6.3): the core
// treats content generation as a black box with per-plan deadlines and
// output-token caps, routed to a concrete provider by a pure function of
// {plan, actionType}. Grounded on jordigilh-kubernaut's go.mod, which
// carries anthropic-sdk-go, aws-sdk-go-v2/service/bedrockruntime, and
// sony/gobreaker as its AI-provider/resilience stack (concrete call sites
// were filtered out of the retrieval slice; this package is new code
// written against those SDKs' real APIs).
package generator

import (
	"context"
	"errors"
	"time"
)

// ErrorCode classifies a failed generation per §6.3's black-box contract.
type ErrorCode string

const (
	ErrCodeRateLimited ErrorCode = "429"
	ErrCodeServerError ErrorCode = "5xx"
	ErrCodeNetwork     ErrorCode = "NET"
	ErrCodeValidation  ErrorCode = "VALIDATION"
	ErrCodeDisabled    ErrorCode = "DISABLED"
)

// GenerateError wraps a classified provider failure. Transient codes
// (429, 5xx, NET) tell the worker to retry; permanent codes (VALIDATION,
// DISABLED) tell it to fail the generation outright (§4.7 step 8).
type GenerateError struct {
	Code    ErrorCode
	Message string
}

func (e *GenerateError) Error() string { return string(e.Code) + ": " + e.Message }

// IsTransient reports whether the worker should retry the job.
func (e *GenerateError) IsTransient() bool {
	switch e.Code {
	case ErrCodeRateLimited, ErrCodeServerError, ErrCodeNetwork:
		return true
	default:
		return false
	}
}

// AsGenerateError unwraps err into a *GenerateError, if it is one.
func AsGenerateError(err error) (*GenerateError, bool) {
	var ge *GenerateError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// Lane mirrors queue.Lane without importing the queue package, keeping the
// Generator capability a freestanding black box per §6.3.
type Lane string

const (
	LaneInteractive Lane = "interactive"
	LaneBatch       Lane = "batch"
)

// Request is the input to a single generation attempt (§6.3). Model is the
// provider-specific model id chosen by RouteModel; a Generator implementation
// calls that model rather than re-deriving its own routing decision.
type Request struct {
	Prompt          string
	Platform        string
	VariantCount    int
	Lane            Lane
	IsRegen         bool
	RegenType       string // "targeted", "full", or "" when not a regen
	Model           string
	MaxOutputTokens int
	Timeout         time.Duration
}

// VariantMetadata carries the structured hook/benefit/cta breakdown (§6.3).
type VariantMetadata struct {
	Hook    string `json:"hook"`
	Benefit string `json:"benefit"`
	CTA     string `json:"cta"`
}

// GeneratedVariant is one produced piece of content.
type GeneratedVariant struct {
	Text     string          `json:"text"`
	Hashtags []string        `json:"hashtags"`
	Metadata VariantMetadata `json:"metadata"`
}

// Usage reports token counts for cost accounting (§4.7 step 8).
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Result is a successful generation (§6.3).
type Result struct {
	Variants []GeneratedVariant
	Model    string
	Usage    Usage
}

// Generator is the black-box content generation capability.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

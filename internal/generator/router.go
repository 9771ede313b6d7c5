package generator

import (
	"time"

	"github.com/wisbric/admissiond/internal/plan"
)

// Provider identifies a concrete generation backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderBedrock   Provider = "bedrock"
)

// ActionType distinguishes the calling admission operation, since a full
// regen on a pro plan may warrant a different model than an interactive
// targeted regen on the same plan.
type ActionType string

const (
	ActionCreate          ActionType = "create"
	ActionRegenTargeted   ActionType = "regen_targeted"
	ActionRegenFull       ActionType = "regen_full"
)

// Route names the provider and model a request should be sent to, and the
// plan the routing decision was made for (carried along so a consumer that
// only has the Route, such as the worker reading it back off the job
// envelope, can still derive the output-token cap and runtime deadline).
type Route struct {
	Provider Provider
	Model    string
	Plan     plan.Plan
}

// RouteModel is a pure function of {plan, actionType} (§6.3): no I/O, no
// per-request state. Basic stays on the cheapest interactive model; standard
// upgrades the model; pro's full regens (the heaviest, least latency
// sensitive calls) are routed to Bedrock-hosted capacity instead of the
// vendor API directly, exercising both provider SDKs named in the domain
// stack.
func RouteModel(p plan.Plan, action ActionType) Route {
	switch p {
	case plan.Pro:
		if action == ActionRegenFull {
			return Route{Provider: ProviderBedrock, Model: "anthropic.claude-3-5-sonnet-20241022-v2:0", Plan: p}
		}
		return Route{Provider: ProviderAnthropic, Model: "claude-opus-4-5", Plan: p}
	case plan.Standard:
		return Route{Provider: ProviderAnthropic, Model: "claude-sonnet-4-5", Plan: p}
	default:
		return Route{Provider: ProviderAnthropic, Model: "claude-haiku-4-5", Plan: p}
	}
}

// DefaultMaxOutputTokens is the plan-independent fallback (§4.7 step 7).
const DefaultMaxOutputTokens = 2000

// MaxOutputTokensForPlan returns the hard output-token cap for a plan.
// Every plan currently shares the spec's documented default; the function
// exists so a future plan-specific override has one place to live.
func MaxOutputTokensForPlan(p plan.Plan) int {
	return DefaultMaxOutputTokens
}

// DeadlineForPlan returns the total runtime budget for a generation (§4.7 step 7).
func DeadlineForPlan(p plan.Plan) time.Duration {
	switch p {
	case plan.Pro:
		return 60 * time.Second
	case plan.Standard:
		return 45 * time.Second
	default:
		return 30 * time.Second
	}
}

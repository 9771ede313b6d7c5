// Package pricing estimates the USD cost of a generation's token usage
// (§4.7 step 8), keyed by the model id the Generator actually reported back
// rather than the model the router intended to call (a circuit-broken
// fallback or provider substitution can still report a different id).
package pricing

import "github.com/wisbric/admissiond/internal/generator"

// rate holds per-million-token pricing in USD for one model.
type rate struct {
	inUsdPerMillion  float64
	outUsdPerMillion float64
}

// table is a static snapshot of published per-model pricing. Unknown models
// fall back to the unknownRate conservative estimate rather than erroring,
// since a cost-estimate miss must never block marking a generation complete.
var table = map[string]rate{
	"claude-haiku-4-5":  {inUsdPerMillion: 1.00, outUsdPerMillion: 5.00},
	"claude-sonnet-4-5": {inUsdPerMillion: 3.00, outUsdPerMillion: 15.00},
	"claude-opus-4-5":   {inUsdPerMillion: 15.00, outUsdPerMillion: 75.00},

	// Bedrock-hosted Claude used for pro's full regens (internal/generator/router.go).
	"anthropic.claude-3-5-sonnet-20241022-v2:0": {inUsdPerMillion: 3.00, outUsdPerMillion: 15.00},

	// MockGenerator's reported model, priced at zero so local-dev runs never
	// inflate the usage ledger.
	"mock-model": {inUsdPerMillion: 0, outUsdPerMillion: 0},
}

var unknownRate = rate{inUsdPerMillion: 3.00, outUsdPerMillion: 15.00}

// Estimate returns the USD cost of a generation result's reported usage.
func Estimate(model string, usage generator.Usage) float64 {
	r, ok := table[model]
	if !ok {
		r = unknownRate
	}
	inCost := float64(usage.InputTokens) / 1_000_000 * r.inUsdPerMillion
	outCost := float64(usage.OutputTokens) / 1_000_000 * r.outUsdPerMillion
	return inCost + outCost
}

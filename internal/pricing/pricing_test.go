package pricing

import (
	"testing"

	"github.com/wisbric/admissiond/internal/generator"
)

func TestEstimateKnownModel(t *testing.T) {
	got := Estimate("claude-sonnet-4-5", generator.Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000})
	want := 3.00 + 15.00
	if got != want {
		t.Errorf("Estimate() = %v, want %v", got, want)
	}
}

func TestEstimateUnknownModelFallsBackToUnknownRate(t *testing.T) {
	got := Estimate("some-future-model", generator.Usage{InputTokens: 1_000_000, OutputTokens: 0})
	if got != unknownRate.inUsdPerMillion {
		t.Errorf("Estimate() = %v, want %v", got, unknownRate.inUsdPerMillion)
	}
}

func TestEstimateMockModelIsZero(t *testing.T) {
	got := Estimate("mock-model", generator.Usage{InputTokens: 500, OutputTokens: 500})
	if got != 0 {
		t.Errorf("Estimate() = %v, want 0", got)
	}
}

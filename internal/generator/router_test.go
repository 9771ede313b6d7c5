package generator

import (
	"testing"

	"github.com/wisbric/admissiond/internal/plan"
)

func TestRouteModel(t *testing.T) {
	tests := []struct {
		name     string
		plan     plan.Plan
		action   ActionType
		provider Provider
	}{
		{"basic create uses anthropic", plan.Basic, ActionCreate, ProviderAnthropic},
		{"standard create uses anthropic", plan.Standard, ActionCreate, ProviderAnthropic},
		{"pro targeted regen uses anthropic", plan.Pro, ActionRegenTargeted, ProviderAnthropic},
		{"pro full regen uses bedrock", plan.Pro, ActionRegenFull, ProviderBedrock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route := RouteModel(tt.plan, tt.action)
			if route.Provider != tt.provider {
				t.Errorf("RouteModel(%v, %v).Provider = %v, want %v", tt.plan, tt.action, route.Provider, tt.provider)
			}
			if route.Model == "" {
				t.Error("RouteModel() returned an empty model")
			}
		})
	}
}

func TestDeadlineForPlan(t *testing.T) {
	if DeadlineForPlan(plan.Basic).Seconds() != 30 {
		t.Errorf("basic deadline = %v, want 30s", DeadlineForPlan(plan.Basic))
	}
	if DeadlineForPlan(plan.Standard).Seconds() != 45 {
		t.Errorf("standard deadline = %v, want 45s", DeadlineForPlan(plan.Standard))
	}
	if DeadlineForPlan(plan.Pro).Seconds() != 60 {
		t.Errorf("pro deadline = %v, want 60s", DeadlineForPlan(plan.Pro))
	}
}

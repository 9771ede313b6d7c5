package plan

import (
	"testing"
	"time"
)

func TestResolveEffectivePlan(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		basePlan       Plan
		boostExpiresAt *time.Time
		want           Plan
	}{
		{"no boost", Basic, nil, Basic},
		{"expired boost", Basic, ptr(now.Add(-time.Hour)), Basic},
		{"active boost upgrades basic", Basic, ptr(now.Add(time.Hour)), Pro},
		{"active boost upgrades standard", Standard, ptr(now.Add(24 * time.Hour)), Pro},
		{"boost exactly at now does not upgrade", Basic, ptr(now), Basic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveEffectivePlan(tt.basePlan, tt.boostExpiresAt, now)
			if got != tt.want {
				t.Errorf("ResolveEffectivePlan() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEffectiveLimits(t *testing.T) {
	basic := GetEffectiveLimits(Basic)
	if basic.GensPerMonth != 60 || basic.MaxVariants != 1 || basic.FullRegenAllowed || basic.UserConcurrency != 1 {
		t.Errorf("unexpected basic limits: %+v", basic)
	}

	standard := GetEffectiveLimits(Standard)
	if standard.GensPerMonth != 300 || standard.MaxVariants != 3 || !standard.FullRegenAllowed || standard.FullRegenMonthlyCap != 10 {
		t.Errorf("unexpected standard limits: %+v", standard)
	}

	pro := GetEffectiveLimits(Pro)
	if pro.GensPerMonth != 900 || pro.MaxVariants != 5 || pro.FullRegenMonthlyCap != Unbounded {
		t.Errorf("unexpected pro limits: %+v", pro)
	}

	unknown := GetEffectiveLimits(Plan("nonexistent"))
	if unknown.Plan != Basic {
		t.Errorf("unknown plan should fall back to basic, got %+v", unknown)
	}
}

func ptr(t time.Time) *time.Time { return &t }

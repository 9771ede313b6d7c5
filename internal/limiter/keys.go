package limiter

import "github.com/google/uuid"

// Key layout (namespace "app:") exactly as specified in §4.4. Every builder
// bakes userId into the namespace itself so a caller cannot construct a
// cross-tenant-colliding key by omitting it — see Design Note (b).

func monthlyUsageKey(userID uuid.UUID, monthKey string) string {
	return "app:usage:" + userID.String() + ":gen_used:" + monthKey
}

func hourlyBurstKey(userID uuid.UUID, hourKey string) string {
	return "app:burst:" + userID.String() + ":gen_hour:" + hourKey
}

func fullRegenUsageKey(userID uuid.UUID, monthKey string) string {
	return "app:usage:" + userID.String() + ":full_regen_used:" + monthKey
}

func regenCooldownKey(userID, draftID uuid.UUID) string {
	return "app:cooldown:" + userID.String() + ":regen:" + draftID.String()
}

func userLeaseSetKey(userID uuid.UUID) string {
	return "app:conc:" + userID.String() + ":leases"
}

func leaseMetaKey(leaseID string) string {
	return "app:conc:lease:" + leaseID
}

func providerConcurrencyKey(provider, model, lane string) string {
	return "app:conc:provider:" + provider + ":" + model + ":" + lane
}

func idempotencyKey(userID uuid.UUID, scope, key string) string {
	return "app:idem:" + userID.String() + ":" + scope + ":" + key
}

// Package principal resolves the inbound request into the already-
// authenticated {userId, plan} principal the core consumes (spec §1:
// "Authentication token issuance and session cookies" is out of scope —
// the core only verifies a token it did not issue and trusts its claims).
package principal

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Plan is the base subscription tier a principal's token was minted for.
// The admission pipeline still resolves the *effective* plan from the
// subscription/boost rows in the durable store (§4.1) — this is only the
// identity claim carried on the token.
type Plan string

const (
	PlanBasic    Plan = "basic"
	PlanStandard Plan = "standard"
	PlanPro      Plan = "pro"
)

// Principal is the authenticated caller the core acts on behalf of.
type Principal struct {
	UserID uuid.UUID `json:"userId"`
	Plan   Plan      `json:"plan"`
}

type contextKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext extracts the Principal stored by the resolving middleware.
// The second return value is false if no principal was resolved.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// claims is the JSON payload embedded in a token (§6.5 AUTH_SECRET).
type claims struct {
	UserID string `json:"userId"`
	Plan   string `json:"plan"`
}

// Sign produces a token of shape "<base64(payload)>.<base64(hmac)>". This
// exists only so tests and local tooling can mint tokens without a real
// upstream auth service; it is never exposed over HTTP.
func Sign(secret string, p Principal) (string, error) {
	payload, err := json.Marshal(claims{UserID: p.UserID.String(), Plan: string(p.Plan)})
	if err != nil {
		return "", fmt.Errorf("marshaling claims: %w", err)
	}
	sig := sign(secret, payload)
	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Verify validates a token's HMAC against secret and decodes its claims.
func Verify(secret, token string) (Principal, error) {
	var sep int
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			sep = i
			break
		}
	}
	if sep == 0 {
		return Principal{}, fmt.Errorf("malformed token")
	}

	payload, err := base64.RawURLEncoding.DecodeString(token[:sep])
	if err != nil {
		return Principal{}, fmt.Errorf("decoding token payload: %w", err)
	}
	gotSig, err := base64.RawURLEncoding.DecodeString(token[sep+1:])
	if err != nil {
		return Principal{}, fmt.Errorf("decoding token signature: %w", err)
	}

	wantSig := sign(secret, payload)
	if subtle.ConstantTimeCompare(gotSig, wantSig) != 1 {
		return Principal{}, fmt.Errorf("invalid token signature")
	}

	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return Principal{}, fmt.Errorf("decoding token claims: %w", err)
	}

	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return Principal{}, fmt.Errorf("invalid userId claim: %w", err)
	}

	plan := Plan(c.Plan)
	switch plan {
	case PlanBasic, PlanStandard, PlanPro:
	default:
		return Principal{}, fmt.Errorf("invalid plan claim %q", c.Plan)
	}

	return Principal{UserID: id, Plan: plan}, nil
}

func sign(secret string, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}

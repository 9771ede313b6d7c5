package telemetry

import (
	"log/slog"
	"strings"
)

// redactRule names a log attribute key (case-insensitive, matched by exact
// name or suffix) whose value must never reach the sink verbatim. Shaped
// after the rule-based redact/hash actions of a reference structured-logging
// library: here every matching rule simply redacts, since nothing downstream
// needs a stable hash of a prompt or a secret.
type redactRule struct {
	suffix bool
	match  string
}

var redactRules = []redactRule{
	{match: "prompt"},
	{match: "authorization"},
	{match: "cookie"},
	{match: "x-api-key"},
	{suffix: true, match: "_token"},
	{suffix: true, match: "_secret"},
}

const redactedPlaceholder = "[REDACTED]"

func isRedactedKey(key string) bool {
	lower := strings.ToLower(key)
	for _, rule := range redactRules {
		if rule.suffix {
			if strings.HasSuffix(lower, rule.match) {
				return true
			}
			continue
		}
		if lower == rule.match {
			return true
		}
	}
	return false
}

// redactAttr is an slog.HandlerOptions.ReplaceAttr hook that blanks any
// attribute whose key matches a redaction rule, regardless of nesting depth.
func redactAttr(groups []string, a slog.Attr) slog.Attr {
	if isRedactedKey(a.Key) {
		a.Value = slog.StringValue(redactedPlaceholder)
	}
	return a
}

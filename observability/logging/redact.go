package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"token":         {},
	"secret":        {},
	"passphrase":    {},
	"hmac_secret":   {},
}

// IsSensitive reports whether values logged under key must be masked.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue returns the canonical redacted placeholder for non-empty values. Empty values
// are returned unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns a slog.Attr that redacts the supplied value when the key is
// sensitive. Bearer tokens keep their scheme so operators can tell what was sent.
func MaskField(key, value string) slog.Attr {
	if !IsSensitive(key) || strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	if scheme, _, ok := strings.Cut(strings.TrimSpace(value), " "); ok && strings.EqualFold(scheme, "bearer") {
		return slog.String(key, scheme+" "+RedactedValue)
	}
	return slog.String(key, RedactedValue)
}

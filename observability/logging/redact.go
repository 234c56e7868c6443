package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in
// logs. Secret keys and API credentials must never appear as attributes.
const RedactedValue = "[REDACTED]"

var sensitiveKeyFragments = []string{"secret", "passphrase", "token", "signature", "privatekey"}

// IsSensitiveKey reports whether a log attribute key names secret material.
func IsSensitiveKey(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

// MaskField returns a slog.Attr whose value is redacted when the key names
// secret material. Empty values pass through unchanged to avoid log noise.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || !IsSensitiveKey(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

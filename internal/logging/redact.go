package logging

import (
	"log/slog"
	"strings"
)

const redacted = "[redacted]"

var secretMarkers = []string{"password", "secret", "token", "authorization"}

// isSecretKey reports whether an attribute key names a credential. SMTP and
// Redis passwords travel through config structs that may end up in logs.
func isSecretKey(key string) bool {
	key = strings.ToLower(key)
	for _, marker := range secretMarkers {
		if strings.Contains(key, marker) {
			return true
		}
	}
	return false
}

func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindGroup && isSecretKey(attr.Key) {
		return slog.String(attr.Key, redacted)
	}
	return attr
}

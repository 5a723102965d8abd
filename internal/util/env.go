// Package util reads MeetingAssistant settings from the process environment. Unset
// variables fall back to the caller's default; malformed ones are logged and ignored.
package util

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// EnvBool reads key as a switch. true/1/yes/on enable it and false/0/no/off disable it,
// in any case and with surrounding spaces.
func EnvBool(key string, fallback bool) bool {
	raw, ok := lookup(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(raw) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	slog.Warn("Ignoring malformed boolean setting", "key", key, "value", raw, "fallback", fallback)
	return fallback
}

// EnvDuration reads key as a positive time.ParseDuration value such as "72h".
func EnvDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := lookup(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	slog.Warn("Ignoring malformed duration setting", "key", key, "value", raw, "fallback", fallback)
	return fallback
}

func lookup(key string) (string, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	return raw, raw != ""
}

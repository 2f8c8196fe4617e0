package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/formlab/formd/internal/log"
)

// parseEnv holds the shared lookup-and-fallback logic for the typed env
// readers. parse signals a malformed value by returning an error, which
// is logged once before the default takes over.
func parseEnv[T any](key string, defaultValue T, kind string, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	parsed, err := parse(v)
	if err != nil {
		logger := log.WithComponent("config")
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Str("kind", kind).
			Msg("invalid value in environment variable, using default")
		return defaultValue
	}
	return parsed
}

func sensitiveKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") || strings.Contains(k, "secret") || strings.Contains(k, "password")
}

// ParseString reads a string environment variable, falling back to
// defaultValue when unset or empty. Values of keys that look sensitive
// are never logged.
func ParseString(key, defaultValue string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	if !sensitiveKey(key) {
		logger := log.WithComponent("config")
		logger.Debug().
			Str("key", key).
			Str("value", v).
			Msg("using environment variable")
	}
	return v
}

// ParseInt reads an integer, falling back to defaultValue when the
// variable is unset, empty, or not a number.
func ParseInt(key string, defaultValue int) int {
	return parseEnv(key, defaultValue, "integer", strconv.Atoi)
}

// ParseFloat reads a float64.
func ParseFloat(key string, defaultValue float64) float64 {
	return parseEnv(key, defaultValue, "float", func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// ParseDuration reads a Go duration such as "90s" or "5m".
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return parseEnv(key, defaultValue, "duration", time.ParseDuration)
}

// ParseBool reads a boolean. Accepts true/false, 1/0, and yes/no in any
// case.
func ParseBool(key string, defaultValue bool) bool {
	return parseEnv(key, defaultValue, "boolean", func(s string) (bool, error) {
		switch strings.ToLower(s) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return false, strconv.ErrSyntax
	})
}

// ParseStringSlice reads a comma-separated list. Entries are trimmed and
// empty entries dropped; a list with no usable entries falls back to
// defaultValue.
func ParseStringSlice(key string, defaultValue []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return defaultValue
	}
	out := make([]string, 0, 4)
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

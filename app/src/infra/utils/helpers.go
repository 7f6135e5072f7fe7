package utils

import "strings"

// EmptyFallback returns fallback when value is blank.
func EmptyFallback(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

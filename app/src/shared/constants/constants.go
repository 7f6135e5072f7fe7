package constants

import "time"

const (
	// TimeFormat defines the canonical timestamp format used across transports.
	TimeFormat = time.RFC3339Nano

	ServiceName = "head-monitor"

	// RequestIDHeader carries the caller's correlation id on HTTP requests.
	RequestIDHeader = "X-Request-ID"
)

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the archive has no samples for the query.
	ErrNotFound = errors.New("delay samples not found")

	// ErrNoNewData signals that the target has nothing past the requested block yet.
	ErrNoNewData = errors.New("no new data")

	// ErrBlockTimeNotFound signals that a reference does not know the block yet.
	ErrBlockTimeNotFound = errors.New("block time not found")

	// ErrInvalidBlock is a protocol error: the response did not carry a usable block number.
	ErrInvalidBlock = errors.New("invalid block in response")

	ErrUnknownDatasetKind = errors.New("unknown dataset kind")

	// ErrArchiveDisabled is returned by delay queries when no database is configured.
	ErrArchiveDisabled = errors.New("delay archive is disabled")

	ErrInvalidRange = errors.New("invalid time range")
)

// StatusError is returned for any unexpected HTTP status.
type StatusError struct {
	URL  string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d from %s", e.Code, e.URL)
	}
	return fmt.Sprintf("HTTP %d from %s: %s", e.Code, e.URL, e.Body)
}

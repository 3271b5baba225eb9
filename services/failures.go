// services/failures.go
package services

import (
	"errors"
	"fmt"
)

// FailureType classifies a payload-level rejection. These are recorded per
// payload in the import result and never abort sibling payloads.
type FailureType string

const (
	FailMissingRequiredMetric FailureType = "MissingRequiredMetric"
	FailInvalidMetric         FailureType = "InvalidMetric"
	FailMetricOutOfRange      FailureType = "MetricOutOfRange"
	FailInternal              FailureType = "InternalError"
)

// NormalizeError is a typed, payload-level rejection from the score
// normalizer.
type NormalizeError struct {
	Type    FailureType
	Message string
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func normalizeFailf(t FailureType, format string, args ...any) *NormalizeError {
	return &NormalizeError{Type: t, Message: fmt.Sprintf(format, args...)}
}

var (
	// ErrUnsupportedGame means no config is registered for the game+mode.
	ErrUnsupportedGame = errors.New("unsupported game+mode")

	// ErrImportRecordWrite flags scores that were persisted without an
	// Import record. The scores still count toward PBs; only
	// reversal-by-import is lost for them.
	ErrImportRecordWrite = errors.New("scores persisted but import record write failed")

	// ErrImportRecordDelete flags a reversal that deleted its scores but
	// could not remove the Import record. The dangling record references
	// deleted scores and must not be reverted again; an operator has to
	// resolve it.
	ErrImportRecordDelete = errors.New("scores deleted but import record removal failed")
)

package models

import (
	"errors"
	"fmt"
)

// Failure taxonomy shared by every component. Callers match with errors.Is / errors.As.
var (
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrInvalidQuantity          = errors.New("invalid quantity")
	ErrInsufficientShares       = errors.New("insufficient shares")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrLedgerInconsistency      = errors.New("ledger inconsistency")
	ErrPartialStateUnavailable  = errors.New("partial state unavailable")
	ErrTimeout                  = errors.New("timeout")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrUnknownTimeframe         = errors.New("unknown timeframe")
	ErrSubmissionOutcomeUnknown = errors.New("submission outcome unknown")
)

// RemoteRejectedError is a definitive refusal from the system of record.
// Nothing was recorded remotely.
type RemoteRejectedError struct {
	StatusCode int
	Reason     string
}

func (e *RemoteRejectedError) Error() string {
	return fmt.Sprintf("rejected by remote (status %d): %s", e.StatusCode, e.Reason)
}

// AmbiguousSubmissionError reports a write whose outcome is unknown: the request
// may or may not have been recorded. The caller must refresh and inspect the
// ledger tail before resubmitting.
type AmbiguousSubmissionError struct {
	Pending PendingSubmission
	Cause   error
}

func (e *AmbiguousSubmissionError) Error() string {
	return fmt.Sprintf("%s %s: outcome unknown, reconcile before resubmitting: %v",
		e.Pending.Kind, e.Pending.ID, e.Cause)
}

// Unwrap exposes both the outcome-unknown marker and the transport cause,
// so errors.Is matches ErrSubmissionOutcomeUnknown as well as ErrTimeout.
func (e *AmbiguousSubmissionError) Unwrap() []error {
	return []error{ErrSubmissionOutcomeUnknown, e.Cause}
}

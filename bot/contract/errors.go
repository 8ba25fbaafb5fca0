package contract

import "errors"

var (
	// ErrTransient marks network failures, timeouts, and 5xx replies from any
	// external collaborator. Retryable.
	ErrTransient = errors.New("transient collaborator failure")

	// ErrAuth marks a failed credential exchange.
	ErrAuth = errors.New("authentication failed")

	// ErrInvalidInput marks an inbound event that does not match the shape
	// the current dialog state expects.
	ErrInvalidInput = errors.New("invalid user input")

	// ErrConfiguration marks a dialog state with no registered handler.
	ErrConfiguration = errors.New("dialog configuration error")

	// ErrNotFound marks a missing remote record. Cart-line removal treats it
	// as success.
	ErrNotFound = errors.New("record not found")
)

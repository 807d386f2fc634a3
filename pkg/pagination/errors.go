package pagination

import (
	"errors"
	"fmt"
)

var (
	// ErrRetryExhausted is matched by a *FetchError surfaced after the retry budget ran out.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrFetchInFlight is returned by FetchNextWait when another fetch is outstanding.
	ErrFetchInFlight = errors.New("fetch already in flight")

	// ErrClosed is returned by FetchNextWait after Close.
	ErrClosed = errors.New("controller closed")
)

// FetchError is the only error a Callback ever receives.
type FetchError struct {
	// Cursor is the cursor the failed fetch was issued with.
	Cursor Cursor

	// Attempts is how many times the fetcher was called, including the first call.
	Attempts int

	// Err is the error from the last attempt.
	Err error

	exhausted bool
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.exhausted {
		return fmt.Sprintf("fetch page failed after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch page aborted after %d attempts: %v", e.Attempts, e.Err)
}

// Description returns a message suitable for showing to the user.
func (e *FetchError) Description() string {
	if e.Err == nil {
		return "The list could not be loaded."
	}
	return e.Err.Error()
}

// Unwrap exposes the last attempt's error and, when the retry budget ran out,
// ErrRetryExhausted.
func (e *FetchError) Unwrap() []error {
	if e.exhausted {
		return []error{ErrRetryExhausted, e.Err}
	}
	return []error{e.Err}
}

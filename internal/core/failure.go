package core

import (
	"fmt"
)

// FailureReason classifies a commit-local failure. The value is persisted
// verbatim in the failed commit's record.
type FailureReason string

const (
	// FailureCheckout marks a commit whose tree could not be materialized.
	FailureCheckout FailureReason = "checkout"
	// FailureInventory marks a commit whose source inventory could not be collected.
	FailureInventory FailureReason = "inventory"
	// FailureTimeout marks a commit whose analyzer subprocess exceeded the time budget.
	FailureTimeout FailureReason = "timeout"
	// FailureCrash marks a commit whose analyzer subprocess exited unexpectedly.
	FailureCrash FailureReason = "crash"
	// FailureMalformedOutput marks a commit whose analyzer output could not be parsed.
	FailureMalformedOutput FailureReason = "malformed_output"
)

// Failure is a commit-local error. The pipeline converts it into a
// failure-tagged commit record and proceeds to the next commit instead of
// aborting the run. Any other error type returned from Consume() is fatal.
type Failure struct {
	Reason FailureReason
	Err    error
}

// NewFailure wraps an error into a commit-local Failure with the given reason.
func NewFailure(reason FailureReason, err error) *Failure {
	return &Failure{Reason: reason, Err: err}
}

// NewFailuref creates a commit-local Failure from a format string.
func NewFailuref(reason FailureReason, format string, args ...interface{}) *Failure {
	return &Failure{Reason: reason, Err: fmt.Errorf(format, args...)}
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Reason)
	}
	return fmt.Sprintf("%s: %v", f.Reason, f.Err)
}

// Cause returns the underlying error. Enables errors.Cause() traversal.
func (f *Failure) Cause() error {
	return f.Err
}

// AsFailure unwraps err down to a *Failure. Returns nil if the chain does not
// contain one, which the pipeline treats as a fatal run-level error.
func AsFailure(err error) *Failure {
	for err != nil {
		if f, ok := err.(*Failure); ok {
			return f
		}
		cause, ok := err.(interface{ Cause() error })
		if !ok {
			break
		}
		err = cause.Cause()
	}
	return nil
}

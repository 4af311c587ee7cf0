package worker

import (
	"errors"
	"fmt"
)

var (
	ErrSyncAborted      = errors.New("sync aborted")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrAuthFailure      = errors.New("auth failure")
	ErrSyncInProgress   = errors.New("sync already in progress")
)

// SyncAbortedError is returned when a pass stops before touching any entry.
// Reason is ErrNotAuthenticated or ErrAuthFailure.
type SyncAbortedError struct {
	Reason error
	Err    error
}

func (e *SyncAbortedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %v: %v", ErrSyncAborted, e.Reason, e.Err)
	}
	return fmt.Sprintf("%v: %v", ErrSyncAborted, e.Reason)
}

func (e *SyncAbortedError) Unwrap() []error {
	errs := []error{ErrSyncAborted, e.Reason}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

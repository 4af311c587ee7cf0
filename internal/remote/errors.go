package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteRejected means the service answered but declined the request.
	ErrRemoteRejected = errors.New("remote rejected request")
	// ErrNetworkUnavailable means the request never got an answer.
	ErrNetworkUnavailable = errors.New("network unavailable")
)

// RemoteError carries a non-2xx answer from the booking API.
type RemoteError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: http %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: http %d", e.Operation, e.StatusCode)
}

func (e *RemoteError) Unwrap() error {
	return ErrRemoteRejected
}

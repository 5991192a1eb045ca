package authclient

import (
	"errors"
	"fmt"
)

// Termination reasons.
var (
	ErrNoRefreshCredential    = errors.New("authclient: no refresh credential")
	ErrRenewalRejected        = errors.New("authclient: renewal rejected")
	ErrRenewalTransport       = errors.New("authclient: renewal transport failure")
	ErrRetryStillUnauthorized = errors.New("authclient: retry still unauthorized")
)

// ErrNoRenewer is the termination cause for a client built without a Renewer.
var ErrNoRenewer = errors.New("authclient: no renewer configured")

// TerminationError describes why a session ended. Reason is one of the termination sentinels;
// Err carries the underlying cause when there is one.
type TerminationError struct {
	Reason error
	Err    error
}

func (e *TerminationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("session terminated: %v", e.Reason)
	}
	return fmt.Sprintf("session terminated: %v: %v", e.Reason, e.Err)
}

func (e *TerminationError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Reason != nil {
		out = append(out, e.Reason)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

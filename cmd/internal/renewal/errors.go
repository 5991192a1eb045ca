package renewal

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected means the identity service refused the refresh credential.
	ErrRejected = errors.New("renewal: refresh credential rejected")
	// ErrTransport means the reissue endpoint could not be reached.
	ErrTransport = errors.New("renewal: reissue transport failure")
	// ErrEmptyCredential means the reissue succeeded without an access credential.
	ErrEmptyCredential = errors.New("renewal: reissue returned no access credential")
	// ErrNoReissuer is returned by a Coordinator built without a Reissuer.
	ErrNoReissuer = errors.New("renewal: no reissuer configured")
)

// TransportError wraps a network failure reaching the reissue endpoint.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	if e == nil || e.Err == nil {
		return ErrTransport.Error()
	}
	return fmt.Sprintf("%s: %v", ErrTransport.Error(), e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// UnexpectedStatusError is returned when the reissue endpoint answers with a status other
// than 200 or 401.
type UnexpectedStatusError struct {
	StatusCode int
	Code       string
}

func (e *UnexpectedStatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("renewal: unexpected reissue status %d (%s)", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("renewal: unexpected reissue status %d", e.StatusCode)
}

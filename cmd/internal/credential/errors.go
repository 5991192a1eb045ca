package credential

import "errors"

var (
	ErrUnknownNamespace  = errors.New("credential: unknown namespace")
	ErrInvalidCookieName = errors.New("credential: invalid cookie name")
	ErrInvalidSameSite   = errors.New("credential: invalid samesite mode")
	ErrInvalidTTL        = errors.New("credential: access ttl must be positive and shorter than refresh ttl")
	ErrInvalidBaseURL    = errors.New("credential: invalid base url")
)

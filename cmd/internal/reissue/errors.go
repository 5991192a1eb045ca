package reissue

import "errors"

var (
	// ErrUpstreamUnavailable wraps transport failures reaching the identity service.
	ErrUpstreamUnavailable = errors.New("reissue: upstream unavailable")
	// ErrNoUpstream is returned when no upstream base URL is configured.
	ErrNoUpstream = errors.New("reissue: upstream base url not configured")
	// ErrReplayMiss is returned by ReplayCache.Get when nothing is cached.
	ErrReplayMiss = errors.New("reissue: replay miss")
)

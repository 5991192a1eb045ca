package authclient

import (
	"context"
	"net/http"
)

type retryKey struct{}

// withRetried marks ctx as carrying the one permitted replay of a request.
func withRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retryKey{}, true)
}

// IsRetry reports whether req is the replay issued after a renewal.
func IsRetry(req *http.Request) bool {
	if req == nil {
		return false
	}
	v, _ := req.Context().Value(retryKey{}).(bool)
	return v
}

package reissue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"workfolio/cmd/internal/credential"
)

const maxUpstreamBody = 1 << 20

// Tokens is the identity service's success body.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Result is one upstream exchange as received.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Tokens is set only for a 200 carrying an access credential.
	Tokens *Tokens
	// Took is the upstream round trip; zero for replays.
	Took time.Duration
	// Replayed marks a result served from the replay cache.
	Replayed bool
}

// Renewed reports whether the exchange produced a new access credential.
func (r Result) Renewed() bool {
	return r.Tokens != nil && r.Tokens.AccessToken != ""
}

// Upstream exchanges credentials with the identity service.
type Upstream interface {
	Exchange(ctx context.Context, ns credential.Namespace, pair credential.Pair) (Result, error)
}

// HTTPUpstream calls the identity service with a raw http.Client.
type HTTPUpstream struct {
	client *http.Client
	cfg    Config
}

// NewHTTPUpstream returns an upstream client. A nil client gets one with cfg.UpstreamTimeout.
func NewHTTPUpstream(client *http.Client, cfg Config) *HTTPUpstream {
	cfg.normalize()
	if client == nil {
		client = &http.Client{Timeout: cfg.UpstreamTimeout}
	}
	return &HTTPUpstream{client: client, cfg: cfg}
}

// Exchange performs GET {base}{path} with the access credential as bearer and the refresh
// credential in the refresh header. Transport failures wrap ErrUpstreamUnavailable.
func (u *HTTPUpstream) Exchange(ctx context.Context, ns credential.Namespace, pair credential.Pair) (Result, error) {
	if u.cfg.UpstreamBaseURL == "" {
		return Result{}, ErrNoUpstream
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.cfg.UpstreamBaseURL+u.cfg.UpstreamPath(ns), nil)
	if err != nil {
		return Result{}, fmt.Errorf("reissue: build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if pair.Access != "" {
		req.Header.Set("Authorization", "Bearer "+pair.Access)
	}
	req.Header.Set(u.cfg.RefreshHeader, pair.Refresh)

	start := time.Now()
	res, err := u.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxUpstreamBody))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read body: %v", ErrUpstreamUnavailable, err)
	}

	out := Result{
		StatusCode: res.StatusCode,
		Header:     res.Header.Clone(),
		Body:       body,
		Took:       time.Since(start),
	}
	if res.StatusCode == http.StatusOK {
		var tok Tokens
		if json.Unmarshal(body, &tok) == nil {
			tok.AccessToken = strings.TrimSpace(tok.AccessToken)
			tok.RefreshToken = strings.TrimSpace(tok.RefreshToken)
			if tok.AccessToken != "" {
				out.Tokens = &tok
			}
		}
	}
	return out, nil
}

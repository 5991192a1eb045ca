package authclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"workfolio/cmd/internal/events"
	"workfolio/cmd/internal/renewal"
)

const maxDrainBytes = 64 << 10

// Renewer yields a renewed access credential, sharing one attempt among concurrent callers.
type Renewer interface {
	Renew(ctx context.Context) (renewal.Credential, error)
}

// Presence reports whether the credential store holds a refresh credential.
type Presence interface {
	HasRefresh() bool
}

// Client is the intercepted request primitive for one credential namespace.
type Client struct {
	raw        *http.Client
	renewer    Renewer
	presence   Presence
	terminator *Terminator
	signals    Publisher
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithCompletionSignal publishes events.CredentialsRenewed after a replay answered 2xx.
func WithCompletionSignal(p Publisher) Option {
	return func(c *Client) { c.signals = p }
}

// NewClient wires an intercepted client. raw must be the same client the renewer's reissue
// call uses, so its cookie jar sees the rewritten credentials.
func NewClient(raw *http.Client, renewer Renewer, presence Presence, terminator *Terminator, opts ...Option) *Client {
	if raw == nil {
		raw = http.DefaultClient
	}
	c := &Client{
		raw:        raw,
		renewer:    renewer,
		presence:   presence,
		terminator: terminator,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Raw returns the un-intercepted client.
func (c *Client) Raw() *http.Client { return c.raw }

// Terminator returns the session termination handler.
func (c *Client) Terminator() *Terminator { return c.terminator }

// Do sends req. Non-401 responses and transport errors are returned untouched. On 401 the
// request is replayed at most once after a renewal; when that is not possible the session is
// terminated and the original 401 is returned.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("authclient: nil request")
	}
	if err := ensureReplayableBody(req); err != nil {
		return nil, err
	}

	res, err := c.raw.Do(req)
	if err != nil || res.StatusCode != http.StatusUnauthorized {
		return res, err
	}
	ctx := req.Context()

	if IsRetry(req) {
		c.terminator.Terminate(ctx, ErrRetryStillUnauthorized, nil)
		return res, nil
	}

	if c.presence == nil || !c.presence.HasRefresh() {
		c.terminator.Terminate(ctx, ErrNoRefreshCredential, nil)
		return res, nil
	}

	if c.renewer == nil {
		c.terminator.Terminate(ctx, ErrRenewalRejected, ErrNoRenewer)
		return res, nil
	}
	cred, rerr := c.renewer.Renew(ctx)
	if rerr != nil {
		reason := ErrRenewalRejected
		if errors.Is(rerr, renewal.ErrTransport) {
			reason = ErrRenewalTransport
		}
		c.terminator.Terminate(ctx, reason, rerr)
		return res, nil
	}

	retry, err := cloneForRetry(req, cred.Access)
	if err != nil {
		// The original response is still the best answer for the caller.
		c.log.Error("authclient.retry.build.fail", "method", req.Method, "path", req.URL.Path, "err", err)
		return res, nil
	}
	drainAndClose(res.Body)

	c.log.Debug("authclient.retry",
		"method", req.Method,
		"path", req.URL.Path,
		"attempt_id", cred.AttemptID,
	)

	out, err := c.Do(retry)
	if err == nil && isSuccess(out.StatusCode) && c.signals != nil {
		c.signals.Publish(events.CredentialsRenewed)
	}
	return out, err
}

// Get is a convenience wrapper around Do.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func ensureReplayableBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	buf, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("authclient: buffer request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(buf))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}
	req.ContentLength = int64(len(buf))
	return nil
}

func cloneForRetry(req *http.Request, access string) (*http.Request, error) {
	retry := req.Clone(withRetried(req.Context()))
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("authclient: replay request body: %w", err)
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", "Bearer "+access)
	// Cookies attached to the first send are stale; the jar re-adds the rewritten ones.
	retry.Header.Del("Cookie")
	return retry, nil
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxDrainBytes))
	_ = body.Close()
}

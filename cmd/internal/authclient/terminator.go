package authclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"workfolio/cmd/internal/events"
)

// Navigator sends the user to the login entry point.
type Navigator interface {
	Navigate(ctx context.Context, loginURL string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, loginURL string)

func (f NavigatorFunc) Navigate(ctx context.Context, loginURL string) { f(ctx, loginURL) }

// Clearer drops the client's view of the credential store.
type Clearer interface {
	Clear()
}

// Publisher broadcasts completion signals.
type Publisher interface {
	Publish(name string)
}

// Terminator ends a session at most once until Reset.
type Terminator struct {
	store    Clearer
	signals  Publisher
	nav      Navigator
	loginURL string
	log      *slog.Logger

	mu         sync.Mutex
	terminated bool
	last       *TerminationError
}

// TerminatorOption configures a Terminator.
type TerminatorOption func(*Terminator)

// WithTerminatorLogger sets the logger.
func WithTerminatorLogger(log *slog.Logger) TerminatorOption {
	return func(t *Terminator) {
		if log != nil {
			t.log = log
		}
	}
}

// WithSignals publishes events.SessionTerminated on termination.
func WithSignals(p Publisher) TerminatorOption {
	return func(t *Terminator) { t.signals = p }
}

// WithStore clears store on termination.
func WithStore(store Clearer) TerminatorOption {
	return func(t *Terminator) { t.store = store }
}

// NewTerminator returns a Terminator navigating to loginURL.
func NewTerminator(nav Navigator, loginURL string, opts ...TerminatorOption) *Terminator {
	t := &Terminator{
		nav:      nav,
		loginURL: loginURL,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Terminate ends the session. Only the first call after construction or Reset has any effect;
// it reports whether this call was that one.
func (t *Terminator) Terminate(ctx context.Context, reason, cause error) bool {
	if t == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	t.mu.Lock()
	if t.terminated {
		t.mu.Unlock()
		return false
	}
	t.terminated = true
	t.last = &TerminationError{Reason: reason, Err: cause}
	te := t.last
	t.mu.Unlock()

	t.log.Warn("session.terminate", "reason", reasonCode(reason), "err", te)

	if t.store != nil {
		t.store.Clear()
	}
	if t.signals != nil {
		t.signals.Publish(events.SessionTerminated)
	}
	if t.nav != nil {
		t.nav.Navigate(ctx, t.loginURL)
	}
	return true
}

// Terminated reports whether the session has ended.
func (t *Terminator) Terminated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminated
}

// Err returns the termination that ended the session, or nil.
func (t *Terminator) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return nil
	}
	return t.last
}

// Reset re-arms the Terminator after a new login.
func (t *Terminator) Reset() {
	t.mu.Lock()
	t.terminated = false
	t.last = nil
	t.mu.Unlock()
}

func reasonCode(reason error) string {
	switch {
	case errors.Is(reason, ErrNoRefreshCredential):
		return "no_refresh_credential"
	case errors.Is(reason, ErrRenewalRejected):
		return "renewal_rejected"
	case errors.Is(reason, ErrRenewalTransport):
		return "renewal_transport_failure"
	case errors.Is(reason, ErrRetryStillUnauthorized):
		return "retry_still_unauthorized"
	default:
		return "unknown"
	}
}

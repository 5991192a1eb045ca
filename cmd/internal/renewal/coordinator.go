package renewal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"workfolio/cmd/internal/ids"
)

// Credential is a renewed access credential.
type Credential struct {
	Access    string
	AttemptID string
	IssuedAt  time.Time
}

// Reissuer performs one reissue exchange. It must not go through the intercepted client.
type Reissuer interface {
	Reissue(ctx context.Context) (string, error)
}

// ReissuerFunc adapts a function to Reissuer.
type ReissuerFunc func(ctx context.Context) (string, error)

func (f ReissuerFunc) Reissue(ctx context.Context) (string, error) { return f(ctx) }

// Observer is notified once per settled attempt.
type Observer interface {
	RenewalSettled(namespace string, err error, took time.Duration, waiters int)
}

// Stats counts coordinator activity since construction.
type Stats struct {
	Started uint64
	Joined  uint64
}

type attempt struct {
	id      string
	started time.Time
	done    chan struct{}
	waiters int

	cred Credential
	err  error
}

// Coordinator serializes renewals so at most one attempt is in flight.
type Coordinator struct {
	namespace string
	reissuer  Reissuer
	log       *slog.Logger
	observer  Observer
	now       func() time.Time

	mu      sync.Mutex
	current *attempt
	stats   Stats
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// WithObserver registers an observer for settled attempts.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

// WithNamespace labels logs and observations.
func WithNamespace(ns string) Option {
	return func(c *Coordinator) { c.namespace = ns }
}

// NewCoordinator returns an idle coordinator.
func NewCoordinator(r Reissuer, opts ...Option) *Coordinator {
	c := &Coordinator{
		reissuer: r,
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Renew returns a fresh access credential, starting an attempt when none is in flight and
// joining the current one otherwise. All callers of one attempt get the same outcome.
//
// ctx is not used to abandon the wait; only its values reach the Reissuer.
func (c *Coordinator) Renew(ctx context.Context) (Credential, error) {
	if c == nil || c.reissuer == nil {
		return Credential{}, ErrNoReissuer
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if a := c.current; a != nil {
		a.waiters++
		c.stats.Joined++
		c.mu.Unlock()

		<-a.done
		return a.cred, a.err
	}

	a := &attempt{
		id:      ids.NewOrEmpty(c.now()),
		started: c.now(),
		done:    make(chan struct{}),
		waiters: 1,
	}
	c.current = a
	c.stats.Started++
	c.mu.Unlock()

	c.log.Debug("renewal.start", "namespace", c.namespace, "attempt_id", a.id)

	go c.run(context.WithoutCancel(ctx), a)

	<-a.done
	return a.cred, a.err
}

func (c *Coordinator) run(ctx context.Context, a *attempt) {
	var (
		access string
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errors.New("renewal: reissuer panicked")
			}
		}()
		access, err = c.reissuer.Reissue(ctx)
	}()
	if err == nil && access == "" {
		err = ErrEmptyCredential
	}

	c.mu.Lock()
	if err != nil {
		a.err = err
	} else {
		a.cred = Credential{Access: access, AttemptID: a.id, IssuedAt: c.now()}
	}
	waiters := a.waiters
	if c.current == a {
		c.current = nil
	}
	c.mu.Unlock()

	close(a.done)

	took := c.now().Sub(a.started)
	if err != nil {
		c.log.Warn("renewal.settle",
			"namespace", c.namespace,
			"attempt_id", a.id,
			"waiters", waiters,
			"duration_ms", took.Milliseconds(),
			"err", err,
		)
	} else {
		c.log.Info("renewal.settle",
			"namespace", c.namespace,
			"attempt_id", a.id,
			"waiters", waiters,
			"duration_ms", took.Milliseconds(),
		)
	}
	if c.observer != nil {
		c.observer.RenewalSettled(c.namespace, err, took, waiters)
	}
}

// InFlight reports whether an attempt is currently running.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Stats returns a snapshot of the coordinator counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

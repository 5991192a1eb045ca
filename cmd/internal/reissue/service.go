package reissue

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"workfolio/cmd/internal/credential"
	"workfolio/cmd/security/token"

	"golang.org/x/sync/singleflight"
)

// Service deduplicates exchanges of the same refresh credential.
type Service struct {
	upstream Upstream
	replay   ReplayCache
	window   time.Duration
	hasher   token.Hasher
	log      *slog.Logger

	group singleflight.Group
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithReplayCache enables cross-instance replay for window.
func WithReplayCache(c ReplayCache, window time.Duration) ServiceOption {
	return func(s *Service) {
		s.replay = c
		s.window = window
	}
}

// WithHasher sets the refresh credential hasher used for keys.
func WithHasher(h token.Hasher) ServiceOption {
	return func(s *Service) { s.hasher = h }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService wraps upstream.
func NewService(upstream Upstream, opts ...ServiceOption) *Service {
	s := &Service{upstream: upstream, log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Hash returns the digest used to identify refresh credentials in keys, logs and audit rows.
func (s *Service) Hash(refresh string) string {
	return s.hasher.Hex(refresh)
}

// Exchange returns the upstream result for pair, sharing one upstream call among concurrent
// callers that present the same refresh credential.
func (s *Service) Exchange(ctx context.Context, ns credential.Namespace, pair credential.Pair) (Result, error) {
	key := string(ns) + ":" + s.Hash(pair.Refresh)

	if s.replay != nil && s.window > 0 {
		tok, err := s.replay.Get(ctx, key)
		switch {
		case err == nil:
			return Result{StatusCode: http.StatusOK, Tokens: &tok, Replayed: true}, nil
		case !errors.Is(err, ErrReplayMiss):
			s.log.Warn("auth.reissue.replay.get.fail", "namespace", ns, "err", err)
		}
	}

	// The upstream call outlives any single caller.
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		res, err := s.upstream.Exchange(detached, ns, pair)
		if err != nil {
			return Result{}, err
		}
		if res.Renewed() && s.replay != nil && s.window > 0 {
			if perr := s.replay.Put(detached, key, *res.Tokens, s.window); perr != nil {
				s.log.Warn("auth.reissue.replay.put.fail", "namespace", ns, "err", perr)
			}
		}
		return res, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

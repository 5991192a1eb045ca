package reissue

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"workfolio/cmd/internal/audit"
	"workfolio/cmd/internal/credential"
)

// Outcome labels for metrics and logs.
const (
	OutcomeSuccess        = "success"
	OutcomeRejected       = "rejected"
	OutcomePassthrough    = "passthrough"
	OutcomeUnavailable    = "upstream_unavailable"
	OutcomeRefreshMissing = "refresh_missing"
	OutcomeCSRFInvalid    = "csrf_invalid"
	OutcomeRateLimited    = "rate_limited"
)

// Observer receives per-request measurements.
type Observer interface {
	ReissueOutcome(namespace, outcome string)
	UpstreamLatency(namespace string, d time.Duration)
}

// Notifier tells other open sessions about credential changes. Hashes identify refresh
// credentials.
type Notifier interface {
	Renewed(ns credential.Namespace, oldHash, newHash string)
	Terminated(ns credential.Namespace, hash string)
}

type nopObserver struct{}

func (nopObserver) ReissueOutcome(string, string)          {}
func (nopObserver) UpstreamLatency(string, time.Duration) {}

type nopNotifier struct{}

func (nopNotifier) Renewed(credential.Namespace, string, string) {}
func (nopNotifier) Terminated(credential.Namespace, string)      {}

// Handler serves the reissue and logout routes for every configured namespace.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	service  *Service
	cookies  map[credential.Namespace]*credential.Cookies
	audit    audit.Sink
	observer Observer
	notifier Notifier
	throttle FailureCounter
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithAudit records outcomes to sink.
func WithAudit(sink audit.Sink) HandlerOption {
	return func(h *Handler) {
		if sink != nil {
			h.audit = sink
		}
	}
}

// WithObserver reports outcomes and latency.
func WithObserver(o Observer) HandlerOption {
	return func(h *Handler) {
		if o != nil {
			h.observer = o
		}
	}
}

// WithNotifier announces renewals and terminations.
func WithNotifier(n Notifier) HandlerOption {
	return func(h *Handler) {
		if n != nil {
			h.notifier = n
		}
	}
}

// NewHandler builds a handler serving one route pair per cookie writer.
func NewHandler(log *slog.Logger, cfg Config, service *Service, cookies []*credential.Cookies, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if service == nil {
		return nil, errors.New("reissue: nil service")
	}
	cfg.normalize()

	h := &Handler{
		log:      log,
		cfg:      cfg,
		service:  service,
		cookies:  make(map[credential.Namespace]*credential.Cookies, len(cookies)),
		audit:    audit.NopSink{},
		observer: nopObserver{},
		notifier: nopNotifier{},
	}
	for _, c := range cookies {
		if c == nil {
			continue
		}
		h.cookies[c.Namespace()] = c
	}
	if len(h.cookies) == 0 {
		return nil, errors.New("reissue: no credential namespaces")
	}

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// RoutePrefix returns the portal API prefix of ns.
func RoutePrefix(ns credential.Namespace) string {
	if ns == credential.NamespaceAdmin {
		return "/api/admin/auth"
	}
	return "/api/auth"
}

// Register wires the reissue and logout routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	for ns, c := range h.cookies {
		prefix := RoutePrefix(ns)
		mux.HandleFunc(prefix+"/reissue", h.reissue(ns, c))
		mux.HandleFunc(prefix+"/logout", h.logout(ns, c))
	}
}

func (h *Handler) reissue(ns credential.Namespace, cookies *credential.Cookies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		ctx := r.Context()
		ip := clientIP(r, h.cfg.TrustProxy)
		ua := strings.TrimSpace(r.UserAgent())

		blocked, retryAfter, err := h.checkIPThrottle(ctx, ip, time.Now().UTC())
		if err != nil {
			// Fail open when the audit store cannot answer.
			h.log.Warn("auth.reissue.throttle.fail", "namespace", ns, "err", err)
		}
		if blocked {
			h.record(ctx, ns, audit.ActionReissueRateLimited, "", ip, ua, map[string]any{
				"retry_after_s": int64(retryAfter.Seconds()),
			})
			h.observer.ReissueOutcome(string(ns), OutcomeRateLimited)
			writeRateLimited(w, retryAfter)
			return
		}

		pair, ok := cookies.Read(r)
		if !ok {
			h.record(ctx, ns, audit.ActionReissueRefreshMissing, "", ip, ua, nil)
			h.observer.ReissueOutcome(string(ns), OutcomeRefreshMissing)
			writeError(w, http.StatusUnauthorized, "refresh_missing", "refresh credential missing")
			return
		}
		oldHash := h.service.Hash(pair.Refresh)

		if h.cfg.RequireCSRF && !cookies.MarkerValid(r, r.Header.Get(h.cfg.CSRFHeader)) {
			h.record(ctx, ns, audit.ActionReissueCSRFInvalid, oldHash, ip, ua, nil)
			h.observer.ReissueOutcome(string(ns), OutcomeCSRFInvalid)
			writeError(w, http.StatusForbidden, "csrf_invalid", "missing or invalid csrf token")
			return
		}

		res, err := h.service.Exchange(ctx, ns, pair)
		if err != nil {
			if ctx.Err() != nil {
				// Client went away; nothing to answer.
				return
			}
			h.log.Warn("auth.reissue.upstream.fail", "namespace", ns, "refresh_hash", oldHash, "err", err)
			h.record(ctx, ns, audit.ActionReissueFail, oldHash, ip, ua, map[string]any{"reason": "upstream_unavailable"})
			h.observer.ReissueOutcome(string(ns), OutcomeUnavailable)
			writeError(w, http.StatusBadGateway, "upstream_unavailable", "identity service unavailable")
			return
		}
		if !res.Replayed {
			h.observer.UpstreamLatency(string(ns), res.Took)
		}

		if !res.Renewed() {
			if res.StatusCode == http.StatusUnauthorized {
				h.log.Info("auth.reissue.rejected", "namespace", ns, "refresh_hash", oldHash)
				h.record(ctx, ns, audit.ActionReissueRejected, oldHash, ip, ua, nil)
				h.observer.ReissueOutcome(string(ns), OutcomeRejected)
				h.notifier.Terminated(ns, oldHash)
			} else {
				h.log.Warn("auth.reissue.passthrough", "namespace", ns, "status", res.StatusCode)
				h.record(ctx, ns, audit.ActionReissueFail, oldHash, ip, ua, map[string]any{"upstream_status": res.StatusCode})
				h.observer.ReissueOutcome(string(ns), OutcomePassthrough)
			}
			writePassthrough(w, res)
			return
		}

		issued := credential.Issued{Access: res.Tokens.AccessToken, Refresh: res.Tokens.RefreshToken}
		if err := cookies.Write(w, issued); err != nil {
			h.log.Error("auth.reissue.cookie.fail", "namespace", ns, "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}

		newHash := oldHash
		if issued.Refresh != "" {
			newHash = h.service.Hash(issued.Refresh)
		}
		h.log.Info("auth.reissue.success",
			"namespace", ns,
			"refresh_hash", oldHash,
			"rotated", newHash != oldHash,
			"replayed", res.Replayed,
		)
		h.record(ctx, ns, audit.ActionReissueSuccess, oldHash, ip, ua, map[string]any{
			"rotated":  newHash != oldHash,
			"replayed": res.Replayed,
		})
		h.observer.ReissueOutcome(string(ns), OutcomeSuccess)
		h.notifier.Renewed(ns, oldHash, newHash)

		writeJSON(w, http.StatusOK, reissueResponse{AccessCredential: issued.Access})
	}
}

func (h *Handler) logout(ns credential.Namespace, cookies *credential.Cookies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		pair, ok := cookies.Read(r)
		if ok && h.cfg.RequireCSRF && !cookies.MarkerValid(r, r.Header.Get(h.cfg.CSRFHeader)) {
			writeError(w, http.StatusForbidden, "csrf_invalid", "missing or invalid csrf token")
			return
		}

		cookies.Clear(w)

		if ok {
			hash := h.service.Hash(pair.Refresh)
			h.record(r.Context(), ns, audit.ActionLogout, hash, clientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()), nil)
			h.notifier.Terminated(ns, hash)
		}
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) record(ctx context.Context, ns credential.Namespace, action, hash string, ip net.IP, ua string, meta map[string]any) {
	err := h.audit.Record(ctx, audit.Entry{
		Action:      action,
		Namespace:   string(ns),
		RefreshHash: hash,
		IP:          ip,
		UserAgent:   ua,
		Meta:        meta,
		At:          time.Now().UTC(),
	})
	if err != nil {
		h.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

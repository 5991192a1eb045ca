package reissue

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"workfolio/cmd/internal/audit"
)

// FailureCounter counts audited actions per client address.
type FailureCounter interface {
	CountByIP(ctx context.Context, actions []string, ip net.IP, since time.Time) (int, error)
}

var throttledActions = []string{audit.ActionReissueRejected, audit.ActionReissueCSRFInvalid}

// WithThrottle enables the per-address failure throttle, counting from c.
func WithThrottle(c FailureCounter) HandlerOption {
	return func(h *Handler) {
		if c != nil {
			h.throttle = c
		}
	}
}

func (h *Handler) checkIPThrottle(ctx context.Context, ip net.IP, now time.Time) (bool, time.Duration, error) {
	if h.throttle == nil || ip == nil || h.cfg.IPMaxFailures <= 0 {
		return false, 0, nil
	}
	count, err := h.throttle.CountByIP(ctx, throttledActions, ip, now.Add(-h.cfg.IPWindow))
	if err != nil {
		return false, 0, err
	}
	if count >= h.cfg.IPMaxFailures {
		return true, h.cfg.IPWindow, nil
	}
	return false, 0, nil
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many failed attempts")
}

// Package audit records reissue and logout outcomes.
package audit

import (
	"context"
	"net"
	"time"
)

// Actions recorded by the portal.
const (
	ActionReissueSuccess        = "auth.reissue.success"
	ActionReissueRejected       = "auth.reissue.rejected"
	ActionReissueFail           = "auth.reissue.fail"
	ActionReissueRefreshMissing = "auth.reissue.refresh_missing"
	ActionReissueCSRFInvalid    = "auth.reissue.csrf_invalid"
	ActionReissueRateLimited    = "auth.reissue.rate_limited"
	ActionLogout                = "auth.logout"
)

// Entry is one audit row. RefreshHash is a digest, never the credential itself.
type Entry struct {
	ID          string
	Action      string
	Namespace   string
	RefreshHash string
	IP          net.IP
	UserAgent   string
	Meta        map[string]any
	At          time.Time
}

// Sink persists audit entries.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// NopSink discards entries. It is used when no database is configured.
type NopSink struct{}

func (NopSink) Record(context.Context, Entry) error { return nil }

package renewal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	DefaultCSRFHeader = "X-CSRF-Token"

	maxReissueBody = 1 << 20
)

// HTTPReissuer calls the portal reissue endpoint with a raw client. The client's cookie jar
// carries the credential cookies; HTTPReissuer only adds the CSRF header.
type HTTPReissuer struct {
	client     *http.Client
	endpoint   string
	csrfHeader string
	marker     func() string
}

// NewHTTPReissuer returns a Reissuer for endpoint. marker supplies the presence marker sent
// as the CSRF header; it may be nil when the endpoint does not require one.
func NewHTTPReissuer(client *http.Client, endpoint string, marker func() string) *HTTPReissuer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPReissuer{
		client:     client,
		endpoint:   strings.TrimSpace(endpoint),
		csrfHeader: DefaultCSRFHeader,
		marker:     marker,
	}
}

// WithCSRFHeader overrides the CSRF header name.
func (r *HTTPReissuer) WithCSRFHeader(name string) *HTTPReissuer {
	if name = strings.TrimSpace(name); name != "" {
		r.csrfHeader = name
	}
	return r
}

type reissueResponse struct {
	AccessCredential string `json:"accessCredential"`
}

type errorEnvelope struct {
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

// Reissue performs one exchange and returns the new access credential.
func (r *HTTPReissuer) Reissue(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build reissue request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.marker != nil {
		if m := r.marker(); m != "" {
			req.Header.Set(r.csrfHeader, m)
		}
	}

	res, err := r.client.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer func() { _ = res.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxReissueBody))
	if err != nil {
		return "", &TransportError{Err: err}
	}

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return "", ErrRejected
	default:
		var env errorEnvelope
		_ = json.Unmarshal(body, &env)
		return "", &UnexpectedStatusError{StatusCode: res.StatusCode, Code: env.Error.Code}
	}

	var out reissueResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", errors.Join(ErrEmptyCredential, err)
	}
	access := strings.TrimSpace(out.AccessCredential)
	if access == "" {
		return "", ErrEmptyCredential
	}
	return access, nil
}

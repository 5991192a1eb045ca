package renewal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPReissuer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantAcc string
		wantErr error
	}{
		{name: "ok", status: http.StatusOK, body: `{"accessCredential":"acc-9"}`, wantAcc: "acc-9"},
		{name: "rejected", status: http.StatusUnauthorized, body: `{"error":{"code":"unauthorized"}}`, wantErr: ErrRejected},
		{name: "empty", status: http.StatusOK, body: `{}`, wantErr: ErrEmptyCredential},
		{name: "not json", status: http.StatusOK, body: `nope`, wantErr: ErrEmptyCredential},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get(DefaultCSRFHeader); got != "marker-1" {
					t.Errorf("csrf header=%q want marker-1", got)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			r := NewHTTPReissuer(srv.Client(), srv.URL+"/api/auth/reissue", func() string { return "marker-1" })
			acc, err := r.Reissue(context.Background())
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err=%v want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Reissue: %v", err)
			}
			if acc != tc.wantAcc {
				t.Fatalf("access=%q want %q", acc, tc.wantAcc)
			}
		})
	}
}

func TestHTTPReissuer_UnexpectedStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"csrf_invalid","message":"x"}}`))
	}))
	defer srv.Close()

	_, err := NewHTTPReissuer(srv.Client(), srv.URL, nil).Reissue(context.Background())
	var se *UnexpectedStatusError
	if !errors.As(err, &se) {
		t.Fatalf("err=%v want UnexpectedStatusError", err)
	}
	if se.StatusCode != http.StatusForbidden || se.Code != "csrf_invalid" {
		t.Fatalf("unexpected error %+v", se)
	}
}

func TestHTTPReissuer_TransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPReissuer(&http.Client{}, url, nil).Reissue(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("err=%v want ErrTransport", err)
	}
	var te *TransportError
	if !errors.As(err, &te) || te.Err == nil {
		t.Fatalf("expected wrapped transport cause, got %v", err)
	}
}

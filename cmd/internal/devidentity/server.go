package devidentity

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"workfolio/cmd/internal/credential"
)

const maxIssueBody = 4 << 10

// Server exposes an Issuer over HTTP.
type Server struct {
	log           *slog.Logger
	issuer        *Issuer
	refreshHeader string

	reissues atomic.Int64
}

// NewServer returns the HTTP face of issuer.
func NewServer(log *slog.Logger, issuer *Issuer, cfg Config) *Server {
	if log == nil {
		log = slog.Default()
	}
	cfg.normalize()
	return &Server{log: log, issuer: issuer, refreshHeader: cfg.RefreshHeader}
}

// Reissues returns how many reissue requests the server has answered.
func (s *Server) Reissues() int64 { return s.reissues.Load() }

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /dev/issue", s.handleIssue)
	mux.HandleFunc("GET /auth/reissue", s.handleReissue(credential.NamespaceUser))
	mux.HandleFunc("GET /admin/auth/reissue", s.handleReissue(credential.NamespaceAdmin))
	mux.HandleFunc("/api/", s.handleResource)
	return mux
}

type issueRequest struct {
	Subject   string `json:"subject"`
	Namespace string `json:"namespace"`
	Expired   bool   `json:"expired"`
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIssueBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	ns := credential.Namespace(strings.TrimSpace(req.Namespace))
	if ns == "" {
		ns = credential.NamespaceUser
	}

	pair, err := s.issuer.Issue(ns, strings.TrimSpace(req.Subject), req.Expired)
	switch {
	case errors.Is(err, ErrUnknownNamespace), errors.Is(err, ErrMissingSubject):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case err != nil:
		s.log.Error("dev.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	s.log.Info("dev.issue", "namespace", ns, "subject", req.Subject, "expired", req.Expired)
	writeJSON(w, http.StatusCreated, pair)
}

func (s *Server) handleReissue(ns credential.Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.reissues.Add(1)

		refresh := strings.TrimSpace(r.Header.Get(s.refreshHeader))
		if refresh == "" {
			unauthorized(w, "refresh_missing", "refresh credential required")
			return
		}

		pair, err := s.issuer.Rotate(ns, refresh)
		switch {
		case errors.Is(err, ErrUnknownRefresh), errors.Is(err, ErrWrongNamespace):
			s.log.Info("dev.reissue.rejected", "namespace", ns, "err", err)
			unauthorized(w, "refresh_invalid", "refresh credential is not valid")
			return
		case err != nil:
			s.log.Error("dev.reissue.fail", "namespace", ns, "err", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
			return
		}

		s.log.Info("dev.reissue", "namespace", ns)
		writeJSON(w, http.StatusOK, pair)
	}
}

type resourceResponse struct {
	Subject   string `json:"subject"`
	Namespace string `json:"namespace"`
	Path      string `json:"path"`
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	ns := credential.NamespaceUser
	if strings.HasPrefix(r.URL.Path, "/api/admin/") {
		ns = credential.NamespaceAdmin
	}

	access, ok := bearer(r)
	if !ok {
		unauthorized(w, "access_missing", "access credential required")
		return
	}
	claims, err := s.issuer.Verify(ns, access)
	if err != nil {
		unauthorized(w, "access_invalid", "access credential is not valid")
		return
	}

	writeJSON(w, http.StatusOK, resourceResponse{
		Subject:   claims.Subject,
		Namespace: claims.Namespace,
		Path:      r.URL.Path,
	})
}

func bearer(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}

func unauthorized(w http.ResponseWriter, code, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	writeError(w, http.StatusUnauthorized, code, msg)
}

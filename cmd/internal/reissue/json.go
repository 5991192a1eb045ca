package reissue

import (
	"encoding/json"
	"net/http"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

type reissueResponse struct {
	AccessCredential string `json:"accessCredential"`
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

// withheldHeaders never leave the portal on a relayed upstream answer. Set-Cookie would let
// the identity service write portal cookies; the rest are hop-by-hop or recomputed.
var withheldHeaders = map[string]struct{}{
	"Set-Cookie":         {},
	"Connection":         {},
	"Keep-Alive":         {},
	"Proxy-Connection":   {},
	"Proxy-Authenticate": {},
	"Te":                 {},
	"Trailer":            {},
	"Transfer-Encoding":  {},
	"Upgrade":            {},
	"Content-Length":     {},
}

func writePassthrough(w http.ResponseWriter, res Result) {
	for k, vv := range res.Header {
		if _, skip := withheldHeaders[http.CanonicalHeaderKey(k)]; skip {
			continue
		}
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(res.StatusCode)
	_, _ = w.Write(res.Body)
}

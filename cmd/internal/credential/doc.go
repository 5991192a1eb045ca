// Package credential is the portal's credential store.
//
// Each namespace (user, admin) holds two opaque credentials: a short-lived access credential
// and a long-lived refresh credential. Both live in HttpOnly cookies. A third, script-readable
// presence marker cookie is written alongside the refresh credential; it tells page code that a
// refresh credential exists without exposing its value and doubles as the CSRF double-submit
// token for the reissue call.
//
// Cookies is the server-side writer used by the reissue endpoint. JarView is the client-side
// view over an http.CookieJar, limited to what page code is allowed to see.
package credential

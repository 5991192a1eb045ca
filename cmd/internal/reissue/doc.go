// Package reissue implements the portal's reissue endpoint.
//
// The endpoint reads the credential pair from the namespace's cookies, exchanges it with the
// upstream identity service over a raw http.Client, and rewrites the cookies when the identity
// service issues a new access credential. Upstream 401s and any other non-success answer are
// passed through as received; the endpoint never renews on its own behalf.
//
// Concurrent exchanges of the same refresh credential on one instance share a single upstream
// call. With a ReplayCache configured, a completed exchange is also replayed to other instances
// for a short window so a rotating identity service does not see the old refresh credential
// twice.
package reissue

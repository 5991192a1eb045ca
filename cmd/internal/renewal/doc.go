// Package renewal coordinates access credential renewal for one credential namespace.
//
// A Coordinator owns at most one Renewal Attempt at a time. The first caller that needs a
// fresh access credential starts the attempt; every caller arriving while it is in flight
// joins it and receives the identical outcome. Once the attempt settles the Coordinator is
// idle again, so a later expiry starts a new attempt.
//
// The attempt runs on a context detached from any caller's cancellation, and waiters cannot
// stop waiting. Bound renewal time with the Timeout of the raw http.Client given to the
// Reissuer.
package renewal

// Package token hashes refresh credentials for server-side keys.
//
// The portal never keeps a refresh credential beyond one request. Whenever it needs a stable
// handle for one (exchange dedupe, replay cache keys, realtime subscriptions, audit rows) it
// uses the hash produced here.
//
// Modes:
//   - SHA-256(token) when no key is configured (dev).
//   - HMAC-SHA256(token, key) when PORTAL_TOKEN_HMAC_KEY is set. Required in production so a
//     leaked Redis snapshot or audit table cannot be matched against guessed tokens.
//
// Output is always 64 lowercase hex chars.
package token

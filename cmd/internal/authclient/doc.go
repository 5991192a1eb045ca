// Package authclient is the portal's authenticated request primitive.
//
// Client.Do sends a request as-is. When the response is 401 and the credential store still
// holds a refresh credential, it asks the namespace's renewal.Coordinator for a new access
// credential and replays the request once with it. A request that is already a replay is never
// renewed again. Any failure along that path ends the session through the Terminator.
//
// Client.Raw exposes the un-intercepted *http.Client; the reissue call itself goes through it
// so renewal can never recurse into renewal.
package authclient

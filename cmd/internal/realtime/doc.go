// Package realtime pushes credential events to open browser tabs.
//
// Each tab holds one WebSocket per credential namespace. The connection is filed under the
// hash of the refresh credential its cookies carried at upgrade time. When any tab's reissue
// succeeds, every connection filed under the old hash is told "auth.renewed" and refiled
// under the new hash; when the refresh credential is rejected or the user logs out, they are
// told "auth.terminated" and closed.
package realtime

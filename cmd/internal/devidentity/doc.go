// Package devidentity is a development identity service and resource API.
//
// It issues HS256 JWT access credentials and opaque, single-use refresh credentials, rotates
// them on reissue and guards /api/ resources with the access credential. It exists so the
// portal, the smoke tool and end-to-end tests have a real upstream to talk to; it is not an
// identity provider.
package devidentity

// Package auth guards the device-facing write endpoints.
//
// Authentication is a pluggable collaborator: the API layer calls an
// Authenticator with the incoming request and gets back nil or
// ErrUnauthorized. Three modes exist, selected by configuration:
//
//   - "secret": a shared secret presented via the X-Presence-Secret header
//     or an Authorization: Bearer token, compared in constant time.
//   - "jwt": HS256-signed JWT bearer tokens carrying the device key.
//   - "none": every request passes.
//
// The package deliberately knows nothing about routing or devices beyond
// the token's subject; callers decide which routes are protected.
package auth

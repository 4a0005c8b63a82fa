// Package api provides the HTTP REST API and WebSocket server for
// presence-core.
//
// It exposes the aggregate presence snapshot, per-device read and update
// endpoints, the device WebSocket session (long-connection reporting), and
// the frontend subscription feed. Mutating routes sit behind a pluggable
// auth.Authenticator.
//
// The server follows the same lifecycle pattern as the other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

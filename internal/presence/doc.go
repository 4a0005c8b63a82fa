// Package presence implements the device presence core: per-device live
// state with merge/replace update semantics, heartbeat-timeout offline
// detection, single-active-connection arbitration, change notification
// fan-out, and the aggregate status computed across all devices.
//
// The package is transport-agnostic. HTTP and WebSocket handlers in the
// api package drive Device and Manager; this package owns the state
// machine and its concurrency discipline.
//
// # Concurrency model
//
// Every state-mutating operation on one Device is serialised by a
// per-device mutex. Offline timer expiry routes through the same mutex
// and is guarded by a generation counter, so a timer that fires while a
// concurrent update is cancelling it can never mark the device offline.
// Change handlers run after the mutation has been committed and the
// mutex released; they observe a consistent post-mutation snapshot and
// never block the next update.
//
// Thread Safety: all exported methods on Device, Manager, HandlerList
// and Debouncer are safe for concurrent use from multiple goroutines.
package presence

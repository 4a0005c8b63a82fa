// Package history records presence transitions to SQLite.
//
// The recorder is an audit trail, not a persistence layer: rows are written
// when a device's derived status changes and are only ever read back for
// the history endpoint. Live device state is never restored from here; a
// restarted service comes up with every device offline.
package history

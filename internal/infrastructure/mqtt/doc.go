// Package mqtt announces presence over an MQTT broker.
//
// The announcer is publish-only: it mirrors the overall status and
// per-device status onto retained topics so home-automation systems can
// react to presence without polling the HTTP API.
//
// Topic layout (prefix configurable, default "presence"):
//
//	presence/status          service online/offline, retained, LWT-backed
//	presence/overall         aggregate status, retained
//	presence/device/{key}    per-device status document, retained
//
// The broker's Last Will and Testament marks the service itself offline if
// the process dies without a graceful shutdown.
package mqtt

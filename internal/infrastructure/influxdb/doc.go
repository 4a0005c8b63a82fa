// Package influxdb ships presence telemetry to InfluxDB v2.
//
// Two measurements are written, both on device change:
//
//   - device_status: one point per changed device, with the status encoded
//     as a numeric gauge so dashboards can graph availability over time.
//   - presence_summary: aggregate online/idle/offline counts plus the
//     overall status gauge.
//
// Writes are non-blocking and batched by the underlying client; a wedged
// InfluxDB never backs up the presence engine's notification fan-out.
package influxdb

package influxdb

import (
	"github.com/stillhere/presence-core/internal/presence"
)

// StatusWriter is the subset of Client the telemetry bridge needs.
// Satisfied by *Client; tests substitute a fake.
type StatusWriter interface {
	WriteDeviceStatus(deviceKey string, status presence.OnlineStatus)
	WriteSummary(overall presence.OnlineStatus, online, idle, offline int)
}

// Telemetry bridges manager notifications to InfluxDB writes. Subscribe
// HandleUpdate to the device manager.
type Telemetry struct {
	w        StatusWriter
	snapshot func() map[string]presence.DeviceInfo
	overall  func() presence.OnlineStatus
}

// NewTelemetry creates a Telemetry bridge.
//
// Parameters:
//   - w: status writer, usually the connected *Client
//   - snapshot: device snapshot provider, usually manager.Snapshot
//   - overall: aggregate status provider, usually manager.OverallStatus
func NewTelemetry(w StatusWriter, snapshot func() map[string]presence.DeviceInfo, overall func() presence.OnlineStatus) *Telemetry {
	return &Telemetry{
		w:        w,
		snapshot: snapshot,
		overall:  overall,
	}
}

// HandleUpdate is the manager subscription callback.
func (t *Telemetry) HandleUpdate(d *presence.Device) error {
	info := d.Info()
	t.w.WriteDeviceStatus(d.Key(), info.Status)

	var online, idle, offline int
	for _, dev := range t.snapshot() {
		switch dev.Status {
		case presence.StatusOnline:
			online++
		case presence.StatusIdle:
			idle++
		case presence.StatusOffline:
			offline++
		}
	}

	t.w.WriteSummary(t.overall(), online, idle, offline)
	return nil
}

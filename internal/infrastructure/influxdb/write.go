package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/stillhere/presence-core/internal/presence"
)

// StatusValue encodes a status as a gauge so dashboards can graph it.
// Higher means more present.
func StatusValue(status presence.OnlineStatus) float64 {
	switch status {
	case presence.StatusOnline:
		return 2
	case presence.StatusIdle:
		return 1
	case presence.StatusOffline:
		return 0
	default:
		return -1
	}
}

// WriteDeviceStatus records one device's status transition.
//
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteDeviceStatus(deviceKey string, status presence.OnlineStatus) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_status",
		map[string]string{
			"device": deviceKey,
			"status": string(status),
		},
		map[string]interface{}{
			"value": StatusValue(status),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSummary records the aggregate presence picture.
//
// Parameters:
//   - overall: current overall status
//   - online, idle, offline: device counts by derived status
func (c *Client) WriteSummary(overall presence.OnlineStatus, online, idle, offline int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"presence_summary",
		map[string]string{
			"overall": string(overall),
		},
		map[string]interface{}{
			"value":   StatusValue(overall),
			"online":  online,
			"idle":    idle,
			"offline": offline,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

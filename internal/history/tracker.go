package history

import (
	"context"
	"sync"
	"time"

	"github.com/stillhere/presence-core/internal/presence"
)

// recordTimeout bounds each insert so a wedged database cannot back up the
// notification fan-out.
const recordTimeout = 5 * time.Second

// Tracker bridges manager notifications to the Recorder. It remembers the
// last status seen per device and only records actual transitions, so
// heartbeats and data-only updates produce no rows.
type Tracker struct {
	rec    Recorder
	logger presence.Logger

	mu   sync.Mutex
	last map[string]presence.OnlineStatus
}

// NewTracker creates a Tracker writing to rec.
func NewTracker(rec Recorder, logger presence.Logger) *Tracker {
	return &Tracker{
		rec:    rec,
		logger: logger,
		last:   make(map[string]presence.OnlineStatus),
	}
}

// HandleUpdate is the manager subscription callback.
func (t *Tracker) HandleUpdate(d *presence.Device) error {
	info := d.Info()

	t.mu.Lock()
	prev, seen := t.last[d.Key()]
	if seen && prev == info.Status {
		t.mu.Unlock()
		return nil
	}
	t.last[d.Key()] = info.Status
	t.mu.Unlock()

	entry := Entry{
		DeviceKey:  d.Key(),
		Status:     info.Status,
		RecordedAt: time.Now().UnixMilli(),
	}
	if info.Data != nil && info.Data.CurrentApp != nil {
		entry.AppName = info.Data.CurrentApp.Name
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := t.rec.Record(ctx, entry); err != nil {
		if t.logger != nil {
			t.logger.Error("recording presence transition",
				"device", d.Key(), "status", string(info.Status), "error", err)
		}
		return err
	}
	return nil
}

// Forget drops the remembered status for a removed device so a later
// re-registration records its first transition again.
func (t *Tracker) Forget(deviceKey string) {
	t.mu.Lock()
	delete(t.last, deviceKey)
	t.mu.Unlock()
}

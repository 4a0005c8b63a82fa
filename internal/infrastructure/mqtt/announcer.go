package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/stillhere/presence-core/internal/presence"
)

// Publisher is the subset of Client the announcer needs. Satisfied by
// *Client; tests substitute a fake.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
}

// Announcer mirrors presence changes onto MQTT topics. Subscribe
// HandleUpdate to the device manager; every device change publishes the
// device document and the recomputed aggregate, both retained.
type Announcer struct {
	pub     Publisher
	topics  Topics
	overall func() presence.OnlineStatus
	logger  presence.Logger
}

// NewAnnouncer creates an Announcer.
//
// Parameters:
//   - pub: publisher, usually the connected *Client
//   - topics: topic builder, usually client.Topics()
//   - overall: aggregate status provider, usually manager.OverallStatus
//   - logger: optional; publish failures are logged and swallowed
func NewAnnouncer(pub Publisher, topics Topics, overall func() presence.OnlineStatus, logger presence.Logger) *Announcer {
	return &Announcer{
		pub:     pub,
		topics:  topics,
		overall: overall,
		logger:  logger,
	}
}

// devicePayload is the per-device document published to presence/device/{key}.
type devicePayload struct {
	Key            string                `json:"key"`
	Status         presence.OnlineStatus `json:"status"`
	Name           string                `json:"name"`
	AppName        string                `json:"app_name,omitempty"`
	LastUpdateTime *int64                `json:"last_update_time"`
}

// HandleUpdate is the manager subscription callback.
func (a *Announcer) HandleUpdate(d *presence.Device) error {
	info := d.Info()

	payload := devicePayload{
		Key:            d.Key(),
		Status:         info.Status,
		Name:           info.Name,
		LastUpdateTime: info.LastUpdateTime,
	}
	if info.Data != nil && info.Data.CurrentApp != nil {
		payload.AppName = info.Data.CurrentApp.Name
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling device payload: %w", err)
	}

	if err := a.pub.PublishRetained(a.topics.Device(d.Key()), raw); err != nil {
		a.logError("publishing device status", d.Key(), err)
		return err
	}

	return a.PublishOverall()
}

// PublishOverall publishes the current aggregate status. Called from
// HandleUpdate and once at startup so subscribers see state immediately.
func (a *Announcer) PublishOverall() error {
	raw, err := json.Marshal(map[string]string{"status": string(a.overall())})
	if err != nil {
		return fmt.Errorf("marshalling overall payload: %w", err)
	}

	if err := a.pub.PublishRetained(a.topics.Overall(), raw); err != nil {
		a.logError("publishing overall status", "", err)
		return err
	}
	return nil
}

func (a *Announcer) logError(msg, device string, err error) {
	if a.logger == nil {
		return
	}
	if device != "" {
		a.logger.Error(msg, "device", device, "error", err)
		return
	}
	a.logger.Error(msg, "error", err)
}

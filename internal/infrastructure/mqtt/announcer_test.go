package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stillhere/presence-core/internal/presence"
)

// fakePublisher records retained publishes in memory.
type fakePublisher struct {
	mu       sync.Mutex
	messages map[string][]byte
	fail     bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{messages: make(map[string][]byte)}
}

func (f *fakePublisher) PublishRetained(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return ErrNotConnected
	}
	f.messages[topic] = payload
	return nil
}

func (f *fakePublisher) get(topic string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.messages[topic]
	return raw, ok
}

func testAnnouncer(pub Publisher, overall presence.OnlineStatus) *Announcer {
	return NewAnnouncer(pub, NewTopics(""), func() presence.OnlineStatus {
		return overall
	}, nil)
}

func TestAnnouncer_HandleUpdatePublishesDeviceAndOverall(t *testing.T) {
	pub := newFakePublisher()
	a := testAnnouncer(pub, presence.StatusOnline)

	name := "Desk PC"
	d := presence.NewDevice("desk-pc", presence.DeviceConfig{Name: &name},
		presence.DeviceOptions{PollTimeout: time.Minute})
	d.Update(presence.UpdateOptions{})

	if err := a.HandleUpdate(d); err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}

	raw, ok := pub.get("presence/device/desk-pc")
	if !ok {
		t.Fatal("device topic not published")
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal device payload: %v", err)
	}
	if payload["status"] != "online" || payload["name"] != "Desk PC" {
		t.Errorf("device payload = %v", payload)
	}

	raw, ok = pub.get("presence/overall")
	if !ok {
		t.Fatal("overall topic not published")
	}
	var overall map[string]string
	if err := json.Unmarshal(raw, &overall); err != nil {
		t.Fatalf("unmarshal overall payload: %v", err)
	}
	if overall["status"] != "online" {
		t.Errorf("overall payload = %v", overall)
	}
}

func TestAnnouncer_PublishFailureReturned(t *testing.T) {
	pub := newFakePublisher()
	pub.fail = true
	a := testAnnouncer(pub, presence.StatusOffline)

	name := "Desk PC"
	d := presence.NewDevice("desk-pc", presence.DeviceConfig{Name: &name},
		presence.DeviceOptions{PollTimeout: time.Minute})

	if err := a.HandleUpdate(d); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HandleUpdate error = %v, want ErrNotConnected", err)
	}
}

func TestAnnouncer_PublishOverall(t *testing.T) {
	pub := newFakePublisher()
	a := testAnnouncer(pub, presence.StatusIdle)

	if err := a.PublishOverall(); err != nil {
		t.Fatalf("PublishOverall: %v", err)
	}

	raw, ok := pub.get("presence/overall")
	if !ok {
		t.Fatal("overall topic not published")
	}
	var payload map[string]string
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload["status"] != "idle" {
		t.Errorf("status = %q, want idle", payload["status"])
	}
}

func TestTopics(t *testing.T) {
	topics := NewTopics("")
	if got := topics.ServiceStatus(); got != "presence/status" {
		t.Errorf("ServiceStatus() = %q", got)
	}
	if got := topics.Overall(); got != "presence/overall" {
		t.Errorf("Overall() = %q", got)
	}
	if got := topics.Device("phone"); got != "presence/device/phone" {
		t.Errorf("Device() = %q", got)
	}

	custom := NewTopics("home/presence")
	if got := custom.Device("phone"); got != "home/presence/device/phone" {
		t.Errorf("custom Device() = %q", got)
	}
}

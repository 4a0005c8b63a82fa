package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stillhere/presence-core/internal/presence"
)

// wsURL converts an httptest base URL into its ws:// equivalent.
func wsURL(base, path string) string {
	return "ws" + strings.TrimPrefix(base, "http") + path
}

func dialWS(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readInfoFrame(t *testing.T, conn *websocket.Conn) presence.DeviceInfo {
	t.Helper()
	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading frame: %v", err)
	}
	var info presence.DeviceInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		t.Fatalf("decoding frame %s: %v", raw, err)
	}
	return info
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestDeviceSession_KnownDevice(t *testing.T) {
	s, ts := newTestServer(t, nil)
	d := s.manager.Add("laptop", presence.DeviceConfig{Name: strPtr("Laptop")})

	conn := dialWS(t, wsURL(ts.URL, "/api/v1/device/laptop/info"), nil)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"idle":true}`)); err != nil {
		t.Fatalf("writing frame: %v", err)
	}
	info := readInfoFrame(t, conn)
	if !info.Online || !info.LongConnection {
		t.Fatalf("echo info = %+v, want online long-connection", info)
	}
	if !info.Idle || info.Status != presence.StatusIdle {
		t.Fatalf("echo info = %+v, want idle", info)
	}

	conn.Close()
	waitFor(t, func() bool { return !d.Info().Online }, "device still online after session close")
}

// Connecting without pushing anything must not change the device's
// state; only the first frame marks it online.
func TestDeviceSession_ConnectAloneKeepsState(t *testing.T) {
	s, ts := newTestServer(t, nil)
	d := s.manager.Add("laptop", presence.DeviceConfig{Name: strPtr("Laptop")})

	dialWS(t, wsURL(ts.URL, "/api/v1/device/laptop/info"), nil)

	time.Sleep(200 * time.Millisecond)
	info := d.Info()
	if info.Online || info.LongConnection {
		t.Fatalf("info = %+v, want offline without long connection", info)
	}
}

func TestDeviceSession_UnknownDeviceFirstFrame(t *testing.T) {
	s, ts := newTestServer(t, nil)

	conn := dialWS(t, wsURL(ts.URL, "/api/v1/device/phone/info"), nil)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"name":"Phone","data":{"battery":55}}`)); err != nil {
		t.Fatalf("writing first frame: %v", err)
	}

	info := readInfoFrame(t, conn)
	if info.Name != "Phone" || !info.Online || !info.LongConnection {
		t.Fatalf("handshake info = %+v", info)
	}
	if s.manager.Get("phone") == nil {
		t.Fatal("device not registered after handshake")
	}
}

func TestDeviceSession_UnknownDeviceNoAutocreate(t *testing.T) {
	_, ts := newTestServer(t, func(d *Deps) {
		d.Presence.AllowNewDevices = false
	})

	//nolint:bodyclose // Dial failure; no body to close on nil response
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, "/api/v1/device/ghost/info"), nil)
	if err == nil {
		t.Fatal("dial succeeded, want handshake rejection")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("handshake response = %+v, want 404", resp)
	}
	resp.Body.Close()
}

func TestDeviceSession_InvalidPayloadCloses(t *testing.T) {
	s, ts := newTestServer(t, nil)
	s.manager.Add("laptop", presence.DeviceConfig{Name: strPtr("Laptop")})

	conn := dialWS(t, wsURL(ts.URL, "/api/v1/device/laptop/info"), nil)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"idle":"yes"}`)); err != nil {
		t.Fatalf("writing frame: %v", err)
	}

	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("read error = %v, want close error", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, want %d", closeErr.Code, websocket.ClosePolicyViolation)
	}

	var reason struct {
		Code   int       `json:"code"`
		Detail ErrDetail `json:"detail"`
	}
	if err := json.Unmarshal([]byte(closeErr.Text), &reason); err != nil {
		t.Fatalf("decoding close reason %q: %v", closeErr.Text, err)
	}
	if reason.Detail.Type != ErrTypeValidation {
		t.Errorf("close detail type = %q, want %q", reason.Detail.Type, ErrTypeValidation)
	}
}

func TestDeviceSession_HandshakeTimeout(t *testing.T) {
	_, ts := newTestServer(t, func(d *Deps) {
		d.Presence.PollOfflineTimeout = 1
	})

	conn := dialWS(t, wsURL(ts.URL, "/api/v1/device/phone/info"), nil)

	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("read error = %v, want close error", err)
	}
	if closeErr.Code != closeRequestTimeout {
		t.Errorf("close code = %d, want %d", closeErr.Code, closeRequestTimeout)
	}
}

func TestCloseReason_TruncatesLongMessage(t *testing.T) {
	long := strings.Repeat("x", 300)
	raw := closeReason(websocket.ClosePolicyViolation, ErrDetail{
		Type: ErrTypeValidation,
		Msg:  long,
	})
	if len(raw) > closeReasonLimit {
		t.Fatalf("reason length = %d, want <= %d", len(raw), closeReasonLimit)
	}

	var reason struct {
		Code   int       `json:"code"`
		Detail ErrDetail `json:"detail"`
	}
	if err := json.Unmarshal(raw, &reason); err != nil {
		t.Fatalf("decoding truncated reason %q: %v", raw, err)
	}
	if reason.Detail.Type != ErrTypeValidation {
		t.Errorf("detail type = %q, want %q", reason.Detail.Type, ErrTypeValidation)
	}
	if reason.Detail.Msg == "" || !strings.HasPrefix(long, reason.Detail.Msg) {
		t.Errorf("detail msg = %q, want non-empty prefix of original", reason.Detail.Msg)
	}
}

func TestCloseReason_ShortMessageUntouched(t *testing.T) {
	detail := ErrDetail{Type: ErrTypeValidation, Msg: "field must be a boolean"}
	raw := closeReason(websocket.ClosePolicyViolation, detail)

	var reason struct {
		Code   int       `json:"code"`
		Detail ErrDetail `json:"detail"`
	}
	if err := json.Unmarshal(raw, &reason); err != nil {
		t.Fatalf("decoding reason: %v", err)
	}
	if reason.Detail.Msg != detail.Msg {
		t.Errorf("msg = %q, want %q", reason.Detail.Msg, detail.Msg)
	}
}

func TestDeviceSession_HTTPUpdatePreempts(t *testing.T) {
	s, ts := newTestServer(t, nil)
	s.manager.Add("laptop", presence.DeviceConfig{Name: strPtr("Laptop")})

	conn := dialWS(t, wsURL(ts.URL, "/api/v1/device/laptop/info"), nil)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{}`)); err != nil {
		t.Fatalf("writing frame: %v", err)
	}
	readInfoFrame(t, conn) // long-connection established

	resp := doRequest(t, http.MethodPatch, ts.URL+"/api/v1/device/laptop/info", []byte(`{}`), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("http update status = %d, want 200", resp.StatusCode)
	}

	// The polling update closes the socket; the device stays online on
	// the freshly armed heartbeat timer.
	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("socket still readable after preempting update")
	}

	waitFor(t, func() bool {
		d := s.manager.Get("laptop")
		return d != nil && d.Info().Online && !d.Info().LongConnection
	}, "device not in polled online state after preempt")
}

func TestInfoFeed_PushesOnChange(t *testing.T) {
	s, ts := newTestServer(t, nil)
	d := s.manager.Add("laptop", presence.DeviceConfig{Name: strPtr("Laptop")})

	conn := dialWS(t, wsURL(ts.URL, "/api/v1/info"), nil)

	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading initial push: %v", err)
	}
	var info presence.Info
	if err := json.Unmarshal(raw, &info); err != nil {
		t.Fatalf("decoding initial push: %v", err)
	}
	if info.Status != presence.StatusOffline {
		t.Errorf("initial status = %q, want offline", info.Status)
	}

	d.Update(presence.UpdateOptions{})

	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading change push: %v", err)
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		t.Fatalf("decoding change push: %v", err)
	}
	if info.Status != presence.StatusOnline {
		t.Errorf("pushed status = %q, want online", info.Status)
	}
	if dev, ok := info.Devices["laptop"]; !ok || !dev.Online {
		t.Errorf("pushed devices = %+v, want online laptop", info.Devices)
	}
}

func TestInfoFeed_PrivacyModeOmitsDevices(t *testing.T) {
	s, ts := newTestServer(t, func(d *Deps) {
		d.Presence.PrivacyMode = true
	})
	s.manager.Add("laptop", presence.DeviceConfig{Name: strPtr("Laptop")})

	conn := dialWS(t, wsURL(ts.URL, "/api/v1/info"), nil)

	//nolint:errcheck // Test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading initial push: %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decoding push: %v", err)
	}
	if _, ok := m["devices"]; ok {
		t.Error("devices present in privacy mode push")
	}
}

package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stillhere/presence-core/internal/presence"
)

// WebSocket close codes beyond the registered set. Close reasons carry a
// JSON body of the form {code, detail} so clients can surface the same
// error shape as the REST endpoints.
const (
	// closeRequestTimeout mirrors HTTP 408: the device failed to send
	// its first frame within the handshake window.
	closeRequestTimeout = 4408
)

// wsCloseGrace is how long a close frame write may take before the
// connection is torn down regardless.
const wsCloseGrace = 5 * time.Second

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// wsConn serialises writes to a WebSocket connection. Echo frames,
// debounced pushes, and keepalive pings all go through the same mutex.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func (c *wsConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	//nolint:errcheck // Best-effort deadline; write error caught below
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	//nolint:errcheck // Best-effort deadline; ping error caught below
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// closeReasonLimit keeps the close reason inside the 125-byte control
// frame payload budget, close code included.
const closeReasonLimit = 120

// closeReason marshals {code, detail}, trimming detail.msg until the
// document fits the control frame budget. The type field always
// survives; only the message text is shortened.
func closeReason(code int, detail ErrDetail) []byte {
	for {
		raw, err := json.Marshal(map[string]any{
			"code":   code,
			"detail": detail,
		})
		if err != nil {
			raw, _ = json.Marshal(map[string]any{"code": code})
			return raw
		}
		if len(raw) <= closeReasonLimit {
			return raw
		}
		over := len(raw) - closeReasonLimit
		if len(detail.Msg) <= over {
			if detail.Msg == "" && detail.Data == nil {
				raw, _ = json.Marshal(map[string]any{"code": code})
				return raw
			}
			detail.Msg = ""
			detail.Data = nil
			continue
		}
		detail.Msg = detail.Msg[:len(detail.Msg)-over]
	}
}

// closeWith sends a close frame whose reason is the JSON document
// {code, detail}, then closes the connection.
func (c *wsConn) closeWith(code int, detail ErrDetail) {
	reason := closeReason(code, detail)
	c.mu.Lock()
	//nolint:errcheck // Best-effort close handshake
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, string(reason)),
		time.Now().Add(wsCloseGrace))
	c.mu.Unlock()
	c.conn.Close()
}

// Close implements io.Closer so the connection can be attached to a
// Device and torn down when a preempting update arrives.
func (c *wsConn) Close() error {
	return c.conn.Close()
}

// pingLoop sends keepalive pings until done closes or a write fails.
func (c *wsConn) pingLoop(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// readWait returns how long the peer may stay silent before the read
// loop gives up: one ping interval plus the pong grace period.
func (s *Server) readWait() time.Duration {
	return time.Duration(s.wsCfg.PingInterval+s.wsCfg.PongTimeout) * time.Second
}

// handleDeviceSession runs the long-connection reporting session for a
// device. The session authenticates before upgrading, accepts the first
// frame of an unknown device within the heartbeat window, then loops:
// read frame, validate, apply, echo the resulting snapshot. A known
// device keeps its current state until its first frame arrives; each
// applied frame marks the session as the long-connection source, which
// keeps the offline timer disarmed. On exit the device goes offline
// unless a later update re-armed the timer.
func (s *Server) handleDeviceSession(w http.ResponseWriter, r *http.Request, key string) {
	if err := s.auth.Authenticate(r); err != nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	d := s.manager.Get(key)
	_, configured := s.deviceCfgs[key]
	if d == nil && !configured && !s.prsCfg.AllowNewDevices {
		writeNotFound(w, "unknown device: "+key)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "device", key, "error", err)
		return
	}

	sess := &wsConn{conn: conn, writeTimeout: time.Duration(s.wsCfg.PongTimeout) * time.Second}
	logger := s.logger.With("component", "device_session", "device", key)

	conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.readWait()))
	})

	if d == nil {
		d = s.deviceHandshake(sess, key)
		if d == nil {
			return
		}
	} else {
		// A known device stays in its current state until it pushes a
		// frame; the connection alone does not mean the device is up.
		d.AttachConn(sess)
	}
	logger.Info("device session established")

	done := make(chan struct{})
	go sess.pingLoop(time.Duration(s.wsCfg.PingInterval)*time.Second, done)

	for {
		//nolint:errcheck // Best-effort deadline reset
		conn.SetReadDeadline(time.Now().Add(s.readWait()))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("device session read error", "error", err)
			} else {
				logger.Debug("device session closed", "error", err)
			}
			break
		}

		upd, err := presence.ParseWSUpdate(raw)
		if err != nil {
			sess.closeWith(websocket.ClosePolicyViolation, ErrDetail{
				Type: ErrTypeValidation,
				Msg:  err.Error(),
			})
			break
		}

		info := d.Update(presence.UpdateOptions{
			Data:     upd,
			LongConn: true,
			Replace:  upd.Replace,
		})
		if err := sess.writeJSON(info); err != nil {
			logger.Debug("device session write failed", "error", err)
			break
		}
	}

	close(done)
	s.endDeviceSession(sess, d)
	logger.Info("device session ended")
}

// deviceHandshake waits for an unknown device's first frame, which must
// arrive within the heartbeat window and carry enough to create the
// device. Returns nil after closing the connection on failure.
func (s *Server) deviceHandshake(sess *wsConn, key string) *presence.Device {
	//nolint:errcheck // Best-effort deadline on handshake
	sess.conn.SetReadDeadline(time.Now().Add(s.pollOfflineTimeout()))

	_, raw, err := sess.conn.ReadMessage()
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			sess.closeWith(closeRequestTimeout, ErrDetail{
				Type: ErrTypeBadRequest,
				Msg:  "no initial frame received",
			})
		} else {
			// The client went away on its own; nothing to report.
			sess.conn.Close()
		}
		return nil
	}

	upd, err := presence.ParseWSUpdate(raw)
	if err != nil {
		sess.closeWith(websocket.ClosePolicyViolation, ErrDetail{
			Type: ErrTypeValidation,
			Msg:  err.Error(),
		})
		return nil
	}

	cfg, configured := s.deviceCfgs[key]
	if !configured {
		if _, ok := upd.Name(); !ok {
			sess.closeWith(websocket.ClosePolicyViolation, ErrDetail{
				Type: ErrTypeBadRequest,
				Msg:  "new device requires a name",
			})
			return nil
		}
		cfg = upd.Config()
	}

	d := s.manager.Add(key, cfg)
	d.AttachConn(sess)
	info := d.Update(presence.UpdateOptions{
		Data:     upd,
		LongConn: true,
		Replace:  upd.Replace,
	})
	if err := sess.writeJSON(info); err != nil {
		s.endDeviceSession(sess, d)
		return nil
	}
	return d
}

// endDeviceSession detaches the connection and, when no offline timer
// took over, marks the device offline. A preempting HTTP update arms
// its own timer before closing the socket, so detach skips the offline
// transition in that case.
func (s *Server) endDeviceSession(sess *wsConn, d *presence.Device) {
	sess.conn.Close()
	if timerArmed := d.DetachConn(sess); !timerArmed {
		d.Update(presence.UpdateOptions{Offline: true})
	}
}

// handleInfoFeed runs the frontend subscription feed: push the aggregate
// snapshot on connect, then again on every debounced change. Each
// subscriber gets an independent debouncer so one slow or bursty client
// never affects another.
func (s *Server) handleInfoFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sub := &wsConn{conn: conn, writeTimeout: time.Duration(s.wsCfg.PongTimeout) * time.Second}
	logger := s.logger.With("component", "info_feed", "subscriber", uuid.NewString())

	conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.readWait()))
	})

	push := func() {
		if err := sub.writeJSON(s.currentInfo()); err != nil {
			logger.Debug("feed push failed", "error", err)
			conn.Close()
		}
	}

	// Subscribe before the initial push so a change landing in between
	// is never missed, only possibly pushed twice.
	debouncer := presence.NewDebouncer(s.throttleWindow(), push)
	dispose := s.manager.OnUpdate(func(*presence.Device) error {
		debouncer.Trigger()
		return nil
	})
	defer func() {
		dispose()
		debouncer.Stop()
		conn.Close()
	}()
	push()
	logger.Info("feed subscriber connected")

	done := make(chan struct{})
	defer close(done)
	go sub.pingLoop(time.Duration(s.wsCfg.PingInterval)*time.Second, done)

	// Inbound frames are ignored; the read loop only tracks liveness.
	for {
		//nolint:errcheck // Best-effort deadline reset
		conn.SetReadDeadline(time.Now().Add(s.readWait()))
		if _, _, err := conn.ReadMessage(); err != nil {
			logger.Debug("feed subscriber disconnected", "error", err)
			return
		}
	}
}

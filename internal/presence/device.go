package presence

import (
	"io"
	"sync"
	"time"
)

// PreemptPolicy selects when an update arriving outside the active
// WebSocket connection forcibly closes that connection. Receiving a
// polling update implies the device chose not to use its open socket,
// so only one data channel stays alive at a time.
type PreemptPolicy string

// Preempt policies.
const (
	// PreemptAlways closes the active connection on any non-long-conn
	// online update, whichever path it arrived on.
	PreemptAlways PreemptPolicy = "always"

	// PreemptPollingOnly closes the active connection only when the
	// update arrived via the HTTP polling path.
	PreemptPollingOnly PreemptPolicy = "polling_only"
)

// DeviceOptions configures a Device at creation time.
type DeviceOptions struct {
	// PollTimeout is the heartbeat window for polling devices; if no
	// update arrives within it the device is marked offline.
	PollTimeout time.Duration

	// Preempt selects the connection-vs-update precedence policy.
	Preempt PreemptPolicy

	// Logger receives warnings about connection arbitration and
	// handler failures. Nil disables logging.
	Logger Logger
}

// Device owns the live state of one presence-reporting endpoint: its
// baseline configuration, the merged device document, the online /
// long-connection flags, the offline timer, and the active WebSocket
// connection reference.
//
// All mutations are serialised by a per-device mutex; see the package
// documentation for the concurrency discipline.
type Device struct {
	key       string
	cfg       DeviceConfig
	configDoc map[string]any

	mu         sync.Mutex
	doc        map[string]any
	online     bool
	longConn   bool
	lastUpdate *int64
	timer      *time.Timer
	timerGen   uint64
	conn       io.Closer

	handlers    *HandlerList[*Device]
	logger      Logger
	pollTimeout time.Duration
	preempt     PreemptPolicy
	now         func() time.Time
}

// NewDevice creates a device in the offline state. Its initial document
// is the configuration's explicitly-set fields.
func NewDevice(key string, cfg DeviceConfig, opts DeviceOptions) *Device {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	preempt := opts.Preempt
	if preempt == "" {
		preempt = PreemptAlways
	}
	configDoc := cfg.Doc()
	return &Device{
		key:         key,
		cfg:         cfg,
		configDoc:   configDoc,
		doc:         deepCopyDoc(configDoc),
		handlers:    NewHandlerList[*Device](logger),
		logger:      logger,
		pollTimeout: opts.PollTimeout,
		preempt:     preempt,
		now:         time.Now,
	}
}

// Key returns the device's stable external identifier.
func (d *Device) Key() string {
	return d.key
}

// Config returns the device's baseline configuration.
func (d *Device) Config() DeviceConfig {
	return d.cfg
}

// OnUpdate registers a change handler and returns a disposer.
func (d *Device) OnUpdate(fn Handler[*Device]) func() {
	return d.handlers.Subscribe(fn)
}

// UpdateOptions selects how an inbound update is applied.
type UpdateOptions struct {
	// Data is the validated payload; nil applies a bare state change
	// (heartbeat or explicit offline).
	Data *Update

	// Offline marks the device offline instead of online. The zero
	// value means the update signals the device as online.
	Offline bool

	// LongConn marks a persistent WebSocket session as the active data
	// source, suppressing the offline timer.
	LongConn bool

	// Replace applies the payload in replace mode: the baseline
	// configuration merged with the payload becomes the entire stored
	// document, dropping everything else.
	Replace bool

	// FromPolling marks the update as arriving via the HTTP polling
	// path, which matters under the polling_only preempt policy.
	FromPolling bool
}

// Update applies an inbound update and returns the resulting snapshot.
//
// Any existing offline timer is cancelled first; for online non-long-
// connection updates a fresh timer is armed, and an active WebSocket
// connection is closed per the preempt policy. The payload, if any, is
// merged or replaced into the stored document, the flags and timestamp
// are stamped, and change handlers are notified after the mutation has
// been committed.
func (d *Device) Update(opts UpdateOptions) DeviceInfo {
	d.mu.Lock()
	d.cancelTimerLocked()

	online := !opts.Offline
	var preempted io.Closer
	if online && !opts.LongConn {
		d.armTimerLocked()
		if d.conn != nil && (d.preempt == PreemptAlways || opts.FromPolling) {
			preempted = d.conn
			d.conn = nil
		}
	}

	if opts.Data != nil {
		if opts.Replace {
			d.doc = DeepMerge(d.configDoc, opts.Data.doc)
		} else {
			d.doc = DeepMerge(d.doc, opts.Data.doc)
		}
	}
	d.online = online
	d.longConn = opts.LongConn
	ts := d.now().UnixMilli()
	d.lastUpdate = &ts

	info := d.infoLocked()
	d.mu.Unlock()

	if preempted != nil {
		d.logger.Warn("device has an active connection but received another update, closing it",
			"device", d.key)
		if err := preempted.Close(); err != nil {
			d.logger.Error("closing preempted connection", "device", d.key, "error", err)
		}
	}

	d.handlers.Notify(d)
	return info
}

// AttachConn records conn as the device's active connection, superseding
// and closing any previous one. Only one live connection per device.
func (d *Device) AttachConn(conn io.Closer) {
	d.mu.Lock()
	old := d.conn
	d.conn = conn
	d.mu.Unlock()

	if old != nil {
		d.logger.Warn("device already has an active connection, closing the old one",
			"device", d.key)
		if err := old.Close(); err != nil {
			d.logger.Error("closing superseded connection", "device", d.key, "error", err)
		}
	}
}

// DetachConn clears the active-connection reference if conn still holds
// it and reports whether an offline timer is currently armed. When no
// timer is armed the connection was the sole keep-alive mechanism and
// the caller must apply an offline update.
func (d *Device) DetachConn(conn io.Closer) (timerArmed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == conn {
		d.conn = nil
	}
	return d.timer != nil
}

// Info returns a consistent snapshot of the device's observable state.
func (d *Device) Info() DeviceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.infoLocked()
}

// infoLocked builds the snapshot. Callers must hold d.mu.
func (d *Device) infoLocked() DeviceInfo {
	info := DeviceInfo{
		Online:         d.online,
		LongConnection: d.longConn,
		Data:           dataFromDoc(d.doc[fieldData]),
	}
	if d.lastUpdate != nil {
		ts := *d.lastUpdate
		info.LastUpdateTime = &ts
	}
	if s, ok := d.doc[fieldName].(string); ok {
		info.Name = s
	}
	if s, ok := d.doc[fieldDescription].(string); ok {
		info.Description = &s
	}
	if s, ok := d.doc[fieldDeviceType].(string); ok {
		info.DeviceType = DeviceType(s)
	}
	if s, ok := d.doc[fieldDeviceOS].(string); ok {
		info.DeviceOS = DeviceOS(s)
	}
	if b, ok := d.doc[fieldRemoveWhenOffline].(bool); ok {
		info.RemoveWhenOffline = b
	}
	if b, ok := d.doc[fieldIdle].(bool); ok {
		info.Idle = b
	}
	info.Status = StatusOf(info.Online, info.Idle)
	return info
}

// armTimerLocked arms a fresh offline timer. Callers must hold d.mu and
// must have cancelled any prior timer first, so two timers are never
// live for one device.
func (d *Device) armTimerLocked() {
	if d.pollTimeout <= 0 {
		return
	}
	d.timerGen++
	gen := d.timerGen
	d.timer = time.AfterFunc(d.pollTimeout, func() {
		d.timerExpired(gen)
	})
}

// cancelTimerLocked stops any pending offline timer and invalidates its
// generation, so an expiry already in flight becomes a no-op.
func (d *Device) cancelTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.timerGen++
}

// timerExpired routes a timer firing through the device mutex. The
// generation check means a timer racing a concurrent update past its
// cancellation can never mark the device offline.
func (d *Device) timerExpired(gen uint64) {
	d.mu.Lock()
	if gen != d.timerGen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.online = false
	d.longConn = false
	d.mu.Unlock()

	d.logger.Info("device heartbeat timed out, marking offline", "device", d.key)
	d.handlers.Notify(d)
}

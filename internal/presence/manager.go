package presence

import (
	"sync"
)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Device carries the per-device options applied to every device
	// the manager creates.
	Device DeviceOptions

	// UnknownAsOffline reports the overall status as offline instead
	// of unknown when no devices exist.
	UnknownAsOffline bool

	// Logger receives add/remove bookkeeping logs. Nil disables.
	Logger Logger
}

// Manager owns the device-key to Device mapping, computes the aggregate
// status across all devices, and fans device changes out to its own
// subscribers. Key insertion order is kept for display only.
type Manager struct {
	mu      sync.RWMutex
	devices map[string]*Device
	order   []string

	handlers *HandlerList[*Device]
	opts     ManagerOptions
	logger   Logger
}

// NewManager creates a manager pre-populated from static configuration.
// Devices configured with remove_when_offline are not pre-created: they
// would be removed at the first offline transition anyway, so they
// appear on first contact instead.
func NewManager(opts ManagerOptions, devices map[string]DeviceConfig) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	if opts.Device.Logger == nil {
		opts.Device.Logger = logger
	}
	m := &Manager{
		devices:  make(map[string]*Device),
		handlers: NewHandlerList[*Device](logger),
		opts:     opts,
		logger:   logger,
	}
	for key, cfg := range devices {
		if cfg.RemoveWhenOffline != nil && *cfg.RemoveWhenOffline {
			continue
		}
		m.Add(key, cfg)
	}
	return m
}

// Add creates and registers a device with the manager's own change
// handler pre-attached, and returns it. Adding an existing key replaces
// the old device, which is tolerated but logged.
func (m *Manager) Add(key string, cfg DeviceConfig) *Device {
	device := NewDevice(key, cfg, m.opts.Device)
	device.OnUpdate(m.onDeviceUpdate)

	m.mu.Lock()
	if _, exists := m.devices[key]; exists {
		m.logger.Warn("replacing existing device", "device", key)
	} else {
		m.order = append(m.order, key)
	}
	m.devices[key] = device
	m.mu.Unlock()

	m.logger.Info("device registered", "device", key)
	return device
}

// Remove deregisters and discards the device. Returns false if the key
// is unknown.
func (m *Manager) Remove(key string) bool {
	m.mu.Lock()
	_, ok := m.devices[key]
	if ok {
		delete(m.devices, key)
		m.removeFromOrderLocked(key)
	}
	m.mu.Unlock()

	if ok {
		m.logger.Info("device removed", "device", key)
	}
	return ok
}

// Get returns the device for key, or nil if unknown.
func (m *Manager) Get(key string) *Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.devices[key]
}

// Keys returns the device keys in insertion order.
func (m *Manager) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, len(m.order))
	copy(keys, m.order)
	return keys
}

// Count returns the number of registered devices.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.devices)
}

// Snapshot returns the current state of every device keyed by device key.
func (m *Manager) Snapshot() map[string]DeviceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := make(map[string]DeviceInfo, len(m.devices))
	for key, d := range m.devices {
		infos[key] = d.Info()
	}
	return infos
}

// OverallStatus computes the aggregate status: unknown (or offline under
// the unknown_as_offline policy) with no devices; offline when no device
// is online; idle when every online device is idle; otherwise online.
// The any-online check runs before the all-idle check deliberately: one
// non-idle online device makes the whole system read online even when
// other devices are idle or offline.
func (m *Manager) OverallStatus() OnlineStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.devices) == 0 {
		if m.opts.UnknownAsOffline {
			return StatusOffline
		}
		return StatusUnknown
	}

	anyOnline := false
	allIdle := true
	for _, d := range m.devices {
		info := d.Info()
		if info.Online {
			anyOnline = true
			if !info.Idle {
				allIdle = false
			}
		}
	}
	if !anyOnline {
		return StatusOffline
	}
	if allIdle {
		return StatusIdle
	}
	return StatusOnline
}

// OnUpdate registers a subscriber interested in "some device changed"
// and returns a disposer.
func (m *Manager) OnUpdate(fn Handler[*Device]) func() {
	return m.handlers.Subscribe(fn)
}

// WaitNextUpdate returns a single-use channel that yields the next
// device to report any change, then unsubscribes itself. Intended for
// build-once-then-wait clients and tests, not the primary push path.
func (m *Manager) WaitNextUpdate() <-chan *Device {
	ch := make(chan *Device, 1)

	var mu sync.Mutex
	var unsub func()
	fired := false

	handler := func(d *Device) error {
		mu.Lock()
		defer mu.Unlock()
		if !fired {
			fired = true
			ch <- d
		}
		if unsub != nil {
			unsub()
			unsub = nil
		}
		return nil
	}

	mu.Lock()
	unsub = m.handlers.Subscribe(handler)
	if fired && unsub != nil {
		// The handler ran before the subscription handle was stored.
		unsub()
		unsub = nil
	}
	mu.Unlock()

	return ch
}

// onDeviceUpdate is the manager's handler attached to every owned
// device: it applies the remove-when-offline policy, then fans the
// event out to the manager's own subscribers.
func (m *Manager) onDeviceUpdate(d *Device) error {
	info := d.Info()
	if !info.Online && info.RemoveWhenOffline {
		m.mu.Lock()
		if m.devices[d.Key()] == d {
			delete(m.devices, d.Key())
			m.removeFromOrderLocked(d.Key())
		}
		m.mu.Unlock()
		m.logger.Info("device went offline, removing per policy", "device", d.Key())
	}

	m.handlers.Notify(d)
	return nil
}

// removeFromOrderLocked drops key from the insertion-order slice.
// Callers must hold m.mu.
func (m *Manager) removeFromOrderLocked(key string) {
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

package presence

import "encoding/json"

// OnlineStatus is the externally visible status of a device or of the
// whole system.
type OnlineStatus string

// Online status values.
const (
	StatusOnline  OnlineStatus = "online"
	StatusOffline OnlineStatus = "offline"
	StatusIdle    OnlineStatus = "idle"
	StatusUnknown OnlineStatus = "unknown"
)

// StatusOf derives the status of a single device from its online and
// idle flags. Status is always derived, never stored, so it cannot
// drift from the flags it is computed from.
func StatusOf(online, idle bool) OnlineStatus {
	if !online {
		return StatusOffline
	}
	if idle {
		return StatusIdle
	}
	return StatusOnline
}

// DeviceType classifies a presence-reporting endpoint.
// Free-form strings are accepted; the empty string means unknown.
type DeviceType string

// Well-known device types.
const (
	DeviceTypePC         DeviceType = "pc"
	DeviceTypeLaptop     DeviceType = "laptop"
	DeviceTypePhone      DeviceType = "phone"
	DeviceTypeTablet     DeviceType = "tablet"
	DeviceTypeSmartwatch DeviceType = "smartwatch"
	DeviceTypeUnknown    DeviceType = ""
)

// DeviceOS identifies the operating system a device reports.
// Free-form strings are accepted; the empty string means unknown.
type DeviceOS string

// Well-known operating systems.
const (
	DeviceOSWindows DeviceOS = "windows"
	DeviceOSLinux   DeviceOS = "linux"
	DeviceOSMacOS   DeviceOS = "macos"
	DeviceOSAndroid DeviceOS = "android"
	DeviceOSIOS     DeviceOS = "ios"
	DeviceOSUnknown DeviceOS = ""
)

// DeviceConfig holds the baseline attributes of a device, supplied once
// at creation from static configuration or from the first message of an
// unconfigured device.
//
// Fields are pointers so a value explicitly set in configuration can be
// distinguished from one never touched. Only explicitly-set fields take
// part in replace-mode merging (see Device.Update).
type DeviceConfig struct {
	Name              *string     `yaml:"name" json:"name,omitempty"`
	Description       *string     `yaml:"description" json:"description,omitempty"`
	DeviceType        *DeviceType `yaml:"device_type" json:"device_type,omitempty"`
	DeviceOS          *DeviceOS   `yaml:"device_os" json:"device_os,omitempty"`
	RemoveWhenOffline *bool       `yaml:"remove_when_offline" json:"remove_when_offline,omitempty"`
}

// Doc returns the configuration as a document containing only the
// explicitly-set fields. The document is the baseline for replace-mode
// updates: config supplies defaults, the payload overrides.
func (c DeviceConfig) Doc() map[string]any {
	doc := make(map[string]any)
	if c.Name != nil {
		doc[fieldName] = *c.Name
	}
	if c.Description != nil {
		doc[fieldDescription] = *c.Description
	}
	if c.DeviceType != nil {
		doc[fieldDeviceType] = string(*c.DeviceType)
	}
	if c.DeviceOS != nil {
		doc[fieldDeviceOS] = string(*c.DeviceOS)
	}
	if c.RemoveWhenOffline != nil {
		doc[fieldRemoveWhenOffline] = *c.RemoveWhenOffline
	}
	return doc
}

// CurrentApp describes the application a device reports as active.
type CurrentApp struct {
	Name           string `json:"name"`
	LastChangeTime *int64 `json:"last_change_time"`
}

// DeviceData is the free-form payload a device pushes alongside its
// presence flags. Known fields are typed; everything else a client sends
// inside data is preserved opaquely in Extra and survives merges and
// round-trips untouched.
type DeviceData struct {
	CurrentApp         *CurrentApp `json:"-"`
	AdditionalStatuses []string    `json:"-"`

	// Extra holds unknown keys exactly as received.
	Extra map[string]any `json:"-"`
}

// MarshalJSON flattens the typed core and the open side-map into one
// JSON object. Known fields win over same-named extras.
func (d DeviceData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+2)
	for k, v := range d.Extra {
		out[k] = v
	}
	out[fieldCurrentApp] = d.CurrentApp
	if d.AdditionalStatuses != nil {
		out[fieldAdditionalStatuses] = d.AdditionalStatuses
	} else {
		out[fieldAdditionalStatuses] = nil
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits a JSON object into the typed core and the open
// side-map.
func (d *DeviceData) UnmarshalJSON(raw []byte) error {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	parsed := dataFromDoc(m)
	if parsed == nil {
		*d = DeviceData{}
		return nil
	}
	*d = *parsed
	return nil
}

// DeviceInfo is the live, externally observable state of one device.
// Status is computed from the online and idle flags at snapshot time.
type DeviceInfo struct {
	Name              string       `json:"name"`
	Description       *string      `json:"description"`
	DeviceType        DeviceType   `json:"device_type"`
	DeviceOS          DeviceOS     `json:"device_os"`
	RemoveWhenOffline bool         `json:"remove_when_offline"`
	Idle              bool         `json:"idle"`
	Data              *DeviceData  `json:"data"`
	Online            bool         `json:"online"`
	LastUpdateTime    *int64       `json:"last_update_time"`
	LongConnection    bool         `json:"long_connection"`
	Status            OnlineStatus `json:"status"`
}

// Info is the aggregate payload served to subscribers: the overall
// status plus, unless privacy mode hides them, every device's state.
type Info struct {
	Status  OnlineStatus          `json:"status"`
	Devices map[string]DeviceInfo `json:"devices,omitempty"`
}

// Document field names shared by the merge and snapshot code.
const (
	fieldName               = "name"
	fieldDescription        = "description"
	fieldDeviceType         = "device_type"
	fieldDeviceOS           = "device_os"
	fieldRemoveWhenOffline  = "remove_when_offline"
	fieldIdle               = "idle"
	fieldData               = "data"
	fieldReplace            = "replace"
	fieldCurrentApp         = "current_app"
	fieldAdditionalStatuses = "additional_statuses"
)

// dataFromDoc converts the "data" subtree of a device document into a
// typed DeviceData. Returns nil when the subtree is absent or null.
func dataFromDoc(v any) *DeviceData {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	d := &DeviceData{}
	for k, val := range m {
		switch k {
		case fieldCurrentApp:
			am, ok := val.(map[string]any)
			if !ok {
				continue
			}
			app := &CurrentApp{}
			if s, ok := am["name"].(string); ok {
				app.Name = s
			}
			if f, ok := am["last_change_time"].(float64); ok {
				t := int64(f)
				app.LastChangeTime = &t
			}
			d.CurrentApp = app
		case fieldAdditionalStatuses:
			arr, ok := val.([]any)
			if !ok {
				continue
			}
			statuses := make([]string, 0, len(arr))
			for _, e := range arr {
				if s, ok := e.(string); ok {
					statuses = append(statuses, s)
				}
			}
			d.AdditionalStatuses = statuses
		default:
			if d.Extra == nil {
				d.Extra = make(map[string]any)
			}
			d.Extra[k] = val
		}
	}
	return d
}

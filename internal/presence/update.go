package presence

import (
	"encoding/json"
	"fmt"
)

// Update is a validated inbound device update: a document holding only
// the fields the caller explicitly set, plus the replace flag carried by
// WebSocket frames. Omitted fields are absent from the document and
// never override stored values; an explicit JSON null is kept as a nil
// value and clears the field on merge.
type Update struct {
	doc     map[string]any
	Replace bool
}

// ParseUpdate validates a raw JSON payload as a partial-or-replace
// device update. Unknown top-level keys are dropped; unknown keys
// inside data are preserved opaquely. A nil or empty payload yields an
// empty update, which is valid (a bare heartbeat).
func ParseUpdate(raw []byte) (*Update, error) {
	u := &Update{doc: make(map[string]any)}
	if len(raw) == 0 {
		return u, nil
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err := u.applyFields(m); err != nil {
		return nil, err
	}
	return u, nil
}

// ParseWSUpdate validates a WebSocket frame, which is a regular update
// payload with an additional boolean replace field selecting merge vs.
// replace mode for that specific message.
func ParseWSUpdate(raw []byte) (*Update, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	u := &Update{doc: make(map[string]any)}
	if v, ok := m[fieldReplace]; ok {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: field %q must be a boolean", ErrInvalidPayload, fieldReplace)
		}
		u.Replace = b
		delete(m, fieldReplace)
	}
	if err := u.applyFields(m); err != nil {
		return nil, err
	}
	return u, nil
}

// applyFields validates the known top-level fields and copies them into
// the update document. Key presence in the document is what carries the
// present-vs-unset distinction end to end.
func (u *Update) applyFields(m map[string]any) error {
	for k, v := range m {
		switch k {
		case fieldName, fieldDescription:
			if v != nil {
				if _, ok := v.(string); !ok {
					return fmt.Errorf("%w: field %q must be a string or null", ErrInvalidPayload, k)
				}
			}
		case fieldDeviceType, fieldDeviceOS:
			if _, ok := v.(string); !ok {
				return fmt.Errorf("%w: field %q must be a string", ErrInvalidPayload, k)
			}
		case fieldRemoveWhenOffline, fieldIdle:
			if _, ok := v.(bool); !ok {
				return fmt.Errorf("%w: field %q must be a boolean", ErrInvalidPayload, k)
			}
		case fieldData:
			if v != nil {
				doc, ok := v.(map[string]any)
				if !ok {
					return fmt.Errorf("%w: field %q must be an object or null", ErrInvalidPayload, k)
				}
				if err := validateData(doc); err != nil {
					return err
				}
			}
		default:
			// Unknown top-level keys are ignored, matching the
			// closed outer model with an open data payload.
			continue
		}
		u.doc[k] = v
	}
	return nil
}

// validateData checks the typed core of the data payload. Unknown keys
// are allowed through untouched.
func validateData(doc map[string]any) error {
	if v, ok := doc[fieldCurrentApp]; ok && v != nil {
		app, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: data.current_app must be an object or null", ErrInvalidPayload)
		}
		name, ok := app["name"]
		if !ok {
			return fmt.Errorf("%w: data.current_app.name is required", ErrInvalidPayload)
		}
		if _, ok := name.(string); !ok {
			return fmt.Errorf("%w: data.current_app.name must be a string", ErrInvalidPayload)
		}
		if t, ok := app["last_change_time"]; ok && t != nil {
			if _, ok := t.(float64); !ok {
				return fmt.Errorf("%w: data.current_app.last_change_time must be a number or null", ErrInvalidPayload)
			}
		}
	}
	if v, ok := doc[fieldAdditionalStatuses]; ok && v != nil {
		arr, ok := v.([]any)
		if !ok {
			return fmt.Errorf("%w: data.additional_statuses must be an array or null", ErrInvalidPayload)
		}
		for _, e := range arr {
			if _, ok := e.(string); !ok {
				return fmt.Errorf("%w: data.additional_statuses entries must be strings", ErrInvalidPayload)
			}
		}
	}
	return nil
}

// Doc returns a copy of the update's document.
func (u *Update) Doc() map[string]any {
	return deepCopyDoc(u.doc)
}

// Name returns the name carried by the update, if explicitly set to a
// non-null value.
func (u *Update) Name() (string, bool) {
	s, ok := u.doc[fieldName].(string)
	return s, ok && s != ""
}

// IsEmpty reports whether the update carries no fields at all.
func (u *Update) IsEmpty() bool {
	return len(u.doc) == 0
}

// Config extracts the baseline DeviceConfig fields the update explicitly
// set. Used when an unconfigured device's first payload both creates and
// initialises the device.
func (u *Update) Config() DeviceConfig {
	var cfg DeviceConfig
	if s, ok := u.doc[fieldName].(string); ok {
		cfg.Name = &s
	}
	if s, ok := u.doc[fieldDescription].(string); ok {
		cfg.Description = &s
	}
	if s, ok := u.doc[fieldDeviceType].(string); ok {
		t := DeviceType(s)
		cfg.DeviceType = &t
	}
	if s, ok := u.doc[fieldDeviceOS].(string); ok {
		o := DeviceOS(s)
		cfg.DeviceOS = &o
	}
	if b, ok := u.doc[fieldRemoveWhenOffline].(bool); ok {
		cfg.RemoveWhenOffline = &b
	}
	return cfg
}

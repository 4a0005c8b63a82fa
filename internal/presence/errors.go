package presence

import "errors"

// Domain errors for the presence package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, presence.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device key does not exist.
	ErrDeviceNotFound = errors.New("presence: device not found")

	// ErrNameRequired is returned when a new device's first payload
	// does not carry the required name.
	ErrNameRequired = errors.New("presence: new device requires a name")

	// ErrInvalidPayload is returned when an inbound update fails
	// validation.
	ErrInvalidPayload = errors.New("presence: invalid payload")
)

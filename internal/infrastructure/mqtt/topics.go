package mqtt

import "fmt"

// defaultTopicPrefix is used when the config leaves topic_prefix empty.
const defaultTopicPrefix = "presence"

// Topics builds the announcer's topic names from a configurable prefix.
// Using these helpers keeps topic naming consistent across the codebase.
type Topics struct {
	Prefix string
}

// NewTopics returns a Topics with the given prefix, falling back to the
// default when empty.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

// ServiceStatus returns the service liveness topic.
//
// Example: presence/status
func (t Topics) ServiceStatus() string {
	return fmt.Sprintf("%s/status", t.Prefix)
}

// Overall returns the aggregate status topic.
//
// Example: presence/overall
func (t Topics) Overall() string {
	return fmt.Sprintf("%s/overall", t.Prefix)
}

// Device returns the per-device status topic.
//
// Example: presence/device/desk-pc
func (t Topics) Device(key string) string {
	return fmt.Sprintf("%s/device/%s", t.Prefix, key)
}

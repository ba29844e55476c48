// internal/writer/types.go
package writer

import (
	"strings"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/poller"
)

// Writer delivers poll snapshots to one destination.
type Writer interface {
	Write(s poller.Snapshot) error
}

// Publisher is the exact MQTT contract the writers use.
// MQTTClient satisfies it; tests substitute a recorder.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Topic names under the configured prefix.
const (
	TopicTelemetry = "telemetry"
	TopicDownlink  = "downlink"
	TopicUplink    = "uplink"
	TopicHealth    = "health"
)

// Topic joins prefix and name with a single slash.
func Topic(prefix, name string) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

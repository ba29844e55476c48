// internal/poller/builder.go
package poller

import (
	"time"

	cfg "github.com/CREATIVE5-io/Hestia-IoT-web/internal/config"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/session"
)

// Build constructs a Poller reading from s.
// The LoRa report is queried only when devices are configured.
func Build(c *cfg.Config, s *session.Session) (*Poller, error) {
	return New(
		Config{
			Interval: time.Duration(c.Poll.IntervalMs) * time.Millisecond,
			LoRa:     len(c.LoRa.Devices) > 0,
		},
		s,
		s,
	)
}

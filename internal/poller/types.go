// internal/poller/types.go
package poller

import (
	"time"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/lora"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/session"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/status"
)

// Snapshot is produced by one poll cycle.
// A nil group was not read this cycle.
type Snapshot struct {
	At time.Time `json:"at" yaml:"at"`

	Status          *status.ModuleStatus `json:"status,omitempty" yaml:"status,omitempty"`
	UploadAvailable *bool                `json:"upload_available,omitempty" yaml:"upload_available,omitempty"`
	Telemetry       *session.Telemetry   `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
	LoRa            *lora.Report         `json:"lora,omitempty" yaml:"lora,omitempty"`

	// Errs holds one entry per group that failed.
	Errs []error `json:"-" yaml:"-"`
}

// Err reports the first group failure, if any.
func (s Snapshot) Err() error {
	if len(s.Errs) == 0 {
		return nil
	}
	return s.Errs[0]
}

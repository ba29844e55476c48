// internal/capture/capture.go

// Package capture produces uplink entries: location captures from live
// telemetry, and the bookkeeping that follows each received downlink.
package capture

import (
	"errors"
	"fmt"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/downlink"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/logging"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/queue"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/session"
)

// Queue labels.
const (
	LabelLocation = "Location data"
	LabelDownlink = "Downlink triggered"
)

// ErrNoFix is returned when telemetry lacks position or signal readings.
var ErrNoFix = errors.New("capture: no location fix")

// TelemetrySource reads live telemetry; session.Session satisfies it.
type TelemetrySource interface {
	ReadTelemetry() (session.Telemetry, error)
}

// TelemetryFunc adapts a function to TelemetrySource.
type TelemetryFunc func() (session.Telemetry, error)

func (f TelemetryFunc) ReadTelemetry() (session.Telemetry, error) { return f() }

// Queue is the producer side of the uplink queue.
type Queue interface {
	Append(label string, payload any) (queue.Entry, error)
	Entries() ([]queue.Entry, error)
	Path() string
}

// LocationPayload is the compact uplink body: latitude, longitude, RSRP, SINR.
type LocationPayload struct {
	M [4]float64 `json:"m"`
}

// NewLocationPayload builds the payload from t.
func NewLocationPayload(t session.Telemetry) (LocationPayload, error) {
	if !t.HasLocation() {
		return LocationPayload{}, ErrNoFix
	}
	return LocationPayload{M: [4]float64{*t.Latitude, *t.Longitude, *t.RSRP, *t.SINR}}, nil
}

// Result reports one capture.
type Result struct {
	Entry   queue.Entry
	Pending int    // entries queued after this one was appended
	Path    string // queue file
}

// Location reads telemetry and appends a location capture labelled
// LabelLocation.
func Location(src TelemetrySource, q Queue) (Result, error) {
	return capture(src, q, LabelLocation)
}

func capture(src TelemetrySource, q Queue, label string) (Result, error) {
	t, err := src.ReadTelemetry()
	if err != nil {
		return Result{}, fmt.Errorf("capture: read telemetry: %w", err)
	}
	p, err := NewLocationPayload(t)
	if err != nil {
		return Result{}, err
	}
	e, err := q.Append(label, p)
	if err != nil {
		return Result{}, err
	}

	res := Result{Entry: e, Path: q.Path()}
	if all, err := q.Entries(); err == nil {
		res.Pending = len(all)
	}
	return res, nil
}

// DownlinkRecorder keeps received downlinks; history.Store satisfies it.
type DownlinkRecorder interface {
	AddDownlink(data []byte) error
}

// DownlinkPublisher forwards received downlinks; writer.MQTTWriter satisfies it.
type DownlinkPublisher interface {
	PublishDownlink(data []byte) error
}

// DownlinkConfig wires the downlink handler. Every field is optional.
type DownlinkConfig struct {
	History   DownlinkRecorder
	Publisher DownlinkPublisher

	// Trigger enqueues a location capture labelled LabelDownlink for every
	// downlink. It needs Source and Queue.
	Trigger bool
	Source  TelemetrySource
	Queue   Queue
}

// NewDownlinkHandler returns the handler the downlink monitor calls.
// Failures are logged; the monitor keeps running.
func NewDownlinkHandler(cfg DownlinkConfig, log *logging.Logger) downlink.Handler {
	log = logging.OrDiscard(log)

	return func(data []byte, n int) {
		log.Info("downlink received (%d bytes)", n)
		log.Debug("downlink %q", data)

		if cfg.History != nil {
			if err := cfg.History.AddDownlink(data); err != nil {
				log.Error("record downlink: %v", err)
			}
		}
		if cfg.Publisher != nil {
			if err := cfg.Publisher.PublishDownlink(data); err != nil {
				log.Error("publish downlink: %v", err)
			}
		}
		if cfg.Trigger && cfg.Source != nil && cfg.Queue != nil {
			res, err := capture(cfg.Source, cfg.Queue, LabelDownlink)
			if err != nil {
				log.Error("downlink-triggered capture: %v", err)
				return
			}
			log.Info("queued %q (%d pending)", res.Entry.Label, res.Pending)
		}
	}
}

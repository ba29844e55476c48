// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/lora"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/session"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/status"
)

// Source is the session surface the poller reads.
type Source interface {
	ModuleStatus() (status.ModuleStatus, error)
	IsUploadAvailable() (bool, error)
	ReadTelemetry() (session.Telemetry, error)
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	Interval time.Duration

	// LoRa enables the receive-report query each cycle.
	LoRa bool
}

// Poller is a clock-driven telemetry reader.
type Poller struct {
	cfg Config
	src Source
	at  lora.Commander
}

// New creates a poller with immutable config. at is required only when
// cfg.LoRa is set.
func New(cfg Config, src Source, at lora.Commander) (*Poller, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if src == nil {
		return nil, errors.New("poller: source required")
	}
	if cfg.LoRa && at == nil {
		return nil, errors.New("poller: lora query needs an AT commander")
	}
	return &Poller{cfg: cfg, src: src, at: at}, nil
}

// PollOnce performs exactly one poll cycle.
// Groups are independent: a failed group stays nil and is recorded in Errs.
func (p *Poller) PollOnce(ctx context.Context) Snapshot {
	snap := Snapshot{At: time.Now()}

	if st, err := p.src.ModuleStatus(); err != nil {
		snap.Errs = append(snap.Errs, err)
	} else {
		snap.Status = &st
	}

	if ok, err := p.src.IsUploadAvailable(); err != nil {
		snap.Errs = append(snap.Errs, err)
	} else {
		snap.UploadAvailable = &ok
	}

	if t, err := p.src.ReadTelemetry(); err != nil {
		snap.Errs = append(snap.Errs, err)
	} else {
		snap.Telemetry = &t
	}

	if p.cfg.LoRa {
		if r, err := lora.QueryReport(ctx, p.at); err != nil {
			snap.Errs = append(snap.Errs, err)
		} else {
			snap.LoRa = &r
		}
	}

	return snap
}

// Run starts the ticker loop and emits a Snapshot on out every interval.
// No overlap. No retries.
func (p *Poller) Run(ctx context.Context, out chan<- Snapshot) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := p.PollOnce(ctx)
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}
}

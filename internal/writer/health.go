// internal/writer/health.go
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/fault"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/poller"
)

// HealthCode is the device-level health derived from poll cycles.
type HealthCode uint16

const (
	HealthUnknown HealthCode = 0
	HealthOK      HealthCode = 1
	HealthError   HealthCode = 2
)

func (h HealthCode) String() string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	}
	return "unknown"
}

// Health is the published health record.
type Health struct {
	Device         string     `json:"device"`
	Code           HealthCode `json:"health_code"`
	LastErrorCode  uint16     `json:"last_error_code"`
	SecondsInError uint16     `json:"seconds_in_error"`
}

// Error codes published in LastErrorCode.
const (
	CodeNone             uint16 = 0
	CodeGeneric          uint16 = 1
	CodeTransient        uint16 = 2
	CodeNoData           uint16 = 3
	CodeFraming          uint16 = 4
	CodeNotAuthenticated uint16 = 5
	CodeDelivery         uint16 = 6
	CodePersistence      uint16 = 7
)

// ErrorCode maps an error to a stable code. An error exposing Code() uint16
// passes its own code through.
func ErrorCode(err error) uint16 {
	if err == nil {
		return CodeNone
	}
	var c interface{ Code() uint16 }
	if errors.As(err, &c) {
		return c.Code()
	}
	switch {
	case errors.Is(err, fault.ErrTransient):
		return CodeTransient
	case errors.Is(err, fault.ErrNoData):
		return CodeNoData
	case errors.Is(err, fault.ErrFraming):
		return CodeFraming
	case errors.Is(err, fault.ErrNotAuthenticated):
		return CodeNotAuthenticated
	case errors.Is(err, fault.ErrDelivery):
		return CodeDelivery
	case errors.Is(err, fault.ErrPersistence):
		return CodePersistence
	}
	return CodeGeneric
}

// HealthWriter tracks device health across snapshots and publishes it under
// <prefix>/health. The first publish, and the first one after any failure,
// is the full retained record; otherwise only changed fields are published
// to <prefix>/health/<field>.
type HealthWriter struct {
	pub   Publisher
	topic string
	qos   byte

	mu       sync.Mutex
	cur      Health
	last     Health
	needFull bool
}

// NewHealthWriter starts in HealthUnknown with a pending full publish.
func NewHealthWriter(pub Publisher, prefix, device string, qos byte) *HealthWriter {
	return &HealthWriter{
		pub:      pub,
		topic:    Topic(prefix, TopicHealth),
		qos:      qos,
		cur:      Health{Device: device, Code: HealthUnknown},
		needFull: true,
	}
}

// Write folds one snapshot into the health state. Any failed group marks
// the device in error; a clean snapshot resets the error fields.
func (h *HealthWriter) Write(s poller.Snapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := s.Err(); err != nil {
		h.cur.Code = HealthError
		h.cur.LastErrorCode = ErrorCode(err)
	} else {
		h.cur.Code = HealthOK
		h.cur.LastErrorCode = CodeNone
		h.cur.SecondsInError = 0
	}
	return h.deliver()
}

// Tick advances SecondsInError by one while not healthy. It saturates at
// 65535 and never wraps.
func (h *HealthWriter) Tick() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cur.Code == HealthOK || h.cur.SecondsInError == 65535 {
		return nil
	}
	h.cur.SecondsInError++
	return h.deliver()
}

// Current returns the tracked state.
func (h *HealthWriter) Current() Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur
}

// Run publishes the initial record, then ticks once a second until ctx is
// done. Publish failures are passed to onErr when it is non-nil.
func (h *HealthWriter) Run(ctx context.Context, onErr func(error)) {
	report := func(err error) {
		if err != nil && onErr != nil {
			onErr(err)
		}
	}

	h.mu.Lock()
	report(h.deliver())
	h.mu.Unlock()

	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			report(h.Tick())
		}
	}
}

// deliver must be called with mu held.
func (h *HealthWriter) deliver() error {
	if h.needFull {
		b, err := json.Marshal(h.cur)
		if err != nil {
			return fmt.Errorf("health: encode: %w", err)
		}
		if err := h.pub.Publish(h.topic, h.qos, true, b); err != nil {
			return fmt.Errorf("health: full publish: %w", err)
		}
		h.needFull = false
		h.last = h.cur
		return nil
	}

	var errs []string
	field := func(name string, old, now uint16, commit func()) {
		if old == now {
			return
		}
		payload := []byte(strconv.Itoa(int(now)))
		if err := h.pub.Publish(h.topic+"/"+name, h.qos, true, payload); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			return
		}
		commit()
	}

	field("health_code", uint16(h.last.Code), uint16(h.cur.Code), func() { h.last.Code = h.cur.Code })
	field("last_error_code", h.last.LastErrorCode, h.cur.LastErrorCode, func() { h.last.LastErrorCode = h.cur.LastErrorCode })
	field("seconds_in_error", h.last.SecondsInError, h.cur.SecondsInError, func() { h.last.SecondsInError = h.cur.SecondsInError })

	if len(errs) > 0 {
		// Partial delivery leaves subscribers in doubt; re-assert next time.
		h.needFull = true
		return errors.New("health: " + strings.Join(errs, " | "))
	}
	return nil
}

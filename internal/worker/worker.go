// internal/worker/worker.go

// Package worker drains the uplink queue: oldest entry first, only when the
// device reports ready, removing an entry only after confirmed delivery.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/clock"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/history"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/logging"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/queue"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/status"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/uplink"
)

// Device is the session surface the worker drives.
type Device interface {
	ModuleStatus() (status.ModuleStatus, error)
	IsUploadAvailable() (bool, error)
	SendData(ctx context.Context, payload any) (uplink.Result, error)
}

// Queue is the durable store the worker consumes.
type Queue interface {
	Head() (queue.Entry, bool, error)
	Remove(e queue.Entry) error
}

// Log records finished attempts.
type Log interface {
	AddUplink(r history.UplinkRecord) error
}

// Timing holds the loop's back-off intervals.
type Timing struct {
	Idle        time.Duration // queue empty
	Retry       time.Duration // not ready, failed attempt, or store error
	StopTimeout time.Duration // bound on Stop's join
}

// DefaultTiming is 5s idle, 10s retry, 15s stop bound.
func DefaultTiming() Timing {
	return Timing{Idle: 5 * time.Second, Retry: 10 * time.Second, StopTimeout: 15 * time.Second}
}

// Outcome is the result of one cycle.
type Outcome int

const (
	OutcomeIdle      Outcome = iota // nothing queued
	OutcomeNotReady                 // readiness gate closed
	OutcomeDelivered                // sent and removed
	OutcomeFailed                   // attempt failed; entry kept
	OutcomeStoreError               // queue could not be read or rewritten
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeNotReady:
		return "not-ready"
	case OutcomeDelivered:
		return "delivered"
	case OutcomeFailed:
		return "failed"
	case OutcomeStoreError:
		return "store-error"
	}
	return "unknown"
}

// Attempt describes one delivery attempt, for observers.
type Attempt struct {
	Entry  queue.Entry
	Result uplink.Result
	Err    error
}

// Worker is the singleton upload loop.
type Worker struct {
	dev    Device
	q      Queue
	hist   Log
	timing Timing
	log    *logging.Logger

	// OnAttempt, when set before Start, observes every delivery attempt.
	OnAttempt func(Attempt)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a worker. hist may be nil.
func New(dev Device, q Queue, hist Log, timing Timing, log *logging.Logger) *Worker {
	def := DefaultTiming()
	if timing.Idle <= 0 {
		timing.Idle = def.Idle
	}
	if timing.Retry <= 0 {
		timing.Retry = def.Retry
	}
	if timing.StopTimeout <= 0 {
		timing.StopTimeout = def.StopTimeout
	}
	return &Worker{dev: dev, q: q, hist: hist, timing: timing, log: logging.OrDiscard(log)}
}

// Start launches the loop on its own goroutine.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("worker: already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		w.Run(ctx)
	}(w.done)
	w.log.Info("upload worker started")
	return nil
}

// Stop clears the running flag and joins the loop for at most
// Timing.StopTimeout. Idle and retry sleeps end at once; an attempt in flight
// runs to its verdict so a delivered entry is logged and removed.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	select {
	case <-done:
		w.log.Info("upload worker stopped")
		return nil
	case <-time.After(w.timing.StopTimeout):
		return fmt.Errorf("worker: did not stop within %v", w.timing.StopTimeout)
	}
}

// Running reports whether Start has been called without a matching Stop.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Run loops until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	for ctx.Err() == nil {
		var delay time.Duration
		switch o := w.RunOnce(ctx); o {
		case OutcomeIdle:
			delay = w.timing.Idle
		case OutcomeDelivered:
			delay = 0
		default:
			delay = w.timing.Retry
		}
		if clock.Sleep(ctx, delay) != nil {
			return
		}
	}
}

// RunOnce performs one cycle: dequeue-read, readiness gate, attempt.
func (w *Worker) RunOnce(ctx context.Context) Outcome {
	e, ok, err := w.q.Head()
	if err != nil {
		w.log.Error("queue read: %v", err)
		return OutcomeStoreError
	}
	if !ok {
		return OutcomeIdle
	}

	if ready, why := w.ready(); !ready {
		w.log.Verbose("device not ready (%s); %q stays queued", why, e.Label)
		return OutcomeNotReady
	}

	w.log.Info("sending %q queued at %s", e.Label, e.Timestamp)
	res, err := w.dev.SendData(context.WithoutCancel(ctx), json.RawMessage(e.Payload))
	w.record(e, res, err)

	if err != nil {
		w.log.Error("uplink of %q failed: %v", e.Label, err)
		return OutcomeFailed
	}
	if err := w.q.Remove(e); err != nil {
		// Delivered but still queued: it will be sent again.
		w.log.Error("delivered %q but could not remove it: %v", e.Label, err)
		return OutcomeStoreError
	}
	return OutcomeDelivered
}

func (w *Worker) ready() (bool, string) {
	st, err := w.dev.ModuleStatus()
	if err != nil {
		return false, err.Error()
	}
	if !st.AllReady {
		return false, "status " + st.String()
	}
	avail, err := w.dev.IsUploadAvailable()
	if err != nil {
		return false, err.Error()
	}
	if !avail {
		return false, "upload unavailable"
	}
	return true, ""
}

func (w *Worker) record(e queue.Entry, res uplink.Result, err error) {
	if w.OnAttempt != nil {
		w.OnAttempt(Attempt{Entry: e, Result: res, Err: err})
	}
	if w.hist == nil {
		return
	}
	rec := history.UplinkRecord{
		Success:  err == nil,
		Type:     e.Label,
		Payload:  e.Payload,
		Response: res.Response,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if herr := w.hist.AddUplink(rec); herr != nil {
		w.log.Error("uplink log: %v", herr)
	}
}

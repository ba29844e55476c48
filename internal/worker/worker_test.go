// internal/worker/worker_test.go
package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/atbridge"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/codec"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/devsim"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/fault"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/history"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/queue"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/register"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/session"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/status"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/uplink"
)

type fakeDevice struct {
	mu      sync.Mutex
	ready   bool
	avail   bool
	sendErr error
	sent    []string
}

func (d *fakeDevice) ModuleStatus() (status.ModuleStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ready {
		return status.Decode(0x0F, status.ModeNIDD), nil
	}
	return status.Decode(0x07, status.ModeNIDD), nil
}

func (d *fakeDevice) IsUploadAvailable() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.avail, nil
}

func (d *fakeDevice) SendData(_ context.Context, payload any) (uplink.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	text, err := codec.MarshalPayload(payload)
	if err != nil {
		return uplink.Result{}, err
	}
	d.sent = append(d.sent, text)
	if d.sendErr != nil {
		return uplink.Result{Payload: text}, d.sendErr
	}
	return uplink.Result{Payload: text, Response: uplink.CompletedMarker}, nil
}

func (d *fakeDevice) sends() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

// slowDevice is always ready and holds each send until release is closed.
type slowDevice struct {
	started chan struct{}
	release chan struct{}
}

func (d *slowDevice) ModuleStatus() (status.ModuleStatus, error) {
	return status.Decode(0x0F, status.ModeNIDD), nil
}

func (d *slowDevice) IsUploadAvailable() (bool, error) { return true, nil }

func (d *slowDevice) SendData(ctx context.Context, payload any) (uplink.Result, error) {
	close(d.started)
	select {
	case <-d.release:
		return uplink.Result{Response: uplink.CompletedMarker}, nil
	case <-ctx.Done():
		return uplink.Result{}, fault.Wrap(fault.ErrDelivery, "uplink response", ctx.Err())
	}
}

type memLog struct {
	mu   sync.Mutex
	recs []history.UplinkRecord
}

func (l *memLog) AddUplink(r history.UplinkRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recs = append(l.recs, r)
	return nil
}

func (l *memLog) records() []history.UplinkRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]history.UplinkRecord(nil), l.recs...)
}

func openQueue(t *testing.T) *queue.Store {
	t.Helper()
	q, err := queue.Open(filepath.Join(t.TempDir(), "temp_data_queue.json"), nil)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	return q
}

func fastTiming() Timing {
	return Timing{Idle: time.Millisecond, Retry: time.Millisecond, StopTimeout: time.Second}
}

func TestReadinessGateKeepsEntry(t *testing.T) {
	q := openQueue(t)
	if _, err := q.Append("Location data", `{"m":[1,2,3,4]}`); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name         string
		ready, avail bool
	}{
		{"status not ready", false, true},
		{"upload unavailable", true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dev := &fakeDevice{ready: tc.ready, avail: tc.avail}
			w := New(dev, q, nil, fastTiming(), nil)

			if got := w.RunOnce(context.Background()); got != OutcomeNotReady {
				t.Fatalf("outcome %v", got)
			}
			if len(dev.sends()) != 0 {
				t.Fatalf("sent while not ready")
			}
			if _, ok, _ := q.Head(); !ok {
				t.Fatalf("entry consumed while not ready")
			}
		})
	}
}

func TestRunOnceEmptyQueue(t *testing.T) {
	w := New(&fakeDevice{ready: true, avail: true}, openQueue(t), nil, fastTiming(), nil)
	if got := w.RunOnce(context.Background()); got != OutcomeIdle {
		t.Fatalf("outcome %v", got)
	}
}

func TestFailedAttemptKeepsEntryAndLogs(t *testing.T) {
	q := openQueue(t)
	q.Append("Downlink triggered", `{"d":"x"}`)

	dev := &fakeDevice{ready: true, avail: true, sendErr: fault.Wrap(fault.ErrDelivery, "uplink", errors.New("Uplink Failed"))}
	hist := &memLog{}
	var seen []Attempt
	w := New(dev, q, hist, fastTiming(), nil)
	w.OnAttempt = func(a Attempt) { seen = append(seen, a) }

	if got := w.RunOnce(context.Background()); got != OutcomeFailed {
		t.Fatalf("outcome %v", got)
	}
	if _, ok, _ := q.Head(); !ok {
		t.Fatalf("failed entry was removed")
	}
	recs := hist.records()
	if len(recs) != 1 || recs[0].Success || recs[0].Error == "" || recs[0].Type != "Downlink triggered" {
		t.Fatalf("records %+v", recs)
	}
	if len(seen) != 1 || seen[0].Err == nil {
		t.Fatalf("attempts %+v", seen)
	}
}

func TestDeliversInOrder(t *testing.T) {
	q := openQueue(t)
	q.Append("first", `{"n":1}`)
	q.Append("second", `{"n":2}`)

	dev := &fakeDevice{ready: true, avail: true}
	hist := &memLog{}
	w := New(dev, q, hist, fastTiming(), nil)

	for i := 0; i < 2; i++ {
		if got := w.RunOnce(context.Background()); got != OutcomeDelivered {
			t.Fatalf("cycle %d outcome %v", i, got)
		}
	}
	sent := dev.sends()
	if len(sent) != 2 || sent[0] != `{"n":1}` || sent[1] != `{"n":2}` {
		t.Fatalf("sent %q", sent)
	}
	if _, ok, _ := q.Head(); ok {
		t.Fatalf("queue not drained")
	}
	for _, r := range hist.records() {
		if !r.Success || r.Response != uplink.CompletedMarker {
			t.Fatalf("record %+v", r)
		}
	}
}

func TestEndToEndThroughDevice(t *testing.T) {
	dev := devsim.New(register.ServiceModeNIDD)
	s := session.New(register.New(dev, nil, nil), session.Config{
		Command:  atbridge.Timing{Reset: time.Millisecond, Query: time.Millisecond, Default: time.Millisecond},
		Uplink:   uplink.Timing{PollInterval: time.Millisecond, MaxPolls: 5},
		Downlink: time.Millisecond,
	}, nil)
	defer s.Stop()
	if err := s.SetPassword(session.DefaultPassword); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}

	q := openQueue(t)
	const payload = `{"m":[1.23,4.56,-100.0,-5.0]}`
	q.Append("Location data", payload)

	hist, err := history.Open(filepath.Join(t.TempDir(), "hestia_info.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	w := New(s, q, hist, fastTiming(), nil)
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok, _ := q.Head(); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("entry never delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	ups := dev.Uplinks()
	if len(ups) != 1 || ups[0] != payload {
		t.Fatalf("device received %q", ups)
	}
	doc, err := hist.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Uplinks) != 1 || !doc.Uplinks[0].Success || doc.Uplinks[0].Payload != payload {
		t.Fatalf("uplink log %+v", doc.Uplinks)
	}
}

func TestStartStop(t *testing.T) {
	w := New(&fakeDevice{}, openQueue(t), nil, Timing{Idle: time.Hour, Retry: time.Hour, StopTimeout: time.Second}, nil)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err == nil {
		t.Fatalf("second Start accepted")
	}
	if !w.Running() {
		t.Fatalf("not running")
	}

	// The loop is parked in an hour-long idle sleep; Stop must still return.
	start := time.Now()
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Stop took %v", time.Since(start))
	}
	if w.Running() {
		t.Fatalf("still running")
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestStopLetsDeliveryInFlightFinish(t *testing.T) {
	q := openQueue(t)
	q.Append("Location data", `{"m":[1,2,3,4]}`)

	dev := &slowDevice{started: make(chan struct{}), release: make(chan struct{})}
	hist := &memLog{}
	w := New(dev, q, hist, Timing{Idle: time.Hour, Retry: time.Hour, StopTimeout: 5 * time.Second}, nil)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	select {
	case <-dev.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("send never started")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- w.Stop() }()

	select {
	case err := <-stopped:
		t.Fatalf("Stop returned during the exchange: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	close(dev.release)
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Stop did not return after the exchange finished")
	}

	if _, ok, _ := q.Head(); ok {
		t.Fatalf("delivered entry still queued")
	}
	recs := hist.records()
	if len(recs) != 1 || !recs[0].Success {
		t.Fatalf("records %+v", recs)
	}
}

func TestStopTimeoutBoundsJoin(t *testing.T) {
	q := openQueue(t)
	q.Append("Location data", `{"m":[1,2,3,4]}`)

	dev := &slowDevice{started: make(chan struct{}), release: make(chan struct{})}
	w := New(dev, q, nil, Timing{Idle: time.Hour, Retry: time.Hour, StopTimeout: 20 * time.Millisecond}, nil)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	<-dev.started

	if err := w.Stop(); err == nil {
		t.Fatalf("Stop reported success with a send still in flight")
	}

	close(dev.release)
	<-w.done
}

// internal/poller/poller_test.go
package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/session"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/status"
)

type fakeSource struct {
	failStatus    bool
	failTelemetry bool
}

func (f *fakeSource) ModuleStatus() (status.ModuleStatus, error) {
	if f.failStatus {
		return status.ModuleStatus{}, errors.New("fail status")
	}
	return status.Decode(0x0F, status.ModeNIDD), nil
}

func (f *fakeSource) IsUploadAvailable() (bool, error) {
	return true, nil
}

func (f *fakeSource) ReadTelemetry() (session.Telemetry, error) {
	if f.failTelemetry {
		return session.Telemetry{}, errors.New("fail telemetry")
	}
	imsi := "001010123456789"
	return session.Telemetry{IMSI: &imsi}, nil
}

type fakeCommander struct {
	resp string
	err  error
}

func (f *fakeCommander) Command(context.Context, string) (string, error) {
	return f.resp, f.err
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}, &fakeSource{}, nil); err == nil {
		t.Fatalf("zero interval accepted")
	}
	if _, err := New(Config{Interval: time.Second}, nil, nil); err == nil {
		t.Fatalf("nil source accepted")
	}
	if _, err := New(Config{Interval: time.Second, LoRa: true}, &fakeSource{}, nil); err == nil {
		t.Fatalf("lora without commander accepted")
	}
}

func TestPollOnce_Success(t *testing.T) {
	p, err := New(Config{Interval: time.Second, LoRa: true}, &fakeSource{},
		&fakeCommander{resp: "0A0B0C0D,AABB,-90,7"})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	snap := p.PollOnce(context.Background())
	if snap.Err() != nil {
		t.Fatalf("PollOnce err=%v", snap.Err())
	}
	if snap.Status == nil || !snap.Status.AllReady {
		t.Fatalf("status %+v", snap.Status)
	}
	if snap.UploadAvailable == nil || !*snap.UploadAvailable {
		t.Fatalf("upload flag missing")
	}
	if snap.Telemetry == nil || *snap.Telemetry.IMSI != "001010123456789" {
		t.Fatalf("telemetry %+v", snap.Telemetry)
	}
	if snap.LoRa == nil || snap.LoRa.RSSI != "-90" {
		t.Fatalf("lora %+v", snap.LoRa)
	}
}

func TestPollOnce_PartialFailure(t *testing.T) {
	p, err := New(Config{Interval: time.Second}, &fakeSource{failTelemetry: true}, nil)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	snap := p.PollOnce(context.Background())
	if snap.Err() == nil {
		t.Fatalf("expected error, got nil")
	}
	if snap.Telemetry != nil {
		t.Fatalf("failed group should stay nil")
	}
	if snap.Status == nil {
		t.Fatalf("independent group lost")
	}
	if snap.LoRa != nil {
		t.Fatalf("lora queried while disabled")
	}
}

func TestRunEmitsUntilCancelled(t *testing.T) {
	p, err := New(Config{Interval: time.Millisecond}, &fakeSource{}, nil)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Snapshot)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, out)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-out:
		case <-time.After(2 * time.Second):
			t.Fatalf("no snapshot emitted")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

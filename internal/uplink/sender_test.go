// internal/uplink/sender_test.go
package uplink

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/codec"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/devsim"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/fault"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/register"
)

func fastTiming(polls int) Timing {
	return Timing{PollInterval: time.Millisecond, MaxPolls: polls}
}

// ---- recording fake ----

type chunkWrite struct {
	addr  uint16
	words []uint16
}

type recordingRegs struct {
	writes    []chunkWrite
	failAt    int // 1-based write index that fails; 0 = never
	response  string
	lenReads  int
	readyPoll int // response length becomes visible on this poll (1-based)
}

func (r *recordingRegs) WriteMany(addr uint16, words []uint16) error {
	r.writes = append(r.writes, chunkWrite{addr, append([]uint16(nil), words...)})
	if r.failAt == len(r.writes) {
		return fault.Transient("write", errors.New("crc error"))
	}
	return nil
}

func (r *recordingRegs) Read(addr uint16) (uint16, error) {
	if addr != register.UplinkResponseLength {
		return 0, errors.New("unexpected read")
	}
	r.lenReads++
	if r.response == "" || r.lenReads < r.readyPoll {
		return 0, nil
	}
	return uint16(len(codec.PackBytes([]byte(r.response)))), nil
}

func (r *recordingRegs) ReadMany(addr, count uint16) ([]uint16, error) {
	return codec.PackBytes([]byte(r.response)), nil
}

// ---- tests ----

func TestSendDeliversPayloadThroughDevice(t *testing.T) {
	dev := devsim.New(register.ServiceModeUDP)
	s := New(register.New(dev, nil, nil), nil, fastTiming(5), nil)

	payload := map[string][]float64{"m": {1.23, 4.56, -100.0, -5.0}}
	res, err := s.Send(context.Background(), payload)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.Contains(res.Response, CompletedMarker) {
		t.Fatalf("response %q", res.Response)
	}

	up := dev.Uplinks()
	if len(up) != 1 || up[0] != `{"m":[1.23,4.56,-100,-5]}` {
		t.Fatalf("device received %q", up)
	}
}

func TestSendLargePayloadChunking(t *testing.T) {
	r := &recordingRegs{response: "Uplink Completed\r\n"}
	s := New(r, nil, fastTiming(3), nil)

	text := strings.Repeat("x", 200) // 400 hex chars + CRLF = 201 words
	res, err := s.Send(context.Background(), text)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	want := codec.EncodePayload(text)
	if res.Chunks != 4 || len(r.writes) != 4 {
		t.Fatalf("chunks=%d writes=%d", res.Chunks, len(r.writes))
	}

	var joined []uint16
	for i, w := range r.writes {
		if w.addr != register.UplinkStart+uint16(i*codec.MaxChunkWords) {
			t.Fatalf("chunk %d at 0x%04X", i, w.addr)
		}
		if i < len(r.writes)-1 && len(w.words) != codec.MaxChunkWords {
			t.Fatalf("chunk %d has %d words", i, len(w.words))
		}
		joined = append(joined, w.words...)
	}
	if len(joined) != len(want) {
		t.Fatalf("joined %d words, want %d", len(joined), len(want))
	}
	for i := range want {
		if joined[i] != want[i] {
			t.Fatalf("word %d differs", i)
		}
	}
}

func TestSendWaitsForResponse(t *testing.T) {
	r := &recordingRegs{response: "Uplink Completed", readyPoll: 3}
	s := New(r, nil, fastTiming(5), nil)

	if _, err := s.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if r.lenReads != 3 {
		t.Fatalf("polled %d times", r.lenReads)
	}
}

func TestSendWithoutCompletionFails(t *testing.T) {
	dev := devsim.New(register.ServiceModeNIDD)
	dev.OnUplink(func(string) string { return "Uplink Failed" })
	s := New(register.New(dev, nil, nil), nil, fastTiming(5), nil)

	res, err := s.Send(context.Background(), `{"a":1}`)
	if !errors.Is(err, fault.ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
	if res.Response != "Uplink Failed" {
		t.Fatalf("response %q", res.Response)
	}
}

func TestSendPayloadWindowLimit(t *testing.T) {
	r := &recordingRegs{response: "Uplink Completed"}
	s := New(r, nil, fastTiming(1), nil)

	// n bytes of text encode to n+1 registers.
	_, err := s.Send(context.Background(), strings.Repeat("z", register.UplinkMaxWords))
	if !errors.Is(err, fault.ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
	if len(r.writes) != 0 {
		t.Fatalf("oversized payload reached the device: %d writes", len(r.writes))
	}

	if _, err := s.Send(context.Background(), strings.Repeat("z", register.UplinkMaxWords-1)); err != nil {
		t.Fatalf("largest payload rejected: %v", err)
	}
	last := r.writes[len(r.writes)-1]
	if end := int(last.addr) + len(last.words); end != int(register.UplinkResponseLength) {
		t.Fatalf("transfer ends at 0x%04X", end)
	}
}

func TestSendChunkWriteFailureStops(t *testing.T) {
	r := &recordingRegs{failAt: 2, response: "Uplink Completed"}
	s := New(r, nil, fastTiming(3), nil)

	_, err := s.Send(context.Background(), strings.Repeat("y", 100))
	if !errors.Is(err, fault.ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
	if !errors.Is(err, fault.ErrTransient) {
		t.Fatalf("expected transient cause, got %v", err)
	}
	if len(r.writes) != 2 {
		t.Fatalf("kept writing after failure: %d writes", len(r.writes))
	}
	if r.lenReads != 0 {
		t.Fatalf("polled for a response after a failed transfer")
	}
}

func TestSendBoundedWait(t *testing.T) {
	dev := devsim.New(register.ServiceModeUDP)
	dev.OnUplink(func(string) string { return "" })
	s := New(register.New(dev, nil, nil), nil, fastTiming(4), nil)

	start := time.Now()
	_, err := s.Send(context.Background(), "silence")
	if !errors.Is(err, fault.ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("wait was not bounded")
	}
}

func TestSendCancelled(t *testing.T) {
	r := &recordingRegs{}
	s := New(r, nil, Timing{PollInterval: time.Hour, MaxPolls: 10}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Send(ctx, "x")
	if !errors.Is(err, fault.ErrDelivery) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled delivery failure, got %v", err)
	}
}

func TestSendRejectsNilPayload(t *testing.T) {
	r := &recordingRegs{}
	s := New(r, nil, fastTiming(1), nil)
	if _, err := s.Send(context.Background(), nil); !errors.Is(err, fault.ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
	if len(r.writes) != 0 {
		t.Fatalf("nil payload reached the device")
	}
}

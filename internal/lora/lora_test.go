// internal/lora/lora_test.go
package lora

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeCommander struct {
	sent    []string
	answers map[string]string // prefix -> response
	failing map[string]bool   // prefix -> transport error
}

func (f *fakeCommander) Command(_ context.Context, cmd string) (string, error) {
	f.sent = append(f.sent, cmd)
	for prefix := range f.failing {
		if strings.HasPrefix(cmd, prefix) {
			return "", errors.New("no data yet")
		}
	}
	for prefix, resp := range f.answers {
		if strings.HasPrefix(cmd, prefix) {
			return resp, nil
		}
	}
	return "\r\nOK\r\n", nil
}

func device(idx int, id string) Device {
	return Device{
		Index:  idx,
		ID:     id,
		NSKey:  strings.Repeat("a", 32),
		AppKey: strings.Repeat("b", 32),
	}
}

func TestValidateDevices(t *testing.T) {
	cases := []struct {
		name string
		devs []Device
		ok   bool
	}{
		{"empty", nil, true},
		{"one", []Device{device(0, "0011aabb")}, true},
		{"duplicate index", []Device{device(1, "0011aabb"), device(1, "0011aabc")}, false},
		{"index out of range", []Device{device(16, "0011aabb")}, false},
		{"short id", []Device{device(0, "0011")}, false},
		{"short key", []Device{{Index: 0, ID: "0011aabb", NSKey: "ab", AppKey: strings.Repeat("b", 32)}}, false},
	}
	for _, tc := range cases {
		err := ValidateDevices(tc.devs)
		if (err == nil) != tc.ok {
			t.Fatalf("%s: err=%v", tc.name, err)
		}
	}

	var many []Device
	for i := 0; i < 17; i++ {
		many = append(many, device(i%16, "0011aabb"))
	}
	if err := ValidateDevices(many); err == nil {
		t.Fatalf("17 devices accepted")
	}
}

func TestConfigureSequence(t *testing.T) {
	fc := &fakeCommander{}
	var last int
	p := NewProvisioner(fc, func(pct int, _ string) { last = pct }, nil)

	err := p.Configure(context.Background(), Radio{Frequency: "923200000", SF: "9"})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	want := []string{"AT+BISFMT=1", "AT+BISRXF=923200000", "AT+BISRXSF=9", "AT+BISS", "ATZ"}
	if strings.Join(fc.sent, "|") != strings.Join(want, "|") {
		t.Fatalf("sent %v", fc.sent)
	}
	if last != 100 {
		t.Fatalf("progress ended at %d", last)
	}
}

func TestConfigureReportsRejectedStep(t *testing.T) {
	fc := &fakeCommander{answers: map[string]string{"AT+BISRXSF=": "\r\nERROR\r\n"}}
	p := NewProvisioner(fc, nil, nil)

	err := p.Configure(context.Background(), Radio{SF: "13", ChannelPlan: "AS923"})
	if err == nil || !strings.Contains(err.Error(), "AT+BISRXSF=13") {
		t.Fatalf("expected rejected SF step, got %v", err)
	}
	if got := fc.sent[len(fc.sent)-1]; got != "ATZ" {
		t.Fatalf("sequence did not reach reset: %v", fc.sent)
	}
}

func TestConfigureDevices(t *testing.T) {
	fc := &fakeCommander{}
	p := NewProvisioner(fc, nil, nil)

	devs := []Device{device(3, "0011aabb")}
	failed, err := p.ConfigureDevices(context.Background(), devs)
	if err != nil || len(failed) != 0 {
		t.Fatalf("ConfigureDevices: %v %v", failed, err)
	}

	if len(fc.sent) != MaxDevices+3 {
		t.Fatalf("%d commands sent", len(fc.sent))
	}
	clear0 := "AT+BISDEV=0:ffffffff:" + strings.Repeat("f", 32) + ":" + strings.Repeat("f", 32)
	if fc.sent[0] != clear0 {
		t.Fatalf("first command %q", fc.sent[0])
	}
	wantDev := "AT+BISDEV=3:0011aabb:" + strings.Repeat("a", 32) + ":" + strings.Repeat("b", 32)
	if fc.sent[MaxDevices] != wantDev {
		t.Fatalf("device command %q", fc.sent[MaxDevices])
	}
}

func TestConfigureDevicesRequiresExactOK(t *testing.T) {
	fc := &fakeCommander{answers: map[string]string{"AT+BISDEV=5:ffffffff": "OK but not really"}}
	p := NewProvisioner(fc, nil, nil)

	failed, err := p.ConfigureDevices(context.Background(), []Device{device(1, "0011aabb")})
	if err == nil {
		t.Fatalf("expected failure")
	}
	if len(failed) != 1 || failed[0] != 5 {
		t.Fatalf("failed slots %v", failed)
	}
	for _, c := range fc.sent {
		if strings.HasPrefix(c, "AT+BISDEV=1:0011aabb:") {
			t.Fatalf("devices written after a slot failed to clear")
		}
	}
}

func TestConfigureDevicesRejectsInvalid(t *testing.T) {
	fc := &fakeCommander{}
	p := NewProvisioner(fc, nil, nil)
	if _, err := p.ConfigureDevices(context.Background(), []Device{device(0, "x")}); err == nil {
		t.Fatalf("invalid device accepted")
	}
	if len(fc.sent) != 0 {
		t.Fatalf("commands sent for invalid configuration")
	}
}

func TestQueryReport(t *testing.T) {
	fc := &fakeCommander{answers: map[string]string{"AT+BISGET=": "0A0B0C0D,48656c6c6f,-101,6.5"}}
	r, err := QueryReport(context.Background(), fc)
	if err != nil {
		t.Fatalf("QueryReport: %v", err)
	}
	if r.DevAddr != "0A0B0C0D" || r.Data != "48656c6c6f" || r.RSSI != "-101" || r.SNR != "6.5" {
		t.Fatalf("report %+v", r)
	}

	if _, err := ParseReport("only,two"); err == nil {
		t.Fatalf("malformed report accepted")
	}
}

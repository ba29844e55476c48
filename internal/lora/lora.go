// internal/lora/lora.go

// Package lora provisions the dongle's LoRa receiver through AT commands.
package lora

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/logging"
)

// MaxDevices is the number of device slots on the receiver.
const MaxDevices = 16

const (
	idLength  = 8
	keyLength = 32
)

// Commander runs one AT exchange.
type Commander interface {
	Command(ctx context.Context, cmd string) (string, error)
}

// Progress receives a completion percentage and a message.
type Progress func(percent int, msg string)

// Radio is the receiver's RF configuration. Empty fields are left unchanged.
type Radio struct {
	Frequency   string `yaml:"frequency"`
	SF          string `yaml:"sf"`
	ChannelPlan string `yaml:"ch_plan"`
}

// Device is one provisioned end node.
type Device struct {
	Index  int    `yaml:"idx"`
	ID     string `yaml:"id"`
	NSKey  string `yaml:"ns_key"`
	AppKey string `yaml:"app_key"`
}

func (d Device) command() string {
	return fmt.Sprintf("AT+BISDEV=%d:%s:%s:%s", d.Index, d.ID, d.NSKey, d.AppKey)
}

// clearSlot is the all-f credential set that empties a slot.
func clearSlot(i int) Device {
	return Device{
		Index:  i,
		ID:     strings.Repeat("f", idLength),
		NSKey:  strings.Repeat("f", keyLength),
		AppKey: strings.Repeat("f", keyLength),
	}
}

// ValidateDevices checks slot count, index range and uniqueness, and
// credential lengths.
func ValidateDevices(devs []Device) error {
	if len(devs) > MaxDevices {
		return fmt.Errorf("lora: %d devices, maximum is %d", len(devs), MaxDevices)
	}
	seen := make(map[int]bool, len(devs))
	for i, d := range devs {
		if d.Index < 0 || d.Index >= MaxDevices {
			return fmt.Errorf("lora: devices[%d]: index %d out of range 0..%d", i, d.Index, MaxDevices-1)
		}
		if seen[d.Index] {
			return fmt.Errorf("lora: devices[%d]: index %d already in use", i, d.Index)
		}
		seen[d.Index] = true

		if len(d.ID) != idLength {
			return fmt.Errorf("lora: devices[%d]: id must be exactly %d characters", i, idLength)
		}
		if len(d.NSKey) != keyLength {
			return fmt.Errorf("lora: devices[%d]: ns_key must be exactly %d characters", i, keyLength)
		}
		if len(d.AppKey) != keyLength {
			return fmt.Errorf("lora: devices[%d]: app_key must be exactly %d characters", i, keyLength)
		}
	}
	return nil
}

// Provisioner drives the setup sequences.
type Provisioner struct {
	cmd      Commander
	progress Progress
	log      *logging.Logger
}

// NewProvisioner creates a provisioner. progress may be nil.
func NewProvisioner(cmd Commander, progress Progress, log *logging.Logger) *Provisioner {
	if progress == nil {
		progress = func(int, string) {}
	}
	return &Provisioner{cmd: cmd, progress: progress, log: logging.OrDiscard(log)}
}

// Configure sets the frame format and RF parameters, saves, and resets the
// module. Steps whose response lacks "OK" are reported in the returned error;
// the sequence still runs to the final save and reset.
func (p *Provisioner) Configure(ctx context.Context, r Radio) error {
	var errs []error

	p.progress(20, "setting frame format")
	if err := p.expectOK(ctx, "AT+BISFMT=1"); err != nil {
		errs = append(errs, err)
	}
	p.progress(40, "frame format set")

	steps := []struct {
		value string
		cmd   string
		pct   int
		name  string
	}{
		{r.Frequency, "AT+BISRXF=", 55, "frequency"},
		{r.SF, "AT+BISRXSF=", 70, "spreading factor"},
		{r.ChannelPlan, "AT+BISCHPLAN=", 85, "channel plan"},
	}
	for _, st := range steps {
		if st.value == "" {
			continue
		}
		if err := p.expectOK(ctx, st.cmd+st.value); err != nil {
			errs = append(errs, err)
			p.progress(st.pct, fmt.Sprintf("failed to set %s %s", st.name, st.value))
			continue
		}
		p.progress(st.pct, fmt.Sprintf("set %s %s", st.name, st.value))
	}

	if err := p.finalize(ctx); err != nil {
		errs = append(errs, err)
	}
	return p.done(errors.Join(errs...))
}

// ConfigureDevices empties every slot, writes devs, then saves and resets.
// It returns the slot indexes that did not answer "OK". Devices are written
// only when every slot cleared.
func (p *Provisioner) ConfigureDevices(ctx context.Context, devs []Device) ([]int, error) {
	if err := ValidateDevices(devs); err != nil {
		return nil, err
	}

	var failed []int

	p.progress(25, "clearing device slots")
	for i := 0; i < MaxDevices; i++ {
		if err := p.expectExactOK(ctx, clearSlot(i).command()); err != nil {
			if ctx.Err() != nil {
				return failed, ctx.Err()
			}
			failed = append(failed, i)
		}
		p.progress(25+(i+1)*25/MaxDevices, fmt.Sprintf("cleared slot %d", i))
	}

	if len(failed) == 0 {
		if len(devs) == 0 {
			p.progress(90, "no devices to configure")
		}
		for n, d := range devs {
			if err := p.expectExactOK(ctx, d.command()); err != nil {
				if ctx.Err() != nil {
					return failed, ctx.Err()
				}
				failed = append(failed, d.Index)
				p.progress(55+(n+1)*35/len(devs), fmt.Sprintf("failed to configure device %d", d.Index))
				continue
			}
			p.progress(55+(n+1)*35/len(devs), fmt.Sprintf("configured device %d (%s)", d.Index, d.ID))
		}
	}

	err := p.finalize(ctx)
	if err == nil && len(failed) > 0 {
		err = fmt.Errorf("lora: %d device slots failed", len(failed))
	}
	return failed, p.done(err)
}

// Report is one LoRa receive report.
type Report struct {
	DevAddr string `json:"dev_addr" yaml:"dev_addr"`
	Data    string `json:"data" yaml:"data"`
	RSSI    string `json:"rssi" yaml:"rssi"`
	SNR     string `json:"snr" yaml:"snr"`
}

// ParseReport splits "devAddr,data,rssi,snr".
func ParseReport(s string) (Report, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) < 4 {
		return Report{}, fmt.Errorf("lora: malformed report %q", s)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return Report{DevAddr: parts[0], Data: parts[1], RSSI: parts[2], SNR: parts[3]}, nil
}

// QueryReport asks the receiver for its latest report.
func QueryReport(ctx context.Context, c Commander) (Report, error) {
	resp, err := c.Command(ctx, "AT+BISGET=?")
	if err != nil {
		return Report{}, err
	}
	return ParseReport(resp)
}

func (p *Provisioner) finalize(ctx context.Context) error {
	p.progress(95, "saving and resetting")
	var errs []error
	for _, c := range []string{"AT+BISS", "ATZ"} {
		resp, err := p.cmd.Command(ctx, c)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c, err))
			continue
		}
		p.log.Info("%s: %s", c, strings.TrimSpace(resp))
	}
	return errors.Join(errs...)
}

func (p *Provisioner) done(err error) error {
	if err != nil {
		p.log.Error("lora setup: %v", err)
		p.progress(100, "setup completed with errors")
		return err
	}
	p.progress(100, "setup completed")
	return nil
}

func (p *Provisioner) expectOK(ctx context.Context, cmd string) error {
	return p.expect(ctx, cmd, func(resp string) bool { return strings.Contains(resp, "OK") })
}

// expectExactOK requires the trimmed response to be exactly "OK".
func (p *Provisioner) expectExactOK(ctx context.Context, cmd string) error {
	return p.expect(ctx, cmd, func(resp string) bool { return resp == "OK" })
}

func (p *Provisioner) expect(ctx context.Context, cmd string, ok func(string) bool) error {
	resp, err := p.cmd.Command(ctx, cmd)
	if err != nil {
		p.log.Error("%s: %v", cmd, err)
		return fmt.Errorf("%s: %w", cmd, err)
	}
	resp = strings.TrimSpace(resp)
	p.log.Verbose("%s: %s", cmd, resp)
	if !ok(resp) {
		return fmt.Errorf("%s: device answered %q", cmd, resp)
	}
	return nil
}

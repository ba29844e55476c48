// internal/config/validate.go
package config

import (
	"fmt"
	"strings"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/lora"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}

	// ------------------------------------------------------------
	// SERIAL
	// ------------------------------------------------------------

	s := cfg.Serial
	if strings.TrimSpace(s.Device) == "" {
		return fmt.Errorf("serial.device is required")
	}
	if s.SlaveID > 247 {
		return fmt.Errorf("serial.slave_id %d out of range 1..247", s.SlaveID)
	}
	if s.BaudRate < 0 {
		return fmt.Errorf("serial.baud_rate must be >= 0")
	}
	if s.DataBits != 0 && (s.DataBits < 5 || s.DataBits > 8) {
		return fmt.Errorf("serial.data_bits %d out of range 5..8", s.DataBits)
	}
	switch strings.ToUpper(s.Parity) {
	case "", "N", "E", "O":
	default:
		return fmt.Errorf("serial.parity %q must be N, E or O", s.Parity)
	}
	if s.StopBits != 0 && s.StopBits != 1 && s.StopBits != 2 {
		return fmt.Errorf("serial.stop_bits %d must be 1 or 2", s.StopBits)
	}
	if s.TimeoutMs < 0 {
		return fmt.Errorf("serial.timeout_ms must be >= 0")
	}

	// ------------------------------------------------------------
	// PASSWORD (4 words or omitted)
	// ------------------------------------------------------------

	if n := len(cfg.Password); n != 0 && n != 4 {
		return fmt.Errorf("password must have exactly 4 words, got %d", n)
	}

	// ------------------------------------------------------------
	// LOOP TIMINGS (0 means default)
	// ------------------------------------------------------------

	for name, v := range map[string]int{
		"worker.idle_ms":          cfg.Worker.IdleMs,
		"worker.retry_ms":         cfg.Worker.RetryMs,
		"worker.stop_timeout_ms":  cfg.Worker.StopTimeoutMs,
		"uplink.max_polls":        cfg.Uplink.MaxPolls,
		"uplink.poll_interval_ms": cfg.Uplink.PollIntervalMs,
		"poll.interval_ms":        cfg.Poll.IntervalMs,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be >= 0", name)
		}
	}

	// ------------------------------------------------------------
	// MQTT (opt-in)
	// ------------------------------------------------------------

	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", cfg.MQTT.QoS)
	}
	if cfg.MQTT.Broker == "" && cfg.MQTT.Username != "" {
		return fmt.Errorf("mqtt.username set without mqtt.broker")
	}

	// ------------------------------------------------------------
	// LORA DEVICES
	// ------------------------------------------------------------

	if err := lora.ValidateDevices(cfg.LoRa.LoRaDevices()); err != nil {
		return fmt.Errorf("lora.devices: %w", err)
	}

	// ------------------------------------------------------------
	// LOG
	// ------------------------------------------------------------

	switch strings.ToLower(cfg.Log.Level) {
	case "", "silent", "off", "error", "info", "verbose", "debug":
	default:
		return fmt.Errorf("log.level %q is not a known level", cfg.Log.Level)
	}

	return nil
}

// LoRaDevices converts the configured devices.
func (c LoRaConfig) LoRaDevices() []lora.Device {
	out := make([]lora.Device, 0, len(c.Devices))
	for _, d := range c.Devices {
		out = append(out, lora.Device{Index: d.Idx, ID: d.ID, NSKey: d.NSKey, AppKey: d.AppKey})
	}
	return out
}

// Radio returns the configured RF parameters.
func (c LoRaConfig) Radio() lora.Radio {
	return lora.Radio{Frequency: c.Frequency, SF: c.SF, ChannelPlan: c.ChannelPlan}
}

// internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/atbridge"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/downlink"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/fault"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/logging"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/register"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/status"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/uplink"
)

// DefaultPassword is the factory password, re-asserted on link loss.
var DefaultPassword = [4]uint16{0, 0, 0, 0}

// Config is everything a session needs from the application.
// Zero-valued timings are replaced with the protocol defaults.
type Config struct {
	Serial register.Config

	// Password is re-asserted when the downlink monitor loses the link.
	// The zero value is DefaultPassword.
	Password [4]uint16

	Command  atbridge.Timing
	Uplink   uplink.Timing
	Downlink time.Duration

	// OnDownlink receives every downlink payload. Optional.
	OnDownlink downlink.Handler

	// OnReset replaces the default-password re-assert on link loss. Optional.
	OnReset func()

	// StartPaused holds the downlink monitor until Resume. One-shot commands
	// use it so nothing is consumed between authentication and their exchange.
	StartPaused bool
}

// Session is one live connection to the dongle. It owns the transport and
// the downlink monitor goroutine.
type Session struct {
	regs     *register.Transport
	exchange sync.Mutex

	bridge  *atbridge.Bridge
	sender  *uplink.Sender
	monitor *downlink.Monitor
	log     *logging.Logger

	mu            sync.Mutex
	authenticated bool
	serviceMode   uint16
	activeMode    *uint16
	firmware      string

	stopOnce sync.Once
}

// Open connects the serial link and starts a session on it.
// A failure to open the link is the only fatal error.
func Open(cfg Config, log *logging.Logger) (*Session, error) {
	log = logging.OrDiscard(log)
	t, err := register.Open(cfg.Serial, log.With("modbus"))
	if err != nil {
		return nil, err
	}
	return New(t, cfg, log), nil
}

// New starts a session on an existing transport. The monitor goroutine is
// running when New returns but idles until SetPassword succeeds, or until
// Resume when cfg.StartPaused is set.
func New(t *register.Transport, cfg Config, log *logging.Logger) *Session {
	log = logging.OrDiscard(log)
	if cfg.Command == (atbridge.Timing{}) {
		cfg.Command = atbridge.DefaultTiming()
	}
	if cfg.Uplink == (uplink.Timing{}) {
		cfg.Uplink = uplink.DefaultTiming()
	}

	s := &Session{regs: t, log: log}
	s.bridge = atbridge.New(t, &s.exchange, cfg.Command, log.With("at"))
	s.sender = uplink.New(t, &s.exchange, cfg.Uplink, log.With("uplink"))
	s.monitor = downlink.New(t, &s.exchange, downlink.Config{
		Interval:      cfg.Downlink,
		Authenticated: s.Authenticated,
		OnData:        cfg.OnDownlink,
		OnReset:       cfg.OnReset,
		Reauth: func() error {
			return s.SetPassword(cfg.Password)
		},
	}, log.With("downlink"))
	if cfg.StartPaused {
		s.monitor.Pause()
	}
	s.monitor.Start()
	return s
}

// ---- authentication ----

// SetPassword writes the four password words. On acceptance it caches the
// firmware version and reads the service mode.
func (s *Session) SetPassword(p [4]uint16) error {
	err := s.regs.WriteMany(register.Password.Address, p[:])

	s.mu.Lock()
	s.authenticated = err == nil
	s.mu.Unlock()

	if err != nil {
		s.log.Error("password not accepted: %v", err)
		return err
	}
	s.log.Info("password accepted")

	if fw, err := s.readText(register.FirmwareVersion); err == nil {
		s.mu.Lock()
		s.firmware = fw
		s.mu.Unlock()
	}
	if _, err := s.RefreshServiceMode(); err != nil {
		s.log.Verbose("service mode not read: %v", err)
	}
	return nil
}

// Authenticated reports whether the last password write was accepted.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Firmware returns the firmware version cached at authentication.
func (s *Session) Firmware() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firmware
}

// ---- modes ----

// ServiceMode returns the last known service mode (0 until read).
func (s *Session) ServiceMode() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serviceMode
}

// RefreshServiceMode reads the service mode register and caches it.
func (s *Session) RefreshServiceMode() (uint16, error) {
	mode, err := s.regs.Read(register.ServiceMode.Address)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.serviceMode = mode
	s.mu.Unlock()
	s.log.Verbose("service mode %s", status.ModeName(mode))
	return mode, nil
}

// SetServiceMode overrides the mode used to decode the status register until
// the next refresh. The device's own mode is not changed.
func (s *Session) SetServiceMode(mode uint16) error {
	if mode != register.ServiceModeNIDD && mode != register.ServiceModeUDP {
		return fmt.Errorf("session: invalid service mode %d", mode)
	}
	s.mu.Lock()
	s.serviceMode = mode
	s.mu.Unlock()
	return nil
}

// ActiveMode reads the active mode holding register.
func (s *Session) ActiveMode() (uint16, error) {
	mode, err := s.regs.ReadHolding(register.ActiveMode.Address)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.activeMode = &mode
	s.mu.Unlock()
	return mode, nil
}

// LastActiveMode returns the last active mode read or written, if any.
func (s *Session) LastActiveMode() (uint16, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeMode == nil {
		return 0, false
	}
	return *s.activeMode, true
}

// SetActiveMode writes the active mode (0..3).
func (s *Session) SetActiveMode(mode uint16) error {
	if mode > register.MaxActiveMode {
		return fmt.Errorf("session: active mode %d out of range 0..%d", mode, register.MaxActiveMode)
	}
	if err := s.regs.WriteOne(register.ActiveMode.Address, mode); err != nil {
		return err
	}
	s.mu.Lock()
	s.activeMode = &mode
	s.mu.Unlock()
	return nil
}

// ---- status ----

// ModuleStatus reads and decodes the status register for the current mode.
func (s *Session) ModuleStatus() (status.ModuleStatus, error) {
	v, err := s.regs.Read(register.ModuleStatus.Address)
	if err != nil {
		return status.ModuleStatus{}, err
	}
	st := status.Decode(v, s.ServiceMode())
	s.log.Verbose("module status %08b (%s)", st.Raw, st)
	return st, nil
}

// IsUploadAvailable reports whether the device accepts a new uplink.
func (s *Session) IsUploadAvailable() (bool, error) {
	v, err := s.regs.Read(register.UploadAvailable.Address)
	if err != nil {
		return false, err
	}
	return v == register.UploadAvailableValue, nil
}

// ---- exchanges ----

// SendData runs one uplink transfer. It fails fast when not authenticated.
func (s *Session) SendData(ctx context.Context, payload any) (uplink.Result, error) {
	if !s.Authenticated() {
		return uplink.Result{}, fault.Wrap(fault.ErrNotAuthenticated, "send", nil)
	}
	return s.sender.Send(ctx, payload)
}

// Command runs one AT exchange.
func (s *Session) Command(ctx context.Context, cmd string) (string, error) {
	return s.bridge.Command(ctx, cmd)
}

// ---- lifecycle ----

// Pause suspends downlink polling.
func (s *Session) Pause() { s.monitor.Pause() }

// Resume restarts downlink polling.
func (s *Session) Resume() { s.monitor.Resume() }

// MonitorState returns the downlink monitor's lifecycle state.
func (s *Session) MonitorState() downlink.State { return s.monitor.State() }

// Stop joins the monitor and then releases the transport.
func (s *Session) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.monitor.Stop()
		err = s.regs.Close()
		s.mu.Lock()
		s.authenticated = false
		s.mu.Unlock()
		s.log.Info("session stopped")
	})
	return err
}

func (s *Session) readText(w register.Window) (string, error) {
	words, err := s.regs.ReadMany(w.Address, w.Count)
	if err != nil {
		return "", err
	}
	return decodeField(words)
}

var errNothingRead = errors.New("no register group could be read")

// internal/downlink/monitor.go
package downlink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/clock"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/codec"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/fault"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/logging"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/register"
)

// Registers is the register access the monitor needs.
type Registers interface {
	Read(addr uint16) (uint16, error)
	ReadMany(addr, count uint16) ([]uint16, error)
}

// Handler receives one reassembled downlink payload and its byte length.
// It runs on the monitor goroutine; a slow handler stalls polling.
type Handler func(data []byte, n int)

// Config wires the monitor to its session.
type Config struct {
	// Interval is the back-off between iterations. Default 1s.
	Interval time.Duration

	// Authenticated reports whether the device password is accepted.
	// The loop idles while it returns false.
	Authenticated func() bool

	// OnData is invoked for every non-empty downlink. Optional.
	OnData Handler

	// OnReset is invoked when the link looks lost. Optional.
	OnReset func()

	// Reauth re-asserts the default password when OnReset is nil.
	Reauth func() error
}

// State is the monitor's lifecycle position.
type State int

const (
	StateIdle State = iota // not authenticated
	StatePolling
	StatePaused
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Monitor polls the downlink window on its own goroutine.
type Monitor struct {
	regs     Registers
	exchange sync.Locker
	cfg      Config
	log      *logging.Logger

	mu       sync.Mutex
	gate     *sync.Cond
	paused   bool
	stopping bool
	state    State

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a monitor. exchange is the lock shared with the AT bridge and
// uplink sender. The monitor does not run until Start.
func New(regs Registers, exchange sync.Locker, cfg Config, log *logging.Logger) *Monitor {
	if exchange == nil {
		exchange = &sync.Mutex{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Authenticated == nil {
		cfg.Authenticated = func() bool { return true }
	}
	m := &Monitor{
		regs:     regs,
		exchange: exchange,
		cfg:      cfg,
		log:      logging.OrDiscard(log),
		done:     make(chan struct{}),
	}
	m.gate = sync.NewCond(&m.mu)
	return m
}

// Start launches the poll loop. It must be called at most once.
func (m *Monitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()
	go m.run(ctx)
}

// Pause blocks the loop before its next poll. An exchange already in flight
// completes first.
func (m *Monitor) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

// Resume releases a paused loop.
func (m *Monitor) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
	m.gate.Broadcast()
}

// Stop asks the loop to exit, unblocks a paused wait, and returns once the
// loop has acknowledged. No register exchange is in flight afterwards.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.cancel == nil {
		m.state = StateStopped
		m.mu.Unlock()
		return
	}
	m.stopping = true
	m.state = StateStopping
	m.paused = false
	m.gate.Broadcast()
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	<-m.done
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Poll performs one length-then-data exchange under the exchange lock.
// It returns fault.ErrNoData when nothing is waiting and fault.ErrTransient
// when the length register could not be read.
func (m *Monitor) Poll() ([]byte, error) {
	m.exchange.Lock()
	defer m.exchange.Unlock()

	n, err := m.regs.Read(register.DownlinkLength)
	if err != nil {
		return nil, fault.Transient("downlink length", err)
	}
	if n == 0 {
		return nil, fault.Wrap(fault.ErrNoData, "downlink", nil)
	}

	words, err := m.regs.ReadMany(register.DownlinkData, n)
	if err != nil {
		return nil, err
	}
	m.log.LogWords("downlink", words)
	return codec.UnpackWords(words), nil
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	defer m.setState(StateStopped)

	for {
		if !m.wait() {
			return
		}

		if !m.cfg.Authenticated() {
			m.setState(StateIdle)
			if clock.Sleep(ctx, m.cfg.Interval) != nil {
				return
			}
			continue
		}
		m.setState(StatePolling)

		data, err := m.Poll()
		switch {
		case err == nil:
			m.log.Info("downlink: %d bytes", len(data))
			if m.cfg.OnData != nil {
				m.cfg.OnData(data, len(data))
			}
		case errors.Is(err, fault.ErrNoData):
			m.log.Debug("downlink: nothing waiting")
		case errors.Is(err, fault.ErrTransient):
			m.log.Error("downlink: lost communication: %v", err)
			if clock.Sleep(ctx, m.cfg.Interval) != nil {
				return
			}
			m.recover()
		default:
			m.log.Error("downlink: %v", err)
		}

		if clock.Sleep(ctx, m.cfg.Interval) != nil {
			return
		}
	}
}

// wait blocks while paused. It returns false once Stop has been requested.
func (m *Monitor) wait() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.paused && !m.stopping {
		m.state = StatePaused
		m.gate.Wait()
	}
	return !m.stopping
}

func (m *Monitor) recover() {
	if m.cfg.OnReset != nil {
		m.cfg.OnReset()
		return
	}
	if m.cfg.Reauth == nil {
		return
	}
	if err := m.cfg.Reauth(); err != nil {
		m.log.Verbose("downlink: default password not accepted: %v", err)
	}
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopping && s != StateStopped {
		return
	}
	m.state = s
}

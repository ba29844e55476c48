// internal/register/transport.go
package register

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/fault"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/logging"
)

// Client is the subset of modbus.Client the transport drives.
// goburrow's RTU client satisfies it; tests substitute a simulated device.
type Client interface {
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

// Config is the serial link configuration supplied by the caller.
type Config struct {
	Device   string
	SlaveID  uint8
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
	Timeout  time.Duration
}

// Transport is one physical RS-485 link.
// Every register transaction holds mu for that single transaction only.
type Transport struct {
	mu     sync.Mutex
	client Client
	closer io.Closer
	log    *logging.Logger
}

// Open connects a Modbus RTU master on cfg.Device, or a Modbus TCP master
// when cfg.Device is a gateway address.
// This is the only fatal error the driver surfaces.
func Open(cfg Config, log *logging.Logger) (*Transport, error) {
	if cfg.Device == "" {
		return nil, errors.New("register: serial device required")
	}
	log = logging.OrDiscard(log)
	if IsGateway(cfg.Device) {
		return openGateway(cfg, log)
	}

	h := modbus.NewRTUClientHandler(cfg.Device)
	h.BaudRate = cfg.BaudRate
	h.DataBits = cfg.DataBits
	h.Parity = cfg.Parity
	h.StopBits = cfg.StopBits
	h.SlaveId = cfg.SlaveID
	h.Timeout = cfg.Timeout

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("register: open %s: %w", cfg.Device, err)
	}

	return New(modbus.NewClient(h), h, log), nil
}

// New wraps an already-connected client. closer may be nil.
func New(client Client, closer io.Closer, log *logging.Logger) *Transport {
	return &Transport{
		client: client,
		closer: closer,
		log:    logging.OrDiscard(log),
	}
}

// Close releases the link. Later calls fail with ErrTransient.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.client = nil
	if t.closer == nil {
		return nil
	}
	err := t.closer.Close()
	t.closer = nil
	return err
}

// Read reads one input register.
func (t *Transport) Read(addr uint16) (uint16, error) {
	regs, err := t.read(FuncInput, addr, 1)
	if err != nil {
		return 0, err
	}
	return regs[0], nil
}

// ReadHolding reads one holding register.
func (t *Transport) ReadHolding(addr uint16) (uint16, error) {
	regs, err := t.read(FuncHolding, addr, 1)
	if err != nil {
		return 0, err
	}
	return regs[0], nil
}

// ReadMany reads count input registers.
// An all-zero result is the device's not-ready sentinel and yields ErrNoData.
func (t *Transport) ReadMany(addr, count uint16) ([]uint16, error) {
	regs, err := t.read(FuncInput, addr, count)
	if err != nil {
		return nil, err
	}
	for _, r := range regs {
		if r != 0 {
			return regs, nil
		}
	}
	return nil, fault.Wrap(fault.ErrNoData, opName("read", addr, count), nil)
}

// WriteMany writes words starting at addr in one transaction.
func (t *Transport) WriteMany(addr uint16, words []uint16) error {
	if len(words) == 0 {
		return nil
	}
	op := opName("write", addr, uint16(len(words)))

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return fault.Transient(op, errClosed)
	}
	if _, err := t.client.WriteMultipleRegisters(addr, uint16(len(words)), packRegisters(words)); err != nil {
		t.log.Verbose("%s failed: %v", op, err)
		return fault.Transient(op, err)
	}
	return nil
}

// WriteOne writes a single holding register.
func (t *Transport) WriteOne(addr, value uint16) error {
	op := opName("write", addr, 1)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return fault.Transient(op, errClosed)
	}
	if _, err := t.client.WriteSingleRegister(addr, value); err != nil {
		t.log.Verbose("%s failed: %v", op, err)
		return fault.Transient(op, err)
	}
	return nil
}

// Function selects the register table for a read.
type Function uint8

const (
	FuncHolding Function = 3
	FuncInput   Function = 4
)

var errClosed = errors.New("transport closed")

func (t *Transport) read(fc Function, addr, count uint16) ([]uint16, error) {
	op := opName("read", addr, count)
	if count == 0 {
		return nil, fault.Wrap(fault.ErrNoData, op, nil)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil, fault.Transient(op, errClosed)
	}

	var (
		raw []byte
		err error
	)
	switch fc {
	case FuncHolding:
		raw, err = t.client.ReadHoldingRegisters(addr, count)
	default:
		raw, err = t.client.ReadInputRegisters(addr, count)
	}
	if err != nil {
		t.log.Verbose("%s failed: %v", op, err)
		return nil, fault.Transient(op, err)
	}
	if len(raw) < int(count)*2 {
		return nil, fault.Transient(op, fmt.Errorf("short response: %d bytes for %d registers", len(raw), count))
	}
	return unpackRegisters(raw[:int(count)*2]), nil
}

func opName(verb string, addr, count uint16) string {
	return fmt.Sprintf("%s 0x%04X/%d", verb, addr, count)
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}

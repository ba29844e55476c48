// internal/devsim/devsim.go

// Package devsim is an in-memory NTN dongle that speaks the register
// contract of register.Client. It models the password window, the AT-command
// bridge, the chunked uplink window and the downlink window.
package devsim

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"sync"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/register"
)

// ErrOffline is returned by every operation while the device is offline.
var ErrOffline = errors.New("devsim: device offline")

// ErrBadPassword is returned when the password window receives the wrong words.
var ErrBadPassword = errors.New("devsim: illegal data value")

// CommandFunc answers an AT command (without its CR LF). The returned text is
// placed verbatim into the matching response window. Empty means no response.
// It runs with the device lock held and must not call back into the Device.
type CommandFunc func(cmd string) string

// UplinkFunc answers a fully received uplink payload (already hex-decoded).
// Empty means the device never posts a response.
type UplinkFunc func(payload string) string

// Device is a simulated dongle. The zero value is not usable; call New.
type Device struct {
	mu sync.Mutex

	input   map[uint16]uint16
	holding map[uint16]uint16

	password [4]uint16

	onCommand CommandFunc
	onUplink  UplinkFunc

	uplinkBuf []uint16

	offline    bool
	failReads  int
	failWrites int

	commands []string
	uplinks  []string
	reads    int
}

// New returns a device that accepts the all-zero password, runs in the given
// service mode and reports every status bit set.
func New(serviceMode uint16) *Device {
	d := &Device{
		input:   make(map[uint16]uint16),
		holding: make(map[uint16]uint16),
		onCommand: func(string) string {
			return "\r\nOK\r\n"
		},
		onUplink: func(string) string {
			return "Uplink Completed"
		},
	}
	d.input[register.ServiceMode.Address] = serviceMode
	if serviceMode == register.ServiceModeUDP {
		d.input[register.ModuleStatus.Address] = 0x1F
	} else {
		d.input[register.ModuleStatus.Address] = 0x0F
	}
	d.input[register.UploadAvailable.Address] = register.UploadAvailableValue
	return d
}

// ---- scripting ----

// SetPassword changes the password the device accepts.
func (d *Device) SetPassword(p [4]uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.password = p
}

// OnCommand replaces the AT-command responder.
func (d *Device) OnCommand(f CommandFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onCommand = f
}

// OnUplink replaces the uplink responder.
func (d *Device) OnUplink(f UplinkFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onUplink = f
}

// SetInput sets one input register.
func (d *Device) SetInput(addr, v uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.input[addr] = v
}

// SetText writes s into an input window, two bytes per register, NUL padded.
func (d *Device) SetText(w register.Window, s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := []byte(s)
	for i := uint16(0); i < w.Count; i++ {
		var hi, lo byte
		if int(2*i) < len(b) {
			hi = b[2*i]
		}
		if int(2*i+1) < len(b) {
			lo = b[2*i+1]
		}
		d.input[w.Address+i] = uint16(hi)<<8 | uint16(lo)
	}
}

// Holding returns one holding register.
func (d *Device) Holding(addr uint16) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.holding[addr]
}

// PushDownlink makes data available in the downlink window.
func (d *Device) PushDownlink(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words := pack(data)
	d.input[register.DownlinkLength] = uint16(len(words))
	for i, w := range words {
		d.input[register.DownlinkData+uint16(i)] = w
	}
}

// SetOffline makes every operation fail until cleared.
func (d *Device) SetOffline(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offline = v
}

// FailReads makes the next n reads fail.
func (d *Device) FailReads(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failReads = n
}

// FailWrites makes the next n writes fail.
func (d *Device) FailWrites(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWrites = n
}

// ---- inspection ----

// Commands returns every AT command received, in order.
func (d *Device) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

// Uplinks returns every fully received uplink payload, in order.
func (d *Device) Uplinks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.uplinks...)
}

// Reads returns the number of read transactions served.
func (d *Device) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// ---- register.Client ----

func (d *Device) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	return d.readFrom(true, address, quantity)
}

func (d *Device) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return d.readFrom(false, address, quantity)
}

func (d *Device) WriteSingleRegister(address, value uint16) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writeFault(); err != nil {
		return nil, err
	}
	d.holding[address] = value
	return []byte{byte(value >> 8), byte(value)}, nil
}

func (d *Device) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writeFault(); err != nil {
		return nil, err
	}

	words := unpack(value)
	if int(quantity) != len(words) {
		return nil, errors.New("devsim: quantity mismatch")
	}

	switch {
	case address == register.Password.Address:
		if len(words) != 4 {
			return nil, ErrBadPassword
		}
		for i := range words {
			if words[i] != d.password[i] {
				return nil, ErrBadPassword
			}
		}
	case address == register.CommandWindow:
		d.handleCommand(words)
	case address >= register.UplinkStart && address < register.CommandWindow:
		d.handleUplink(address-register.UplinkStart, words)
	default:
		for i, w := range words {
			d.holding[address+uint16(i)] = w
		}
	}
	return []byte{byte(address >> 8), byte(address), byte(quantity >> 8), byte(quantity)}, nil
}

// ---- internals (mu held) ----

func (d *Device) readFrom(input bool, address, quantity uint16) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	table := d.holding
	if input {
		table = d.input
	}

	d.reads++
	if d.offline {
		return nil, ErrOffline
	}
	if d.failReads > 0 {
		d.failReads--
		return nil, errors.New("devsim: timeout")
	}

	out := make([]byte, 0, int(quantity)*2)
	for i := uint16(0); i < quantity; i++ {
		v := table[address+i]
		out = append(out, byte(v>>8), byte(v))
	}

	// The device clears the downlink window once its payload has been read.
	if input && address == register.DownlinkData {
		n := d.input[register.DownlinkLength]
		d.input[register.DownlinkLength] = 0
		for i := uint16(0); i < n; i++ {
			delete(d.input, register.DownlinkData+i)
		}
	}
	return out, nil
}

func (d *Device) writeFault() error {
	if d.offline {
		return ErrOffline
	}
	if d.failWrites > 0 {
		d.failWrites--
		return errors.New("devsim: timeout")
	}
	return nil
}

func (d *Device) handleCommand(words []uint16) {
	raw := string(bytes.TrimRight(unpack16(words), "\x00"))
	cmd := strings.TrimSuffix(raw, "\r\n")
	d.commands = append(d.commands, cmd)

	lenReg, dataReg := register.ModuleResponseLength, register.ModuleResponse
	if strings.Contains(cmd, "AT+BISGET=") {
		lenReg, dataReg = register.QueryResponseLength, register.QueryResponse
	}
	d.input[lenReg] = 0

	resp := d.onCommand(cmd)
	if resp == "" {
		return
	}
	rw := pack([]byte(resp))
	for i, w := range rw {
		d.input[dataReg+uint16(i)] = w
	}
	d.input[lenReg] = uint16(len(rw))
}

func (d *Device) handleUplink(offset uint16, words []uint16) {
	if offset == 0 {
		d.uplinkBuf = d.uplinkBuf[:0]
		d.input[register.UplinkResponseLength] = 0
	}
	if int(offset) != len(d.uplinkBuf) {
		// Out-of-order chunk: drop the transfer.
		d.uplinkBuf = d.uplinkBuf[:0]
		return
	}
	d.uplinkBuf = append(d.uplinkBuf, words...)

	if len(d.uplinkBuf) == 0 || d.uplinkBuf[len(d.uplinkBuf)-1] != 0x0D0A {
		return
	}

	body := unpack16(d.uplinkBuf)
	body = bytes.TrimSuffix(body, []byte("\r\n"))
	payload, err := hex.DecodeString(string(body))
	d.uplinkBuf = d.uplinkBuf[:0]
	if err != nil {
		return
	}
	d.uplinks = append(d.uplinks, string(payload))

	resp := d.onUplink(string(payload))
	if resp == "" {
		return
	}
	rw := pack([]byte(resp))
	for i, w := range rw {
		d.input[register.UplinkResponse+uint16(i)] = w
	}
	d.input[register.UplinkResponseLength] = uint16(len(rw))
}

func pack(b []byte) []uint16 {
	out := make([]uint16, (len(b)+1)/2)
	for i := range out {
		out[i] = uint16(b[2*i]) << 8
		if 2*i+1 < len(b) {
			out[i] |= uint16(b[2*i+1])
		}
	}
	return out
}

func unpack(b []byte) []uint16 {
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return out
}

func unpack16(words []uint16) []byte {
	out := make([]byte, 0, len(words)*2)
	for _, w := range words {
		out = append(out, byte(w>>8), byte(w))
	}
	return out
}

// internal/session/records.go
package session

import (
	"strconv"
	"strings"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/codec"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/register"
)

// Identity is the dongle's fixed identity. Nil fields were not read.
type Identity struct {
	SerialNumber    *string `json:"serial_number,omitempty" yaml:"serial_number,omitempty"`
	ModelName       *string `json:"model_name,omitempty" yaml:"model_name,omitempty"`
	FirmwareVersion *string `json:"firmware_version,omitempty" yaml:"firmware_version,omitempty"`
	HardwareVersion *string `json:"hardware_version,omitempty" yaml:"hardware_version,omitempty"`
	SKU             *string `json:"sku,omitempty" yaml:"sku,omitempty"`
	ModbusID        *uint16 `json:"modbus_id,omitempty" yaml:"modbus_id,omitempty"`
}

// Telemetry is one reading of the live radio values. Nil fields were not read.
type Telemetry struct {
	IMSI           *string  `json:"imsi,omitempty" yaml:"imsi,omitempty"`
	ModuleFirmware *string  `json:"module_firmware,omitempty" yaml:"module_firmware,omitempty"`
	SINR           *float64 `json:"sinr,omitempty" yaml:"sinr,omitempty"`
	RSRP           *float64 `json:"rsrp,omitempty" yaml:"rsrp,omitempty"`
	NetworkTime    *string  `json:"network_time,omitempty" yaml:"network_time,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty" yaml:"longitude,omitempty"`
	CSQClass       *string  `json:"csq_class,omitempty" yaml:"csq_class,omitempty"`
	UDPAddress     *string  `json:"udp_address,omitempty" yaml:"udp_address,omitempty"`
	UDPSocket      *uint16  `json:"udp_socket,omitempty" yaml:"udp_socket,omitempty"`
	Heartbeat      *uint16  `json:"heartbeat,omitempty" yaml:"heartbeat,omitempty"`
}

// HasLocation reports whether both coordinates and both signal values are present.
func (t Telemetry) HasLocation() bool {
	return t.Latitude != nil && t.Longitude != nil && t.RSRP != nil && t.SINR != nil
}

// ReadIdentity reads every identity window. Windows that fail stay nil; an
// error is returned only when none could be read.
func (s *Session) ReadIdentity() (Identity, error) {
	var (
		id  Identity
		grp groupReader
	)
	id.SerialNumber = grp.text(s, register.SerialNumber)
	id.ModelName = grp.text(s, register.ModelName)
	id.FirmwareVersion = grp.text(s, register.FirmwareVersion)
	id.HardwareVersion = grp.text(s, register.HardwareVersion)
	id.SKU = grp.text(s, register.SerialSKU)
	id.ModbusID = grp.word(s, register.ModbusID)
	return id, grp.result()
}

// ReadTelemetry reads every telemetry window, with the same partial semantics
// as ReadIdentity. The UDP fields are read only in UDP mode.
func (s *Session) ReadTelemetry() (Telemetry, error) {
	var (
		t   Telemetry
		grp groupReader
	)
	t.IMSI = grp.text(s, register.IMSI)
	t.ModuleFirmware = grp.text(s, register.ModuleFirmware)
	t.SINR = grp.number(s, register.SINR)
	t.RSRP = grp.number(s, register.RSRP)
	t.NetworkTime = grp.text(s, register.NetworkTime)
	t.Latitude = grp.number(s, register.Latitude)
	t.Longitude = grp.number(s, register.Longitude)
	t.CSQClass = grp.text(s, register.CSQClass)
	t.Heartbeat = grp.word(s, register.Heartbeat)
	if s.ServiceMode() == register.ServiceModeUDP {
		t.UDPAddress = grp.text(s, register.UDPAddress)
		t.UDPSocket = grp.word(s, register.UDPSocket)
	}
	return t, grp.result()
}

// groupReader collects the outcome of a series of optional reads.
type groupReader struct {
	ok      int
	lastErr error
}

func (g *groupReader) text(s *Session, w register.Window) *string {
	v, err := s.readText(w)
	if err != nil {
		g.lastErr = err
		return nil
	}
	g.ok++
	return &v
}

func (g *groupReader) number(s *Session, w register.Window) *float64 {
	p := g.text(s, w)
	if p == nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(*p), 64)
	if err != nil {
		return nil
	}
	return &f
}

func (g *groupReader) word(s *Session, w register.Window) *uint16 {
	v, err := s.regs.Read(w.Address)
	if err != nil {
		g.lastErr = err
		return nil
	}
	g.ok++
	return &v
}

func (g *groupReader) result() error {
	if g.ok > 0 {
		return nil
	}
	if g.lastErr != nil {
		return g.lastErr
	}
	return errNothingRead
}

func decodeField(words []uint16) (string, error) {
	v, err := codec.DecodeField(words)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}

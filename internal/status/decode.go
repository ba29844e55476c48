// internal/status/decode.go
package status

import (
	"fmt"
	"strings"
)

// ModuleStatus is one decoded status register reading.
// Mode-specific flags that do not apply to Mode stay false.
type ModuleStatus struct {
	Mode uint16 `json:"mode" yaml:"mode"`
	Raw  uint8  `json:"raw" yaml:"raw"`

	ModuleReady       bool `json:"module_ready" yaml:"module_ready"`
	SIMReady          bool `json:"sim_ready" yaml:"sim_ready"`
	NetworkRegistered bool `json:"network_registered" yaml:"network_registered"`

	DownlinkReady bool `json:"downlink_ready" yaml:"downlink_ready"` // NIDD
	IPReady       bool `json:"ip_ready" yaml:"ip_ready"`             // UDP
	SocketReady   bool `json:"socket_ready" yaml:"socket_ready"`     // UDP

	AllReady bool `json:"all_ready" yaml:"all_ready"`
}

// Decode interprets the low 8 bits of a status register for a service mode.
// An unknown mode decodes only the raw pattern; AllReady is false.
// No IO. No side effects.
func Decode(reg uint16, mode uint16) ModuleStatus {
	raw := uint8(reg)
	s := ModuleStatus{Mode: mode, Raw: raw}

	switch mode {
	case ModeNIDD:
		s.ModuleReady = raw&BitModuleReady != 0
		s.DownlinkReady = raw&BitDownlinkReady != 0
		s.SIMReady = raw&BitSIMReady != 0
		s.NetworkRegistered = raw&BitNetworkRegistered != 0
		s.AllReady = raw&ReadyMaskNIDD == ReadyMaskNIDD

	case ModeUDP:
		s.ModuleReady = raw&BitModuleReady != 0
		s.IPReady = raw&BitIPReady != 0
		s.SIMReady = raw&BitSIMReady != 0
		s.NetworkRegistered = raw&BitNetworkRegistered != 0
		s.SocketReady = raw&BitSocketReady != 0
		s.AllReady = raw&ReadyMaskUDP == ReadyMaskUDP
	}

	return s
}

// Bits returns the raw pattern most significant bit first.
func (s ModuleStatus) Bits() [8]uint8 {
	var out [8]uint8
	for i := 0; i < 8; i++ {
		out[i] = (s.Raw >> (7 - i)) & 1
	}
	return out
}

// ModeName returns "NIDD", "UDP" or "unknown(n)".
func ModeName(mode uint16) string {
	switch mode {
	case ModeNIDD:
		return "NIDD"
	case ModeUDP:
		return "UDP"
	}
	return fmt.Sprintf("unknown(%d)", mode)
}

func (s ModuleStatus) String() string {
	var flags []string
	add := func(name string, v bool) {
		if v {
			flags = append(flags, name)
		}
	}
	add("module", s.ModuleReady)
	add("downlink", s.DownlinkReady)
	add("ip", s.IPReady)
	add("sim", s.SIMReady)
	add("registered", s.NetworkRegistered)
	add("socket", s.SocketReady)

	return fmt.Sprintf("mode=%s raw=%08b ready=%t [%s]",
		ModeName(s.Mode), s.Raw, s.AllReady, strings.Join(flags, ","))
}

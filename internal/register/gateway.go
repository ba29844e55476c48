// internal/register/gateway.go
package register

import (
	"fmt"
	"strings"

	"github.com/goburrow/modbus"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/logging"
)

// GatewayScheme prefixes a Config.Device that names an RS-485 to Ethernet
// gateway ("tcp://host:502") instead of a local serial port.
const GatewayScheme = "tcp://"

// IsGateway reports whether device addresses a Modbus TCP gateway.
func IsGateway(device string) bool {
	return strings.HasPrefix(device, GatewayScheme)
}

// openGateway connects through a Modbus TCP gateway. The gateway forwards
// to the dongle on its RS-485 side, addressed by cfg.SlaveID.
func openGateway(cfg Config, log *logging.Logger) (*Transport, error) {
	addr := strings.TrimPrefix(cfg.Device, GatewayScheme)
	if addr == "" {
		return nil, fmt.Errorf("register: gateway address missing in %q", cfg.Device)
	}

	h := modbus.NewTCPClientHandler(addr)
	h.SlaveId = cfg.SlaveID
	h.Timeout = cfg.Timeout

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("register: connect gateway %s: %w", addr, err)
	}

	log.Info("connected to gateway %s (slave %d)", addr, cfg.SlaveID)
	return New(modbus.NewClient(h), h, log), nil
}

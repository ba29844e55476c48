// internal/status/constants.go
package status

// Status register bit layout.
// These values are fixed by the dongle firmware and MUST NOT be configurable.

// ---- SERVICE MODES ----

// ModeNIDD is the non-IP data delivery attach mode.
const ModeNIDD uint16 = 1

// ModeUDP is the IP/UDP attach mode.
const ModeUDP uint16 = 2

// ---- COMMON BITS ----

// BitModuleReady is set once the radio module answers AT commands.
const BitModuleReady uint8 = 1 << 0

// BitSIMReady is set once the SIM is initialised.
const BitSIMReady uint8 = 1 << 2

// BitNetworkRegistered is set once the module is attached to the network.
const BitNetworkRegistered uint8 = 1 << 3

// ---- MODE-SPECIFIC BITS ----

// BitDownlinkReady (NIDD) and BitIPReady (UDP) share bit 1.
const BitDownlinkReady uint8 = 1 << 1
const BitIPReady uint8 = 1 << 1

// BitSocketReady is UDP only.
const BitSocketReady uint8 = 1 << 4

// ---- READY MASKS ----

// ReadyMaskNIDD is the low nibble; all set means ready.
const ReadyMaskNIDD uint8 = 0x0F

// ReadyMaskUDP is the low five bits; all set means ready.
const ReadyMaskUDP uint8 = 0x1F

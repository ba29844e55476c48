// internal/register/regmap.go
package register

// Dongle register map.
// These values are fixed by the device firmware and MUST NOT be configurable.

// Window is a contiguous register range.
type Window struct {
	Address uint16
	Count   uint16
}

// ---- PASSWORD ----

// Password is the 4-word password window (holding, write).
var Password = Window{Address: 0x0000, Count: 4}

// ---- DEVICE IDENTITY (input) ----

var (
	SerialNumber    = Window{0xEA60, 6}
	ModelName       = Window{0xEA66, 5}
	FirmwareVersion = Window{0xEA6B, 2}
	HardwareVersion = Window{0xEA6D, 2}
	ModbusID        = Window{0xEA6F, 1}
	Heartbeat       = Window{0xEA70, 1}
	SerialSKU       = Window{0xEA73, 10}
)

// ---- LIVE TELEMETRY (input) ----

var (
	ModuleStatus     = Window{0xEA71, 1}
	PCIeModuleStatus = Window{0xEA72, 1}
	UploadAvailable  = Window{0xEA7D, 1}
	IMSI             = Window{0xEB00, 8}
	ModuleFirmware   = Window{0xEB08, 10}
	SINR             = Window{0xEB13, 2}
	RSRP             = Window{0xEB15, 2}
	NetworkTime      = Window{0xEB17, 4}
	Latitude         = Window{0xEB1B, 5}
	Longitude        = Window{0xEB20, 6}
	CSQClass         = Window{0xEB25, 3}
	ServiceMode      = Window{0xEB29, 1}
	UDPAddress       = Window{0xEB2A, 8}
	UDPSocket        = Window{0xEB32, 1}
)

// ActiveMode is a holding register (read with FC3, write with FC6).
var ActiveMode = Window{0xC358, 1}

// ---- UPLINK ----

const (
	UplinkStart          uint16 = 0xC550
	UplinkResponseLength uint16 = 0xF060
	UplinkResponse       uint16 = 0xF061
)

// UplinkMaxWords is the largest encoded uplink that fits below the response window.
const UplinkMaxWords = int(UplinkResponseLength - UplinkStart)

// ---- DOWNLINK ----

const (
	DownlinkLength uint16 = 0xEC60
	DownlinkData   uint16 = 0xEC61
)

// ---- AT-COMMAND BRIDGE ----

const (
	CommandWindow uint16 = 0xC700

	// Response pair for "AT+BISGET=" queries.
	QueryResponseLength uint16 = 0xF460
	QueryResponse       uint16 = 0xF461

	// Response pair for every other command.
	ModuleResponseLength uint16 = 0xF860
	ModuleResponse       uint16 = 0xF861
)

// ---- VALUES ----

const (
	// ServiceModeNIDD and ServiceModeUDP are the values of the ServiceMode register.
	ServiceModeNIDD uint16 = 0x1
	ServiceModeUDP  uint16 = 0x2

	// UploadAvailableValue is the UploadAvailable reading that means "accepting uplinks".
	UploadAvailableValue uint16 = 0x0

	// MaxActiveMode is the highest valid ActiveMode value.
	MaxActiveMode uint16 = 3
)

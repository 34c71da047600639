package devices

import "strings"

// Direction is the data flow of a device.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Transport describes how a device is attached to the host.
type Transport int

const (
	TransportUnknown Transport = iota
	TransportBuiltIn
	TransportUSB
	TransportBluetooth
	TransportHDMI
	TransportDisplayPort
	TransportAirPlay
	TransportThunderbolt
	TransportFireWire
	TransportPCI
	TransportAggregate
	TransportVirtual
)

var transportNames = map[Transport]string{
	TransportUnknown:     "unknown",
	TransportBuiltIn:     "built-in",
	TransportUSB:         "usb",
	TransportBluetooth:   "bluetooth",
	TransportHDMI:        "hdmi",
	TransportDisplayPort: "displayport",
	TransportAirPlay:     "airplay",
	TransportThunderbolt: "thunderbolt",
	TransportFireWire:    "firewire",
	TransportPCI:         "pci",
	TransportAggregate:   "aggregate",
	TransportVirtual:     "virtual",
}

func (t Transport) String() string {
	if s, ok := transportNames[t]; ok {
		return s
	}
	return "unknown"
}

// Label returns a short tag suitable for menus.
func (t Transport) Label() string {
	switch t {
	case TransportUnknown:
		return ""
	case TransportUSB, TransportHDMI, TransportPCI:
		return strings.ToUpper(t.String())
	case TransportBuiltIn:
		return "Built-in"
	case TransportDisplayPort:
		return "DisplayPort"
	case TransportAirPlay:
		return "AirPlay"
	case TransportFireWire:
		return "FireWire"
	default:
		s := t.String()
		return strings.ToUpper(s[:1]) + s[1:]
	}
}

// Device is a snapshot of one audio endpoint. Snapshots are never mutated;
// a fresh set is taken on every enumeration.
type Device struct {
	ID                string
	Name              string
	Transport         Transport
	Direction         Direction
	Channels          int
	DefaultSampleRate float64
}

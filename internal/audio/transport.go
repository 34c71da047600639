package audio

import (
	"strings"

	"github.com/petems/lineout/internal/devices"
)

// PortAudio does not expose how a device is attached, so the transport is
// inferred from the name the OS reports.
var transportHints = []struct {
	transport devices.Transport
	needles   []string
}{
	{devices.TransportAggregate, []string{"aggregate", "multi-output"}},
	{devices.TransportAirPlay, []string{"airplay"}},
	{devices.TransportBluetooth, []string{"bluetooth", "airpods", "beats", "hands-free"}},
	{devices.TransportHDMI, []string{"hdmi"}},
	{devices.TransportDisplayPort, []string{"displayport", "display audio"}},
	{devices.TransportThunderbolt, []string{"thunderbolt"}},
	{devices.TransportFireWire, []string{"firewire"}},
	{devices.TransportUSB, []string{"usb"}},
	{devices.TransportVirtual, []string{"blackhole", "soundflower", "loopback", "virtual", "zoomaudiodevice", "teams audio"}},
	{devices.TransportPCI, []string{"pci"}},
	{devices.TransportBuiltIn, []string{"built-in", "macbook", "imac", "mac mini", "mac studio", "internal"}},
}

func classifyTransport(name string) devices.Transport {
	lower := strings.ToLower(name)
	for _, h := range transportHints {
		for _, n := range h.needles {
			if strings.Contains(lower, n) {
				return h.transport
			}
		}
	}
	return devices.TransportUnknown
}

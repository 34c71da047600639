package audio

import (
	"errors"

	"github.com/petems/lineout/internal/devices"
)

// ErrDeviceNotFound is returned when a selected device is no longer present.
var ErrDeviceNotFound = errors.New("device not found")

// Backend is the audio hardware layer: device enumeration, capture and the
// latest per-channel amplitude. Devices and DefaultDevice reflect the
// hardware at the time of the call, also while capturing.
type Backend interface {
	devices.Source

	// SetInputDevice chooses the capture device for the next StartCapture.
	SetInputDevice(dev devices.Device) error
	// SetOutputDevice chooses the monitoring device. A zero Device uses the
	// system default output.
	SetOutputDevice(dev devices.Device) error

	StartCapture() error
	StopCapture() error
	IsRunning() bool

	// LatestAmplitude reports the most recent RMS level per channel. ok is
	// false while nothing is being captured.
	LatestAmplitude() (left, right float64, ok bool)

	Close() error
}

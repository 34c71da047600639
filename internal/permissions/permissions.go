// Package permissions wraps the macOS microphone privacy prompt.
package permissions

import (
	"errors"

	"github.com/rs/zerolog"
)

// ErrMicrophoneDenied is returned when capture is not allowed. Listening
// attempts will produce silence until the user grants access.
var ErrMicrophoneDenied = errors.New("microphone permission not granted")

// Status mirrors AVAuthorizationStatus.
type Status int

const (
	NotDetermined Status = iota
	Restricted
	Denied
	Authorized
)

func (s Status) String() string {
	switch s {
	case NotDetermined:
		return "not-determined"
	case Restricted:
		return "restricted"
	case Denied:
		return "denied"
	case Authorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// EnsureMicrophone prompts when the user has not decided yet and reports
// whether capture is currently allowed.
func EnsureMicrophone(log zerolog.Logger) error {
	return ensure(CheckMicrophone, RequestMicrophone, log)
}

func ensure(check func() Status, request func(), log zerolog.Logger) error {
	status := check()
	switch status {
	case Authorized:
		return nil
	case NotDetermined:
		log.Info().Msg("Requesting microphone permission")
		request()
	default:
		log.Warn().
			Stringer("status", status).
			Msg("Microphone access blocked. Enable it in System Settings > Privacy & Security > Microphone")
	}
	return ErrMicrophoneDenied
}

// Package session is the listening toggle over the capture engine.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/petems/lineout/internal/devices"
	"github.com/rs/zerolog"
)

// ErrNoDevice is returned by Start when no input device is selected.
var ErrNoDevice = errors.New("no input device selected")

type State int

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

// Engine is the part of the audio backend a session drives.
type Engine interface {
	SetInputDevice(dev devices.Device) error
	SetOutputDevice(dev devices.Device) error
	StartCapture() error
	StopCapture() error
	IsRunning() bool
}

// Session owns the Idle/Listening state. It is driven from a single
// goroutine and does no locking.
type Session struct {
	engine Engine
	settle time.Duration
	log    zerolog.Logger

	state  State
	input  devices.Device
	output devices.Device
}

func New(engine Engine, settle time.Duration, log zerolog.Logger) *Session {
	return &Session{engine: engine, settle: settle, log: log}
}

func (s *Session) State() State { return s.state }

func (s *Session) Listening() bool { return s.state == Listening }

// Input returns the device the current or last session captured from.
func (s *Session) Input() devices.Device { return s.input }

// Start begins capturing from input, monitoring through output (a zero
// output uses the system default). Starting while listening, or while the
// engine already runs, is a no-op.
func (s *Session) Start(input, output devices.Device) error {
	if s.state == Listening {
		return nil
	}
	if s.engine.IsRunning() {
		s.log.Warn().Msg("Capture engine already running, not starting")
		return nil
	}
	if input.ID == "" {
		return ErrNoDevice
	}

	if err := s.engine.SetInputDevice(input); err != nil {
		return fmt.Errorf("set input device %q: %w", input.Name, err)
	}
	if err := s.engine.SetOutputDevice(output); err != nil {
		return fmt.Errorf("set output device %q: %w", output.Name, err)
	}
	if err := s.engine.StartCapture(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}

	s.state = Listening
	s.input = input
	s.output = output
	s.log.Info().Str("input", input.Name).Str("output", output.Name).Msg("Listening")
	return nil
}

// Stop tears the capture down. Stopping while idle is a no-op. If the engine
// fails to stop and is still running, the session stays Listening so the
// state matches what is actually captured.
func (s *Session) Stop() error {
	if s.state == Idle {
		return nil
	}

	if err := s.engine.StopCapture(); err != nil {
		if !s.engine.IsRunning() {
			s.state = Idle
		}
		return fmt.Errorf("stop capture: %w", err)
	}
	s.state = Idle
	s.log.Info().Msg("Stopped listening")
	return nil
}

// Restart stops, waits for the settle delay and starts again. Swapping
// devices back to back without the pause upsets the OS audio layer.
func (s *Session) Restart(ctx context.Context, input, output devices.Device) error {
	if err := s.Stop(); err != nil {
		if s.state == Listening {
			return err
		}
		s.log.Warn().Err(err).Msg("Stop before restart failed")
	}

	if s.settle > 0 {
		t := time.NewTimer(s.settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	return s.Start(input, output)
}

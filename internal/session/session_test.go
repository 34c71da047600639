package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/petems/lineout/internal/devices"
	"github.com/rs/zerolog"
)

type mockEngine struct {
	running  bool
	input    string
	output   string
	starts   int
	stops    int
	startErr error
	stopErr  error
	stuck    bool
	calls    []string
}

func (m *mockEngine) SetInputDevice(dev devices.Device) error {
	m.input = dev.ID
	m.calls = append(m.calls, "input:"+dev.ID)
	return nil
}

func (m *mockEngine) SetOutputDevice(dev devices.Device) error {
	m.output = dev.ID
	return nil
}

func (m *mockEngine) StartCapture() error {
	m.calls = append(m.calls, "start")
	if m.startErr != nil {
		return m.startErr
	}
	m.starts++
	m.running = true
	return nil
}

func (m *mockEngine) StopCapture() error {
	m.calls = append(m.calls, "stop")
	m.stops++
	if !m.stuck {
		m.running = false
	}
	return m.stopErr
}

func (m *mockEngine) IsRunning() bool { return m.running }

var (
	mic = devices.Device{ID: "mic", Name: "Microphone"}
	usb = devices.Device{ID: "usb", Name: "USB Interface"}
)

func TestStartStop(t *testing.T) {
	eng := &mockEngine{}
	s := New(eng, 0, zerolog.Nop())

	if s.State() != Idle {
		t.Fatalf("expected idle initially, got %s", s.State())
	}

	if err := s.Start(mic, devices.Device{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.Listening() || eng.input != "mic" || eng.starts != 1 {
		t.Fatalf("expected listening on mic, got state=%s input=%q starts=%d", s.State(), eng.input, eng.starts)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Listening() || eng.stops != 1 {
		t.Fatalf("expected idle after stop, got state=%s stops=%d", s.State(), eng.stops)
	}
}

func TestStartWithoutDevice(t *testing.T) {
	s := New(&mockEngine{}, 0, zerolog.Nop())

	if err := s.Start(devices.Device{}, devices.Device{}); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
	if s.Listening() {
		t.Fatal("should not be listening without a device")
	}
}

func TestStartTwiceIsNoop(t *testing.T) {
	eng := &mockEngine{}
	s := New(eng, 0, zerolog.Nop())

	s.Start(mic, devices.Device{})
	if err := s.Start(usb, devices.Device{}); err != nil {
		t.Fatalf("second Start should be a no-op, got %v", err)
	}
	if eng.starts != 1 || eng.input != "mic" {
		t.Fatalf("expected single start on mic, got starts=%d input=%q", eng.starts, eng.input)
	}
}

func TestStartWhileEngineAlreadyRunningIsNoop(t *testing.T) {
	eng := &mockEngine{running: true}
	s := New(eng, 0, zerolog.Nop())

	if err := s.Start(mic, devices.Device{}); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if eng.starts != 0 || s.Listening() {
		t.Fatalf("expected nothing started, got starts=%d state=%s", eng.starts, s.State())
	}
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	eng := &mockEngine{}
	s := New(eng, 0, zerolog.Nop())

	if err := s.Stop(); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if eng.stops != 0 {
		t.Fatalf("engine should not be touched, got %d stops", eng.stops)
	}
}

func TestStartFailureIsRecoverable(t *testing.T) {
	boom := errors.New("device busy")
	eng := &mockEngine{startErr: boom}
	s := New(eng, 0, zerolog.Nop())

	err := s.Start(mic, devices.Device{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped start error, got %v", err)
	}
	if s.Listening() {
		t.Fatal("should stay idle after failed start")
	}

	eng.startErr = nil
	if err := s.Start(mic, devices.Device{}); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestStopFailureLeavesIdle(t *testing.T) {
	boom := errors.New("stream stuck")
	eng := &mockEngine{}
	s := New(eng, 0, zerolog.Nop())
	s.Start(mic, devices.Device{})

	eng.stopErr = boom
	if err := s.Stop(); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped stop error, got %v", err)
	}
	if s.Listening() {
		t.Fatal("session should be idle after stop even on error")
	}
}

func TestStopFailureWithEngineStillRunning(t *testing.T) {
	boom := errors.New("stream stuck")
	eng := &mockEngine{}
	s := New(eng, 0, zerolog.Nop())
	s.Start(mic, devices.Device{})

	eng.stopErr, eng.stuck = boom, true
	if err := s.Stop(); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped stop error, got %v", err)
	}
	if !s.Listening() {
		t.Fatal("session should stay listening while the engine still runs")
	}

	if err := s.Restart(context.Background(), usb, devices.Device{}); !errors.Is(err, boom) {
		t.Fatalf("restart should surface the stop failure, got %v", err)
	}
	if eng.input != "mic" {
		t.Errorf("engine should not be reconfigured while stuck, got %q", eng.input)
	}

	eng.stopErr, eng.stuck = nil, false
	if err := s.Stop(); err != nil || s.Listening() {
		t.Fatalf("expected clean stop once the engine recovers, err=%v state=%s", err, s.State())
	}
}

func TestRestartWaitsSettleDelay(t *testing.T) {
	eng := &mockEngine{}
	settle := 30 * time.Millisecond
	s := New(eng, settle, zerolog.Nop())
	s.Start(mic, devices.Device{})

	begin := time.Now()
	if err := s.Restart(context.Background(), usb, devices.Device{}); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if elapsed := time.Since(begin); elapsed < settle {
		t.Fatalf("restart returned after %s, expected at least %s", elapsed, settle)
	}

	want := []string{"input:mic", "start", "stop", "input:usb", "start"}
	if len(eng.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, eng.calls)
	}
	for i := range want {
		if eng.calls[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, eng.calls)
		}
	}
	if s.Input().ID != "usb" {
		t.Fatalf("expected usb input after restart, got %q", s.Input().ID)
	}
}

func TestRestartCancelled(t *testing.T) {
	eng := &mockEngine{}
	s := New(eng, time.Hour, zerolog.Nop())
	s.Start(mic, devices.Device{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Restart(ctx, usb, devices.Device{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.Listening() {
		t.Fatal("cancelled restart should leave the session idle")
	}
}

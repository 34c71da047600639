package tray

import (
	"errors"
	"strings"
	"testing"

	"github.com/petems/lineout/internal/config"
	"github.com/petems/lineout/internal/devices"
	"github.com/rs/zerolog"
)

type fakeItem struct {
	title   string
	checked bool
	enabled bool
}

func (f *fakeItem) SetTitle(title string) { f.title = title }
func (f *fakeItem) Check()                { f.checked = true }
func (f *fakeItem) Uncheck()              { f.checked = false }
func (f *fakeItem) Enable()               { f.enabled = true }
func (f *fakeItem) Disable()              { f.enabled = false }

// newReadyUI builds a UI whose menu exists but has no device submenus.
func newReadyUI() (*UI, *fakeItem, *fakeItem, *string) {
	cfg := &config.Config{}
	cfg.Meter.Scale = 4
	u := New(nil, cfg, "dev", "none", "", zerolog.Nop())
	status, listen := &fakeItem{}, &fakeItem{}
	title := new(string)
	u.setTitle = func(s string) { *title = s }
	u.mStatus, u.mListen = status, listen
	u.ready = true
	return u, status, listen, title
}

func TestMeterTitle(t *testing.T) {
	tests := []struct {
		name        string
		left, right int
		scale       int
		listening   bool
		want        string
	}{
		{"idle", 3, 3, 4, false, "🎙"},
		{"silent", 0, 0, 4, true, "🎙 ▯▯▯▯|▯▯▯▯"},
		{"mirrored left", 2, 1, 4, true, "🎙 ▯▯▮▮|▮▯▯▯"},
		{"full", 4, 4, 4, true, "🎙 ▮▮▮▮|▮▮▮▮"},
		{"clamped", 9, -1, 4, true, "🎙 ▮▮▮▮|▯▯▯▯"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := meterTitle(tt.left, tt.right, tt.scale, tt.listening); got != tt.want {
				t.Errorf("meterTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeviceTitle(t *testing.T) {
	tests := []struct {
		entry devices.Entry
		want  string
	}{
		{devices.Entry{Device: devices.Device{Name: "Loopback"}}, "Loopback"},
		{devices.Entry{Device: devices.Device{Name: "USB Audio CODEC", Transport: devices.TransportUSB}}, "USB Audio CODEC (USB)"},
		{devices.Entry{Device: devices.Device{Name: "MacBook Pro Microphone", Transport: devices.TransportBuiltIn}, Default: true}, "MacBook Pro Microphone (Built-in, default)"},
		{devices.Entry{Device: devices.Device{Name: "Mystery"}, Default: true}, "Mystery (default)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := deviceTitle(tt.entry); got != tt.want {
				t.Errorf("deviceTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeviceRows(t *testing.T) {
	list := devices.Resolve(devices.Input, []devices.Device{
		{ID: "a", Name: "A"},
		{ID: "b", Name: "B"},
	}, "", "b", devices.Policy{})

	rows := deviceRows(list)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].selected || !rows[1].selected {
		t.Errorf("expected second row selected, got %+v", rows)
	}
	if rows[1].id != "b" || rows[1].title != "B" {
		t.Errorf("unexpected row %+v", rows[1])
	}
}

func TestStatusText(t *testing.T) {
	inputs := devices.Resolve(devices.Input, []devices.Device{{ID: "mic", Name: "Mic"}}, "", "", devices.Policy{})
	empty := devices.List{Direction: devices.Input, Selected: devices.NoSelection}

	tests := []struct {
		name      string
		listening bool
		inputs    devices.List
		err       error
		want      string
	}{
		{"idle", false, inputs, nil, "Idle"},
		{"listening", true, inputs, nil, "Listening to Mic"},
		{"no devices", false, empty, nil, "No input devices available"},
		{"error wins", true, inputs, errors.New("device busy"), "Error: device busy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusText(tt.listening, tt.inputs, tt.err); got != tt.want {
				t.Errorf("statusText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeviceInfo(t *testing.T) {
	inputs := devices.Resolve(devices.Input, []devices.Device{
		{ID: "mic", Name: "Mic", Transport: devices.TransportBuiltIn, Channels: 1, DefaultSampleRate: 48000},
	}, "mic", "", devices.Policy{})
	outputs := devices.List{Direction: devices.Output, Selected: devices.NoSelection}

	got := deviceInfo(inputs, outputs)
	for _, want := range []string{
		"Input devices:\n",
		"* Mic (Built-in, default) 1ch 48000Hz\n",
		"Output devices:\n",
		"(No output devices available)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("device info missing %q:\n%s", want, got)
		}
	}
}

func TestShowInputsUpdatesListenItem(t *testing.T) {
	u, status, listen, _ := newReadyUI()
	u.render()
	if listen.enabled {
		t.Fatal("listen item should start disabled with no inputs")
	}

	u.ShowInputs(devices.Resolve(devices.Input, []devices.Device{{ID: "mic", Name: "Mic"}}, "mic", "", devices.Policy{}))
	if !listen.enabled {
		t.Error("listen item should be enabled once an input appears")
	}
	if status.title != "Idle" {
		t.Errorf("status = %q, want %q", status.title, "Idle")
	}
	if listen.title != "Start Listening" {
		t.Errorf("listen title = %q", listen.title)
	}

	u.ShowInputs(devices.List{Direction: devices.Input, Selected: devices.NoSelection})
	if listen.enabled {
		t.Error("listen item should be disabled when inputs vanish")
	}
	if status.title != "No input devices available" {
		t.Errorf("status = %q", status.title)
	}
}

func TestShowListeningRendersTitle(t *testing.T) {
	u, status, listen, title := newReadyUI()
	u.ShowInputs(devices.Resolve(devices.Input, []devices.Device{{ID: "mic", Name: "Mic"}}, "mic", "", devices.Policy{}))

	u.ShowListening(true)
	u.ShowLevels(2, 1)
	if !listen.checked || listen.title != "Stop Listening" {
		t.Errorf("listen item = %+v", listen)
	}
	if status.title != "Listening to Mic" {
		t.Errorf("status = %q", status.title)
	}
	if *title != "🎙 ▯▯▮▮|▮▯▯▯" {
		t.Errorf("title = %q", *title)
	}
}

func TestCheckState(t *testing.T) {
	outputs := devices.Resolve(devices.Output, []devices.Device{
		{ID: "spk", Name: "Speakers"},
		{ID: "hdmi", Name: "LG HDMI"},
	}, "spk", "spk", devices.Policy{})

	tests := []struct {
		name          string
		hasFixed      bool
		followDefault bool
		wantFixed     bool
		wantChecked   int
	}{
		{"following default", true, true, true, devices.NoSelection},
		{"pinned to the default device", true, false, false, 0},
		{"input menu has no fixed row", false, false, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixed, checked := checkState(outputs, tt.hasFixed, tt.followDefault)
			if fixed != tt.wantFixed || checked != tt.wantChecked {
				t.Errorf("checkState() = (%v, %d), want (%v, %d)", fixed, checked, tt.wantFixed, tt.wantChecked)
			}
		})
	}
}

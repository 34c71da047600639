package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/petems/lineout/internal/audio"
	"github.com/petems/lineout/internal/config"
	"github.com/petems/lineout/internal/devices"
	"github.com/petems/lineout/internal/hotplug"
	"github.com/petems/lineout/internal/meter"
	"github.com/petems/lineout/internal/session"
	"github.com/rs/zerolog"
)

// View is a front end (tray menu, terminal UI). All calls come from the
// App's loop goroutine.
type View interface {
	ShowInputs(list devices.List)
	// ShowOutputs also reports whether the output follows the system default
	// rather than a pinned device.
	ShowOutputs(list devices.List, followDefault bool)
	ShowLevels(left, right int)
	ShowListening(listening bool)
	ShowError(err error)
}

type Config struct {
	Backend audio.Backend
	Config  *config.Config
	Logger  zerolog.Logger
	View    View                 // Optional - can be nil
	Events  <-chan hotplug.Event // Optional - hardware change notifications
	Ticks   <-chan time.Time     // Optional - defaults to a ticker at the meter refresh rate
}

// App owns the listening session, the meter smoother and the device
// selection. Everything that touches them runs on the goroutine inside Run;
// other goroutines post commands.
type App struct {
	backend audio.Backend
	cfg     *config.Config
	log     zerolog.Logger
	view    View
	events  <-chan hotplug.Event
	ticks   <-chan time.Time

	reconciler *devices.Reconciler
	smoother   *meter.Smoother
	session    *session.Session

	inputs         devices.List
	outputs        devices.List
	selectedInput  string
	selectedOutput string
	followDefault  bool
	levelL, levelR int

	commands  chan func(ctx context.Context)
	done      chan struct{}
	listening atomic.Bool
}

func New(cfg Config) *App {
	view := cfg.View
	if view == nil {
		view = nopView{}
	}

	rounding, err := meter.ParseRounding(cfg.Config.Meter.Rounding)
	if err != nil {
		cfg.Logger.Warn().Err(err).Msg("Falling back to round-up meter")
	}

	return &App{
		backend: cfg.Backend,
		cfg:     cfg.Config,
		log:     cfg.Logger,
		view:    view,
		events:  cfg.Events,
		ticks:   cfg.Ticks,

		reconciler: devices.NewReconciler(cfg.Backend, devices.Policy{
			ExcludeAggregate: cfg.Config.Audio.ExcludeAggregate,
		}),
		smoother: meter.New(meter.Options{
			Window:   cfg.Config.Meter.Window,
			Compress: cfg.Config.Meter.Compress,
			Knee:     cfg.Config.Meter.Knee,
			Scale:    cfg.Config.Meter.Scale,
			Rounding: rounding,
		}),
		session: session.New(cfg.Backend, cfg.Config.Audio.SettleDelay(), cfg.Logger),

		inputs:         devices.List{Direction: devices.Input, Selected: devices.NoSelection},
		outputs:        devices.List{Direction: devices.Output, Selected: devices.NoSelection},
		selectedInput:  cfg.Config.Audio.InputDeviceID,
		selectedOutput: cfg.Config.Audio.OutputDeviceID,
		followDefault:  cfg.Config.Audio.OutputDeviceID == "",

		commands: make(chan func(ctx context.Context), 16),
		done:     make(chan struct{}),
	}
}

// Run drives the app until ctx is cancelled. It populates the device lists,
// optionally starts listening, then serves ticks, hardware events and
// commands. Listening is stopped on the way out.
func (a *App) Run(ctx context.Context) error {
	defer close(a.done)

	ticks := a.ticks
	if ticks == nil {
		t := time.NewTicker(a.cfg.Meter.RefreshInterval())
		defer t.Stop()
		ticks = t.C
	}

	a.refreshDevices(ctx)
	if a.cfg.ListenOnLaunch {
		a.startListening()
	}

	events := a.events
	for {
		select {
		case <-ctx.Done():
			a.stopListening()
			return ctx.Err()
		case <-ticks:
			a.tick()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			a.handleEvent(ctx, ev)
		case cmd := <-a.commands:
			cmd(ctx)
		}
	}
}

// Done is closed when Run returns.
func (a *App) Done() <-chan struct{} { return a.done }

// Commands posted from front ends.

func (a *App) Toggle() {
	a.post(func(context.Context) { a.toggle() })
}

func (a *App) SelectInput(id string) {
	a.post(func(ctx context.Context) { a.selectInput(ctx, id) })
}

// SelectOutput picks the monitoring device. An empty id follows the system
// default output.
func (a *App) SelectOutput(id string) {
	a.post(func(ctx context.Context) { a.selectOutput(ctx, id) })
}

// Refresh re-reads the device lists.
func (a *App) Refresh() {
	a.post(func(ctx context.Context) { a.refreshDevices(ctx) })
}

// SetListenOnLaunch stores whether the next launch starts listening.
func (a *App) SetListenOnLaunch(on bool) {
	a.post(func(context.Context) {
		a.cfg.ListenOnLaunch = on
		a.save()
	})
}

// IsListening may be called from any goroutine.
func (a *App) IsListening() bool {
	return a.listening.Load()
}

func (a *App) post(cmd func(ctx context.Context)) {
	select {
	case a.commands <- cmd:
	case <-a.done:
	}
}

// Loop-goroutine handlers below.

func (a *App) tick() {
	if !a.session.Listening() {
		return
	}
	l, r, ok := a.backend.LatestAmplitude()
	if !ok {
		return
	}
	ml, mr := a.smoother.Sample(l, r)
	a.showLevels(ml, mr)
}

func (a *App) showLevels(l, r int) {
	if l == a.levelL && r == a.levelR {
		return
	}
	a.levelL, a.levelR = l, r
	a.view.ShowLevels(l, r)
}

func (a *App) handleEvent(ctx context.Context, ev hotplug.Event) {
	a.log.Debug().Stringer("event", ev.Kind).Msg("Hardware event")

	switch ev.Kind {
	case hotplug.DeviceListChanged:
		a.refreshDevices(ctx)
	case hotplug.DefaultOutputChanged:
		restarted := a.refreshDevices(ctx)
		if !restarted && a.session.Listening() && a.followDefault {
			a.restart(ctx)
		}
	}
}

// refreshDevices reconciles both lists and restarts or stops listening when
// a selected device vanished. It reports whether it restarted. A direction
// that fails to enumerate keeps its previous list and selection.
func (a *App) refreshDevices(ctx context.Context) bool {
	inputs, inErr := a.reconciler.Reconcile(devices.Input, a.selectedInput)
	if inErr != nil {
		a.log.Warn().Err(inErr).Msg("Failed to list input devices, keeping previous list")
		inputs = a.inputs
	}
	outputs, outErr := a.reconciler.Reconcile(devices.Output, a.selectedOutput)
	if outErr != nil {
		a.log.Warn().Err(outErr).Msg("Failed to list output devices, keeping previous list")
		outputs = a.outputs
	}
	if a.followDefault {
		selectDefault(&outputs)
	}

	previousIn, previousOut := a.selectedInput, a.selectedOutput
	a.inputs, a.outputs = inputs, outputs
	if inErr == nil {
		a.selectedInput = inputs.SelectedID()
	}
	if outErr == nil && !a.followDefault {
		a.selectedOutput = outputs.SelectedID()
	}

	a.log.Debug().
		Int("inputs", len(inputs.Entries)).
		Int("outputs", len(outputs.Entries)).
		Str("input", a.selectedInput).
		Msg("Device lists reconciled")

	a.view.ShowInputs(inputs)
	a.view.ShowOutputs(outputs, a.followDefault)

	if !a.session.Listening() {
		return false
	}
	switch {
	case inErr == nil && inputs.Empty():
		a.log.Warn().Msg("No input devices left, stopping")
		a.stopListening()
	case a.selectedInput != previousIn:
		a.log.Info().Str("from", previousIn).Str("to", a.selectedInput).Msg("Input device vanished, switching")
		a.restart(ctx)
		return true
	case a.selectedOutput != previousOut:
		a.log.Info().Str("from", previousOut).Str("to", a.selectedOutput).Msg("Output device vanished, switching")
		a.restart(ctx)
		return true
	}
	return false
}

func (a *App) toggle() {
	if a.session.Listening() {
		a.stopListening()
	} else {
		a.startListening()
	}
}

func (a *App) startListening() {
	input, _ := a.inputs.SelectedDevice()
	a.smoother.Reset()

	if err := a.session.Start(input, a.outputDevice()); err != nil {
		a.fail(err, "Failed to start listening")
		return
	}
	a.setListening(a.session.Listening())
}

func (a *App) stopListening() {
	if err := a.session.Stop(); err != nil {
		a.fail(err, "Failed to stop listening")
	}
	a.setListening(a.session.Listening())
	if !a.session.Listening() {
		a.showLevels(0, 0)
	}
}

func (a *App) restart(ctx context.Context) {
	input, _ := a.inputs.SelectedDevice()
	a.smoother.Reset()
	a.showLevels(0, 0)

	if err := a.session.Restart(ctx, input, a.outputDevice()); err != nil {
		a.fail(err, "Failed to restart listening")
		return
	}
	a.setListening(a.session.Listening())
}

func (a *App) selectInput(ctx context.Context, id string) {
	idx := a.inputs.IndexOf(id)
	if idx == devices.NoSelection {
		a.log.Warn().Str("device", id).Msg("Selected input is not available")
		return
	}
	if id == a.selectedInput {
		return
	}

	a.inputs.Selected = idx
	a.selectedInput = id
	a.cfg.Audio.InputDeviceID = id
	a.save()
	a.log.Info().Str("device", id).Msg("Changed input device")
	a.view.ShowInputs(a.inputs)

	if a.session.Listening() {
		a.restart(ctx)
	}
}

func (a *App) selectOutput(ctx context.Context, id string) {
	if id == "" {
		a.followDefault = true
		a.selectedOutput = ""
		selectDefault(&a.outputs)
	} else {
		idx := a.outputs.IndexOf(id)
		if idx == devices.NoSelection {
			a.log.Warn().Str("device", id).Msg("Selected output is not available")
			return
		}
		if id == a.selectedOutput && !a.followDefault {
			return
		}
		a.followDefault = false
		a.selectedOutput = id
		a.outputs.Selected = idx
	}

	a.cfg.Audio.OutputDeviceID = a.selectedOutput
	a.save()
	a.log.Info().Str("device", id).Bool("follow_default", a.followDefault).Msg("Changed output device")
	a.view.ShowOutputs(a.outputs, a.followDefault)

	if a.session.Listening() {
		a.restart(ctx)
	}
}

// outputDevice is the monitoring target; zero means the system default.
func (a *App) outputDevice() devices.Device {
	if a.followDefault {
		return devices.Device{}
	}
	d, _ := a.outputs.SelectedDevice()
	return d
}

func (a *App) setListening(on bool) {
	a.listening.Store(on)
	a.view.ShowListening(on)
}

func (a *App) fail(err error, msg string) {
	a.log.Error().Err(err).Msg(msg)
	a.setListening(a.session.Listening())
	a.view.ShowError(err)
}

func (a *App) save() {
	if err := a.cfg.Save(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to save config")
	}
}

func selectDefault(list *devices.List) {
	for i, e := range list.Entries {
		if e.Default {
			list.Selected = i
			return
		}
	}
}

type nopView struct{}

func (nopView) ShowInputs(devices.List)        {}
func (nopView) ShowOutputs(devices.List, bool) {}
func (nopView) ShowLevels(int, int)            {}
func (nopView) ShowListening(bool)             {}
func (nopView) ShowError(error)                {}

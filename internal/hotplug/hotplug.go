// Package hotplug turns hardware changes into DeviceListChanged and
// DefaultOutputChanged events.
//
// The watcher polls a Probe on an interval. Where the OS exposes audio device
// nodes (ALSA's /dev/snd), fsnotify wakes the watcher early so plugging a
// device in is noticed without waiting for the next poll.
package hotplug

import (
	"context"
	"os"
	"runtime"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/petems/lineout/internal/devices"
	"github.com/rs/zerolog"
)

type Kind int

const (
	DeviceListChanged Kind = iota
	DefaultOutputChanged
)

func (k Kind) String() string {
	switch k {
	case DeviceListChanged:
		return "device-list-changed"
	case DefaultOutputChanged:
		return "default-output-changed"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind Kind
	At   time.Time
}

// Snapshot is what the watcher compares between probes.
type Snapshot struct {
	Inputs        []string
	Outputs       []string
	DefaultInput  string
	DefaultOutput string
}

// Diff returns the events implied by going from s to next.
func (s Snapshot) Diff(next Snapshot) []Kind {
	var kinds []Kind
	if !slices.Equal(s.Inputs, next.Inputs) || !slices.Equal(s.Outputs, next.Outputs) || s.DefaultInput != next.DefaultInput {
		kinds = append(kinds, DeviceListChanged)
	}
	if s.DefaultOutput != next.DefaultOutput {
		kinds = append(kinds, DefaultOutputChanged)
	}
	return kinds
}

type Probe func() (Snapshot, error)

// HardwareProbe snapshots both directions of h. h must report the hardware
// as it is at call time, including while a capture stream is open.
func HardwareProbe(h devices.Source) Probe {
	return func() (Snapshot, error) {
		var snap Snapshot
		for _, dir := range []devices.Direction{devices.Input, devices.Output} {
			found, err := h.Devices(dir)
			if err != nil {
				return Snapshot{}, err
			}
			ids := make([]string, len(found))
			for i, d := range found {
				ids[i] = d.ID
			}

			var def string
			if d, ok, err := h.DefaultDevice(dir); err == nil && ok {
				def = d.ID
			}

			if dir == devices.Input {
				snap.Inputs, snap.DefaultInput = ids, def
			} else {
				snap.Outputs, snap.DefaultOutput = ids, def
			}
		}
		return snap, nil
	}
}

// DefaultPaths returns the device node directories worth watching on this OS.
func DefaultPaths() []string {
	if runtime.GOOS == "linux" {
		return []string{"/dev/snd"}
	}
	return nil
}

type Option func(*Watcher)

// WithPaths adds directories whose changes trigger an immediate probe.
func WithPaths(paths ...string) Option {
	return func(w *Watcher) {
		w.paths = append(w.paths, paths...)
	}
}

type Watcher struct {
	probe    Probe
	interval time.Duration
	paths    []string
	log      zerolog.Logger
	events   chan Event
}

func New(probe Probe, interval time.Duration, log zerolog.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		probe:    probe,
		interval: interval,
		log:      log,
		events:   make(chan Event, 4),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run probes until ctx is cancelled. The first probe sets the baseline and
// emits nothing.
func (w *Watcher) Run(ctx context.Context) error {
	last, err := w.probe()
	if err != nil {
		w.log.Warn().Err(err).Msg("Initial hardware probe failed")
	}

	wake := w.watchPaths(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-wake:
		}

		next, err := w.probe()
		if err != nil {
			w.log.Warn().Err(err).Msg("Hardware probe failed")
			continue
		}

		for _, kind := range last.Diff(next) {
			w.log.Debug().Stringer("event", kind).Msg("Hardware changed")
			select {
			case w.events <- Event{Kind: kind, At: time.Now()}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		last = next
	}
}

// watchPaths returns a channel that fires when a watched directory changes.
// It returns nil, which never fires, when nothing can be watched.
func (w *Watcher) watchPaths(ctx context.Context) <-chan struct{} {
	var existing []string
	for _, p := range w.paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warn().Err(err).Msg("Device node watch unavailable, polling only")
		return nil
	}
	for _, p := range existing {
		if err := fw.Add(p); err != nil {
			w.log.Warn().Err(err).Str("path", p).Msg("Failed to watch device nodes")
		}
	}

	wake := make(chan struct{}, 1)
	go func() {
		defer fw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				w.log.Warn().Err(err).Msg("Device node watch error")
			}
		}
	}()
	return wake
}

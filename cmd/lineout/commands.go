package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/petems/lineout/internal/app"
	"github.com/petems/lineout/internal/audio"
	"github.com/petems/lineout/internal/config"
	"github.com/petems/lineout/internal/devices"
	"github.com/petems/lineout/internal/hotplug"
	"github.com/petems/lineout/internal/logging"
	"github.com/petems/lineout/internal/permissions"
	"github.com/petems/lineout/internal/tray"
	"github.com/petems/lineout/internal/tui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds how long quitting waits for the app loop to stop
// the capture stream.
const shutdownTimeout = 2 * time.Second

type options struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "lineout",
		Short:         "Menu bar audio input level meter",
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTray(opts)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Config file (default is the platform config directory)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(newTUICmd(opts), newDevicesCmd(opts))
	return rootCmd
}

func newTUICmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Show the level meter in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(opts)
		},
	}
}

func newDevicesCmd(opts *options) *cobra.Command {
	var output, all bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log := logging.NewWithLevel(opts.level(cfg))

			backend, err := audio.New(cfg.Audio, log)
			if err != nil {
				return err
			}
			defer backend.Close()

			dir, previous := devices.Input, cfg.Audio.InputDeviceID
			if output {
				dir, previous = devices.Output, cfg.Audio.OutputDeviceID
			}
			rec := devices.NewReconciler(backend, devices.Policy{ExcludeAggregate: cfg.Audio.ExcludeAggregate && !all})
			list, err := rec.Reconcile(dir, previous)
			if err != nil {
				return err
			}
			return printDevices(cmd.OutOrStdout(), list)
		},
	}

	cmd.Flags().BoolVarP(&output, "output", "o", false, "List output devices instead of inputs")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include aggregate devices")
	return cmd
}

func (o *options) level(cfg *config.Config) string {
	if o.logLevel != "" {
		return o.logLevel
	}
	return cfg.LogLevel
}

func loadConfig(opts *options) (*config.Config, error) {
	if opts.configPath != "" {
		return config.LoadFrom(opts.configPath)
	}
	return config.Load()
}

// stack is everything a front end needs: the audio backend, the hardware
// watcher and the app loop.
type stack struct {
	cfg     *config.Config
	log     zerolog.Logger
	backend audio.Backend
	watcher *hotplug.Watcher
}

func newStack(cfg *config.Config, log zerolog.Logger) (*stack, error) {
	// Capture without consent yields silence; keep going so the menu still works.
	if err := permissions.EnsureMicrophone(log); err != nil {
		log.Warn().Err(err).Msg("Microphone access not granted yet")
	}

	backend, err := audio.New(cfg.Audio, log)
	if err != nil {
		return nil, err
	}

	watcher := hotplug.New(
		hotplug.HardwareProbe(backend),
		cfg.Audio.PollInterval(),
		log,
		hotplug.WithPaths(hotplug.DefaultPaths()...),
	)
	return &stack{cfg: cfg, log: log, backend: backend, watcher: watcher}, nil
}

func (s *stack) newApp(view app.View) *app.App {
	return app.New(app.Config{
		Backend: s.backend,
		Config:  s.cfg,
		Logger:  s.log,
		View:    view,
		Events:  s.watcher.Events(),
	})
}

// start runs the watcher and the app loop until ctx is cancelled.
func (s *stack) start(ctx context.Context, a *app.App) {
	go func() {
		if err := s.watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error().Err(err).Msg("Hardware watcher stopped")
		}
	}()
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error().Err(err).Msg("App stopped")
	}
}

func (s *stack) close() {
	if err := s.backend.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to close audio backend")
	}
}

func waitDone(a *app.App, log zerolog.Logger) {
	select {
	case <-a.Done():
	case <-time.After(shutdownTimeout):
		log.Warn().Msg("Timed out waiting for the app to stop")
	}
}

func runTray(opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Error().Err(err).Msg("Failed to load config")
		return err
	}
	log := logging.NewWithLevel(opts.level(cfg))

	s, err := newStack(cfg, log)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Create tray UI first (the app needs it as its view)
	trayUI := tray.New(nil, cfg, Version, Commit, logging.Path(), log)
	application := s.newApp(trayUI)
	trayUI.SetController(application)

	log.Info().Str("version", Version).Msg("LineOut starting...")

	// Start tray UI - MUST run on main thread
	trayUI.Run(func() {
		s.start(ctx, application)
		// A signal ends the app loop first; take the tray down with it.
		trayUI.Quit()
	}, func() {
		log.Info().Msg("Shutting down...")
		cancel()
		waitDone(application, log)
	})
	return nil
}

func runTUI(opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	// The terminal belongs to the UI; log to the file only.
	log := logging.NewFileOnly(opts.level(cfg))

	s, err := newStack(cfg, log)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	view := &tui.View{}
	application := s.newApp(view)
	p := tea.NewProgram(tui.New(application, cfg.Meter.Scale, cfg.Audio.Monitor), tea.WithAltScreen(), tea.WithContext(ctx))
	view.Attach(p)

	go s.start(ctx, application)

	_, err = p.Run()
	cancel()
	waitDone(application, log)

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	selectedStyle = cellStyle.Bold(true)
)

// printDevices renders a reconciled list as a table. The selected row is
// marked with "*".
func printDevices(w io.Writer, list devices.List) error {
	if list.Empty() {
		_, err := fmt.Fprintln(w, list.Placeholder())
		return err
	}

	rows := make([][]string, 0, len(list.Entries))
	for i, e := range list.Entries {
		mark := ""
		if i == list.Selected {
			mark = "*"
		}
		def := ""
		if e.Default {
			def = "yes"
		}
		rows = append(rows, []string{
			mark,
			e.Name,
			e.Transport.Label(),
			fmt.Sprintf("%d", e.Channels),
			fmt.Sprintf("%.0f", e.DefaultSampleRate),
			def,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("", "NAME", "TRANSPORT", "CHANNELS", "RATE", "DEFAULT").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row >= 0 && row < len(rows) && rows[row][0] == "*":
				return selectedStyle
			default:
				return cellStyle
			}
		})

	_, err := fmt.Fprintln(w, strings.TrimRight(t.String(), "\n"))
	return err
}

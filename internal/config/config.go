package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalid is wrapped by Validate failures.
var ErrInvalid = errors.New("invalid config")

const envPrefix = "LINEOUT_"

type Config struct {
	LogLevel       string      `json:"log_level"`
	ListenOnLaunch bool        `json:"listen_on_launch"`
	Audio          AudioConfig `json:"audio"`
	Meter          MeterConfig `json:"meter"`

	path string
}

// AudioConfig selects devices and capture parameters. Monitor passes the
// input through to the output device; a zero SampleRate uses the input
// device's default rate.
type AudioConfig struct {
	InputDeviceID    string  `json:"input_device_id"`
	OutputDeviceID   string  `json:"output_device_id"`
	Monitor          bool    `json:"monitor"`
	ExcludeAggregate bool    `json:"exclude_aggregate"`
	SampleRate       float64 `json:"sample_rate"`
	FramesPerBuffer  int     `json:"frames_per_buffer"`
	SettleDelayMS    int     `json:"settle_delay_ms"`
	PollIntervalMS   int     `json:"poll_interval_ms"`
}

type MeterConfig struct {
	Window    int     `json:"window"`
	Compress  bool    `json:"compress"`
	Knee      float64 `json:"knee"`
	Scale     int     `json:"scale"`
	Rounding  string  `json:"rounding"` // "up" or "nearest"
	RefreshHz int     `json:"refresh_hz"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		LogLevel:       "info",
		ListenOnLaunch: false,
		Audio: AudioConfig{
			Monitor:          true,
			ExcludeAggregate: true,
			SampleRate:       0,
			FramesPerBuffer:  256,
			SettleDelayMS:    100,
			PollIntervalMS:   2000,
		},
		Meter: MeterConfig{
			Window:    8,
			Compress:  true,
			Knee:      0.1,
			Scale:     10,
			Rounding:  "up",
			RefreshHz: 60,
		},
	}
}

// Load reads the config from the platform config directory, falling back to
// defaults when no file exists.
func Load() (*Config, error) {
	return LoadFrom(configPath())
}

// LoadFrom reads the config at path. A .env file next to it and LINEOUT_*
// environment variables are applied on top of the file.
func LoadFrom(path string) (*Config, error) {
	cfg := Defaults()
	cfg.path = path

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		path = configPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	if c.path == "" {
		return configPath()
	}
	return c.path
}

func (c *Config) Validate() error {
	switch {
	case c.Meter.Window < 1:
		return fmt.Errorf("%w: meter.window must be at least 1", ErrInvalid)
	case c.Meter.Scale < 1:
		return fmt.Errorf("%w: meter.scale must be at least 1", ErrInvalid)
	case c.Meter.Knee <= 0:
		return fmt.Errorf("%w: meter.knee must be positive", ErrInvalid)
	case c.Meter.RefreshHz < 1 || c.Meter.RefreshHz > 240:
		return fmt.Errorf("%w: meter.refresh_hz must be within 1..240", ErrInvalid)
	case c.Meter.Rounding != "up" && c.Meter.Rounding != "nearest":
		return fmt.Errorf("%w: meter.rounding must be \"up\" or \"nearest\"", ErrInvalid)
	case c.Audio.SettleDelayMS < 0:
		return fmt.Errorf("%w: audio.settle_delay_ms must not be negative", ErrInvalid)
	case c.Audio.PollIntervalMS < 100:
		return fmt.Errorf("%w: audio.poll_interval_ms must be at least 100", ErrInvalid)
	case c.Audio.FramesPerBuffer < 16:
		return fmt.Errorf("%w: audio.frames_per_buffer must be at least 16", ErrInvalid)
	case c.Audio.SampleRate < 0:
		return fmt.Errorf("%w: audio.sample_rate must not be negative", ErrInvalid)
	}
	return nil
}

func (c *AudioConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}

func (c *AudioConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// RefreshInterval is the meter tick period.
func (c *MeterConfig) RefreshInterval() time.Duration {
	return time.Second / time.Duration(c.RefreshHz)
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"LOG_LEVEL":     &c.LogLevel,
		"INPUT_DEVICE":  &c.Audio.InputDeviceID,
		"OUTPUT_DEVICE": &c.Audio.OutputDeviceID,
		"ROUNDING":      &c.Meter.Rounding,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"LISTEN_ON_LAUNCH":  &c.ListenOnLaunch,
		"MONITOR":           &c.Audio.Monitor,
		"EXCLUDE_AGGREGATE": &c.Audio.ExcludeAggregate,
		"COMPRESS":          &c.Meter.Compress,
	}
	for key, dst := range bools {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = b
		}
	}

	ints := map[string]*int{
		"METER_WINDOW":      &c.Meter.Window,
		"METER_SCALE":       &c.Meter.Scale,
		"REFRESH_HZ":        &c.Meter.RefreshHz,
		"SETTLE_DELAY_MS":   &c.Audio.SettleDelayMS,
		"POLL_INTERVAL_MS":  &c.Audio.PollIntervalMS,
		"FRAMES_PER_BUFFER": &c.Audio.FramesPerBuffer,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = n
		}
	}

	return nil
}

// configPath returns the platform-specific config file path
func configPath() string {
	return filepath.Join(configDir(), "config.json")
}

func configDir() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "lineout")
}

package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/petems/lineout/internal/config"
	"github.com/petems/lineout/internal/devices"
	"github.com/rs/zerolog"
)

const maxMeterChannels = 2

// Seams over the PortAudio calls, swapped out in tests.
var (
	paDevicesFunc       = portaudio.Devices
	paDefaultInputFunc  = portaudio.DefaultInputDevice
	paDefaultOutputFunc = portaudio.DefaultOutputDevice
	paReinitFunc        = reinit
)

type portAudioBackend struct {
	cfg    config.AudioConfig
	log    zerolog.Logger
	lister deviceLister

	mu       sync.Mutex
	inputID  string
	outputID string
	stream   *portaudio.Stream

	running atomic.Bool
	levels  levels
}

// New initializes PortAudio and returns a Backend on top of it.
func New(cfg config.AudioConfig, log zerolog.Logger) (Backend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioBackend{
		cfg:      cfg,
		log:      log,
		lister:   malgoLister{log: log},
		inputID:  cfg.InputDeviceID,
		outputID: cfg.OutputDeviceID,
	}, nil
}

// Devices lists what is plugged in right now, independent of any open
// stream.
func (p *portAudioBackend) Devices(dir devices.Direction) ([]devices.Device, error) {
	found, _, err := p.snapshot(dir)
	return found, err
}

func (p *portAudioBackend) DefaultDevice(dir devices.Direction) (devices.Device, bool, error) {
	found, defaultID, err := p.snapshot(dir)
	if err != nil {
		return devices.Device{}, false, err
	}
	for _, d := range found {
		if d.ID == defaultID {
			return d, true, nil
		}
	}
	return devices.Device{}, false, nil
}

// snapshot merges the live list with PortAudio's channel counts and sample
// rates for the devices it already knows.
func (p *portAudioBackend) snapshot(dir devices.Direction) ([]devices.Device, string, error) {
	live, err := p.lister.list(dir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list devices: %w", err)
	}

	p.mu.Lock()
	known := make(map[string]*portaudio.DeviceInfo)
	if infos, err := paDevicesFunc(); err == nil {
		for _, info := range infos {
			if channelsFor(info, dir) > 0 {
				known[info.Name] = info
			}
		}
	}
	p.mu.Unlock()

	var defaultID string
	result := make([]devices.Device, 0, len(live))
	for _, d := range live {
		dev := devices.Device{
			ID:        d.Name,
			Name:      d.Name,
			Transport: classifyTransport(d.Name),
			Direction: dir,
		}
		if info, ok := known[d.Name]; ok {
			dev.Channels = channelsFor(info, dir)
			dev.DefaultSampleRate = info.DefaultSampleRate
		}
		if d.Default && defaultID == "" {
			defaultID = d.Name
		}
		result = append(result, dev)
	}
	return result, defaultID, nil
}

func (p *portAudioBackend) SetInputDevice(dev devices.Device) error {
	if err := p.present(dev.ID, devices.Input); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputID = dev.ID
	return nil
}

func (p *portAudioBackend) SetOutputDevice(dev devices.Device) error {
	if dev.ID != "" {
		if err := p.present(dev.ID, devices.Output); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outputID = dev.ID
	return nil
}

// present checks id against the live device list.
func (p *portAudioBackend) present(id string, dir devices.Direction) error {
	live, err := p.lister.list(dir)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	for _, d := range live {
		if d.Name == id {
			return nil
		}
	}
	return fmt.Errorf("%s %q: %w", dir, id, ErrDeviceNotFound)
}

func (p *portAudioBackend) StartCapture() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return nil
	}

	// Pick up devices plugged in since the last stream.
	if err := paReinitFunc(); err != nil {
		return err
	}

	in, err := findInfo(p.inputID, devices.Input)
	if err != nil {
		return fmt.Errorf("failed to resolve input device: %w", err)
	}
	inCh := min(maxMeterChannels, in.MaxInputChannels)

	sampleRate := p.cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = in.DefaultSampleRate
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   in,
			Channels: inCh,
			Latency:  in.DefaultLowInputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: p.cfg.FramesPerBuffer,
	}

	var callback interface{} = func(input []float32) {
		p.levels.store(channelRMS(input, inCh))
	}

	if p.cfg.Monitor {
		if out, err := findInfo(p.outputID, devices.Output); err != nil {
			p.log.Warn().Err(err).Str("output", p.outputID).Msg("Monitoring disabled, no output device")
		} else {
			outCh := min(maxMeterChannels, out.MaxOutputChannels)
			params.Output = portaudio.StreamDeviceParameters{
				Device:   out,
				Channels: outCh,
				Latency:  out.DefaultLowOutputLatency,
			}
			callback = func(input, output []float32) {
				p.levels.store(channelRMS(input, inCh))
				passthrough(input, inCh, output, outCh)
			}
		}
	}

	stream, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start audio stream: %w", err)
	}

	p.stream = stream
	p.levels.reset()
	p.running.Store(true)

	p.log.Info().
		Str("input", in.Name).
		Int("channels", inCh).
		Float64("sample_rate", sampleRate).
		Bool("monitor", params.Output.Device != nil).
		Msg("Capture started")
	return nil
}

func (p *portAudioBackend) StopCapture() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

func (p *portAudioBackend) stopLocked() error {
	if !p.running.Load() {
		return nil
	}
	p.running.Store(false)

	stream := p.stream
	p.stream = nil
	if err := stream.Stop(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to stop audio stream: %w", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("failed to close audio stream: %w", err)
	}
	p.log.Info().Msg("Capture stopped")
	return nil
}

func (p *portAudioBackend) IsRunning() bool {
	return p.running.Load()
}

func (p *portAudioBackend) LatestAmplitude() (float64, float64, bool) {
	if !p.running.Load() {
		return 0, 0, false
	}
	l, r := p.levels.load()
	return l, r, true
}

// reinit restarts PortAudio, which only enumerates hardware on
// initialization. It must not run while a stream is open.
func reinit() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

func (p *portAudioBackend) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.stopLocked()
	if termErr := portaudio.Terminate(); termErr != nil && err == nil {
		err = fmt.Errorf("failed to terminate PortAudio: %w", termErr)
	}
	return err
}

func defaultInfo(dir devices.Direction) (*portaudio.DeviceInfo, error) {
	if dir == devices.Output {
		return paDefaultOutputFunc()
	}
	return paDefaultInputFunc()
}

// findInfo resolves a device ID for dir. An empty ID means the system default.
func findInfo(id string, dir devices.Direction) (*portaudio.DeviceInfo, error) {
	if id == "" {
		info, err := defaultInfo(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to get default %s device: %w", dir, err)
		}
		if info == nil {
			return nil, fmt.Errorf("default %s: %w", dir, ErrDeviceNotFound)
		}
		return info, nil
	}

	infos, err := paDevicesFunc()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, info := range infos {
		if info.Name == id && channelsFor(info, dir) > 0 {
			return info, nil
		}
	}
	return nil, fmt.Errorf("%s %q: %w", dir, id, ErrDeviceNotFound)
}

func channelsFor(info *portaudio.DeviceInfo, dir devices.Direction) int {
	if dir == devices.Output {
		return info.MaxOutputChannels
	}
	return info.MaxInputChannels
}

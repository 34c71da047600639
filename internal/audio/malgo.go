package audio

import (
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/petems/lineout/internal/devices"
	"github.com/rs/zerolog"
)

// liveDevice is one endpoint as the OS reports it right now.
type liveDevice struct {
	Name    string
	Default bool
}

// deviceLister enumerates the hardware from scratch on every call.
type deviceLister interface {
	list(dir devices.Direction) ([]liveDevice, error)
}

// malgoLister opens a fresh miniaudio context per call. PortAudio only
// enumerates at Initialize, which cannot happen while a stream is open, so
// hot-plug detection goes through here instead.
type malgoLister struct {
	log zerolog.Logger
}

func (m malgoLister) list(dir devices.Direction) ([]liveDevice, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init device context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	typ := malgo.Capture
	if dir == devices.Output {
		typ = malgo.Playback
	}

	infos, err := ctx.Devices(typ)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate %s devices: %w", dir, err)
	}

	result := make([]liveDevice, 0, len(infos))
	seen := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		full, err := ctx.DeviceInfo(typ, info.ID, malgo.Shared)
		if err != nil {
			m.log.Warn().Err(err).Str("device", info.Name()).Msg("Unable to get audio device info")
			continue
		}

		// Names are the device IDs; skip duplicates.
		name := full.Name()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		result = append(result, liveDevice{Name: name, Default: full.IsDefault == 1})
	}
	return result, nil
}

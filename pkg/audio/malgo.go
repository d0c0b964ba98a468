package audio

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"
)

// defaultPeriodMS is the stream period size requested from the backend.
// 10ms keeps trigger-to-speaker latency low without starving slower
// drivers.
const defaultPeriodMS = 10

// MalgoHost is the production Host backed by miniaudio. It owns one
// backend context shared by every stream it opens.
type MalgoHost struct {
	ctx *malgo.AllocatedContext
}

var _ Host = (*MalgoHost)(nil)

// malgo.Device carries the exact Start/Stop/Uninit surface streams need.
var _ Stream = (*malgo.Device)(nil)

// NewMalgoHost initialises a miniaudio context with the platform's
// default backend order.
func NewMalgoHost() (*MalgoHost, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "msg", message)
	})
	if err != nil {
		return nil, fmt.Errorf("audio: init context: %w", err)
	}
	return &MalgoHost{ctx: ctx}, nil
}

// PlaybackDevices enumerates output endpoints with their native formats.
func (h *MalgoHost) PlaybackDevices() ([]Device, error) {
	return h.devices(malgo.Playback)
}

// CaptureDevices enumerates input endpoints with their native formats.
func (h *MalgoHost) CaptureDevices() ([]Device, error) {
	return h.devices(malgo.Capture)
}

func (h *MalgoHost) devices(kind malgo.DeviceType) ([]Device, error) {
	infos, err := h.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("audio: enumerate devices: %w", err)
	}

	out := make([]Device, 0, len(infos))
	for _, info := range infos {
		full, err := h.ctx.DeviceInfo(kind, info.ID, malgo.Shared)
		if err != nil {
			// Devices can vanish between enumeration and query; keep
			// the basic entry rather than dropping the device.
			slog.Debug("audio: device info query failed", "device", info.Name(), "err", err)
			full = info
		}

		d := Device{Name: info.Name(), IsDefault: full.IsDefault == 1}
		nf := int(full.FormatCount)
		if nf > len(full.Formats) {
			nf = len(full.Formats)
		}
		for _, f := range full.Formats[:nf] {
			d.Formats = append(d.Formats, DeviceFormat{
				Format:     formatFromMalgo(f.Format),
				Channels:   int(f.Channels),
				SampleRate: int(f.SampleRate),
			})
		}
		out = append(out, d)
	}
	return out, nil
}

// OpenPlayback opens a playback stream on the named device (or the
// system default when cfg.DeviceName is empty). The stream is created
// stopped; call Start on the returned Stream.
func (h *MalgoHost) OpenPlayback(cfg StreamConfig, cb DataProc) (Stream, error) {
	id, err := h.findDeviceID(malgo.Playback, cfg.DeviceName)
	if err != nil {
		return nil, err
	}

	dc := malgo.DefaultDeviceConfig(malgo.Playback)
	dc.SampleRate = uint32(cfg.SampleRate)
	dc.PeriodSizeInMilliseconds = defaultPeriodMS
	dc.Alsa.NoMMap = 1
	dc.Playback.Format = malgoFormat(cfg.Format)
	dc.Playback.Channels = uint32(cfg.Channels)
	if id != nil {
		dc.Playback.DeviceID = id.Pointer()
	}

	dev, err := malgo.InitDevice(h.ctx.Context, dc, malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frames uint32) {
			cb(pOutput, pInput, frames)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: open playback stream: %w", err)
	}
	return dev, nil
}

// OpenCapture opens a capture stream on the named device (or the
// system default when cfg.DeviceName is empty).
func (h *MalgoHost) OpenCapture(cfg StreamConfig, cb DataProc) (Stream, error) {
	id, err := h.findDeviceID(malgo.Capture, cfg.DeviceName)
	if err != nil {
		return nil, err
	}

	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.SampleRate = uint32(cfg.SampleRate)
	dc.PeriodSizeInMilliseconds = defaultPeriodMS
	dc.Alsa.NoMMap = 1
	dc.Capture.Format = malgoFormat(cfg.Format)
	dc.Capture.Channels = uint32(cfg.Channels)
	if id != nil {
		dc.Capture.DeviceID = id.Pointer()
	}

	dev, err := malgo.InitDevice(h.ctx.Context, dc, malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frames uint32) {
			cb(pOutput, pInput, frames)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: open capture stream: %w", err)
	}
	return dev, nil
}

// Close releases the backend context. Streams must be uninitialised
// before closing the host.
func (h *MalgoHost) Close() error {
	err := h.ctx.Uninit()
	h.ctx.Free()
	if err != nil {
		return fmt.Errorf("audio: uninit context: %w", err)
	}
	return nil
}

// findDeviceID resolves a device name against a fresh enumeration.
// An empty name selects the system default (nil ID).
func (h *MalgoHost) findDeviceID(kind malgo.DeviceType, name string) (*malgo.DeviceID, error) {
	if name == "" {
		return nil, nil
	}
	infos, err := h.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("audio: enumerate devices: %w", err)
	}
	for _, info := range infos {
		if info.Name() == name {
			id := info.ID
			return &id, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
}

func malgoFormat(f Format) malgo.FormatType {
	switch f {
	case FormatU8:
		return malgo.FormatU8
	case FormatS16:
		return malgo.FormatS16
	case FormatS24:
		return malgo.FormatS24
	case FormatS32:
		return malgo.FormatS32
	case FormatF32:
		return malgo.FormatF32
	default:
		return malgo.FormatUnknown
	}
}

func formatFromMalgo(ft malgo.FormatType) Format {
	switch ft {
	case malgo.FormatU8:
		return FormatU8
	case malgo.FormatS16:
		return FormatS16
	case malgo.FormatS24:
		return FormatS24
	case malgo.FormatS32:
		return FormatS32
	case malgo.FormatF32:
		return FormatF32
	default:
		return FormatUnknown
	}
}

// Package audio wraps the platform audio backend behind a small Host
// interface and builds the soundboard's device plumbing on top of it:
// the device catalog, per-device playback sinks, and the microphone
// loopback mixer. Everything above this package works in normalized
// float32 samples; raw device formats stay below the Host boundary.
package audio

import "errors"

// ErrDeviceNotFound is returned when a device selected by name is not
// present in the backend's current enumeration.
var ErrDeviceNotFound = errors.New("audio: device not found")

// DataProc is the realtime callback attached to a stream. For playback
// streams the callback fills out; for capture streams it reads in. Both
// buffers hold raw bytes in the format the stream was opened with.
// Callbacks run on the backend's audio thread and must not block.
type DataProc func(out, in []byte, frames uint32)

// DeviceFormat is one native format combination a device advertises.
// A SampleRate of 0 means the backend resamples to any rate.
type DeviceFormat struct {
	Format     Format
	Channels   int
	SampleRate int
}

// Device describes one playback or capture endpoint.
type Device struct {
	Name      string
	IsDefault bool
	Formats   []DeviceFormat
}

// PreferredFormat returns the device's first advertised native format.
func (d Device) PreferredFormat() (DeviceFormat, bool) {
	if len(d.Formats) == 0 {
		return DeviceFormat{}, false
	}
	return d.Formats[0], true
}

// SupportsRate reports whether the device advertises the given sample
// rate natively.
func (d Device) SupportsRate(rate int) bool {
	for _, f := range d.Formats {
		if f.SampleRate == rate || f.SampleRate == 0 {
			return true
		}
	}
	return false
}

// StreamConfig selects the device and data layout for an open stream.
type StreamConfig struct {
	DeviceName string // empty = system default
	Format     Format
	Channels   int
	SampleRate int
}

// Stream is an open audio stream. Start and Stop may be called more
// than once; Uninit releases the stream and must be the last call.
type Stream interface {
	Start() error
	Stop() error
	Uninit()
}

// Host abstracts the audio backend so the engine and mixer can run
// against a fake in tests. Opening a stream by name resolves against a
// fresh enumeration; a named device that has disappeared yields
// ErrDeviceNotFound.
type Host interface {
	PlaybackDevices() ([]Device, error)
	CaptureDevices() ([]Device, error)
	OpenPlayback(cfg StreamConfig, cb DataProc) (Stream, error)
	OpenCapture(cfg StreamConfig, cb DataProc) (Stream, error)
	Close() error
}

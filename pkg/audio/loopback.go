package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// loopbackBufferSeconds sizes the ring between the capture and render
// callbacks. Two seconds absorbs device clock drift for a long session
// before eviction kicks in.
const loopbackBufferSeconds = 2

// Loopback mirrors the user's microphone into the virtual cable so
// their voice keeps flowing alongside played sounds. Capture and
// render run as two independent device streams joined by a bounded
// sample ring; each stream keeps its own native format and the shared
// sample rate is negotiated at Start.
type Loopback struct {
	host    Host
	catalog *Catalog

	mu      sync.Mutex
	capture Stream
	render  Stream

	running atomic.Bool
	ring    *sampleRing

	inChannels    int
	outChannels   int
	rate          int
	captureFormat Format
	renderFormat  Format

	// Callback scratch, each touched only on its stream's audio thread.
	capFloats []float32
	renIn     []float32
	renOut    []float32

	evictions atomic.Int64
	underruns atomic.Int64
}

// NewLoopback creates a stopped loopback over the host. Device names
// and gains are read from the catalog at Start and per callback.
func NewLoopback(host Host, catalog *Catalog) *Loopback {
	return &Loopback{host: host, catalog: catalog}
}

// LoopbackStats counts abnormal callback events since the last Start.
type LoopbackStats struct {
	Evicted   int64 // samples dropped because the ring overflowed
	Underruns int64 // render callbacks that ran short of samples
}

// Start resolves the catalog's input and virtual devices by name,
// negotiates a shared sample rate, and begins mirroring. Calling Start
// while running restarts with the current selection.
func (l *Loopback) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.teardownLocked()

	inputName := l.catalog.Selected(RoleInput)
	virtualName := l.catalog.Selected(RoleVirtual)
	if inputName == "" || virtualName == "" {
		return errors.New("audio: loopback needs an input and a virtual device selected")
	}

	captures, err := l.host.CaptureDevices()
	if err != nil {
		return fmt.Errorf("audio: list capture devices: %w", err)
	}
	in, ok := findDevice(captures, inputName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, inputName)
	}

	playbacks, err := l.host.PlaybackDevices()
	if err != nil {
		return fmt.Errorf("audio: list playback devices: %w", err)
	}
	vd, ok := findDevice(playbacks, virtualName)
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, virtualName)
	}

	inFmt, ok := in.PreferredFormat()
	if !ok {
		inFmt = DeviceFormat{Format: FormatF32, Channels: 1, SampleRate: 48000}
	}
	outFmt, ok := vd.PreferredFormat()
	if !ok {
		outFmt = DeviceFormat{Format: FormatF32, Channels: 2, SampleRate: inFmt.SampleRate}
	}

	// Run both streams at the mic's native rate when the cable can
	// take it; otherwise fall back to the cable's preferred rate and
	// let the backend resample the capture side.
	rate := inFmt.SampleRate
	if rate == 0 || !vd.SupportsRate(rate) {
		rate = outFmt.SampleRate
	}
	if rate == 0 {
		rate = 48000
	}

	inCh := inFmt.Channels
	if inCh < 1 {
		inCh = 1
	}
	outCh := outFmt.Channels
	if outCh < 1 {
		outCh = 2
	}

	l.captureFormat = inFmt.Format
	if l.captureFormat == FormatUnknown {
		l.captureFormat = FormatF32
	}
	l.renderFormat = outFmt.Format
	if l.renderFormat == FormatUnknown {
		l.renderFormat = FormatF32
	}
	l.inChannels = inCh
	l.outChannels = outCh
	l.rate = rate
	l.ring = newSampleRing(rate * inCh * loopbackBufferSeconds)
	l.evictions.Store(0)
	l.underruns.Store(0)

	period := rate / 100 // frames per 10ms callback
	l.capFloats = make([]float32, period*inCh*4)
	l.renIn = make([]float32, period*inCh*4)
	l.renOut = make([]float32, period*outCh*4)

	capture, err := l.host.OpenCapture(StreamConfig{
		DeviceName: inputName,
		Format:     l.captureFormat,
		Channels:   inCh,
		SampleRate: rate,
	}, l.captureData)
	if err != nil {
		return err
	}
	render, err := l.host.OpenPlayback(StreamConfig{
		DeviceName: virtualName,
		Format:     l.renderFormat,
		Channels:   outCh,
		SampleRate: rate,
	}, l.renderData)
	if err != nil {
		capture.Uninit()
		return err
	}

	if err := capture.Start(); err != nil {
		capture.Uninit()
		render.Uninit()
		return fmt.Errorf("audio: start loopback capture: %w", err)
	}
	if err := render.Start(); err != nil {
		_ = capture.Stop()
		capture.Uninit()
		render.Uninit()
		return fmt.Errorf("audio: start loopback render: %w", err)
	}

	l.capture = capture
	l.render = render
	l.running.Store(true)
	slog.Info("loopback started",
		"input", inputName, "virtual", virtualName,
		"rate", rate, "in_channels", inCh, "out_channels", outCh)
	return nil
}

// Stop tears both streams down and clears the ring. Safe to call more
// than once or before Start.
func (l *Loopback) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.teardownLocked()
}

func (l *Loopback) teardownLocked() {
	if l.capture == nil && l.render == nil {
		return
	}
	l.running.Store(false)
	if l.capture != nil {
		_ = l.capture.Stop()
		l.capture.Uninit()
		l.capture = nil
	}
	if l.render != nil {
		_ = l.render.Stop()
		l.render.Uninit()
		l.render = nil
	}
	if l.ring != nil {
		l.ring.Clear()
	}
	slog.Debug("loopback stopped")
}

// Running reports whether the mirror is active.
func (l *Loopback) Running() bool {
	return l.running.Load()
}

// Stats returns callback event counters accumulated since Start.
func (l *Loopback) Stats() LoopbackStats {
	return LoopbackStats{
		Evicted:   l.evictions.Load(),
		Underruns: l.underruns.Load(),
	}
}

// captureData runs on the capture stream's audio thread. It converts
// the device's native bytes to floats and pushes them into the ring.
func (l *Loopback) captureData(_, in []byte, frames uint32) {
	if !l.running.Load() {
		return
	}
	want := int(frames) * l.inChannels
	if want > len(l.capFloats) {
		l.capFloats = make([]float32, want)
	}
	buf := l.capFloats[:want]
	n := DecodeFloats(buf, in, l.captureFormat)
	if ev := l.ring.Push(buf[:n]); ev > 0 {
		l.evictions.Add(int64(ev))
	}
}

// renderData runs on the render stream's audio thread. It pops mic
// samples from the ring, remaps channels, applies the input and
// virtual gains fresh from the catalog, clamps, and encodes into the
// cable's native format.
func (l *Loopback) renderData(out, _ []byte, frames uint32) {
	if !l.running.Load() {
		return
	}
	inWant := int(frames) * l.inChannels
	outWant := int(frames) * l.outChannels
	if inWant > len(l.renIn) {
		l.renIn = make([]float32, inWant)
	}
	if outWant > len(l.renOut) {
		l.renOut = make([]float32, outWant)
	}
	src := l.renIn[:inWant]
	dst := l.renOut[:outWant]

	n := l.ring.Pop(src)
	if n < inWant {
		l.underruns.Add(1)
		for i := n; i < inWant; i++ {
			src[i] = 0
		}
	}

	for f := 0; f < int(frames); f++ {
		remapFrame(dst[f*l.outChannels:(f+1)*l.outChannels], src[f*l.inChannels:(f+1)*l.inChannels])
	}

	gain := float32(l.catalog.Gain(RoleInput) * l.catalog.Gain(RoleVirtual))
	for i, v := range dst {
		v *= gain
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		dst[i] = v
	}

	EncodeFloats(out, dst, l.renderFormat)
}

// remapFrame maps one frame of src channels onto dst channels. Equal
// counts copy through, mono fans out to every output, many-to-one
// averages, and any other mismatch copies the leading channels then
// fills the remaining outputs with the average of the first two
// inputs.
func remapFrame(dst, src []float32) {
	switch {
	case len(dst) == len(src):
		copy(dst, src)
	case len(src) == 1:
		for i := range dst {
			dst[i] = src[0]
		}
	case len(dst) == 1:
		var sum float32
		for _, v := range src {
			sum += v
		}
		dst[0] = sum / float32(len(src))
	default:
		n := copy(dst, src)
		if n < len(dst) {
			fill := (src[0] + src[1]) / 2
			for i := n; i < len(dst); i++ {
				dst[i] = fill
			}
		}
	}
}

func findDevice(devices []Device, name string) (Device, bool) {
	for _, d := range devices {
		if d.Name == name {
			return d, true
		}
	}
	return Device{}, false
}

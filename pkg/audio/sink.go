package audio

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
)

// sinkQueueDepth is how many decoded batches a sink buffers ahead of
// the render callback. Deep enough to ride out scheduling hiccups,
// shallow enough that Stop cuts audio quickly.
const sinkQueueDepth = 16

// Sink plays a queue of float32 sample batches on one output device.
//
// A feeder goroutine calls Push; the backend's render callback drains
// the queue, applies the sink's gain, and encodes into the device's
// native format. When the queue runs dry the callback emits silence,
// so a slow feeder glitches but never kills the stream.
type Sink struct {
	stream   Stream
	device   string // requested name, "" = system default
	format   Format
	channels int
	rate     int

	queue  chan []float32
	stopCh chan struct{}

	stopped    atomic.Bool
	feederDone atomic.Bool
	queued     atomic.Int64  // samples pushed but not yet rendered
	volume     atomic.Uint64 // float64 bits

	// Render-callback state, touched only on the audio thread.
	pending []float32
	scratch []float32
}

// NewSink opens a playback stream on the named device and starts it.
// rate and channels describe the samples that will be pushed. The
// device's sample encoding is taken from its first advertised native
// format, falling back to f32 when the backend reports none; the
// backend converts rate and channel count as needed.
func NewSink(host Host, deviceName string, rate, channels int, volume float64) (*Sink, error) {
	format := FormatF32
	if devices, err := host.PlaybackDevices(); err == nil {
		for _, d := range devices {
			if (deviceName == "" && d.IsDefault) || (deviceName != "" && d.Name == deviceName) {
				if pf, ok := d.PreferredFormat(); ok && pf.Format != FormatUnknown {
					format = pf.Format
				}
				break
			}
		}
	}

	s := &Sink{
		device:   deviceName,
		format:   format,
		channels: channels,
		rate:     rate,
		queue:    make(chan []float32, sinkQueueDepth),
		stopCh:   make(chan struct{}),
		scratch:  make([]float32, 8192),
	}
	s.SetVolume(volume)

	stream, err := host.OpenPlayback(StreamConfig{
		DeviceName: deviceName,
		Format:     format,
		Channels:   channels,
		SampleRate: rate,
	}, s.render)
	if err != nil {
		return nil, err
	}
	s.stream = stream

	if err := stream.Start(); err != nil {
		stream.Uninit()
		return nil, fmt.Errorf("audio: start sink: %w", err)
	}
	slog.Debug("sink started",
		"device", deviceLabel(deviceName), "format", format, "rate", rate, "channels", channels)
	return s, nil
}

// Push queues one batch of interleaved samples, blocking while the
// queue is full. Returns false once the sink has been stopped; the
// feeder should exit when it sees false.
func (s *Sink) Push(batch []float32) bool {
	if s.stopped.Load() {
		return false
	}
	select {
	case s.queue <- batch:
		s.queued.Add(int64(len(batch)))
		return true
	case <-s.stopCh:
		return false
	}
}

// FeederDone marks that no more batches will be pushed. The sink keeps
// rendering until the queue drains.
func (s *Sink) FeederDone() {
	s.feederDone.Store(true)
}

// Drained reports whether the feeder has finished and every queued
// sample has been rendered.
func (s *Sink) Drained() bool {
	return s.feederDone.Load() && s.queued.Load() <= 0
}

// SetVolume sets the gain applied to every sample in the render
// callback. Safe to call while playing.
func (s *Sink) SetVolume(v float64) {
	s.volume.Store(math.Float64bits(v))
}

// Volume returns the sink's current gain.
func (s *Sink) Volume() float64 {
	return math.Float64frombits(s.volume.Load())
}

// Stop makes Push return false, discards queued audio, and tears the
// stream down. Safe to call more than once.
func (s *Sink) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	close(s.stopCh)
	_ = s.stream.Stop()
	s.stream.Uninit()

	// Release queued batches; nothing will render them now.
	for {
		select {
		case <-s.queue:
		default:
			slog.Debug("sink stopped", "device", deviceLabel(s.device))
			return
		}
	}
}

// render runs on the backend's audio thread. It fills out with up to
// frames frames of queued audio, scaled by the sink gain, and pads the
// rest with silence.
func (s *Sink) render(out, _ []byte, frames uint32) {
	want := int(frames) * s.channels
	if want > len(s.scratch) {
		s.scratch = make([]float32, want)
	}
	buf := s.scratch[:want]

	n := 0
	for n < want {
		if len(s.pending) == 0 {
			var batch []float32
			select {
			case batch = <-s.queue:
			default:
			}
			if batch == nil {
				break
			}
			s.pending = batch
		}
		k := copy(buf[n:], s.pending)
		s.pending = s.pending[k:]
		n += k
	}

	vol := float32(s.Volume())
	for i := 0; i < n; i++ {
		buf[i] *= vol
	}
	for i := n; i < want; i++ {
		buf[i] = 0
	}

	EncodeFloats(out, buf, s.format)
	if n > 0 {
		s.queued.Add(-int64(n))
	}
}

func deviceLabel(name string) string {
	if name == "" {
		return "system default"
	}
	return name
}

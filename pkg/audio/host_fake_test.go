package audio

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeHost implements Host without touching hardware. Tests drive the
// stream callbacks by hand through fakeStream.renderBytes and
// fakeStream.feedBytes.
type fakeHost struct {
	mu       sync.Mutex
	playback []Device
	capture  []Device
	streams  []*fakeStream
	openErr  map[string]error // device name -> forced open failure
	enumErr  error
	closed   bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{openErr: make(map[string]error)}
}

func (h *fakeHost) PlaybackDevices() ([]Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.enumErr != nil {
		return nil, h.enumErr
	}
	return append([]Device(nil), h.playback...), nil
}

func (h *fakeHost) CaptureDevices() ([]Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.enumErr != nil {
		return nil, h.enumErr
	}
	return append([]Device(nil), h.capture...), nil
}

func (h *fakeHost) OpenPlayback(cfg StreamConfig, cb DataProc) (Stream, error) {
	return h.open(cfg, cb, h.playback)
}

func (h *fakeHost) OpenCapture(cfg StreamConfig, cb DataProc) (Stream, error) {
	return h.open(cfg, cb, h.capture)
}

func (h *fakeHost) open(cfg StreamConfig, cb DataProc, devices []Device) (Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.openErr[cfg.DeviceName]; err != nil {
		return nil, err
	}
	if cfg.DeviceName != "" {
		found := false
		for _, d := range devices {
			if d.Name == cfg.DeviceName {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, cfg.DeviceName)
		}
	}
	s := &fakeStream{host: h, cfg: cfg, cb: cb}
	h.streams = append(h.streams, s)
	return s, nil
}

func (h *fakeHost) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

// openStreams returns the streams opened so far, in order.
func (h *fakeHost) openStreams() []*fakeStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*fakeStream(nil), h.streams...)
}

type fakeStream struct {
	host *fakeHost
	cfg  StreamConfig
	cb   DataProc

	mu       sync.Mutex
	started  bool
	stops    int
	uninited bool
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	s.started = false
	s.stops++
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Uninit() {
	s.mu.Lock()
	s.uninited = true
	s.mu.Unlock()
}

func (s *fakeStream) isUninited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uninited
}

// renderBytes invokes the data callback as a playback device would and
// returns the bytes the callback produced for the given frame count.
func (s *fakeStream) renderBytes(frames int) []byte {
	out := make([]byte, frames*s.cfg.Channels*s.cfg.Format.BytesPerSample())
	s.cb(out, nil, uint32(frames))
	return out
}

// feedBytes invokes the data callback as a capture device would,
// handing it raw input bytes for the given frame count.
func (s *fakeStream) feedBytes(in []byte, frames int) {
	s.cb(nil, in, uint32(frames))
}

// renderFloats is renderBytes decoded back to floats for assertions.
func (s *fakeStream) renderFloats(frames int) []float32 {
	raw := s.renderBytes(frames)
	dst := make([]float32, frames*s.cfg.Channels)
	DecodeFloats(dst, raw, s.cfg.Format)
	return dst
}

// feedFloats encodes samples into the stream's native format and feeds
// them to the capture callback. len(src) must be frames*channels.
func (s *fakeStream) feedFloats(src []float32) {
	raw := make([]byte, len(src)*s.cfg.Format.BytesPerSample())
	EncodeFloats(raw, src, s.cfg.Format)
	s.feedBytes(raw, len(src)/s.cfg.Channels)
}

var _ Host = (*fakeHost)(nil)

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

package decode

import (
	"fmt"
	"io"
	"time"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/NicolasHaas/soundboard/pkg/audio"
)

// mp3Reader decodes MPEG audio via go-mp3, which always emits 16-bit
// little-endian stereo regardless of the source channel layout.
type mp3Reader struct {
	d       *mp3.Decoder
	rate    int
	scratch []byte

	total  time.Duration
	known  bool
	offset time.Duration
}

func newMP3Reader(f io.ReadSeeker, offset time.Duration) (*mp3Reader, error) {
	d, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, err
	}

	m := &mp3Reader{d: d, rate: d.SampleRate(), offset: offset}
	if m.rate < 1 {
		return nil, fmt.Errorf("invalid sample rate %d", m.rate)
	}

	// Length is the decoded byte count, 4 bytes per stereo frame.
	if l := d.Length(); l > 0 {
		frames := l / 4
		m.total = time.Duration(float64(frames) / float64(m.rate) * float64(time.Second))
		m.known = true
	}

	if offset > 0 {
		frame := int64(offset.Seconds() * float64(m.rate))
		if _, err := d.Seek(frame*4, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek: %w", err)
		}
	}
	return m, nil
}

func (m *mp3Reader) read(dst []float32) (int, error) {
	need := len(dst) * 2
	if cap(m.scratch) < need {
		m.scratch = make([]byte, need)
	}
	raw := m.scratch[:need]

	n, err := io.ReadFull(m.d, raw)
	if n > 0 {
		samples := n / 2
		audio.DecodeFloats(dst[:samples], raw[:samples*2], audio.FormatS16)
		return samples, nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return 0, io.EOF
	}
	return 0, err
}

func (m *mp3Reader) sampleRate() int { return m.rate }

// go-mp3 upmixes mono sources, so the output is always stereo.
func (m *mp3Reader) channels() int { return 2 }

func (m *mp3Reader) remaining() (float64, bool) {
	if !m.known {
		return 0, false
	}
	rem := m.total.Seconds() - m.offset.Seconds()
	if rem < 0 {
		rem = 0
	}
	return rem, true
}

func (m *mp3Reader) close() error { return nil }

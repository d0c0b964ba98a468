package decode

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mewkiz/flac"
)

// flacReader decodes FLAC frame by frame, interleaving the per-channel
// subframe samples. Seeking tries the codec's own frame seek first and
// falls back to decode-and-discard for streams it cannot binary-search.
type flacReader struct {
	s    *flac.Stream
	ch   int
	rate int
	bits int

	data []float32
	pos  int

	total  uint64 // total inter-channel samples, 0 = unknown
	offset time.Duration
}

func newFLACReader(f io.ReadSeeker, offset time.Duration) (*flacReader, error) {
	s, err := flac.NewSeek(seekerOnly{f})
	if err != nil {
		return nil, err
	}

	info := s.Info
	r := &flacReader{
		s:      s,
		ch:     int(info.NChannels),
		rate:   int(info.SampleRate),
		bits:   int(info.BitsPerSample),
		total:  info.NSamples,
		offset: offset,
	}
	if r.ch < 1 || r.rate < 1 || r.bits < 4 {
		_ = s.Close()
		return nil, fmt.Errorf("invalid stream info: %d channels, %d Hz, %d bits", r.ch, r.rate, r.bits)
	}

	if offset > 0 {
		target := uint64(offset.Seconds() * float64(r.rate))
		pos, serr := s.Seek(target)
		if serr != nil {
			// Unseekable layout; walk the frames instead.
			pos = 0
		}
		if pos < target {
			if derr := r.discard(int(target-pos) * r.ch); derr != nil && !errors.Is(derr, io.EOF) {
				_ = s.Close()
				return nil, fmt.Errorf("seek: %w", derr)
			}
		}
	}
	return r, nil
}

func (r *flacReader) read(dst []float32) (int, error) {
	if r.pos >= len(r.data) {
		if err := r.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(dst, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// fill parses the next frame and interleaves its subframes.
func (r *flacReader) fill() error {
	for {
		frame, err := r.s.ParseNext()
		if err != nil {
			return err
		}
		if len(frame.Subframes) == 0 || len(frame.Subframes[0].Samples) == 0 {
			continue
		}

		nsamp := len(frame.Subframes[0].Samples)
		want := nsamp * len(frame.Subframes)
		if cap(r.data) < want {
			r.data = make([]float32, want)
		}
		r.data = r.data[:want]
		r.pos = 0

		div := pcmDivisor(r.bits)
		for i := 0; i < nsamp; i++ {
			for c, sf := range frame.Subframes {
				r.data[i*len(frame.Subframes)+c] = float32(sf.Samples[i]) / div
			}
		}
		return nil
	}
}

// discard drops n interleaved samples from the front of the stream.
func (r *flacReader) discard(n int) error {
	for n > 0 {
		if err := r.fill(); err != nil {
			return err
		}
		if len(r.data) <= n {
			n -= len(r.data)
			r.data = r.data[:0]
			continue
		}
		r.pos = n
		n = 0
	}
	return nil
}

func (r *flacReader) sampleRate() int { return r.rate }
func (r *flacReader) channels() int   { return r.ch }

func (r *flacReader) remaining() (float64, bool) {
	if r.total == 0 {
		return 0, false
	}
	rem := float64(r.total)/float64(r.rate) - r.offset.Seconds()
	if rem < 0 {
		rem = 0
	}
	return rem, true
}

func (r *flacReader) close() error { return r.s.Close() }

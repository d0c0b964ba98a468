package decode

import (
	"errors"
	"fmt"
	"io"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1
const wavFormatExtensible = 0xFFFE

// wavReader decodes RIFF/WAVE PCM through go-audio's chunked decoder.
// Only integer PCM is supported; IEEE-float and compressed variants
// are rejected at construction.
type wavReader struct {
	d    *wav.Decoder
	ch   int
	rate int
	bits int

	buf  *gaudio.IntBuffer
	data []float32
	pos  int

	total  time.Duration
	known  bool
	offset time.Duration
}

func newWAVReader(f io.ReadSeeker, offset time.Duration) (*wavReader, error) {
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, errors.New("invalid wave file")
	}
	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatExtensible {
		return nil, fmt.Errorf("%w: wave audio format %d", ErrUnsupportedFormat, d.WavAudioFormat)
	}
	switch d.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d-bit wave", ErrUnsupportedFormat, d.BitDepth)
	}

	w := &wavReader{
		d:      d,
		ch:     int(d.NumChans),
		rate:   int(d.SampleRate),
		bits:   int(d.BitDepth),
		buf:    &gaudio.IntBuffer{Data: make([]int, 4096)},
		offset: offset,
	}
	if w.ch < 1 || w.rate < 1 {
		return nil, errors.New("invalid wave header")
	}

	if total, err := d.Duration(); err == nil {
		w.total = total
		w.known = true
	}

	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("forward to data chunk: %w", err)
	}
	if offset > 0 {
		discard := int(offset.Seconds()*float64(w.rate)) * w.ch
		if err := w.discard(discard); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("seek: %w", err)
		}
	}
	return w, nil
}

func (w *wavReader) read(dst []float32) (int, error) {
	if w.pos >= len(w.data) {
		if err := w.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(dst, w.data[w.pos:])
	w.pos += n
	return n, nil
}

// fill decodes the next chunk of ints and normalizes them.
func (w *wavReader) fill() error {
	n, err := w.d.PCMBuffer(w.buf)
	if err != nil {
		return err
	}
	if n == 0 {
		return io.EOF
	}

	if cap(w.data) < n {
		w.data = make([]float32, n)
	}
	w.data = w.data[:n]
	w.pos = 0

	if w.bits == 8 {
		// 8-bit wave is unsigned with silence at 128.
		for i, v := range w.buf.Data[:n] {
			w.data[i] = float32(v-128) / 128
		}
		return nil
	}
	div := pcmDivisor(w.bits)
	for i, v := range w.buf.Data[:n] {
		w.data[i] = float32(v) / div
	}
	return nil
}

// discard drops n interleaved samples from the front of the stream.
func (w *wavReader) discard(n int) error {
	for n > 0 {
		if err := w.fill(); err != nil {
			return err
		}
		if len(w.data) <= n {
			n -= len(w.data)
			w.data = w.data[:0]
			continue
		}
		w.pos = n
		n = 0
	}
	return nil
}

func (w *wavReader) sampleRate() int { return w.rate }
func (w *wavReader) channels() int   { return w.ch }

func (w *wavReader) remaining() (float64, bool) {
	if !w.known {
		return 0, false
	}
	rem := w.total.Seconds() - w.offset.Seconds()
	if rem < 0 {
		rem = 0
	}
	return rem, true
}

func (w *wavReader) close() error { return nil }

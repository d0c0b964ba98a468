package decode

import (
	"io"
	"time"

	"github.com/hraban/opus"
)

// opusRate is the only rate libopusfile decodes at.
const opusRate = 48000

// maxOpusFrame is the largest opus packet in frames per channel (120ms
// at 48kHz).
const maxOpusFrame = 5760

// opusReader decodes ogg opus through libopusfile. The wrapper exposes
// neither the stream length nor sample-accurate seeking, so duration
// is reported unknown and the start offset is decoded and discarded.
type opusReader struct {
	s  *opus.Stream
	ch int

	buf  []float32
	data []float32
	pos  int
}

func newOpusReader(f io.ReadSeeker, offset time.Duration) (*opusReader, error) {
	ch := opusChannels(f)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	s, err := opus.NewStream(seekerOnly{f})
	if err != nil {
		return nil, err
	}

	r := &opusReader{s: s, ch: ch, buf: make([]float32, maxOpusFrame*ch)}
	if offset > 0 {
		frames := int64(offset.Seconds() * opusRate)
		if err := r.discard(frames * int64(ch)); err != nil && err != io.EOF {
			_ = s.Close()
			return nil, err
		}
	}
	return r, nil
}

// opusChannels parses the channel count out of the OpusHead packet in
// the first ogg page. The decode wrapper has no accessor for it.
func opusChannels(f io.Reader) int {
	hdr := make([]byte, sniffLen)
	n, _ := io.ReadFull(f, hdr)
	pkt := oggFirstPacket(hdr[:n])
	if len(pkt) >= 10 && string(pkt[:8]) == "OpusHead" {
		if c := int(pkt[9]); c > 0 {
			return c
		}
	}
	return 2
}

func (r *opusReader) read(dst []float32) (int, error) {
	if r.pos >= len(r.data) {
		if err := r.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(dst, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// fill decodes the next packet. ReadFloat32 counts frames per channel.
func (r *opusReader) fill() error {
	n, err := r.s.ReadFloat32(r.buf)
	if err != nil {
		return err
	}
	if n == 0 {
		return io.EOF
	}
	r.data = r.buf[:n*r.ch]
	r.pos = 0
	return nil
}

// discard drops n interleaved samples from the front of the stream.
func (r *opusReader) discard(n int64) error {
	for n > 0 {
		if err := r.fill(); err != nil {
			return err
		}
		if int64(len(r.data)) <= n {
			n -= int64(len(r.data))
			r.data = r.data[:0]
			continue
		}
		r.pos = int(n)
		n = 0
	}
	return nil
}

func (r *opusReader) sampleRate() int { return opusRate }
func (r *opusReader) channels() int   { return r.ch }

func (r *opusReader) remaining() (float64, bool) { return 0, false }

func (r *opusReader) close() error { return r.s.Close() }

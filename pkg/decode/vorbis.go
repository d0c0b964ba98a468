package decode

import (
	"fmt"
	"io"
	"time"

	"github.com/jfreymuth/oggvorbis"
)

// vorbisReader decodes ogg vorbis. The library seeks natively and
// reads interleaved float32 directly, so this binding is the thinnest
// of the set.
type vorbisReader struct {
	r      *oggvorbis.Reader
	offset time.Duration
}

func newVorbisReader(f io.ReadSeeker, offset time.Duration) (*vorbisReader, error) {
	r, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, err
	}

	v := &vorbisReader{r: r, offset: offset}
	if offset > 0 {
		pos := int64(offset.Seconds() * float64(r.SampleRate()))
		if err := r.SetPosition(pos); err != nil {
			return nil, fmt.Errorf("seek: %w", err)
		}
	}
	return v, nil
}

func (v *vorbisReader) read(dst []float32) (int, error) {
	n, err := v.r.Read(dst)
	if n > 0 {
		return n, nil
	}
	if err == nil {
		return 0, io.EOF
	}
	return 0, err
}

func (v *vorbisReader) sampleRate() int { return v.r.SampleRate() }
func (v *vorbisReader) channels() int   { return v.r.Channels() }

func (v *vorbisReader) remaining() (float64, bool) {
	length := v.r.Length() // samples per channel, 0 when unknown
	if length == 0 {
		return 0, false
	}
	rem := float64(length)/float64(v.r.SampleRate()) - v.offset.Seconds()
	if rem < 0 {
		rem = 0
	}
	return rem, true
}

func (v *vorbisReader) close() error { return nil }

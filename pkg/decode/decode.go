// Package decode opens audio files as streams of interleaved,
// normalized float32 samples. The container is detected from leading
// bytes with the file extension as tiebreak; wav, mp3, flac, ogg
// vorbis, and ogg opus are supported. Opening seeks to a requested
// start offset and decodes one batch up front, so files that cannot
// produce audio fail at open rather than mid-playback.
package decode

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrUnsupportedFormat is returned for containers or sample encodings
// none of the codec bindings can decode.
var ErrUnsupportedFormat = errors.New("decode: unsupported audio format")

// ErrNoAudio is returned when a file opens cleanly but yields zero
// samples, including a start offset at or past the end of the stream.
var ErrNoAudio = errors.New("decode: no audio")

// primeSamples is the size of the batch decoded during Open.
const primeSamples = 4096

// sniffLen is how many leading bytes are read to identify a container.
// Enough for every magic number plus the first ogg packet header.
const sniffLen = 512

// codecReader is one container binding. Implementations decode into
// interleaved float32 and report the stream's properties. read returns
// io.EOF once the stream is exhausted; short reads are normal.
type codecReader interface {
	read(dst []float32) (int, error)
	sampleRate() int
	channels() int
	// remaining returns the seconds left after the construction-time
	// start offset, or false when the codec cannot tell.
	remaining() (float64, bool)
	close() error
}

type containerKind int

const (
	kindUnknown containerKind = iota
	kindWAV
	kindMP3
	kindFLAC
	kindVorbis
	kindOpus
)

func (k containerKind) String() string {
	switch k {
	case kindWAV:
		return "wav"
	case kindMP3:
		return "mp3"
	case kindFLAC:
		return "flac"
	case kindVorbis:
		return "ogg-vorbis"
	case kindOpus:
		return "ogg-opus"
	default:
		return "unknown"
	}
}

// Stream reads one audio file as interleaved float32 samples.
type Stream struct {
	r    codecReader
	f    *os.File
	kind containerKind
	rate int
	ch   int

	primed    []float32
	remaining time.Duration
	known     bool
}

// Open opens the audio file at path and seeks startOffset into the
// stream. Negative offsets clamp to zero; an offset at or past the end
// fails with ErrNoAudio.
func Open(path string, startOffset time.Duration) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode: open file: %w", err)
	}

	hdr := make([]byte, sniffLen)
	n, _ := io.ReadFull(f, hdr)
	hdr = hdr[:n]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("decode: rewind after sniff: %w", err)
	}

	if startOffset < 0 {
		startOffset = 0
	}

	kind := sniffContainer(hdr, filepath.Ext(path))
	var r codecReader
	switch kind {
	case kindWAV:
		r, err = newWAVReader(f, startOffset)
	case kindMP3:
		r, err = newMP3Reader(f, startOffset)
	case kindFLAC:
		r, err = newFLACReader(f, startOffset)
	case kindVorbis:
		r, err = newVorbisReader(f, startOffset)
	case kindOpus:
		r, err = newOpusReader(f, startOffset)
	default:
		f.Close()
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode: open %s: %w", kind, err)
	}

	s := &Stream{r: r, f: f, kind: kind, rate: r.sampleRate(), ch: r.channels()}
	if rem, ok := r.remaining(); ok {
		s.remaining = time.Duration(rem * float64(time.Second))
		s.known = true
	}

	// Prime one batch so silent failures surface here instead of after
	// playback state has been committed.
	buf := make([]float32, primeSamples)
	pn, perr := s.r.read(buf)
	if perr != nil && !errors.Is(perr, io.EOF) {
		s.Close()
		return nil, fmt.Errorf("decode: prime %s: %w", kind, perr)
	}
	if pn == 0 {
		s.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoAudio, filepath.Base(path))
	}
	s.primed = buf[:pn]

	slog.Debug("decoder opened",
		"file", filepath.Base(path), "container", kind, "rate", s.rate,
		"channels", s.ch, "offset", startOffset, "known_duration", s.known)
	return s, nil
}

// Read fills dst with interleaved samples and returns the count
// written. A short read is not an error; io.EOF signals the end of the
// stream and is never paired with a non-zero count.
func (s *Stream) Read(dst []float32) (int, error) {
	if len(s.primed) > 0 {
		n := copy(dst, s.primed)
		s.primed = s.primed[n:]
		return n, nil
	}

	n, err := s.r.read(dst)
	if n > 0 {
		return n, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return 0, io.EOF
	}
	return 0, fmt.Errorf("decode: read %s: %w", s.kind, err)
}

// SampleRate returns the stream's sample rate in Hz.
func (s *Stream) SampleRate() int { return s.rate }

// Channels returns the number of interleaved channels.
func (s *Stream) Channels() int { return s.ch }

// Duration returns the play time remaining after the start offset, or
// false when the codec cannot determine it.
func (s *Stream) Duration() (time.Duration, bool) {
	return s.remaining, s.known
}

// Close releases the codec and the underlying file.
func (s *Stream) Close() error {
	cerr := s.r.close()
	ferr := s.f.Close()
	if cerr != nil {
		return cerr
	}
	return ferr
}

// ProbeDuration opens the file just long enough to read its duration.
// ok is false when the codec cannot determine one.
func ProbeDuration(path string) (d time.Duration, ok bool, err error) {
	s, err := Open(path, 0)
	if err != nil {
		return 0, false, err
	}
	defer s.Close()
	d, ok = s.Duration()
	return d, ok, nil
}

// SupportedExtension reports whether the file extension belongs to a
// container Open can try. Directory imports use it as a pre-filter;
// the sniffer still has the final word once the file is opened.
func SupportedExtension(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave", ".mp3", ".flac", ".ogg", ".oga", ".opus":
		return true
	}
	return false
}

// sniffContainer identifies the container from leading bytes, falling
// back to the extension when the magic is inconclusive.
func sniffContainer(hdr []byte, ext string) containerKind {
	switch {
	case len(hdr) >= 12 && string(hdr[0:4]) == "RIFF" && string(hdr[8:12]) == "WAVE":
		return kindWAV
	case len(hdr) >= 4 && string(hdr[0:4]) == "fLaC":
		return kindFLAC
	case len(hdr) >= 4 && string(hdr[0:4]) == "OggS":
		if pkt := oggFirstPacket(hdr); len(pkt) >= 8 {
			if string(pkt[:8]) == "OpusHead" {
				return kindOpus
			}
			if string(pkt[:7]) == "\x01vorbis" {
				return kindVorbis
			}
		}
	case len(hdr) >= 3 && string(hdr[0:3]) == "ID3":
		return kindMP3
	case len(hdr) >= 2 && hdr[0] == 0xFF && hdr[1]&0xE0 == 0xE0:
		return kindMP3
	}

	switch strings.ToLower(ext) {
	case ".wav", ".wave":
		return kindWAV
	case ".mp3":
		return kindMP3
	case ".flac":
		return kindFLAC
	case ".ogg", ".oga":
		return kindVorbis
	case ".opus":
		return kindOpus
	}
	return kindUnknown
}

// oggFirstPacket returns the payload of the first ogg page, which
// carries the codec identification header.
func oggFirstPacket(hdr []byte) []byte {
	if len(hdr) < 27 {
		return nil
	}
	nsegs := int(hdr[26])
	start := 27 + nsegs
	if len(hdr) <= start {
		return nil
	}
	return hdr[start:]
}

// seekerOnly hides Close from codec libraries that close their source
// reader; the Stream owns the file handle.
type seekerOnly struct{ io.ReadSeeker }

// pcmDivisor returns the normalization divisor for signed PCM of the
// given bit depth.
func pcmDivisor(bits int) float32 {
	switch bits {
	case 16:
		return 32767
	case 24:
		return 8388608
	case 32:
		return 2147483647
	default:
		return float32(int64(1) << uint(bits-1))
	}
}

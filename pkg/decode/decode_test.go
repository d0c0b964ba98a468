package decode

import (
	"errors"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWAV writes a PCM wave fixture whose frame i carries sampleAt(i)
// on every channel.
func writeWAV(t *testing.T, path string, rate, ch, bits, frames int, sampleAt func(i int) int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	enc := wav.NewEncoder(f, rate, bits, ch, wavFormatPCM)
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: ch, SampleRate: rate},
		SourceBitDepth: bits,
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < ch; c++ {
			buf.Data = append(buf.Data, sampleAt(i))
		}
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}
}

func ramp(i int) int { return i%2000 - 1000 }

func readAll(t *testing.T, s *Stream) []float32 {
	t.Helper()
	var out []float32
	buf := make([]float32, 1024)
	for {
		n, err := s.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("read: %v", err)
		}
	}
}

// oggPage builds a minimal first ogg page around the given packet.
func oggPage(packet []byte) []byte {
	page := make([]byte, 28+len(packet))
	copy(page, "OggS")
	page[26] = 1 // one segment
	page[27] = byte(len(packet))
	copy(page[28:], packet)
	return page
}

func TestSniffContainer(t *testing.T) {
	tests := map[string]struct {
		hdr  []byte
		ext  string
		want containerKind
	}{
		"riff wave magic":       {[]byte("RIFF\x24\x08\x00\x00WAVEfmt "), ".bin", kindWAV},
		"flac magic":            {[]byte("fLaC\x00\x00\x00\x22"), ".bin", kindFLAC},
		"id3 tag":               {[]byte("ID3\x04\x00"), ".bin", kindMP3},
		"mpeg sync":             {[]byte{0xFF, 0xFB, 0x90, 0x00}, ".bin", kindMP3},
		"ogg opus":              {oggPage([]byte("OpusHead\x01\x02")), ".bin", kindOpus},
		"ogg vorbis":            {oggPage([]byte("\x01vorbis\x00")), ".bin", kindVorbis},
		"ogg unknown by ext":    {oggPage([]byte("Speex   ")), ".ogg", kindVorbis},
		"no magic wav ext":      {[]byte("garbage"), ".wav", kindWAV},
		"no magic mp3 ext":      {nil, ".mp3", kindMP3},
		"no magic opus ext":     {nil, ".opus", kindOpus},
		"no magic flac ext":     {nil, ".FLAC", kindFLAC},
		"nothing to go on":      {[]byte("hello world"), ".txt", kindUnknown},
		"short buffer no magic": {[]byte{0xFF}, "", kindUnknown},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := sniffContainer(tt.hdr, tt.ext); got != tt.want {
				t.Errorf("sniffContainer = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpenWAVReadsAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeWAV(t, path, 8000, 1, 16, 8000, ramp)

	s, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if s.SampleRate() != 8000 || s.Channels() != 1 {
		t.Errorf("stream props = %d Hz %d ch, want 8000 Hz 1 ch", s.SampleRate(), s.Channels())
	}
	d, ok := s.Duration()
	if !ok || d < 990*time.Millisecond || d > 1010*time.Millisecond {
		t.Errorf("Duration = %v ok=%v, want ~1s known", d, ok)
	}

	got := readAll(t, s)
	if len(got) != 8000 {
		t.Fatalf("decoded %d samples, want 8000", len(got))
	}
	for _, i := range []int{0, 1, 999, 4000, 7999} {
		want := float32(ramp(i)) / 32767
		if math.Abs(float64(got[i]-want)) > 1e-4 {
			t.Errorf("sample %d = %v, want %v", i, got[i], want)
		}
	}
}

func TestOpenWAVStartOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeWAV(t, path, 8000, 1, 16, 8000, ramp)

	s, err := Open(path, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	d, ok := s.Duration()
	if !ok || d < 490*time.Millisecond || d > 510*time.Millisecond {
		t.Errorf("Duration after offset = %v ok=%v, want ~500ms known", d, ok)
	}

	got := readAll(t, s)
	if len(got) != 4000 {
		t.Fatalf("decoded %d samples after offset, want 4000", len(got))
	}
	// The very first sample must be frame 4000, not a frame nearby.
	want := float32(ramp(4000)) / 32767
	if math.Abs(float64(got[0]-want)) > 1e-4 {
		t.Errorf("first sample after seek = %v, want %v", got[0], want)
	}
}

func TestOpenWAVOffsetPastEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.wav")
	writeWAV(t, path, 8000, 1, 16, 800, ramp)

	_, err := Open(path, 2*time.Second)
	if !errors.Is(err, ErrNoAudio) {
		t.Errorf("Open past end = %v, want ErrNoAudio", err)
	}
}

func TestOpenNegativeOffsetClamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeWAV(t, path, 8000, 1, 16, 100, ramp)

	s, err := Open(path, -3*time.Second)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if got := readAll(t, s); len(got) != 100 {
		t.Errorf("decoded %d samples, want all 100", len(got))
	}
}

func TestOpenEmptyWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wav")
	writeWAV(t, path, 8000, 1, 16, 0, ramp)

	_, err := Open(path, 0)
	if !errors.Is(err, ErrNoAudio) {
		t.Errorf("Open empty file = %v, want ErrNoAudio", err)
	}
}

func TestOpenFloatWAVUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "float.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := wav.NewEncoder(f, 8000, 32, 1, 3) // format 3 = IEEE float
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: 8000},
		SourceBitDepth: 32,
		Data:           make([]int, 64),
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	f.Close()

	_, err = Open(path, 0)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Open float wave = %v, want ErrUnsupportedFormat", err)
	}
}

func TestOpen8BitWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lofi.wav")
	writeWAV(t, path, 8000, 1, 8, 256, func(i int) int { return i % 256 })

	s, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	got := readAll(t, s)
	if len(got) != 256 {
		t.Fatalf("decoded %d samples, want 256", len(got))
	}
	// Unsigned 8-bit: 128 is silence, 0 is full negative.
	if got[128] != 0 {
		t.Errorf("sample 128 = %v, want 0", got[128])
	}
	if got[0] != -1 {
		t.Errorf("sample 0 = %v, want -1", got[0])
	}
}

func TestOpenStereoWAVInterleaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	writeWAV(t, path, 8000, 2, 16, 500, ramp)

	s, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if s.Channels() != 2 {
		t.Fatalf("Channels = %d, want 2", s.Channels())
	}
	got := readAll(t, s)
	if len(got) != 1000 {
		t.Fatalf("decoded %d samples, want 1000", len(got))
	}
	for f := 0; f < 500; f += 97 {
		if got[2*f] != got[2*f+1] {
			t.Errorf("frame %d: channels differ: %v vs %v", f, got[2*f], got[2*f+1])
		}
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.wav"), 0)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open missing = %v, want fs.ErrNotExist", err)
	}
}

func TestOpenUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("not audio at all"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Open(path, 0)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Open text file = %v, want ErrUnsupportedFormat", err)
	}
}

func TestOpenGarbageWithWavExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	if err := os.WriteFile(path, []byte("definitely not riff"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(path, 0); err == nil {
		t.Error("Open garbage .wav succeeded, want error")
	}
}

func TestReadAfterEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeWAV(t, path, 8000, 1, 16, 64, ramp)

	s, err := Open(path, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	readAll(t, s)

	buf := make([]float32, 16)
	for i := 0; i < 2; i++ {
		n, err := s.Read(buf)
		if n != 0 || !errors.Is(err, io.EOF) {
			t.Fatalf("Read after EOF = (%d, %v), want (0, io.EOF)", n, err)
		}
	}
}

func TestProbeDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "two.wav")
	writeWAV(t, path, 8000, 1, 16, 16000, ramp)

	d, ok, err := ProbeDuration(path)
	if err != nil {
		t.Fatalf("ProbeDuration: %v", err)
	}
	if !ok || d < 1990*time.Millisecond || d > 2010*time.Millisecond {
		t.Errorf("ProbeDuration = %v ok=%v, want ~2s known", d, ok)
	}

	if _, _, err := ProbeDuration(filepath.Join(t.TempDir(), "gone.wav")); err == nil {
		t.Error("ProbeDuration on missing file succeeded, want error")
	}
}

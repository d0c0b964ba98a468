package audio

import (
	"encoding/binary"
	"math"
)

// Format identifies the sample encoding of raw PCM bytes.
//
// The set is closed: every encoding a backend can report maps onto one
// of these values, and all conversion between device bytes and the
// engine's native float32 goes through DecodeFloats and EncodeFloats.
// Code outside this file never switches on Format.
type Format int

const (
	FormatUnknown Format = iota
	FormatU8             // unsigned 8-bit, silence at 0x80
	FormatS16            // signed 16-bit little-endian
	FormatS24            // signed 24-bit little-endian, packed
	FormatS32            // signed 32-bit little-endian
	FormatF32            // 32-bit IEEE float little-endian
)

func (f Format) String() string {
	switch f {
	case FormatU8:
		return "u8"
	case FormatS16:
		return "s16"
	case FormatS24:
		return "s24"
	case FormatS32:
		return "s32"
	case FormatF32:
		return "f32"
	default:
		return "unknown"
	}
}

// BytesPerSample returns the size of one sample in bytes, or 0 for
// FormatUnknown.
func (f Format) BytesPerSample() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16:
		return 2
	case FormatS24:
		return 3
	case FormatS32:
		return 4
	case FormatF32:
		return 4
	default:
		return 0
	}
}

// DecodeFloats converts raw PCM bytes in src into normalized float32
// samples in dst and returns the number of samples written. Conversion
// stops at whichever runs out first: dst capacity or whole samples in
// src. Integer encodings normalize by their positive maximum, so full
// scale maps to a magnitude slightly above 1.0 on the negative side.
func DecodeFloats(dst []float32, src []byte, f Format) int {
	bps := f.BytesPerSample()
	if bps == 0 {
		return 0
	}
	n := len(src) / bps
	if n > len(dst) {
		n = len(dst)
	}

	switch f {
	case FormatU8:
		for i := 0; i < n; i++ {
			dst[i] = float32(int(src[i])-128) / 128
		}
	case FormatS16:
		for i := 0; i < n; i++ {
			v := int16(binary.LittleEndian.Uint16(src[i*2:]))
			dst[i] = float32(v) / 32767
		}
	case FormatS24:
		for i := 0; i < n; i++ {
			b := src[i*3:]
			v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			v = v << 8 >> 8 // sign-extend bit 23
			dst[i] = float32(v) / 8388608
		}
	case FormatS32:
		for i := 0; i < n; i++ {
			v := int32(binary.LittleEndian.Uint32(src[i*4:]))
			dst[i] = float32(v) / 2147483647
		}
	case FormatF32:
		for i := 0; i < n; i++ {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
	}
	return n
}

// EncodeFloats converts float32 samples in src into raw PCM bytes in
// dst and returns the number of samples written. Integer encodings are
// clamped to their representable range, so out-of-range input cannot
// wrap.
func EncodeFloats(dst []byte, src []float32, f Format) int {
	bps := f.BytesPerSample()
	if bps == 0 {
		return 0
	}
	n := len(src)
	if m := len(dst) / bps; m < n {
		n = m
	}

	switch f {
	case FormatU8:
		for i, x := range src[:n] {
			v := int(x*128) + 128
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			dst[i] = byte(v)
		}
	case FormatS16:
		for i, x := range src[:n] {
			v := int32(x * 32767)
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(v)))
		}
	case FormatS24:
		for i, x := range src[:n] {
			v := int32(x * 8388607)
			if v > 8388607 {
				v = 8388607
			} else if v < -8388608 {
				v = -8388608
			}
			b := dst[i*3:]
			b[0] = byte(v)
			b[1] = byte(v >> 8)
			b[2] = byte(v >> 16)
		}
	case FormatS32:
		for i, x := range src[:n] {
			v := int64(float64(x) * 2147483647)
			if v > math.MaxInt32 {
				v = math.MaxInt32
			} else if v < math.MinInt32 {
				v = math.MinInt32
			}
			binary.LittleEndian.PutUint32(dst[i*4:], uint32(int32(v)))
		}
	case FormatF32:
		for i, x := range src[:n] {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(x))
		}
	}
	return n
}

// Clamp01 clamps a gain factor to [0, 1]. NaN clamps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

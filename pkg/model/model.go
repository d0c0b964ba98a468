// Package model defines the core domain types for the soundboard.
package model

import (
	"math"
	"path/filepath"
	"strings"
)

// ClampVolume clamps a gain factor to [0, 1]. Gains are clamped when a
// value enters the system (store writes, settings updates), never at
// playback time. NaN clamps to 0.
func ClampVolume(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// NameFromPath derives a display name from an audio file path by
// stripping the directory and extension. "clips/air horn.mp3" -> "air horn".
func NameFromPath(path string) string {
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

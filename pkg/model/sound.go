package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxSoundNameLength = 64

var ErrSoundNameEmpty = errors.New("sound name cannot be empty")
var ErrSoundNameTooLong = fmt.Errorf("sound name exceeds %d characters", MaxSoundNameLength)
var ErrSoundPathEmpty = errors.New("sound file path cannot be empty")

// Sound is one entry in the sound library. The ID is a stable string
// (a UUID assigned on import) so it survives renames and re-imports;
// hotkey bindings and playback commands address sounds by it.
type Sound struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	FilePath      string    `json:"file_path"`
	CategoryID    int64     `json:"category_id"`    // 0 = uncategorised
	Hotkey        string    `json:"hotkey"`         // display label, e.g. "CTRL+F5"; empty = none
	Volume        float64   `json:"volume"`         // per-sound gain 0..1
	StartPosition float64   `json:"start_position"` // seconds skipped at playback start
	Duration      float64   `json:"duration"`       // seconds; 0 = unknown
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s *Sound) Validate() error {
	if err := ValidateSoundName(s.Name); err != nil {
		return err
	}
	if strings.TrimSpace(s.FilePath) == "" {
		return ErrSoundPathEmpty
	}

	return nil
}

// ValidateSoundName checks a sound name on its own, for renames.
func ValidateSoundName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrSoundNameEmpty
	} else if utf8.RuneCountInString(name) > MaxSoundNameLength {
		return ErrSoundNameTooLong
	}
	return nil
}

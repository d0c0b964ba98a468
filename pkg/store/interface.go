package store

import (
	"errors"

	"github.com/NicolasHaas/soundboard/pkg/model"
)

// ErrNotFound marks a lookup for a row that does not exist. The store
// getters themselves return (nil, nil) for missing rows; layers that
// need an error wrap this sentinel around one.
var ErrNotFound = errors.New("store: not found")

// DataStore defines the persistence interface for the sound library.
// Implementations include the default SQLite store and an in-memory
// store for tests.
type DataStore interface {
	// Close closes the underlying storage connection.
	Close() error

	// ---- Sounds ----

	// CreateSound stores a new sound and fills in its ID and timestamps.
	// A blank ID is assigned a fresh UUID.
	CreateSound(sound *model.Sound) error

	// GetSound retrieves a sound by ID. Returns (nil, nil) if not found.
	GetSound(id string) (*model.Sound, error)

	// GetSoundByHotkey retrieves the sound bound to a hotkey. Returns (nil, nil) if not found.
	GetSoundByHotkey(hotkey string) (*model.Sound, error)

	// ListSounds returns all sounds ordered by name.
	ListSounds() ([]model.Sound, error)

	// ListSoundsByCategory returns the sounds in one category ordered by name.
	ListSoundsByCategory(categoryID int64) ([]model.Sound, error)

	// UpdateSoundName renames a sound.
	UpdateSoundName(id, name string) error

	// UpdateSoundVolume sets a sound's volume, clamped to [0, 1].
	UpdateSoundVolume(id string, volume float64) error

	// UpdateSoundHotkey rebinds a sound's hotkey; empty clears the binding.
	UpdateSoundHotkey(id, hotkey string) error

	// UpdateSoundStartPosition sets where playback begins, in seconds from the file start.
	UpdateSoundStartPosition(id string, startPosition float64) error

	// UpdateSoundDuration records a sound's probed duration in seconds; 0 means unknown.
	UpdateSoundDuration(id string, duration float64) error

	// UpdateSoundCategory moves a sound to a category; 0 means uncategorized.
	UpdateSoundCategory(id string, categoryID int64) error

	// DeleteSound removes a sound by ID.
	DeleteSound(id string) error

	// ---- Categories ----

	// CreateCategory stores a new category and fills in its ID and timestamp.
	CreateCategory(category *model.Category) error

	// GetCategory retrieves a category by ID. Returns (nil, nil) if not found.
	GetCategory(id int64) (*model.Category, error)

	// ListCategories returns all categories ordered by name.
	ListCategories() ([]model.Category, error)

	// DeleteCategory removes a category and uncategorizes its sounds.
	DeleteCategory(id int64) error

	// ---- Settings ----

	// SetSetting stores one configuration value under a key.
	SetSetting(key, value string) error

	// GetSetting retrieves a configuration value. Returns "" if the key is absent.
	GetSetting(key string) (string, error)
}

// Compile-time check: *Store implements DataStore.
var _ DataStore = (*Store)(nil)

package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/soundboard/pkg/model"
)

// MemoryStore provides an in-memory DataStore implementation for tests.
// It mirrors SQLite behavior for validation and error handling.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextCategoryID int64

	soundsByID     map[string]*model.Sound
	categoriesByID map[int64]*model.Category
	settings       map[string]string
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:            now,
		nextCategoryID: 1,
		soundsByID:     make(map[string]*model.Sound),
		categoriesByID: make(map[int64]*model.Category),
		settings:       make(map[string]string),
	}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// CreateSound stores a new sound and fills in its ID and timestamps.
func (s *MemoryStore) CreateSound(sound *model.Sound) error {
	if err := sound.Validate(); err != nil {
		return fmt.Errorf("store: create sound: %w", err)
	}
	if sound.ID == "" {
		sound.ID = uuid.NewString()
	}
	sound.Volume = model.ClampVolume(sound.Volume)
	if sound.StartPosition < 0 {
		sound.StartPosition = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.soundsByID[sound.ID]; exists {
		return fmt.Errorf("store: create sound: constraint failed: UNIQUE constraint failed: sounds.id")
	}
	now := s.now().UTC()
	sound.CreatedAt = now
	sound.UpdatedAt = now
	copySound := *sound
	s.soundsByID[sound.ID] = &copySound
	return nil
}

// GetSound retrieves a sound by ID.
func (s *MemoryStore) GetSound(id string) (*model.Sound, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snd, ok := s.soundsByID[id]
	if !ok {
		return nil, nil
	}
	copySound := *snd
	return &copySound, nil
}

// GetSoundByHotkey retrieves the sound bound to a hotkey.
func (s *MemoryStore) GetSoundByHotkey(hotkey string) (*model.Sound, error) {
	if hotkey == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *model.Sound
	for _, snd := range s.soundsByID {
		if snd.Hotkey != hotkey {
			continue
		}
		if found == nil || snd.ID < found.ID {
			found = snd
		}
	}
	if found == nil {
		return nil, nil
	}
	copySound := *found
	return &copySound, nil
}

// ListSounds returns all sounds ordered by name.
func (s *MemoryStore) ListSounds() ([]model.Sound, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sounds := make([]model.Sound, 0, len(s.soundsByID))
	for _, snd := range s.soundsByID {
		sounds = append(sounds, *snd)
	}
	sortSounds(sounds)
	return sounds, nil
}

// ListSoundsByCategory returns the sounds in one category ordered by name.
func (s *MemoryStore) ListSoundsByCategory(categoryID int64) ([]model.Sound, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sounds []model.Sound
	for _, snd := range s.soundsByID {
		if snd.CategoryID == categoryID {
			sounds = append(sounds, *snd)
		}
	}
	sortSounds(sounds)
	return sounds, nil
}

func sortSounds(sounds []model.Sound) {
	sort.Slice(sounds, func(i, j int) bool {
		if sounds[i].Name == sounds[j].Name {
			return sounds[i].ID < sounds[j].ID
		}
		return sounds[i].Name < sounds[j].Name
	})
}

// UpdateSoundName renames a sound.
func (s *MemoryStore) UpdateSoundName(id, name string) error {
	if err := model.ValidateSoundName(name); err != nil {
		return fmt.Errorf("store: update sound name: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snd, ok := s.soundsByID[id]
	if !ok {
		return nil
	}
	snd.Name = name
	snd.UpdatedAt = s.now().UTC()
	return nil
}

// UpdateSoundVolume sets a sound's volume, clamped to [0, 1].
func (s *MemoryStore) UpdateSoundVolume(id string, volume float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snd, ok := s.soundsByID[id]
	if !ok {
		return nil
	}
	snd.Volume = model.ClampVolume(volume)
	snd.UpdatedAt = s.now().UTC()
	return nil
}

// UpdateSoundHotkey rebinds a sound's hotkey; empty clears the binding.
func (s *MemoryStore) UpdateSoundHotkey(id, hotkey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snd, ok := s.soundsByID[id]
	if !ok {
		return nil
	}
	snd.Hotkey = hotkey
	snd.UpdatedAt = s.now().UTC()
	return nil
}

// UpdateSoundStartPosition sets where playback begins, in seconds from
// the file start. Negative values clamp to 0.
func (s *MemoryStore) UpdateSoundStartPosition(id string, startPosition float64) error {
	if startPosition < 0 {
		startPosition = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snd, ok := s.soundsByID[id]
	if !ok {
		return nil
	}
	snd.StartPosition = startPosition
	snd.UpdatedAt = s.now().UTC()
	return nil
}

// UpdateSoundDuration records a sound's probed duration in seconds.
func (s *MemoryStore) UpdateSoundDuration(id string, duration float64) error {
	if duration < 0 {
		duration = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snd, ok := s.soundsByID[id]
	if !ok {
		return nil
	}
	snd.Duration = duration
	snd.UpdatedAt = s.now().UTC()
	return nil
}

// UpdateSoundCategory moves a sound to a category; 0 means uncategorized.
func (s *MemoryStore) UpdateSoundCategory(id string, categoryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snd, ok := s.soundsByID[id]
	if !ok {
		return nil
	}
	snd.CategoryID = categoryID
	snd.UpdatedAt = s.now().UTC()
	return nil
}

// DeleteSound removes a sound by ID.
func (s *MemoryStore) DeleteSound(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.soundsByID, id)
	return nil
}

// CreateCategory stores a new category and fills in its ID and timestamp.
func (s *MemoryStore) CreateCategory(category *model.Category) error {
	if err := category.Validate(); err != nil {
		return fmt.Errorf("store: create category: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cat := range s.categoriesByID {
		if cat.Name == category.Name {
			return fmt.Errorf("store: create category: constraint failed: UNIQUE constraint failed: categories.name")
		}
	}
	category.ID = s.nextCategoryID
	category.CreatedAt = s.now().UTC()
	s.nextCategoryID++
	copyCategory := *category
	s.categoriesByID[category.ID] = &copyCategory
	return nil
}

// GetCategory retrieves a category by ID.
func (s *MemoryStore) GetCategory(id int64) (*model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cat, ok := s.categoriesByID[id]
	if !ok {
		return nil, nil
	}
	copyCategory := *cat
	return &copyCategory, nil
}

// ListCategories returns all categories ordered by name.
func (s *MemoryStore) ListCategories() ([]model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	categories := make([]model.Category, 0, len(s.categoriesByID))
	for _, cat := range s.categoriesByID {
		categories = append(categories, *cat)
	}
	sort.Slice(categories, func(i, j int) bool {
		return categories[i].Name < categories[j].Name
	})
	return categories, nil
}

// DeleteCategory removes a category and uncategorizes its sounds.
func (s *MemoryStore) DeleteCategory(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snd := range s.soundsByID {
		if snd.CategoryID == id {
			snd.CategoryID = 0
		}
	}
	delete(s.categoriesByID, id)
	return nil
}

// SetSetting stores one configuration value under a key.
func (s *MemoryStore) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

// GetSetting retrieves a configuration value.
func (s *MemoryStore) GetSetting(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings[key], nil
}

// Compile-time check: *MemoryStore implements DataStore.
var _ DataStore = (*MemoryStore)(nil)

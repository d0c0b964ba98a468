package soundboard

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/NicolasHaas/soundboard/pkg/decode"
	"github.com/NicolasHaas/soundboard/pkg/model"
	"github.com/NicolasHaas/soundboard/pkg/store"
)

// importProbeWorkers caps concurrent duration probes during a
// directory import.
const importProbeWorkers = 4

// ImportSound probes an audio file and adds it to the library at full
// volume. An empty name derives one from the file name. The probed
// duration is stored so front-ends can show it without reopening the
// file.
func (s *Soundboard) ImportSound(path, name string, categoryID int64) (*model.Sound, error) {
	d, ok, err := decode.ProbeDuration(path)
	if err != nil {
		return nil, fmt.Errorf("soundboard: import %s: %w", path, err)
	}
	if name == "" {
		name = model.NameFromPath(path)
	}
	snd := model.Sound{
		Name:       name,
		FilePath:   path,
		CategoryID: categoryID,
		Volume:     1,
	}
	if ok {
		snd.Duration = d.Seconds()
	}
	if err := s.store.CreateSound(&snd); err != nil {
		return nil, fmt.Errorf("soundboard: import %s: %w", path, err)
	}
	slog.Info("sound imported", "sound_id", snd.ID, "name", snd.Name, "duration", snd.Duration)
	return &snd, nil
}

// ImportDirectory walks dir, probes every audio file found with a
// bounded worker pool, and adds the readable ones to the library.
// Files that fail to open are skipped with a warning; a failing walk
// or an ended ctx aborts the whole import.
func (s *Soundboard) ImportDirectory(ctx context.Context, dir string, categoryID int64) ([]model.Sound, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && decode.SupportedExtension(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("soundboard: scan %s: %w", dir, err)
	}

	durations := make([]float64, len(paths))
	skip := make([]bool, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(importProbeWorkers)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d, ok, err := decode.ProbeDuration(path)
			if err != nil {
				slog.Warn("skipping unreadable audio file", "file", path, "err", err)
				skip[i] = true
				return nil
			}
			if ok {
				durations[i] = d.Seconds()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("soundboard: import %s: %w", dir, err)
	}

	var imported []model.Sound
	for i, path := range paths {
		if skip[i] {
			continue
		}
		snd := model.Sound{
			Name:       model.NameFromPath(path),
			FilePath:   path,
			CategoryID: categoryID,
			Volume:     1,
			Duration:   durations[i],
		}
		if err := s.store.CreateSound(&snd); err != nil {
			slog.Warn("failed to import sound", "file", path, "err", err)
			continue
		}
		imported = append(imported, snd)
	}
	slog.Info("directory imported", "dir", dir, "imported", len(imported), "skipped", len(paths)-len(imported))
	return imported, nil
}

// Sound retrieves one library entry by id.
func (s *Soundboard) Sound(id string) (*model.Sound, error) {
	snd, err := s.store.GetSound(id)
	if err != nil {
		return nil, err
	}
	if snd == nil {
		return nil, fmt.Errorf("soundboard: sound %s: %w", id, store.ErrNotFound)
	}
	return snd, nil
}

// Sounds lists the whole library ordered by name.
func (s *Soundboard) Sounds() ([]model.Sound, error) {
	return s.store.ListSounds()
}

// SoundsByCategory lists one category's sounds ordered by name.
func (s *Soundboard) SoundsByCategory(categoryID int64) ([]model.Sound, error) {
	return s.store.ListSoundsByCategory(categoryID)
}

// RemoveSound stops the sound if it is playing and deletes it from the
// library.
func (s *Soundboard) RemoveSound(id string) error {
	if err := s.engine.Stop(id); err != nil {
		return fmt.Errorf("soundboard: remove %s: %w", id, err)
	}
	if err := s.store.DeleteSound(id); err != nil {
		return fmt.Errorf("soundboard: remove %s: %w", id, err)
	}
	return nil
}

// RenameSound changes a sound's display name.
func (s *Soundboard) RenameSound(id, name string) error {
	return s.store.UpdateSoundName(id, name)
}

// SetSoundHotkey stores a hotkey label on a sound; empty clears it.
// Capturing key presses is up to the front-end, which calls
// TriggerHotkey when one fires.
func (s *Soundboard) SetSoundHotkey(id, hotkey string) error {
	return s.store.UpdateSoundHotkey(id, hotkey)
}

// SetSoundStartPosition stores where playback of a sound begins, in
// seconds from the file start.
func (s *Soundboard) SetSoundStartPosition(id string, seconds float64) error {
	return s.store.UpdateSoundStartPosition(id, seconds)
}

// SetSoundCategory moves a sound to a category; 0 uncategorizes it.
func (s *Soundboard) SetSoundCategory(id string, categoryID int64) error {
	return s.store.UpdateSoundCategory(id, categoryID)
}

// TriggerSound plays a stored sound in response to a hotkey press.
func (s *Soundboard) TriggerSound(id string) error {
	return s.PlaySound(id)
}

// TriggerHotkey plays the sound bound to a hotkey label.
func (s *Soundboard) TriggerHotkey(hotkey string) error {
	snd, err := s.store.GetSoundByHotkey(hotkey)
	if err != nil {
		return fmt.Errorf("soundboard: hotkey %q: %w", hotkey, err)
	}
	if snd == nil {
		return fmt.Errorf("soundboard: hotkey %q: %w", hotkey, store.ErrNotFound)
	}
	return s.PlaySound(snd.ID)
}

// CreateCategory adds a category to the library.
func (s *Soundboard) CreateCategory(name, color string) (*model.Category, error) {
	cat := model.Category{Name: name, Color: color}
	if err := s.store.CreateCategory(&cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Categories lists all categories ordered by name.
func (s *Soundboard) Categories() ([]model.Category, error) {
	return s.store.ListCategories()
}

// RemoveCategory deletes a category; its sounds become uncategorized.
func (s *Soundboard) RemoveCategory(id int64) error {
	return s.store.DeleteCategory(id)
}

// Package store provides SQLite-backed persistence for sounds, categories, and settings.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/soundboard/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// Store provides database access for the sound library.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable FK: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sounds (
		id             TEXT    PRIMARY KEY,
		name           TEXT    NOT NULL CHECK(length(name) > 0),
		file_path      TEXT    NOT NULL CHECK(length(file_path) > 0),
		category_id    INTEGER NOT NULL DEFAULT 0,
		hotkey         TEXT    NOT NULL DEFAULT '',
		volume         REAL    NOT NULL DEFAULT 1.0,
		start_position REAL    NOT NULL DEFAULT 0,
		duration       REAL    NOT NULL DEFAULT 0,
		created_at     TEXT    NOT NULL DEFAULT (datetime('now')),
		updated_at     TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS categories (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT    NOT NULL UNIQUE CHECK(length(name) > 0),
		color      TEXT    NOT NULL DEFAULT '',
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT (datetime('now'))
	);
	`
	ctx := context.Background()
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version      int
		statements   []string
		ignoreErrors bool
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version: 2,
			statements: []string{
				"ALTER TABLE sounds ADD COLUMN start_position REAL NOT NULL DEFAULT 0",
				"ALTER TABLE sounds ADD COLUMN duration REAL NOT NULL DEFAULT 0",
			},
			ignoreErrors: true,
		},
		{
			version: 3,
			statements: []string{
				"ALTER TABLE sounds ADD COLUMN hotkey TEXT NOT NULL DEFAULT ''",
			},
			ignoreErrors: true,
		},
		{
			version: 4,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS idx_sounds_category_id ON sounds(category_id)",
			},
			ignoreErrors: true,
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if err := s.execMigration(ctx, stmt, m.ignoreErrors); err != nil {
				return err
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("store: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("store: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("store: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *Store) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("store: read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("store: update schema version: %w", err)
	}
	return nil
}

func (s *Store) execMigration(ctx context.Context, stmt string, ignoreErrors bool) error {
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		if ignoreErrors {
			return nil
		}
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

// ---- Sounds ----

// CreateSound stores a new sound and fills in its ID and timestamps.
// It validates the sound and clamps the volume and start position
// before inserting.
func (s *Store) CreateSound(sound *model.Sound) error {
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

	now := time.Now().UTC()
	_, err := s.db.ExecContext(context.Background(),
		"INSERT INTO sounds (id, name, file_path, category_id, hotkey, volume, start_position, duration, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		sound.ID, sound.Name, sound.FilePath, sound.CategoryID, sound.Hotkey,
		sound.Volume, sound.StartPosition, sound.Duration, formatDBTime(now), formatDBTime(now))
	if err != nil {
		return fmt.Errorf("store: create sound: %w", err)
	}
	sound.CreatedAt = now
	sound.UpdatedAt = now
	return nil
}

// GetSound retrieves a sound by ID.
func (s *Store) GetSound(id string) (*model.Sound, error) {
	snd := &model.Sound{}
	var createdAt string
	var updatedAt string
	err := s.db.QueryRowContext(context.Background(),
		"SELECT id, name, file_path, category_id, hotkey, volume, start_position, duration, created_at, updated_at FROM sounds WHERE id = ?", id).
		Scan(&snd.ID, &snd.Name, &snd.FilePath, &snd.CategoryID, &snd.Hotkey, &snd.Volume, &snd.StartPosition, &snd.Duration, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get sound: %w", err)
	}
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("store: get sound: %w", err)
	}
	snd.CreatedAt = parsed
	snd.UpdatedAt, err = parseDBTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: get sound: %w", err)
	}
	return snd, nil
}

// GetSoundByHotkey retrieves the sound bound to a hotkey.
func (s *Store) GetSoundByHotkey(hotkey string) (*model.Sound, error) {
	if hotkey == "" {
		return nil, nil
	}
	snd := &model.Sound{}
	var createdAt string
	var updatedAt string
	err := s.db.QueryRowContext(context.Background(),
		"SELECT id, name, file_path, category_id, hotkey, volume, start_position, duration, created_at, updated_at FROM sounds WHERE hotkey = ? ORDER BY id LIMIT 1", hotkey).
		Scan(&snd.ID, &snd.Name, &snd.FilePath, &snd.CategoryID, &snd.Hotkey, &snd.Volume, &snd.StartPosition, &snd.Duration, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get sound by hotkey: %w", err)
	}
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("store: get sound by hotkey: %w", err)
	}
	snd.CreatedAt = parsed
	snd.UpdatedAt, err = parseDBTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: get sound by hotkey: %w", err)
	}
	return snd, nil
}

// ListSounds returns all sounds ordered by name.
func (s *Store) ListSounds() ([]model.Sound, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT id, name, file_path, category_id, hotkey, volume, start_position, duration, created_at, updated_at FROM sounds ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("store: list sounds: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSoundRows(rows)
}

// ListSoundsByCategory returns the sounds in one category ordered by name.
func (s *Store) ListSoundsByCategory(categoryID int64) ([]model.Sound, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT id, name, file_path, category_id, hotkey, volume, start_position, duration, created_at, updated_at FROM sounds WHERE category_id = ? ORDER BY name, id", categoryID)
	if err != nil {
		return nil, fmt.Errorf("store: list sounds by category: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSoundRows(rows)
}

func scanSoundRows(rows *sql.Rows) ([]model.Sound, error) {
	var sounds []model.Sound
	for rows.Next() {
		var snd model.Sound
		var createdAt string
		var updatedAt string
		if err := rows.Scan(&snd.ID, &snd.Name, &snd.FilePath, &snd.CategoryID, &snd.Hotkey, &snd.Volume, &snd.StartPosition, &snd.Duration, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("store: scan sound: %w", err)
		}
		parsed, err := parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("store: scan sound: %w", err)
		}
		snd.CreatedAt = parsed
		snd.UpdatedAt, err = parseDBTime(updatedAt)
		if err != nil {
			return nil, fmt.Errorf("store: scan sound: %w", err)
		}
		sounds = append(sounds, snd)
	}
	return sounds, rows.Err()
}

// UpdateSoundName renames a sound.
func (s *Store) UpdateSoundName(id, name string) error {
	if err := model.ValidateSoundName(name); err != nil {
		return fmt.Errorf("store: update sound name: %w", err)
	}
	_, err := s.db.ExecContext(context.Background(),
		"UPDATE sounds SET name = ?, updated_at = ? WHERE id = ?", name, formatDBTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("store: update sound name: %w", err)
	}
	return nil
}

// UpdateSoundVolume sets a sound's volume, clamped to [0, 1].
func (s *Store) UpdateSoundVolume(id string, volume float64) error {
	volume = model.ClampVolume(volume)
	_, err := s.db.ExecContext(context.Background(),
		"UPDATE sounds SET volume = ?, updated_at = ? WHERE id = ?", volume, formatDBTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("store: update sound volume: %w", err)
	}
	return nil
}

// UpdateSoundHotkey rebinds a sound's hotkey; empty clears the binding.
func (s *Store) UpdateSoundHotkey(id, hotkey string) error {
	_, err := s.db.ExecContext(context.Background(),
		"UPDATE sounds SET hotkey = ?, updated_at = ? WHERE id = ?", hotkey, formatDBTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("store: update sound hotkey: %w", err)
	}
	return nil
}

// UpdateSoundStartPosition sets where playback begins, in seconds from
// the file start. Negative values clamp to 0.
func (s *Store) UpdateSoundStartPosition(id string, startPosition float64) error {
	if startPosition < 0 {
		startPosition = 0
	}
	_, err := s.db.ExecContext(context.Background(),
		"UPDATE sounds SET start_position = ?, updated_at = ? WHERE id = ?", startPosition, formatDBTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("store: update sound start position: %w", err)
	}
	return nil
}

// UpdateSoundDuration records a sound's probed duration in seconds.
func (s *Store) UpdateSoundDuration(id string, duration float64) error {
	if duration < 0 {
		duration = 0
	}
	_, err := s.db.ExecContext(context.Background(),
		"UPDATE sounds SET duration = ?, updated_at = ? WHERE id = ?", duration, formatDBTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("store: update sound duration: %w", err)
	}
	return nil
}

// UpdateSoundCategory moves a sound to a category; 0 means uncategorized.
func (s *Store) UpdateSoundCategory(id string, categoryID int64) error {
	_, err := s.db.ExecContext(context.Background(),
		"UPDATE sounds SET category_id = ?, updated_at = ? WHERE id = ?", categoryID, formatDBTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("store: update sound category: %w", err)
	}
	return nil
}

// DeleteSound removes a sound by ID.
func (s *Store) DeleteSound(id string) error {
	_, err := s.db.ExecContext(context.Background(), "DELETE FROM sounds WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store: delete sound: %w", err)
	}
	return nil
}

// ---- Categories ----

// CreateCategory stores a new category and fills in its ID and timestamp.
func (s *Store) CreateCategory(category *model.Category) error {
	if err := category.Validate(); err != nil {
		return fmt.Errorf("store: create category: %w", err)
	}
	res, err := s.db.ExecContext(context.Background(),
		"INSERT INTO categories (name, color) VALUES (?, ?)", category.Name, category.Color)
	if err != nil {
		return fmt.Errorf("store: create category: %w", err)
	}
	category.ID, _ = res.LastInsertId()
	category.CreatedAt = time.Now().UTC()
	return nil
}

// GetCategory retrieves a category by ID.
func (s *Store) GetCategory(id int64) (*model.Category, error) {
	cat := &model.Category{}
	var createdAt string
	err := s.db.QueryRowContext(context.Background(),
		"SELECT id, name, color, created_at FROM categories WHERE id = ?", id).
		Scan(&cat.ID, &cat.Name, &cat.Color, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get category: %w", err)
	}
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("store: get category: %w", err)
	}
	cat.CreatedAt = parsed
	return cat, nil
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories() ([]model.Category, error) {
	rows, err := s.db.QueryContext(context.Background(),
		"SELECT id, name, color, created_at FROM categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("store: list categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		var cat model.Category
		var createdAt string
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Color, &createdAt); err != nil {
			return nil, fmt.Errorf("store: scan category: %w", err)
		}
		parsed, err := parseDBTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("store: scan category: %w", err)
		}
		cat.CreatedAt = parsed
		categories = append(categories, cat)
	}
	return categories, rows.Err()
}

// DeleteCategory removes a category and uncategorizes its sounds, in
// one transaction.
func (s *Store) DeleteCategory(id int64) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "UPDATE sounds SET category_id = 0 WHERE category_id = ?", id); err != nil {
		return fmt.Errorf("store: uncategorize sounds: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id); err != nil {
		return fmt.Errorf("store: delete category: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// ---- Settings ----

// SetSetting stores one configuration value under a key.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.ExecContext(context.Background(),
		"INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at",
		key, value, formatDBTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("store: set setting: %w", err)
	}
	return nil
}

// GetSetting retrieves a configuration value.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(context.Background(),
		"SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get setting: %w", err)
	}
	return value, nil
}

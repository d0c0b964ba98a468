// Package soundboard wires the sound library, device catalog, playback
// engine, and microphone loopback into one object that front-ends
// drive. Construction restores the persisted device selections and
// gains from the store's settings table, and every mutating operation
// writes its state back so the next start resumes where the user left
// off.
package soundboard

import (
	"fmt"
	"sync"
	"time"

	"github.com/NicolasHaas/soundboard/pkg/audio"
	"github.com/NicolasHaas/soundboard/pkg/engine"
	"github.com/NicolasHaas/soundboard/pkg/store"
)

// Soundboard is the application facade. One is created at startup and
// shared by every front-end surface; all methods are safe for
// concurrent use.
type Soundboard struct {
	store    store.DataStore
	host     audio.Host
	catalog  *audio.Catalog
	engine   *engine.Engine
	loopback *audio.Loopback
	metrics  *engine.Metrics

	closeOnce sync.Once
	closeErr  error
}

// New wires a soundboard over the given store and audio host. Device
// selections and gains saved in the store are restored, with cfg
// filling slots that were never saved; a nil cfg means defaults. When
// the capture flag was saved as enabled the microphone loopback is
// started too; a failure there is logged rather than fatal so an
// unplugged device does not block startup.
func New(st store.DataStore, host audio.Host, cfg *Config) *Soundboard {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	catalog := audio.NewCatalog(host)
	metrics := engine.NewMetrics()
	s := &Soundboard{
		store:    st,
		host:     host,
		catalog:  catalog,
		engine:   engine.New(host, catalog, metrics),
		loopback: audio.NewLoopback(host, catalog),
		metrics:  metrics,
	}
	s.restoreSettings(cfg)
	return s
}

// Devices enumerates the host's endpoints, classified by role.
func (s *Soundboard) Devices() (audio.DeviceList, error) {
	return s.catalog.Devices()
}

// SelectedDevice returns the device name stored for the role, or "".
func (s *Soundboard) SelectedDevice(role audio.DeviceRole) string {
	return s.catalog.Selected(role)
}

// SelectDevice validates a device against the current enumeration,
// stores it for the role, and persists the choice. Sounds already
// playing keep their sinks; the new device applies from the next play.
// A running loopback is restarted when its input or virtual device
// changes.
func (s *Soundboard) SelectDevice(role audio.DeviceRole, name string) error {
	if err := s.catalog.Select(role, name); err != nil {
		return err
	}
	s.saveSetting(deviceKey(role), name)

	if s.loopback.Running() && (role == audio.RoleInput || role == audio.RoleVirtual) {
		if err := s.loopback.Start(); err != nil {
			return fmt.Errorf("soundboard: restart loopback: %w", err)
		}
	}
	return nil
}

// SetGain stores a gain for the role, clamped to [0, 1], persists it,
// and pushes the change to running playback so live sinks re-compose.
func (s *Soundboard) SetGain(role audio.DeviceRole, v float64) error {
	s.catalog.SetGain(role, v)
	s.saveSetting(gainKey(role), formatGain(s.catalog.Gain(role)))
	return s.engine.UpdateDeviceGains()
}

// Gain returns the stored gain for the role.
func (s *Soundboard) Gain(role audio.DeviceRole) float64 {
	return s.catalog.Gain(role)
}

// PlaySound plays a stored sound through the virtual and output
// devices, using its saved volume and start position. A sound already
// playing under the same id is replaced.
func (s *Soundboard) PlaySound(id string) error {
	return s.playStored(id, 0, false, false)
}

// PlaySoundLocal plays a stored sound through the system default
// device only, for previewing without feeding the virtual cable.
func (s *Soundboard) PlaySoundLocal(id string) error {
	return s.playStored(id, 0, false, true)
}

// SeekSound restarts a stored sound at the given offset. The restart
// is the seek: the engine replaces the running instance in one
// command, so the sound never plays twice.
func (s *Soundboard) SeekSound(id string, offset time.Duration, localOnly bool) error {
	return s.playStored(id, offset, true, localOnly)
}

func (s *Soundboard) playStored(id string, offset time.Duration, seek, localOnly bool) error {
	snd, err := s.store.GetSound(id)
	if err != nil {
		return fmt.Errorf("soundboard: play %s: %w", id, err)
	}
	if snd == nil {
		return fmt.Errorf("soundboard: play %s: %w", id, store.ErrNotFound)
	}
	if !seek {
		offset = secondsToDuration(snd.StartPosition)
	}
	return s.engine.Play(engine.PlayRequest{
		SoundID:     snd.ID,
		FilePath:    snd.FilePath,
		StartOffset: offset,
		Gain:        snd.Volume,
		LocalOnly:   localOnly,
	})
}

// PlayFile plays a file that is not in the library, keyed by its path.
// Playing the same file again replaces the first run.
func (s *Soundboard) PlayFile(path string, gain float64) error {
	return s.engine.Play(engine.PlayRequest{
		SoundID:  path,
		FilePath: path,
		Gain:     gain,
	})
}

// StopSound stops a playing sound. Stopping a sound that is not
// playing does nothing.
func (s *Soundboard) StopSound(id string) error {
	return s.engine.Stop(id)
}

// StopAllSounds stops every playing sound.
func (s *Soundboard) StopAllSounds() error {
	return s.engine.StopAll()
}

// SetSoundVolume persists a sound's volume and applies it to a running
// instance in the same call. The store clamps on write and the engine
// clamps on its side, so both agree on the effective value.
func (s *Soundboard) SetSoundVolume(id string, v float64) error {
	if err := s.store.UpdateSoundVolume(id, v); err != nil {
		return fmt.Errorf("soundboard: set volume %s: %w", id, err)
	}
	return s.engine.SetSoundGain(id, v)
}

// PlayingSounds lists the sounds currently playing, ordered by id.
func (s *Soundboard) PlayingSounds() ([]engine.PlayingSound, error) {
	return s.engine.PlayingSounds()
}

// PlaybackPosition reports how far into the file a playing sound is.
// ok is false when the sound is not playing or its known duration has
// elapsed.
func (s *Soundboard) PlaybackPosition(id string) (pos time.Duration, ok bool, err error) {
	return s.engine.Position(id)
}

// StartCapture starts mirroring the selected input device into the
// virtual cable and persists the capture flag. Calling it while
// running restarts the mirror with the current device selection.
func (s *Soundboard) StartCapture() error {
	if err := s.loopback.Start(); err != nil {
		return err
	}
	s.saveSetting(settingCaptureEnabled, "true")
	return nil
}

// StopCapture stops the microphone mirror and persists the flag. Safe
// to call when not running.
func (s *Soundboard) StopCapture() {
	s.loopback.Stop()
	s.saveSetting(settingCaptureEnabled, "false")
}

// CaptureRunning reports whether the microphone mirror is active.
func (s *Soundboard) CaptureRunning() bool {
	return s.loopback.Running()
}

// CaptureStats returns the mirror's callback event counters.
func (s *Soundboard) CaptureStats() audio.LoopbackStats {
	return s.loopback.Stats()
}

// Metrics exposes the playback counters for periodic logging.
func (s *Soundboard) Metrics() *engine.Metrics {
	return s.metrics
}

// Close shuts playback down, stops the capture mirror, and closes the
// audio host and the store. Safe to call more than once; commands
// after Close return engine.ErrClosed.
func (s *Soundboard) Close() error {
	s.closeOnce.Do(func() {
		s.engine.Shutdown()
		s.loopback.Stop()
		if err := s.host.Close(); err != nil {
			s.closeErr = fmt.Errorf("soundboard: close host: %w", err)
		}
		if err := s.store.Close(); err != nil && s.closeErr == nil {
			s.closeErr = fmt.Errorf("soundboard: close store: %w", err)
		}
	})
	return s.closeErr
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

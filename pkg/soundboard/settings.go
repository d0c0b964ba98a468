package soundboard

import (
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/soundboard/pkg/audio"
)

// Config is the application config file, soundboard.yaml. It carries
// startup settings plus initial defaults for device routing; once the
// user changes a device or gain the store's settings table wins.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Database  string `yaml:"database"`

	VirtualDevice string `yaml:"virtual_device,omitempty"`
	OutputDevice  string `yaml:"output_device,omitempty"`
	InputDevice   string `yaml:"input_device,omitempty"`

	VirtualGain float64 `yaml:"virtual_gain"`
	OutputGain  float64 `yaml:"output_gain"`
	InputGain   float64 `yaml:"input_gain"`
}

// DefaultConfig returns the defaults used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:    "info",
		LogFormat:   "text",
		Database:    "soundboard.db",
		VirtualGain: 1,
		OutputGain:  1,
		InputGain:   1,
	}
}

// LoadConfig loads the YAML config file or returns defaults when it is
// missing. Keys absent from the file keep their default values.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Error("parse config", "path", path, "err", err)
		return DefaultConfig()
	}
	return cfg
}

// Save writes the config back as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) device(role audio.DeviceRole) string {
	switch role {
	case audio.RoleVirtual:
		return c.VirtualDevice
	case audio.RoleOutput:
		return c.OutputDevice
	default:
		return c.InputDevice
	}
}

func (c *Config) gain(role audio.DeviceRole) float64 {
	switch role {
	case audio.RoleVirtual:
		return c.VirtualGain
	case audio.RoleOutput:
		return c.OutputGain
	default:
		return c.InputGain
	}
}

// settingCaptureEnabled flags whether the microphone mirror should be
// running; device and gain keys are derived from the role names.
const settingCaptureEnabled = "capture.enabled"

func deviceKey(role audio.DeviceRole) string { return "device." + role.String() }
func gainKey(role audio.DeviceRole) string   { return "gain." + role.String() }

func formatGain(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var deviceRoles = [...]audio.DeviceRole{audio.RoleVirtual, audio.RoleOutput, audio.RoleInput}

// restoreSettings brings the catalog back to the saved state. Saved
// device names are restored without validation so a device that is
// unplugged today is not forgotten; cfg fills anything never saved.
func (s *Soundboard) restoreSettings(cfg *Config) {
	for _, role := range deviceRoles {
		name, err := s.store.GetSetting(deviceKey(role))
		if err != nil {
			slog.Warn("failed to read setting", "key", deviceKey(role), "err", err)
			continue
		}
		if name == "" {
			name = cfg.device(role)
		}
		if name != "" {
			s.catalog.Restore(role, name)
		}

		gain := cfg.gain(role)
		raw, err := s.store.GetSetting(gainKey(role))
		if err != nil {
			slog.Warn("failed to read setting", "key", gainKey(role), "err", err)
		} else if raw != "" {
			if v, perr := strconv.ParseFloat(raw, 64); perr == nil {
				gain = v
			} else {
				slog.Warn("ignoring bad gain setting", "key", gainKey(role), "value", raw)
			}
		}
		s.catalog.SetGain(role, gain)
	}

	enabled, err := s.store.GetSetting(settingCaptureEnabled)
	if err != nil {
		slog.Warn("failed to read setting", "key", settingCaptureEnabled, "err", err)
		return
	}
	if enabled == "true" {
		if err := s.loopback.Start(); err != nil {
			slog.Warn("saved capture mirror did not start", "err", err)
		}
	}
}

// saveSetting writes one settings row, logging rather than failing:
// the in-memory state has already changed and stays authoritative for
// this session.
func (s *Soundboard) saveSetting(key, value string) {
	if err := s.store.SetSetting(key, value); err != nil {
		slog.Warn("failed to persist setting", "key", key, "err", err)
	}
}

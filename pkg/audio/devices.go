package audio

import (
	"fmt"
	"strings"
	"sync"
)

// DeviceRole identifies one of the three device slots the soundboard
// routes through.
type DeviceRole int

const (
	RoleVirtual DeviceRole = iota // virtual cable the voice app reads as its mic
	RoleOutput                    // local monitor so the user hears what was sent
	RoleInput                     // real microphone mixed into the virtual cable
)

func (r DeviceRole) String() string {
	switch r {
	case RoleVirtual:
		return "virtual"
	case RoleOutput:
		return "output"
	case RoleInput:
		return "input"
	default:
		return "unknown"
	}
}

// DeviceList is a classified snapshot of the host's endpoints.
type DeviceList struct {
	Outputs  []Device // physical playback devices
	Virtuals []Device // playback devices that look like virtual cables
	Inputs   []Device // capture devices
}

// Markers that identify virtual audio cables by name, lowercase.
// Covers VB-CABLE and VoiceMeeter on Windows, BlackHole on macOS, and
// PulseAudio/PipeWire null sinks on Linux.
var virtualMarkers = []string{"cable", "vb-audio", "voicemeeter", "virtual", "blackhole", "null output"}

// IsVirtualDevice reports whether a playback device name looks like a
// virtual audio cable rather than real hardware.
func IsVirtualDevice(name string) bool {
	n := strings.ToLower(name)
	for _, marker := range virtualMarkers {
		if strings.Contains(n, marker) {
			return true
		}
	}
	return false
}

// Gains is a snapshot of the three per-role gain levels.
type Gains struct {
	Virtual float64
	Output  float64
	Input   float64
}

// Catalog tracks the user's device selection and the gain level for
// each role. One Catalog is created at startup and shared by the
// playback engine and the loopback mixer; all methods are safe for
// concurrent use and each holds the lock only long enough to copy
// scalars.
type Catalog struct {
	host Host

	mu    sync.Mutex
	names [3]string  // selected device name per role, "" = none
	gains [3]float64 // 0..1, clamped on set
}

// NewCatalog creates a catalog over the given host with no devices
// selected and all gains at 1.
func NewCatalog(host Host) *Catalog {
	c := &Catalog{host: host}
	for i := range c.gains {
		c.gains[i] = 1
	}
	return c
}

// Devices enumerates the host's endpoints, splitting playback devices
// into virtual cables and real outputs by name. The result is a fresh
// snapshot on every call; nothing is cached.
func (c *Catalog) Devices() (DeviceList, error) {
	var list DeviceList

	playback, err := c.host.PlaybackDevices()
	if err != nil {
		return DeviceList{}, fmt.Errorf("audio: list playback devices: %w", err)
	}
	for _, d := range playback {
		if IsVirtualDevice(d.Name) {
			list.Virtuals = append(list.Virtuals, d)
		} else {
			list.Outputs = append(list.Outputs, d)
		}
	}

	list.Inputs, err = c.host.CaptureDevices()
	if err != nil {
		return DeviceList{}, fmt.Errorf("audio: list capture devices: %w", err)
	}
	return list, nil
}

// Select validates the named device against a fresh enumeration and
// stores it for the role. An empty name clears the slot. Playback
// roles resolve against playback devices, RoleInput against capture
// devices.
func (c *Catalog) Select(role DeviceRole, name string) error {
	if name != "" {
		var devices []Device
		var err error
		if role == RoleInput {
			devices, err = c.host.CaptureDevices()
		} else {
			devices, err = c.host.PlaybackDevices()
		}
		if err != nil {
			return fmt.Errorf("audio: select %s device: %w", role, err)
		}
		found := false
		for _, d := range devices {
			if d.Name == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
		}
	}

	c.mu.Lock()
	c.names[role] = name
	c.mu.Unlock()
	return nil
}

// Restore stores a device name for the role without validating it.
// Used when loading saved settings: the device may be unplugged right
// now, and a missing device should surface when a stream is opened,
// not wipe the user's saved choice.
func (c *Catalog) Restore(role DeviceRole, name string) {
	c.mu.Lock()
	c.names[role] = name
	c.mu.Unlock()
}

// Selected returns the device name stored for the role, or "".
func (c *Catalog) Selected(role DeviceRole) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.names[role]
}

// SetGain stores a gain level for the role, clamped to [0, 1] on the
// way in. Readers never re-clamp.
func (c *Catalog) SetGain(role DeviceRole, v float64) {
	v = Clamp01(v)
	c.mu.Lock()
	c.gains[role] = v
	c.mu.Unlock()
}

// Gain returns the stored gain level for the role.
func (c *Catalog) Gain(role DeviceRole) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gains[role]
}

// Snapshot returns all three gains in one locked read.
func (c *Catalog) Snapshot() Gains {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Gains{
		Virtual: c.gains[RoleVirtual],
		Output:  c.gains[RoleOutput],
		Input:   c.gains[RoleInput],
	}
}

package engine

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks playback runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Command counters
	CommandsProcessed atomic.Int64 // commands handled by the playback worker
	CommandsRejected  atomic.Int64 // sends refused after shutdown

	// Playback counters
	PlaysStarted   atomic.Int64 // instances started
	PlayFailures   atomic.Int64 // play commands that produced no instance
	DecodeFailures atomic.Int64 // files that failed to open or decode
	SinkFallbacks  atomic.Int64 // plays routed to the default device instead of the configured ones
	SoundsStopped  atomic.Int64 // instances stopped by command
	InstancesSwept atomic.Int64 // finished instances reaped after a command
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	CommandsProcessed int64 `json:"commands_processed"`
	CommandsRejected  int64 `json:"commands_rejected"`

	PlaysStarted   int64 `json:"plays_started"`
	PlayFailures   int64 `json:"play_failures"`
	DecodeFailures int64 `json:"decode_failures"`
	SinkFallbacks  int64 `json:"sink_fallbacks"`
	SoundsStopped  int64 `json:"sounds_stopped"`
	InstancesSwept int64 `json:"instances_swept"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		CommandsProcessed: m.CommandsProcessed.Load(),
		CommandsRejected:  m.CommandsRejected.Load(),
		PlaysStarted:      m.PlaysStarted.Load(),
		PlayFailures:      m.PlayFailures.Load(),
		DecodeFailures:    m.DecodeFailures.Load(),
		SinkFallbacks:     m.SinkFallbacks.Load(),
		SoundsStopped:     m.SoundsStopped.Load(),
		InstancesSwept:    m.InstancesSwept.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"commands", s.CommandsProcessed,
		"plays", s.PlaysStarted,
		"play_failures", s.PlayFailures,
		"decode_failures", s.DecodeFailures,
		"fallbacks", s.SinkFallbacks,
		"swept", s.InstancesSwept,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}

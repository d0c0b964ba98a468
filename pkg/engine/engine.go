// Package engine runs sound playback. A single worker goroutine owns
// the set of playing sounds and processes commands strictly in arrival
// order, so callers never race each other over playback state. Each
// sound fans one decoded stream out to the virtual cable and the local
// monitor, with every sink's volume composed from its device gain and
// the sound's own gain.
package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/NicolasHaas/soundboard/pkg/audio"
	"github.com/NicolasHaas/soundboard/pkg/decode"
)

// ErrClosed is returned for commands sent after Shutdown.
var ErrClosed = errors.New("engine: closed")

// commandQueueDepth bounds how many commands can wait for the worker.
const commandQueueDepth = 64

// feedBatch is how many samples the feeder decodes per push.
const feedBatch = 2048

// PlayRequest describes one sound to start. Gain is the sound's own
// level; device gains come from the catalog at open time. LocalOnly
// routes to the system default device instead of the cable fan-out.
type PlayRequest struct {
	SoundID     string
	FilePath    string
	StartOffset time.Duration
	Gain        float64
	LocalOnly   bool
}

// PlayingSound is a snapshot of one live instance.
type PlayingSound struct {
	SoundID   string
	FilePath  string
	StartedAt time.Time
	Offset    time.Duration
	Duration  time.Duration // play time left at start, 0 = unknown
	Sinks     int
	LocalOnly bool
}

// instance is one playing sound. The worker owns every field; the
// feeder goroutine reads only stream, sinks, and stop, all of which
// are fixed before it starts.
type instance struct {
	soundID     string
	filePath    string
	localOnly   bool
	gain        float64
	stream      *decode.Stream
	sinks       []*audio.Sink
	deviceGains []float64
	startedAt   time.Time
	offset      time.Duration
	duration    time.Duration // play time left at start, 0 = unknown

	stop     chan struct{}
	stopOnce sync.Once
	fed      chan struct{} // closed when the feeder exits
}

func (inst *instance) drained() bool {
	for _, s := range inst.sinks {
		if !s.Drained() {
			return false
		}
	}
	return true
}

type commandKind int

const (
	cmdPlay commandKind = iota
	cmdStop
	cmdStopAll
	cmdSoundGain
	cmdDeviceGains
	cmdList
	cmdPosition
)

type command struct {
	kind    commandKind
	play    PlayRequest
	soundID string
	gain    float64
	reply   chan result
}

type result struct {
	err    error
	sounds []PlayingSound
	pos    time.Duration
	ok     bool
}

// Engine owns all playing sounds behind a command queue.
type Engine struct {
	host    audio.Host
	catalog *audio.Catalog
	metrics *Metrics

	cmds      chan command
	quit      chan struct{} // closed on Shutdown, rejects new sends
	done      chan struct{} // closed when the worker has exited
	closeOnce sync.Once

	// playing is touched only by the worker goroutine.
	playing map[string]*instance

	now func() time.Time
}

// New creates an engine over the given host and catalog and starts its
// worker.
func New(host audio.Host, catalog *audio.Catalog, metrics *Metrics) *Engine {
	e := &Engine{
		host:    host,
		catalog: catalog,
		metrics: metrics,
		cmds:    make(chan command, commandQueueDepth),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		playing: make(map[string]*instance),
		now:     time.Now,
	}
	go e.run()
	return e
}

// Play starts a sound, replacing any instance already playing under
// the same id. It returns once the sound is audible or failed to open.
func (e *Engine) Play(req PlayRequest) error {
	r, err := e.do(command{kind: cmdPlay, play: req})
	if err != nil {
		return err
	}
	return r.err
}

// Stop stops one sound. Stopping a sound that is not playing is a
// no-op, not an error.
func (e *Engine) Stop(soundID string) error {
	_, err := e.do(command{kind: cmdStop, soundID: soundID})
	return err
}

// StopAll stops every playing sound.
func (e *Engine) StopAll() error {
	_, err := e.do(command{kind: cmdStopAll})
	return err
}

// SetSoundGain changes the sound-level gain of a live instance,
// clamped to [0, 1]. Unknown ids are ignored.
func (e *Engine) SetSoundGain(soundID string, gain float64) error {
	_, err := e.do(command{kind: cmdSoundGain, soundID: soundID, gain: gain})
	return err
}

// UpdateDeviceGains re-reads the catalog's device gains and pushes
// fresh composed volumes to every sink of every playing sound.
func (e *Engine) UpdateDeviceGains() error {
	_, err := e.do(command{kind: cmdDeviceGains})
	return err
}

// PlayingSounds returns a snapshot of the live instances, ordered by
// sound id.
func (e *Engine) PlayingSounds() ([]PlayingSound, error) {
	r, err := e.do(command{kind: cmdList})
	if err != nil {
		return nil, err
	}
	return r.sounds, nil
}

// Position returns how far into the file a sound is. ok is false when
// the sound is not playing or its known play time has elapsed.
func (e *Engine) Position(soundID string) (time.Duration, bool, error) {
	r, err := e.do(command{kind: cmdPosition, soundID: soundID})
	if err != nil {
		return 0, false, err
	}
	return r.pos, r.ok, nil
}

// Shutdown stops every playing sound and ends the worker. Safe to call
// more than once; commands sent afterwards fail with ErrClosed.
func (e *Engine) Shutdown() {
	e.closeOnce.Do(func() { close(e.quit) })
	<-e.done
}

// do submits one command and waits for the worker's reply.
func (e *Engine) do(c command) (result, error) {
	c.reply = make(chan result, 1)
	select {
	case <-e.quit:
		e.metrics.CommandsRejected.Add(1)
		return result{}, ErrClosed
	default:
	}
	select {
	case e.cmds <- c:
	case <-e.quit:
		e.metrics.CommandsRejected.Add(1)
		return result{}, ErrClosed
	}
	select {
	case r := <-c.reply:
		return r, nil
	case <-e.done:
		// The worker may have replied in the same instant it exited.
		select {
		case r := <-c.reply:
			return r, nil
		default:
		}
		return result{}, ErrClosed
	}
}

func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			e.stopAll()
			return
		case c := <-e.cmds:
			e.metrics.CommandsProcessed.Add(1)
			c.reply <- e.handle(c)
			e.sweep()
		}
	}
}

func (e *Engine) handle(c command) result {
	switch c.kind {
	case cmdPlay:
		return result{err: e.handlePlay(c.play)}
	case cmdStop:
		e.stopSound(c.soundID)
	case cmdStopAll:
		e.stopAll()
	case cmdSoundGain:
		e.applySoundGain(c.soundID, c.gain)
	case cmdDeviceGains:
		e.applyDeviceGains()
	case cmdList:
		return result{sounds: e.listPlaying()}
	case cmdPosition:
		pos, ok := e.position(c.soundID)
		return result{pos: pos, ok: ok}
	}
	return result{}
}

func (e *Engine) handlePlay(req PlayRequest) error {
	stream, err := decode.Open(req.FilePath, req.StartOffset)
	if err != nil {
		e.metrics.DecodeFailures.Add(1)
		e.metrics.PlayFailures.Add(1)
		return fmt.Errorf("engine: play %s: %w", req.SoundID, err)
	}

	// A sound that is already playing restarts from scratch.
	if old, ok := e.playing[req.SoundID]; ok {
		e.stopInstance(old)
		delete(e.playing, req.SoundID)
	}

	offset := req.StartOffset
	if offset < 0 {
		offset = 0
	}
	inst := &instance{
		soundID:   req.SoundID,
		filePath:  req.FilePath,
		localOnly: req.LocalOnly,
		gain:      audio.Clamp01(req.Gain),
		stream:    stream,
		offset:    offset,
		stop:      make(chan struct{}),
		fed:       make(chan struct{}),
	}
	if d, ok := stream.Duration(); ok {
		inst.duration = d
	}

	if err := e.openSinks(inst); err != nil {
		stream.Close()
		e.metrics.PlayFailures.Add(1)
		return err
	}

	inst.startedAt = e.now()
	go e.feed(inst)
	e.playing[req.SoundID] = inst
	e.metrics.PlaysStarted.Add(1)
	slog.Info("sound started",
		"sound_id", req.SoundID, "file", filepath.Base(req.FilePath),
		"offset", offset, "sinks", len(inst.sinks), "local_only", req.LocalOnly)
	return nil
}

// openSinks opens the playback sinks for one instance. Local-only
// sounds go to the system default device alone; everything else goes
// to the virtual cable and the monitor output, each at its own device
// gain. Sink failures are independent, and when nothing opens the
// sound falls back to the system default device at full device gain.
func (e *Engine) openSinks(inst *instance) error {
	rate, ch := inst.stream.SampleRate(), inst.stream.Channels()

	add := func(name string, deviceGain float64) error {
		s, err := audio.NewSink(e.host, name, rate, ch, deviceGain*inst.gain)
		if err != nil {
			return err
		}
		inst.sinks = append(inst.sinks, s)
		inst.deviceGains = append(inst.deviceGains, deviceGain)
		return nil
	}

	if inst.localOnly {
		if err := add("", 1); err != nil {
			return fmt.Errorf("engine: open local sink: %w", err)
		}
		return nil
	}

	gains := e.catalog.Snapshot()
	if name := e.catalog.Selected(audio.RoleVirtual); name != "" {
		if err := add(name, gains.Virtual); err != nil {
			slog.Warn("virtual sink failed",
				"sound_id", inst.soundID, "device", name, "err", err)
		}
	}
	if name := e.catalog.Selected(audio.RoleOutput); name != "" {
		if err := add(name, gains.Output); err != nil {
			slog.Warn("output sink failed",
				"sound_id", inst.soundID, "device", name, "err", err)
		}
	}
	if len(inst.sinks) > 0 {
		return nil
	}

	e.metrics.SinkFallbacks.Add(1)
	if err := add("", 1); err != nil {
		return fmt.Errorf("engine: open fallback sink: %w", err)
	}
	slog.Info("sound routed to default device", "sound_id", inst.soundID)
	return nil
}

// feed decodes the stream and pushes batches to every sink. One
// goroutine per instance; the batch slice is shared across sinks
// because sinks only read from it.
func (e *Engine) feed(inst *instance) {
	defer close(inst.fed)
	buf := make([]float32, feedBatch)
	for {
		select {
		case <-inst.stop:
			return
		default:
		}

		n, err := inst.stream.Read(buf)
		if n > 0 {
			batch := make([]float32, n)
			copy(batch, buf[:n])
			for _, s := range inst.sinks {
				if !s.Push(batch) {
					return
				}
			}
		}
		if errors.Is(err, io.EOF) {
			for _, s := range inst.sinks {
				s.FeederDone()
			}
			return
		}
		if err != nil {
			e.metrics.DecodeFailures.Add(1)
			slog.Warn("decode failed mid stream", "sound_id", inst.soundID, "err", err)
			for _, s := range inst.sinks {
				s.FeederDone()
			}
			return
		}
	}
}

// stopInstance tears one instance down: sinks stop first so a blocked
// feeder unblocks, then the feeder is waited out before the stream is
// closed under it.
func (e *Engine) stopInstance(inst *instance) {
	inst.stopOnce.Do(func() { close(inst.stop) })
	for _, s := range inst.sinks {
		s.Stop()
	}
	<-inst.fed
	inst.stream.Close()
}

func (e *Engine) stopSound(id string) {
	inst, ok := e.playing[id]
	if !ok {
		return
	}
	e.stopInstance(inst)
	delete(e.playing, id)
	e.metrics.SoundsStopped.Add(1)
	slog.Info("sound stopped", "sound_id", id)
}

func (e *Engine) stopAll() {
	for id, inst := range e.playing {
		e.stopInstance(inst)
		delete(e.playing, id)
		e.metrics.SoundsStopped.Add(1)
	}
}

func (e *Engine) applySoundGain(id string, gain float64) {
	inst, ok := e.playing[id]
	if !ok {
		return
	}
	inst.gain = audio.Clamp01(gain)
	for i, s := range inst.sinks {
		s.SetVolume(inst.deviceGains[i] * inst.gain)
	}
}

// applyDeviceGains pushes fresh composed volumes to every sink. The
// first sink of a fanned-out instance is the virtual cable; the last
// or only sink takes the output gain.
func (e *Engine) applyDeviceGains() {
	gains := e.catalog.Snapshot()
	for _, inst := range e.playing {
		for i, s := range inst.sinks {
			dg := gains.Output
			if i == 0 && len(inst.sinks) > 1 {
				dg = gains.Virtual
			}
			inst.deviceGains[i] = dg
			s.SetVolume(dg * inst.gain)
		}
	}
}

func (e *Engine) listPlaying() []PlayingSound {
	sounds := make([]PlayingSound, 0, len(e.playing))
	for _, inst := range e.playing {
		sounds = append(sounds, PlayingSound{
			SoundID:   inst.soundID,
			FilePath:  inst.filePath,
			StartedAt: inst.startedAt,
			Offset:    inst.offset,
			Duration:  inst.duration,
			Sinks:     len(inst.sinks),
			LocalOnly: inst.localOnly,
		})
	}
	sort.Slice(sounds, func(i, j int) bool { return sounds[i].SoundID < sounds[j].SoundID })
	return sounds
}

// position computes where a sound is from the wall clock. The feeder
// decodes well ahead of the speaker, so elapsed time since start is
// the honest answer, not the decoder's read offset.
func (e *Engine) position(id string) (time.Duration, bool) {
	inst, ok := e.playing[id]
	if !ok {
		return 0, false
	}
	elapsed := e.now().Sub(inst.startedAt)
	if inst.duration > 0 && elapsed >= inst.duration {
		return 0, false
	}
	return inst.offset + elapsed, true
}

// sweep reaps instances whose sinks have rendered everything. Runs
// after every command so finished sounds never linger past the next
// interaction.
func (e *Engine) sweep() {
	for id, inst := range e.playing {
		if !inst.drained() {
			continue
		}
		e.stopInstance(inst)
		delete(e.playing, id)
		e.metrics.InstancesSwept.Add(1)
		slog.Debug("sound finished", "sound_id", id)
	}
}

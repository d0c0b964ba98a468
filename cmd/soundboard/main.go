package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/NicolasHaas/soundboard/pkg/audio"
	"github.com/NicolasHaas/soundboard/pkg/logging"
	"github.com/NicolasHaas/soundboard/pkg/soundboard"
	"github.com/NicolasHaas/soundboard/pkg/store"
	"github.com/NicolasHaas/soundboard/pkg/version"
)

func main() {
	configPath := flag.String("config", "soundboard.yaml", "YAML config file path")
	dbPath := flag.String("db", "", "SQLite database file path (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: "+logging.LevelNames()+" (overrides config)")
	logFormat := flag.String("log-format", "", "Log format: text or json (overrides config)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Full())
		return
	}

	cfg := soundboard.LoadConfig(*configPath)
	if *dbPath != "" {
		cfg.Database = *dbPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "serve"
	}

	st, err := store.New(cfg.Database)
	if err != nil {
		slog.Error("open database", "err", err)
		os.Exit(1)
	}

	host, err := audio.NewMalgoHost()
	if err != nil {
		_ = st.Close()
		slog.Error("init audio backend", "err", err)
		os.Exit(1)
	}

	// Close tears down the engine, the mirror, the host, and the store.
	sb := soundboard.New(st, host, cfg)

	var runErr error
	switch cmd {
	case "devices":
		runErr = runDevices(sb)
	case "list":
		runErr = runList(sb)
	case "play":
		runErr = runPlay(sb, flag.Arg(1))
	case "import":
		runErr = runImport(sb, flag.Arg(1))
	case "capture":
		runErr = runCapture(sb)
	case "serve":
		runErr = runServe(sb)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (devices, list, play, import, capture, serve)\n", cmd)
		_ = sb.Close()
		os.Exit(2)
	}

	closeErr := sb.Close()
	if runErr != nil {
		slog.Error("command failed", "command", cmd, "err", runErr)
		os.Exit(1)
	}
	if closeErr != nil {
		slog.Error("shutdown", "err", closeErr)
		os.Exit(1)
	}
}

func runDevices(sb *soundboard.Soundboard) error {
	list, err := sb.Devices()
	if err != nil {
		return err
	}
	printDevices("Virtual cables:", list.Virtuals)
	printDevices("Outputs:", list.Outputs)
	printDevices("Inputs:", list.Inputs)
	return nil
}

func printDevices(header string, devices []audio.Device) {
	fmt.Println(header)
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Printf("  %s %s\n", marker, d.Name)
	}
}

func runList(sb *soundboard.Soundboard) error {
	sounds, err := sb.Sounds()
	if err != nil {
		return err
	}
	if len(sounds) == 0 {
		fmt.Println("library is empty")
		return nil
	}
	for _, snd := range sounds {
		hotkey := snd.Hotkey
		if hotkey == "" {
			hotkey = "-"
		}
		fmt.Printf("%-36s  %-24s  %6.2fs  vol %.2f  key %s\n",
			snd.ID, snd.Name, snd.Duration, snd.Volume, hotkey)
	}
	return nil
}

// runPlay plays a stored sound by id, or a file when the argument
// names one on disk, and blocks until it finishes or ctrl-c.
func runPlay(sb *soundboard.Soundboard, target string) error {
	if target == "" {
		return fmt.Errorf("usage: play <sound id | file>")
	}
	if _, err := os.Stat(target); err == nil {
		if err := sb.PlayFile(target, 1); err != nil {
			return err
		}
	} else if err := sb.PlaySound(target); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-sigCh:
			return sb.StopSound(target)
		case <-ticker.C:
			_, ok, err := sb.PlaybackPosition(target)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
	}
}

func runImport(sb *soundboard.Soundboard, path string) error {
	if path == "" {
		return fmt.Errorf("usage: import <file | directory>")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		imported, err := sb.ImportDirectory(context.Background(), path, 0)
		if err != nil {
			return err
		}
		for _, snd := range imported {
			fmt.Printf("%s  %s\n", snd.ID, snd.Name)
		}
		return nil
	}
	snd, err := sb.ImportSound(path, "", 0)
	if err != nil {
		return err
	}
	fmt.Printf("%s  %s\n", snd.ID, snd.Name)
	return nil
}

func runCapture(sb *soundboard.Soundboard) error {
	if err := sb.StartCapture(); err != nil {
		return err
	}
	fmt.Println("mirroring microphone into the virtual cable, ctrl-c to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	sb.StopCapture()
	stats := sb.CaptureStats()
	slog.Info("capture stopped", "evicted", stats.Evicted, "underruns", stats.Underruns)
	return nil
}

// runServe keeps the soundboard resident and takes line commands on
// stdin, the way a front-end drives the facade.
func runServe(sb *soundboard.Soundboard) error {
	done := make(chan struct{})
	defer close(done)
	sb.Metrics().StartPeriodicLog(60*time.Second, done)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Println("soundboard ready, 'help' lists commands")
	for {
		select {
		case <-sigCh:
			fmt.Println()
			slog.Info("shutting down...")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(sb, line); quit {
				return nil
			}
		}
	}
}

const replHelp = `commands:
  devices                      list audio devices
  list                         list the sound library
  playing                      list playing sounds and positions
  play <id>                    play a stored sound
  local <id>                   preview on the default device
  file <path>                  play a file directly
  seek <id> <seconds>          restart a sound at an offset
  stop <id>                    stop one sound
  stopall                      stop everything
  vol <id> <0..1>              set a sound's volume
  gain <role> <0..1>           set the virtual/output/input gain
  select <role> <device name>  route a role to a device
  import <path>                import a file or directory
  remove <id>                  delete a sound from the library
  hotkey <id> <label>          bind a hotkey label, "-" clears
  capture <on|off>             mirror the microphone into the cable
  metrics                      dump playback counters
  quit                         shut down`

// handleLine runs one REPL command; returning true ends the session.
func handleLine(sb *soundboard.Soundboard, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]

	var err error
	switch cmd {
	case "help":
		fmt.Println(replHelp)
	case "quit", "exit":
		return true
	case "devices":
		err = runDevices(sb)
	case "list":
		err = runList(sb)
	case "playing":
		err = printPlaying(sb)
	case "play":
		if len(args) != 1 {
			err = fmt.Errorf("usage: play <id>")
			break
		}
		err = sb.PlaySound(args[0])
	case "local":
		if len(args) != 1 {
			err = fmt.Errorf("usage: local <id>")
			break
		}
		err = sb.PlaySoundLocal(args[0])
	case "file":
		if len(args) != 1 {
			err = fmt.Errorf("usage: file <path>")
			break
		}
		err = sb.PlayFile(args[0], 1)
	case "seek":
		if len(args) != 2 {
			err = fmt.Errorf("usage: seek <id> <seconds>")
			break
		}
		var sec float64
		if sec, err = strconv.ParseFloat(args[1], 64); err != nil {
			break
		}
		err = sb.SeekSound(args[0], time.Duration(sec*float64(time.Second)), false)
	case "stop":
		if len(args) != 1 {
			err = fmt.Errorf("usage: stop <id>")
			break
		}
		err = sb.StopSound(args[0])
	case "stopall":
		err = sb.StopAllSounds()
	case "vol":
		if len(args) != 2 {
			err = fmt.Errorf("usage: vol <id> <0..1>")
			break
		}
		var v float64
		if v, err = strconv.ParseFloat(args[1], 64); err != nil {
			break
		}
		err = sb.SetSoundVolume(args[0], v)
	case "gain":
		if len(args) != 2 {
			err = fmt.Errorf("usage: gain <virtual|output|input> <0..1>")
			break
		}
		var role audio.DeviceRole
		if role, err = parseRole(args[0]); err != nil {
			break
		}
		var v float64
		if v, err = strconv.ParseFloat(args[1], 64); err != nil {
			break
		}
		err = sb.SetGain(role, v)
	case "select":
		if len(args) < 2 {
			err = fmt.Errorf("usage: select <virtual|output|input> <device name>")
			break
		}
		var role audio.DeviceRole
		if role, err = parseRole(args[0]); err != nil {
			break
		}
		err = sb.SelectDevice(role, strings.Join(args[1:], " "))
	case "import":
		if len(args) != 1 {
			err = fmt.Errorf("usage: import <path>")
			break
		}
		err = runImport(sb, args[0])
	case "remove":
		if len(args) != 1 {
			err = fmt.Errorf("usage: remove <id>")
			break
		}
		err = sb.RemoveSound(args[0])
	case "hotkey":
		if len(args) != 2 {
			err = fmt.Errorf("usage: hotkey <id> <label>")
			break
		}
		label := args[1]
		if label == "-" {
			label = ""
		}
		err = sb.SetSoundHotkey(args[0], label)
	case "capture":
		if len(args) != 1 {
			err = fmt.Errorf("usage: capture <on|off>")
			break
		}
		switch args[0] {
		case "on":
			err = sb.StartCapture()
		case "off":
			sb.StopCapture()
		default:
			err = fmt.Errorf("usage: capture <on|off>")
		}
	case "metrics":
		fmt.Println(sb.Metrics().JSON())
	default:
		fmt.Printf("unknown command %q, 'help' lists commands\n", cmd)
	}

	if err != nil {
		fmt.Println("error:", err)
	}
	return false
}

func printPlaying(sb *soundboard.Soundboard) error {
	sounds, err := sb.PlayingSounds()
	if err != nil {
		return err
	}
	if len(sounds) == 0 {
		fmt.Println("nothing playing")
		return nil
	}
	for _, ps := range sounds {
		pos, ok, err := sb.PlaybackPosition(ps.SoundID)
		if err != nil {
			return err
		}
		at := "-"
		if ok {
			at = pos.Round(10 * time.Millisecond).String()
		}
		fmt.Printf("%s  %s  at %s  sinks %d\n",
			ps.SoundID, filepath.Base(ps.FilePath), at, ps.Sinks)
	}
	return nil
}

func parseRole(name string) (audio.DeviceRole, error) {
	switch name {
	case "virtual":
		return audio.RoleVirtual, nil
	case "output":
		return audio.RoleOutput, nil
	case "input":
		return audio.RoleInput, nil
	}
	return 0, fmt.Errorf("unknown role %q (virtual, output, input)", name)
}

package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"go-drumbank/arena"
	"go-drumbank/config"
	"go-drumbank/debug"
	"go-drumbank/engine"
	"go-drumbank/midi"
	"go-drumbank/storage"
	"go-drumbank/stream"
	"go-drumbank/theme"
	"go-drumbank/tui"
	"go-drumbank/voice"
)

// output is what the engine plays through, plus shutdown
type output interface {
	engine.Output
	Close() error
}

type discard struct{ voice.Discard }

func (discard) Close() error { return nil }

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/drumbank/config.json)")
	palettePath := flag.String("palette", "", "GIMP palette for the monitor")
	headless := flag.Bool("headless", false, "print diagnostics instead of running the monitor")
	noAudio := flag.Bool("no-audio", false, "do not open the audio device")
	debugLog := flag.Bool("debug", false, "write ~/.config/drumbank/debug.log")
	flag.Parse()

	if err := run(*configPath, *palettePath, *headless, *noAudio, *debugLog); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, palettePath string, headless, noAudio, debugLog bool) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	if debugLog || cfg.Debug {
		if err := debug.Enable(); err != nil {
			fmt.Fprintf(os.Stderr, "debug log: %v\n", err)
		}
		defer debug.Disable()
	}

	presets, err := cfg.BankPresets()
	if err != nil {
		return err
	}

	storageDir := cfg.StorageDir
	if storageDir == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return err
		}
		storageDir = filepath.Join(dir, "kits")
	}
	store, err := storage.NewDir(storageDir)
	if err != nil {
		return err
	}
	defer store.Close()

	mem, err := arena.New(cfg.Arena.Capacity, cfg.Arena.Ceiling)
	if err != nil {
		return err
	}

	// The streamer yields back into the engine between chunks.
	var eng *engine.Engine
	sc := cfg.StreamerConfig()
	streamer, err := stream.New(sc, store, mem, stream.WithYield(func() { eng.Yield() }))
	if err != nil {
		return err
	}

	var out output = discard{}
	if cfg.Output.Enabled && !noAudio {
		buffer := time.Duration(cfg.Output.BufferMs) * time.Millisecond
		o, err := voice.NewOto(int(sc.Format.SampleRate), 2, buffer, sc.ByteOrder == binary.BigEndian)
		if err != nil {
			return err
		}
		out = o
	}
	defer out.Close()

	feed := tui.NewFeed(64)
	var diag engine.Diagnostics = feed
	if headless {
		diag = engine.DiagnosticsFunc(func(r engine.Report) {
			feed.Report(r)
			fmt.Println(tui.Entry{At: time.Now(), Report: r})
		})
	}

	eng, err = engine.New(cfg.EngineConfig(), presets, cfg.BankSampleSets(), streamer, out, diag)
	if err != nil {
		return err
	}
	defer eng.Close()

	for i, t := range cfg.Tracks {
		if t.Program != nil {
			// failures are reported and leave the track without a bank
			_ = eng.SelectBank(i, *t.Program)
		}
	}

	opts := []midi.Option{midi.WithPortFilter(cfg.Input.Ports...)}
	if cfg.Input.PollMs > 0 {
		opts = append(opts, midi.WithPollRate(time.Duration(cfg.Input.PollMs)*time.Millisecond))
	}
	deviceMgr := midi.NewDeviceManager(midi.NewRouter(cfg.Channels()), eng, opts...)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(sigCtx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g.Go(func() error {
		if err := eng.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return deviceMgr.Run(ctx)
	})

	if headless {
		fmt.Printf("drumbank: %d tracks, storage %s\n", eng.Tracks(), storageDir)
		fmt.Println("Connect MIDI devices any time - they'll be detected automatically")
		g.Go(func() error {
			for ev := range deviceMgr.Events() {
				fmt.Printf("input %s %s %v\n", ev.ID, ev.Type, ev.Err)
			}
			return nil
		})
		return g.Wait()
	}

	th, err := loadTheme(palettePath)
	if err != nil {
		return err
	}
	m := tui.Model{
		Engine:  eng,
		Updates: eng.UpdateChan,
		Memory:  mem,
		Stats:   streamer.Stats,
		Presets: presets,
		Feed:    feed,
		Devices: deviceMgr,
		Theme:   th,
	}
	g.Go(func() error {
		defer cancel()
		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return err
		}
		return nil
	})
	return g.Wait()
}

func loadTheme(path string) (*theme.Theme, error) {
	if path == "" {
		return theme.New(nil), nil
	}
	palette, err := theme.LoadGPL(path)
	if err != nil {
		return nil, err
	}
	return theme.New(palette), nil
}

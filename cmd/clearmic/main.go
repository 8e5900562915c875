package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/clearmic/clearmic/internal/audio"
	"github.com/clearmic/clearmic/internal/config"
	"github.com/clearmic/clearmic/internal/denoise"
	"github.com/clearmic/clearmic/internal/engine"
	"github.com/clearmic/clearmic/internal/logging"
	"github.com/clearmic/clearmic/internal/tray"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	logLevel := pflag.String("log-level", "", "Override the configured log level")
	listDevices := pflag.Bool("list-devices", false, "Print the audio device table and exit")
	showVersion := pflag.Bool("version", false, "Print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("clearmic %s (%s)\n", Version, Commit)
		return
	}

	// Load config from XDG/Library/AppData
	cfg, err := config.Load()
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	log := logging.NewWithLevel(level)

	// Bring up the audio subsystem; without it there is nothing to do
	backend, err := audio.NewPortAudio()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio subsystem")
	}

	if *listDevices {
		devices, err := backend.Devices()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list devices")
		}
		for _, d := range devices {
			fmt.Printf("%3d  in:%-2d out:%-2d %6.0f Hz  %s\n",
				d.ID, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate, d.Name)
		}
		backend.Close()
		return
	}

	proc, err := denoise.NewSpectralGate(cfg.Audio.BlockSize, denoise.Config{
		Strength:  cfg.Denoise.Strength,
		GainFloor: cfg.Denoise.GainFloor,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid denoise configuration")
	}

	// Create tray UI first (we'll pass it to the engine)
	trayUI := tray.New(nil, cfg, Version, Commit) // Engine reference set below

	eng := engine.New(engine.Config{
		Backend:        backend,
		Denoiser:       proc,
		DenoiseEnabled: cfg.Denoise.Enabled,
		SampleRate:     cfg.Audio.SampleRate,
		BlockSize:      cfg.Audio.BlockSize,
		Logger:         log,
		StatusUpdater:  trayUI,
	})
	defer eng.Close()

	// Set engine reference in tray
	trayUI.SetEngine(eng)

	log.Info().Str("version", Version).Msg("clearmic starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		if err := eng.Close(); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
		}
		os.Exit(0)
	}()

	// Start tray UI - MUST run on main thread
	if err := trayUI.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Tray error")
	}
}

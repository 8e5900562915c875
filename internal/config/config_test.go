package config

import (
	"testing"
)

func isolateConfigDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	// Cover the path lookup on every platform the tests may run on
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("APPDATA", dir)
	t.Setenv("HOME", dir)
}

func TestLoadReturnsDefaultsWhenMissing(t *testing.T) {
	isolateConfigDir(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("expected default sample rate 44100, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.BlockSize != 1024 {
		t.Errorf("expected default block size 1024, got %d", cfg.Audio.BlockSize)
	}
	if !cfg.Denoise.Enabled {
		t.Error("expected denoising enabled by default")
	}
	if cfg.Audio.InputDevice != "" || cfg.Audio.OutputDevice != "" {
		t.Error("expected no device selection by default")
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	isolateConfigDir(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	cfg.Audio.InputDevice = "USB Microphone"
	cfg.Audio.OutputDevice = "VB-Cable"
	cfg.Denoise.Enabled = false
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() after Save() returned error: %v", err)
	}
	if loaded.Audio.InputDevice != "USB Microphone" {
		t.Errorf("input device not persisted, got %q", loaded.Audio.InputDevice)
	}
	if loaded.Audio.OutputDevice != "VB-Cable" {
		t.Errorf("output device not persisted, got %q", loaded.Audio.OutputDevice)
	}
	if loaded.Denoise.Enabled {
		t.Error("denoise toggle not persisted")
	}
	// Untouched fields keep their defaults
	if loaded.Audio.SampleRate != 44100 {
		t.Errorf("expected sample rate default to survive, got %d", loaded.Audio.SampleRate)
	}
}

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
)

type Config struct {
	LogLevel string        `json:"log_level"`
	Audio    AudioConfig   `json:"audio"`
	Denoise  DenoiseConfig `json:"denoise"`
}

type AudioConfig struct {
	InputDevice  string `json:"input_device"`  // device name, "" = system default microphone
	OutputDevice string `json:"output_device"` // device name, "" = auto-pick a virtual output
	SampleRate   int    `json:"sample_rate"`
	BlockSize    int    `json:"block_size"` // frames per processed block
}

type DenoiseConfig struct {
	Enabled   bool    `json:"enabled"`
	Strength  float64 `json:"strength"`   // how hard the gate pushes against the noise floor
	GainFloor float64 `json:"gain_floor"` // minimum per-bin gain, keeps some ambience
}

// Load reads the config from disk or returns defaults
func Load() (*Config, error) {
	path := configPath()

	// Default config
	cfg := &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:  "",
			OutputDevice: "",
			SampleRate:   44100,
			BlockSize:    1024,
		},
		Denoise: DenoiseConfig{
			Enabled:   true,
			Strength:  1.5,
			GainFloor: 0.05,
		},
	}

	// Load existing config if it exists
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := configPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "clearmic", "config.json")
}

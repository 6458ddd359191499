package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "live-classify"

// DefaultModelURL is the placeholder shipped with the demos. Replace it with
// the share URL of a trained model.
const DefaultModelURL = "https://teachablemachine.withgoogle.com/models/YOUR_MODEL_NAME/"

// Error policies applied after a failed classification.
const (
	OnErrorContinue = "continue"
	OnErrorHalt     = "halt"
)

var ErrInvalidPolicy = errors.New("invalid error policy")

type Config struct {
	ModelURL       string        `json:"model_url"`
	LogLevel       string        `json:"log_level"`
	ShowConfidence bool          `json:"show_confidence"`
	Video          VideoConfig   `json:"video"`
	Audio          AudioConfig   `json:"audio"`
	Display        DisplayConfig `json:"display"`

	path string
}

type VideoConfig struct {
	DeviceID int    `json:"device_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	OnError  string `json:"on_error"` // "continue" or "halt"
}

type AudioConfig struct {
	DeviceID             string  `json:"device_id"`
	SampleRate           int     `json:"sample_rate"`
	ProbabilityThreshold float64 `json:"probability_threshold"`
	OverlapFactor        float64 `json:"overlap_factor"`
	OnError              string  `json:"on_error"`
}

type DisplayConfig struct {
	FPS     int    `json:"fps"`
	Tray    bool   `json:"tray"`
	Web     bool   `json:"web"`
	WebAddr string `json:"web_addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ModelURL: DefaultModelURL,
		LogLevel: "info",
		Video: VideoConfig{
			DeviceID: 0,
			Width:    640,
			Height:   480,
			OnError:  OnErrorContinue,
		},
		Audio: AudioConfig{
			DeviceID:             "", // system default
			SampleRate:           44100,
			ProbabilityThreshold: 0.5,
			OverlapFactor:        0.5,
			OnError:              OnErrorHalt,
		},
		Display: DisplayConfig{
			FPS:     60,
			Tray:    false,
			Web:     true,
			WebAddr: ":8080",
		},
	}
}

// Load reads the config from the platform config dir or returns defaults
func Load() (*Config, error) {
	return LoadFrom(configPath())
}

// LoadFrom reads the config at path. A missing file yields defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		path = configPath()
	}

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

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	if c.path == "" {
		return configPath()
	}
	return c.path
}

// Validate checks the fields a bad config file could break.
func (c *Config) Validate() error {
	if _, err := ParsePolicy(c.Video.OnError); err != nil {
		return fmt.Errorf("video.on_error: %w", err)
	}
	if _, err := ParsePolicy(c.Audio.OnError); err != nil {
		return fmt.Errorf("audio.on_error: %w", err)
	}
	if c.Video.Width <= 0 || c.Video.Height <= 0 {
		return fmt.Errorf("video size must be positive, got %dx%d", c.Video.Width, c.Video.Height)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.ProbabilityThreshold < 0 || c.Audio.ProbabilityThreshold > 1 {
		return fmt.Errorf("audio.probability_threshold must be in [0,1], got %g", c.Audio.ProbabilityThreshold)
	}
	if c.Audio.OverlapFactor < 0 || c.Audio.OverlapFactor >= 1 {
		return fmt.Errorf("audio.overlap_factor must be in [0,1), got %g", c.Audio.OverlapFactor)
	}
	if c.Display.FPS <= 0 {
		return fmt.Errorf("display.fps must be positive, got %d", c.Display.FPS)
	}
	return nil
}

// ParsePolicy normalises an on_error value. Empty means continue.
func ParsePolicy(s string) (string, error) {
	switch s {
	case "", OnErrorContinue:
		return OnErrorContinue, nil
	case OnErrorHalt:
		return OnErrorHalt, nil
	default:
		return "", fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidPolicy, s, OnErrorContinue, OnErrorHalt)
	}
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

	return filepath.Join(base, appName, "config.json")
}

// ModelsPath returns the platform-specific models directory path
func ModelsPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, appName, "models")
}

// Package config loads the wakepc settings file. The file is read once at
// startup and handed to the core as a value object; nothing in the core
// re-reads or mutates it afterwards.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full settings tree for one wakepc process.
type Config struct {
	Hub       HubConfig       `yaml:"hub"`
	Overlay   OverlayConfig   `yaml:"overlay"`
	Audio     AudioConfig     `yaml:"audio"`
	Wake      WakeConfig      `yaml:"wake"`
	Recording RecordingConfig `yaml:"recording"`
	Client    ClientConfig    `yaml:"client"`
	Journal   JournalConfig   `yaml:"journal"`
}

// HubConfig points at the remote reasoning/STT service.
type HubConfig struct {
	BaseURL  string  `yaml:"base_url"`
	STTPath  string  `yaml:"stt_path"`
	AskPath  string  `yaml:"ask_path"`
	TimeoutS float64 `yaml:"timeout_s"`
}

// OverlayConfig is the local event-server bind point for observers.
type OverlayConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// AudioConfig describes microphone capture.
type AudioConfig struct {
	SampleRateHz int `yaml:"sample_rate_hz"`
	Channels     int `yaml:"channels"`
	FrameMs      int `yaml:"frame_ms"`
	// InputDevice selects the capture device by index ("2") or by a
	// case-insensitive name substring ("usb"). Empty means platform default.
	InputDevice string `yaml:"input_device"`
}

// WakeConfig holds the wake engine tuning plus the four keyword specs.
type WakeConfig struct {
	CooldownMs int `yaml:"cooldown_ms"`
	// ModelPath points at a local whisper model for wake evaluation.
	// Empty means fall back to the hub's speech-to-text endpoint.
	ModelPath string         `yaml:"model_path"`
	Words     []WakeWordSpec `yaml:"words"`
}

// WakeWordSpec binds one keyword to a persona. Exactly one spec should carry
// the Collective persona mode; it addresses all personas at once.
type WakeWordSpec struct {
	Keyword     string  `yaml:"keyword"`
	Label       string  `yaml:"label"`
	Threshold   float64 `yaml:"threshold"`
	PersonaMode string  `yaml:"persona_mode"`
	Color       string  `yaml:"color"`
}

// RecordingConfig tunes utterance capture after a wake hit.
type RecordingConfig struct {
	MaxSeconds  float64 `yaml:"max_seconds"`
	SilenceMs   int     `yaml:"silence_ms"`
	EnergyFloor float64 `yaml:"energy_floor"`
	NoSpeechMs  int     `yaml:"no_speech_ms"`
}

// ClientConfig identifies this device to the hub.
type ClientConfig struct {
	Device    string `yaml:"device"`
	SessionID string `yaml:"session_id"`
}

// JournalConfig controls the local cycle journal.
type JournalConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

// Load reads and validates a settings file. Environment variables referenced
// as ${VAR} in the file are expanded before parsing.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read settings: %w", err)
	}
	return Parse(data)
}

// Parse parses settings from YAML bytes with env expansion and defaults.
func Parse(data []byte) (Config, error) {
	var c Config
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return Config{}, fmt.Errorf("parse settings: %w", err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Hub.BaseURL == "" {
		c.Hub.BaseURL = "http://127.0.0.1:2424"
	}
	c.Hub.BaseURL = strings.TrimRight(c.Hub.BaseURL, "/")
	if c.Hub.STTPath == "" {
		c.Hub.STTPath = "/stt"
	}
	if c.Hub.AskPath == "" {
		c.Hub.AskPath = "/ask"
	}
	if c.Hub.TimeoutS <= 0 {
		c.Hub.TimeoutS = 60
	}
	if c.Overlay.Host == "" {
		c.Overlay.Host = "127.0.0.1"
	}
	if c.Overlay.Port == 0 {
		c.Overlay.Port = 8765
	}
	if c.Overlay.Path == "" {
		c.Overlay.Path = "/ws"
	}
	if c.Audio.SampleRateHz == 0 {
		c.Audio.SampleRateHz = 16000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.FrameMs == 0 {
		c.Audio.FrameMs = 20
	}
	if c.Wake.CooldownMs == 0 {
		c.Wake.CooldownMs = 2000
	}
	for i := range c.Wake.Words {
		w := &c.Wake.Words[i]
		if w.Threshold == 0 {
			w.Threshold = 0.8
		}
		if w.Color == "" {
			w.Color = "#FFFFFF"
		}
		if w.Label == "" {
			w.Label = w.Keyword
		}
	}
	if c.Recording.MaxSeconds == 0 {
		c.Recording.MaxSeconds = 12
	}
	if c.Recording.SilenceMs == 0 {
		c.Recording.SilenceMs = 900
	}
	if c.Recording.EnergyFloor == 0 {
		c.Recording.EnergyFloor = 0.01
	}
	if c.Recording.NoSpeechMs == 0 {
		c.Recording.NoSpeechMs = 1500
	}
	if c.Client.Device == "" {
		c.Client.Device = "wakepc"
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "wakepc.db"
	}
}

func (c *Config) validate() error {
	if len(c.Wake.Words) == 0 {
		return fmt.Errorf("settings: wake.words is empty, nothing to listen for")
	}
	seen := make(map[string]bool, len(c.Wake.Words))
	for _, w := range c.Wake.Words {
		k := strings.ToLower(strings.TrimSpace(w.Keyword))
		if k == "" {
			return fmt.Errorf("settings: wake word with empty keyword")
		}
		if seen[k] {
			return fmt.Errorf("settings: duplicate wake keyword %q", w.Keyword)
		}
		seen[k] = true
		if w.Threshold < 0 || w.Threshold > 1 {
			return fmt.Errorf("settings: wake word %q threshold %v out of [0,1]", w.Keyword, w.Threshold)
		}
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		return fmt.Errorf("settings: audio.channels must be 1 or 2, got %d", c.Audio.Channels)
	}
	if c.Audio.SampleRateHz < 8000 {
		return fmt.Errorf("settings: audio.sample_rate_hz %d too low", c.Audio.SampleRateHz)
	}
	return nil
}

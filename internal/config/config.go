package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
)

type Config struct {
	// TokenEndpoint is the local HTTP endpoint issuing single-use
	// scribe tokens.
	TokenEndpoint   string           `json:"token_endpoint"`
	Scribe          ScribeConfig     `json:"scribe"`
	Audio           AudioConfig      `json:"audio"`
	Recordings      RecordingsConfig `json:"recordings"`
	CopyToClipboard bool             `json:"copy_to_clipboard"`
	LogLevel        string           `json:"log_level"`
}

type ScribeConfig struct {
	URL          string `json:"url"`
	ModelID      string `json:"model_id"`
	LanguageCode string `json:"language_code"`
}

type AudioConfig struct {
	DeviceID           string  `json:"device_id"`
	SampleRate         int     `json:"sample_rate"`        // preferred hardware rate
	ChunkIntervalMs    int     `json:"chunk_interval_ms"`  // 100..
	MeterAmplification float64 `json:"meter_amplification"`
}

type RecordingsConfig struct {
	Save bool   `json:"save"`
	Dir  string `json:"dir"`
}

// Load reads the config from disk or returns defaults. Environment
// variables override the endpoint settings so secrets can stay in .env.
func Load() (*Config, error) {
	path := configPath()

	cfg := &Config{
		TokenEndpoint: "http://localhost:8000/token",
		Scribe: ScribeConfig{
			URL:          "wss://api.elevenlabs.io/v1/speech-to-text/realtime",
			ModelID:      "scribe_v1",
			LanguageCode: "en",
		},
		Audio: AudioConfig{
			DeviceID:           "",
			SampleRate:         48000,
			ChunkIntervalMs:    250,
			MeterAmplification: 4.0,
		},
		Recordings: RecordingsConfig{
			Save: false,
			Dir:  recordingsPath(),
		},
		CopyToClipboard: true,
		LogLevel:        "info",
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("VOXSCRIBE_TOKEN_ENDPOINT"); v != "" {
		cfg.TokenEndpoint = v
	}
	if v := os.Getenv("VOXSCRIBE_SCRIBE_URL"); v != "" {
		cfg.Scribe.URL = v
	}

	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	path := configPath()

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

	return filepath.Join(base, "voxscribe", "config.json")
}

// recordingsPath returns the platform-specific default recordings directory
func recordingsPath() string {
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

	return filepath.Join(base, "voxscribe", "recordings")
}

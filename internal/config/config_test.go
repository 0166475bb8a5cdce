package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Point the config path somewhere empty so defaults apply.
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("HOME", tmp)
	os.Unsetenv("VOXSCRIBE_TOKEN_ENDPOINT")
	os.Unsetenv("VOXSCRIBE_SCRIBE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Scribe.ModelID != "scribe_v1" {
		t.Errorf("default model = %q", cfg.Scribe.ModelID)
	}
	if cfg.Audio.ChunkIntervalMs != 250 {
		t.Errorf("default chunk interval = %d, want 250", cfg.Audio.ChunkIntervalMs)
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("default sample rate = %d, want 48000", cfg.Audio.SampleRate)
	}
	if cfg.TokenEndpoint == "" {
		t.Error("default token endpoint must not be empty")
	}
}

func TestEnvOverrides(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("HOME", tmp)
	t.Setenv("VOXSCRIBE_TOKEN_ENDPOINT", "http://127.0.0.1:9999/token")
	t.Setenv("VOXSCRIBE_SCRIBE_URL", "ws://127.0.0.1:9998/scribe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.TokenEndpoint != "http://127.0.0.1:9999/token" {
		t.Errorf("token endpoint override not applied: %q", cfg.TokenEndpoint)
	}
	if cfg.Scribe.URL != "ws://127.0.0.1:9998/scribe" {
		t.Errorf("scribe URL override not applied: %q", cfg.Scribe.URL)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmp)
	t.Setenv("HOME", tmp)
	os.Unsetenv("VOXSCRIBE_TOKEN_ENDPOINT")
	os.Unsetenv("VOXSCRIBE_SCRIBE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Audio.DeviceID = "USB Microphone"
	cfg.Scribe.LanguageCode = "de"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.Audio.DeviceID != "USB Microphone" {
		t.Errorf("device not persisted: %q", loaded.Audio.DeviceID)
	}
	if loaded.Scribe.LanguageCode != "de" {
		t.Errorf("language not persisted: %q", loaded.Scribe.LanguageCode)
	}
}

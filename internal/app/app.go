// Package app wires the capture session and the transcription session
// into the single record control the tray exposes.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voxscribe/voxscribe/internal/audio"
	"github.com/voxscribe/voxscribe/internal/config"
	"github.com/voxscribe/voxscribe/internal/recorder"
	"github.com/voxscribe/voxscribe/internal/scribe"
)

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetRecording()
	SetError()
}

type Config struct {
	Capture       audio.Capture
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

type App struct {
	cfg    *config.Config
	log    zerolog.Logger
	status StatusUpdater

	tokens   *scribe.TokenClient
	session  *scribe.Session
	recorder *recorder.Session

	// copyText is swapped out in tests; clipboards need a display.
	copyText func(text string) error

	mu      sync.Mutex
	lastErr error
}

func New(cfg Config) *App {
	a := &App{
		cfg:      cfg.Config,
		log:      cfg.Logger,
		status:   cfg.StatusUpdater,
		tokens:   scribe.NewTokenClient(cfg.Config.TokenEndpoint),
		copyText: clipboard.WriteAll,
	}

	a.session = scribe.NewSession(scribe.Config{
		URL:          cfg.Config.Scribe.URL,
		ModelID:      cfg.Config.Scribe.ModelID,
		LanguageCode: cfg.Config.Scribe.LanguageCode,
		SampleRate:   16000,
		Logger:       cfg.Logger,
		OnTranscript: a.onTranscript,
		OnError:      a.onError,
	})

	a.recorder = recorder.New(recorder.Config{
		Capture:            cfg.Capture,
		HardwareSampleRate: cfg.Config.Audio.SampleRate,
		TargetSampleRate:   16000,
		ChunkInterval:      time.Duration(cfg.Config.Audio.ChunkIntervalMs) * time.Millisecond,
		MeterAmplification: cfg.Config.Audio.MeterAmplification,
		Logger:             cfg.Logger,
		OnChunk:            a.session.SendAudioChunk,
		OnError:            a.onError,
	})

	return a
}

// StartRecording fetches a token, connects the transcription session,
// and starts the capture pipeline. Any failure aborts cleanly with
// everything released.
func (a *App) StartRecording() error {
	if a.recorder.IsRecording() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := a.tokens.Fetch(ctx)
	if err != nil {
		a.fail(err)
		return err
	}

	if err := a.session.Connect(token); err != nil {
		a.fail(err)
		return err
	}

	if err := a.recorder.StartRecording(a.cfg.Audio.DeviceID); err != nil {
		a.session.Disconnect()
		a.fail(err)
		return err
	}

	if a.status != nil {
		a.status.SetRecording()
	}
	a.log.Info().Msg("Recording session started")
	return nil
}

// StopRecording tears the pipeline down and returns the whole-session
// WAV blob (nil when nothing was captured or not recording).
func (a *App) StopRecording() []byte {
	blob, err := a.recorder.StopRecording()
	if err != nil {
		a.log.Warn().Err(err).Msg("Error stopping recorder")
	}
	a.session.Disconnect()

	if blob != nil && a.cfg.Recordings.Save {
		if path, err := a.saveRecording(blob); err != nil {
			a.log.Error().Err(err).Msg("Failed to save recording")
		} else {
			a.log.Info().Str("path", path).Msg("Saved recording")
		}
	}

	if a.cfg.CopyToClipboard {
		if text := a.session.Transcript(); text != "" {
			if err := a.copyText(text); err != nil {
				a.log.Warn().Err(err).Msg("Failed to copy transcript")
			}
		}
	}

	if a.status != nil {
		a.status.SetIdle()
	}
	a.log.Info().Msg("Recording session stopped")
	return blob
}

// ToggleRecording flips between idle and recording, for the tray item.
func (a *App) ToggleRecording() {
	if a.recorder.IsRecording() {
		a.StopRecording()
	} else {
		if err := a.StartRecording(); err != nil {
			a.log.Error().Err(err).Msg("Failed to start recording")
		}
	}
}

func (a *App) saveRecording(blob []byte) (string, error) {
	if err := os.MkdirAll(a.cfg.Recordings.Dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(a.cfg.Recordings.Dir, uuid.New().String()+".wav")
	if err := os.WriteFile(path, blob, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func (a *App) onTranscript(text string, final bool) {
	if final {
		a.log.Info().Str("text", text).Msg("Committed transcript")
	} else {
		a.log.Debug().Str("text", text).Msg("Partial transcript")
	}
}

func (a *App) onError(err error) {
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
	if a.status != nil {
		a.status.SetError()
	}
}

func (a *App) fail(err error) {
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
	if a.status != nil {
		a.status.SetError()
	}
	a.log.Error().Err(err).Msg("Recording start failed")
}

// Shutdown stops any active session.
func (a *App) Shutdown(ctx context.Context) error {
	if a.recorder.IsRecording() {
		a.StopRecording()
	} else {
		a.session.Disconnect()
	}
	return nil
}

// Accessors for the presentation layer.

func (a *App) IsRecording() bool         { return a.recorder.IsRecording() }
func (a *App) Level() float64            { return a.recorder.Level() }
func (a *App) Transcript() string        { return a.session.Transcript() }
func (a *App) InterimTranscript() string { return a.session.InterimTranscript() }
func (a *App) AudioBlob() []byte         { return a.recorder.AudioBlob() }

// Err returns the last surfaced error, if any.
func (a *App) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// SetDevice records a device override applied at the next start.
func (a *App) SetDevice(id string) error {
	if a.recorder.IsRecording() {
		return fmt.Errorf("cannot change device while recording")
	}
	a.cfg.Audio.DeviceID = id
	return a.cfg.Save()
}

// SetLanguage records the language used for the next session.
func (a *App) SetLanguage(code string) error {
	if a.recorder.IsRecording() {
		return fmt.Errorf("cannot change language while recording")
	}
	a.cfg.Scribe.LanguageCode = code
	a.session.SetLanguage(code)
	return a.cfg.Save()
}

func (a *App) ListDevices() ([]audio.AudioDevice, error) {
	return a.recorder.ListDevices()
}

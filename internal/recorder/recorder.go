// Package recorder owns the microphone capture lifecycle: it pulls raw
// float blocks off the device, drives the level meter, chunks and
// encodes audio for streaming, and keeps the whole session as PCM for
// the final WAV blob.
package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxscribe/voxscribe/internal/audio"
	"github.com/voxscribe/voxscribe/internal/wav"
)

const (
	// DefaultChunkInterval is the cadence at which encoded chunks are
	// handed to the consumer. MinChunkInterval is the floor; anything
	// shorter just burns sends without helping latency.
	DefaultChunkInterval = 250 * time.Millisecond
	MinChunkInterval     = 100 * time.Millisecond

	// levelTick keeps the meter decaying between capture blocks so the
	// waveform falls back smoothly when the source goes quiet.
	levelTick = 50 * time.Millisecond
)

// Config configures a capture session.
type Config struct {
	Capture audio.Capture

	// HardwareSampleRate is the preferred device rate. The device may
	// not honor it exactly; chunks are always resampled to TargetSampleRate.
	HardwareSampleRate int
	TargetSampleRate   int
	ChunkInterval      time.Duration
	MeterAmplification float64

	// OnChunk receives PCM16-LE chunks at TargetSampleRate. Optional;
	// without it the session only meters levels and buffers the blob.
	OnChunk func(pcm []byte)
	// OnLevel receives smoothed 0-1 level updates. Optional.
	OnLevel func(level float64)
	// OnError is notified of capture failures. Optional.
	OnError func(err error)

	Logger zerolog.Logger
}

// Session is the audio capture session state machine: Idle until
// StartRecording acquires the device, Recording until StopRecording or
// a failure releases everything again. At most one device stream is
// active per session instance.
type Session struct {
	cfg   Config
	log   zerolog.Logger
	meter *audio.Meter

	mu        sync.Mutex
	recording bool
	lastErr   error
	level     float64
	pcm       []int16 // whole-session samples at TargetSampleRate
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates an idle capture session.
func New(cfg Config) *Session {
	if cfg.HardwareSampleRate <= 0 {
		cfg.HardwareSampleRate = 48000
	}
	if cfg.TargetSampleRate <= 0 {
		cfg.TargetSampleRate = 16000
	}
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = DefaultChunkInterval
	}
	if cfg.ChunkInterval < MinChunkInterval {
		cfg.ChunkInterval = MinChunkInterval
	}
	return &Session{
		cfg:   cfg,
		log:   cfg.Logger.With().Str("component", "recorder").Logger(),
		meter: audio.NewMeter(cfg.MeterAmplification, 0),
	}
}

// StartRecording acquires the microphone, optionally pinned to
// deviceID, and starts the processing loop. No-op while recording.
// On failure every partially acquired resource is released and the
// session returns to Idle with the error recorded.
func (s *Session) StartRecording(deviceID string) error {
	s.mu.Lock()
	if s.recording {
		s.mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	blocks := make(chan []float32, 8)

	if err := s.cfg.Capture.Start(ctx, deviceID, s.cfg.HardwareSampleRate, blocks); err != nil {
		cancel()
		err = fmt.Errorf("failed to acquire microphone: %w", err)
		s.lastErr = err
		s.mu.Unlock()
		s.log.Error().Err(err).Str("device", deviceID).Msg("Recording start failed")
		s.emitError(err)
		return err
	}

	s.recording = true
	s.lastErr = nil
	s.pcm = nil
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.log.Info().Str("device", deviceID).Int("rate", s.cfg.HardwareSampleRate).Msg("Recording started")
	go s.processLoop(ctx, blocks, done)
	return nil
}

// processLoop consumes capture blocks until cancelled. It flushes an
// encoded chunk every ChunkInterval worth of samples and keeps the
// meter ticking even when no blocks arrive.
func (s *Session) processLoop(ctx context.Context, blocks <-chan []float32, done chan struct{}) {
	defer close(done)

	chunkSamples := int(float64(s.cfg.HardwareSampleRate) * s.cfg.ChunkInterval.Seconds())
	frame := make([]float32, 0, chunkSamples*2)

	ticker := time.NewTicker(levelTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush(frame)
			return
		case block := <-blocks:
			s.emitLevel(s.meter.Update(block))
			frame = append(frame, block...)
			if len(frame) >= chunkSamples {
				s.flush(frame)
				frame = frame[:0]
			}
		case <-ticker.C:
			// No fresh block; decay the displayed level.
			s.emitLevel(s.meter.Update(nil))
		}
	}
}

// flush resamples, encodes and hands off one chunk, and appends it to
// the whole-session buffer.
func (s *Session) flush(frame []float32) {
	if len(frame) == 0 {
		return
	}
	resampled := audio.Resample(frame, s.cfg.HardwareSampleRate, s.cfg.TargetSampleRate)

	s.mu.Lock()
	s.pcm = append(s.pcm, audio.QuantizePCM16(resampled)...)
	s.mu.Unlock()

	if s.cfg.OnChunk != nil {
		s.cfg.OnChunk(audio.EncodePCM16(resampled))
	}
}

// StopRecording releases the device and processing loop, resets the
// level to zero, and returns the whole session as a WAV blob. Returns
// nil without touching anything when not recording, and nil when
// nothing was captured.
func (s *Session) StopRecording() ([]byte, error) {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return nil, nil
	}
	s.recording = false
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if err := s.cfg.Capture.Stop(); err != nil {
		s.log.Warn().Err(err).Msg("Error stopping capture stream")
	}
	cancel()
	<-done

	s.meter.Reset()
	s.emitLevel(0)
	s.log.Info().Msg("Recording stopped")

	return s.AudioBlob(), nil
}

// AudioBlob returns whatever has been buffered so far as a WAV blob,
// or nil when nothing is buffered. It never mutates session state.
func (s *Session) AudioBlob() []byte {
	s.mu.Lock()
	samples := make([]int16, len(s.pcm))
	copy(samples, s.pcm)
	s.mu.Unlock()

	if len(samples) == 0 {
		return nil
	}
	blob, err := wav.Encode(samples, s.cfg.TargetSampleRate)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to encode session blob")
		return nil
	}
	return blob
}

// IsRecording reports whether a device stream is active.
func (s *Session) IsRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Level returns the current smoothed audio level.
func (s *Session) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// ListDevices enumerates available input devices.
func (s *Session) ListDevices() ([]audio.AudioDevice, error) {
	return s.cfg.Capture.ListDevices()
}

// Err returns the last recorded capture error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) emitLevel(level float64) {
	s.mu.Lock()
	s.level = level
	s.mu.Unlock()
	if s.cfg.OnLevel != nil {
		s.cfg.OnLevel(level)
	}
}

func (s *Session) emitError(err error) {
	if s.cfg.OnError != nil {
		s.cfg.OnError(err)
	}
}

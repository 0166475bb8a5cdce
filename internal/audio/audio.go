package audio

import "context"

// Capture defines the interface for microphone capture.
//
// Start opens the device and pushes fixed-size blocks of mono float32
// samples into out until ctx is cancelled. Blocks are dropped rather
// than buffered when the consumer falls behind.
type Capture interface {
	Start(ctx context.Context, deviceID string, sampleRate int, out chan<- []float32) error
	Stop() error
	ListDevices() ([]AudioDevice, error)
	Close() error
}

// AudioDevice represents an audio input device.
type AudioDevice struct {
	ID      string
	Name    string
	Default bool
}

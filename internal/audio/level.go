package audio

// Default meter tuning. Raw microphone peaks rarely reach full scale,
// so the amplification factor lifts normal speech into the visible
// range before clamping.
const (
	DefaultAmplification = 4.0
	DefaultSmoothing     = 0.3
)

// Meter computes a smoothed 0-1 activity level from raw sample blocks
// for waveform visualization. It is not safe for concurrent use; the
// recorder owns it and serializes all updates.
type Meter struct {
	amplification float64
	smoothing     float64
	level         float64
}

// NewMeter creates a level meter. Non-positive tuning values fall back
// to the defaults.
func NewMeter(amplification, smoothing float64) *Meter {
	if amplification <= 0 {
		amplification = DefaultAmplification
	}
	if smoothing <= 0 || smoothing > 1 {
		smoothing = DefaultSmoothing
	}
	return &Meter{amplification: amplification, smoothing: smoothing}
}

// Update folds one block of samples into the smoothed level and returns
// the new value. An empty block is valid and decays the level toward
// zero instead of erroring, so the meter can be polled before capture
// has produced anything.
func (m *Meter) Update(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		d := float64(s)
		if d < 0 {
			d = -d
		}
		if d > peak {
			peak = d
		}
	}

	target := peak * m.amplification
	if target > 1 {
		target = 1
	}

	m.level += (target - m.level) * m.smoothing
	return m.level
}

// Level returns the current smoothed level.
func (m *Meter) Level() float64 {
	return m.level
}

// Reset drops the level to zero immediately. Called when recording
// stops so the visualization does not linger.
func (m *Meter) Reset() {
	m.level = 0
}

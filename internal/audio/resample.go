package audio

// Resample converts a block of samples from inRate to outRate using
// nearest-source-index selection. No anti-alias filtering is applied;
// the scribe service accepts the aliasing this introduces and it keeps
// the hot path allocation-light. Equal rates return the input unchanged.
func Resample(samples []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(inRate) / float64(outRate)
	outLen := int(float64(len(samples)) / ratio)
	out := make([]float32, outLen)
	for i := range out {
		src := int(float64(i) * ratio)
		if src >= len(samples) {
			src = len(samples) - 1
		}
		out[i] = samples[src]
	}
	return out
}

// EncodePCM16 converts float samples in [-1, 1] to signed 16-bit
// little-endian bytes. Each sample is clamped before scaling; the
// negative side scales by 32768 and the positive side by 32767 so
// full-scale input cannot overflow int16.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := quantize(s)
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

// QuantizePCM16 converts float samples to int16 with the same clamp
// and asymmetric scaling as EncodePCM16.
func QuantizePCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = quantize(s)
	}
	return out
}

func quantize(s float32) int16 {
	if s < -1 {
		s = -1
	} else if s > 1 {
		s = 1
	}
	if s < 0 {
		return int16(s * 32768)
	}
	return int16(s * 32767)
}

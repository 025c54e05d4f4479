// Package denoise provides the denoiser capability applied to mono chunks
// before recognition.
//
// The capability is a single interface resolved once when the pipeline is
// built. Two implementations exist: a passthrough and an adaptive RMS noise
// gate that tracks the noise floor and attenuates chunks below it. Processors
// carry per-stream state and are owned by a single worker goroutine; they are
// not safe for concurrent use and do not need to be.
package denoise

import (
	"fmt"
	"math"
)

// Modes accepted by New. The empty string is treated as ModeOff.
const (
	ModeOff  = "off"
	ModeAuto = "auto"
)

const (
	// fullScale is the magnitude of a full-scale 16-bit sample.
	fullScale = 32768.0

	// gateAlpha is the smoothing factor of the noise-floor moving average.
	// Higher values track the floor more slowly.
	gateAlpha = 0.995

	// gateRatio marks chunks below gateRatio × floor as noise.
	gateRatio = 1.5

	// gateMinThreshold is the absolute gating threshold, 1e-4 of full scale.
	// Chunks this quiet are gated regardless of the tracked floor.
	gateMinThreshold = 1e-4 * fullScale

	// gateAttenuation scales the samples of a gated chunk.
	gateAttenuation = 0.25

	// initialFloor seeds the noise-floor estimate, 1e-6 of full scale.
	initialFloor = 1e-6 * fullScale
)

// Processor filters a chunk of 16-bit mono samples. Implementations may
// modify the slice in place; callers must use the returned slice.
type Processor interface {
	Process(samples []int16) []int16
}

// New resolves a denoise mode to a Processor. ModeOff (or the empty string)
// returns a passthrough, ModeAuto returns an adaptive RMS gate. Unknown modes
// are an error.
func New(mode string) (Processor, error) {
	switch mode {
	case "", ModeOff:
		return noop{}, nil
	case ModeAuto:
		return NewGate(), nil
	default:
		return nil, fmt.Errorf("unknown denoise mode %q (valid: off, auto)", mode)
	}
}

// noop passes samples through unchanged.
type noop struct{}

func (noop) Process(samples []int16) []int16 { return samples }

// Gate is an adaptive RMS noise gate. Each chunk's RMS feeds an exponential
// moving average of the noise floor; chunks whose RMS falls below
// max(gateMinThreshold, gateRatio × floor) are attenuated, everything else
// passes unchanged. A fresh Gate has a near-zero floor, so only chunks close
// to digital silence are gated until the estimate warms up.
type Gate struct {
	floor float64
}

// NewGate returns a Gate with the noise-floor estimate at its seed value.
func NewGate() *Gate {
	return &Gate{floor: initialFloor}
}

// Process updates the noise-floor estimate with the chunk's RMS and
// attenuates the chunk in place when it falls below the gating threshold.
func (g *Gate) Process(samples []int16) []int16 {
	if len(samples) == 0 {
		return samples
	}

	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	g.floor = gateAlpha*g.floor + (1-gateAlpha)*rms

	if rms >= max(gateMinThreshold, gateRatio*g.floor) {
		return samples
	}
	for i, s := range samples {
		samples[i] = int16(float64(s) * gateAttenuation)
	}
	return samples
}

var _ Processor = noop{}
var _ Processor = (*Gate)(nil)

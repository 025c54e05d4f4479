// Package voiceprint turns raw waveforms into fixed-length speaker
// descriptors.
//
// The descriptor is an averaged-statistics cepstral vector: the waveform is
// resampled to 16 kHz, framed, windowed, projected onto a triangular mel
// filterbank, log-compressed, decorrelated with a DCT-II, and pooled across
// frames as per-coefficient mean and standard deviation. The result is
// L2-normalized so stored profiles can be ranked by plain cosine similarity.
//
// This is a deliberately lightweight, explainable baseline, not an i-vector
// or neural embedding. It is cheap enough to run per finalized utterance on
// the caption path.
package voiceprint

import "math"

// logFloor is the machine epsilon used to clamp filterbank energies before
// the log, so silent filters produce log(eps) instead of -Inf.
var logFloor = math.Nextafter(1, 2) - 1

// Config holds the extraction parameters. The defaults reproduce the stored
// profile format: changing them invalidates previously enrolled embeddings.
type Config struct {
	SampleRate  int // canonical rate in Hz (default 16000)
	NumFilters  int // mel filterbank channels (default 40)
	NumCoeffs   int // cepstral coefficients kept per frame (default 20)
	FrameLength int // frame length in samples (default 400 = 25ms @ 16kHz)
	FrameShift  int // frame shift in samples (default 160 = 10ms @ 16kHz)
}

// DefaultConfig returns the canonical 16 kHz configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:  16000,
		NumFilters:  40,
		NumCoeffs:   20,
		FrameLength: 400,
		FrameShift:  160,
	}
}

// Dim returns the descriptor length: mean and standard deviation per
// cepstral coefficient.
func (c Config) Dim() int { return 2 * c.NumCoeffs }

// Extractor computes embeddings for one Config. The window, filterbank and
// DCT basis are precomputed once; Extract itself is pure and safe for
// concurrent use.
type Extractor struct {
	cfg        Config
	fftSize    int
	window     []float64
	filterbank [][]float64
	dctBasis   [][]float64
}

// NewExtractor precomputes the transform tables for cfg. Zero fields fall
// back to DefaultConfig values.
func NewExtractor(cfg Config) *Extractor {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.NumFilters <= 0 {
		cfg.NumFilters = def.NumFilters
	}
	if cfg.NumCoeffs <= 0 {
		cfg.NumCoeffs = def.NumCoeffs
	}
	if cfg.FrameLength <= 0 {
		cfg.FrameLength = def.FrameLength
	}
	if cfg.FrameShift <= 0 {
		cfg.FrameShift = def.FrameShift
	}

	fftSize := nextPow2(cfg.FrameLength)
	return &Extractor{
		cfg:        cfg,
		fftSize:    fftSize,
		window:     hammingWindow(cfg.FrameLength),
		filterbank: melFilterbank(cfg.NumFilters, fftSize, cfg.SampleRate),
		dctBasis:   dctIIBasis(cfg.NumCoeffs, cfg.NumFilters),
	}
}

// Config returns the configuration the extractor was built with.
func (e *Extractor) Config() Config { return e.cfg }

// Extract computes the descriptor for samples captured at sourceRate.
// When sourceRate differs from the configured rate the signal is resampled
// by linear interpolation first (a documented accuracy trade-off: cheap,
// reproducible, adequate for this descriptor).
//
// The returned vector always has length Config.Dim. Degenerate input (empty,
// or too short to fill a single frame) yields the all-zero vector, which by
// construction matches nothing well. Non-degenerate output is L2-normalized.
func (e *Extractor) Extract(samples []float64, sourceRate int) []float32 {
	out := make([]float32, e.cfg.Dim())

	if sourceRate > 0 && sourceRate != e.cfg.SampleRate {
		samples = resampleLinear(samples, sourceRate, e.cfg.SampleRate)
	}
	if len(samples) < e.cfg.FrameLength {
		return out
	}

	numFrames := (len(samples)-e.cfg.FrameLength)/e.cfg.FrameShift + 1
	halfFFT := e.fftSize/2 + 1

	// Accumulate per-coefficient sum and sum of squares across frames.
	sum := make([]float64, e.cfg.NumCoeffs)
	sumSq := make([]float64, e.cfg.NumCoeffs)

	fftBuf := make([]complex128, e.fftSize)
	powerSpec := make([]float64, halfFFT)
	logMel := make([]float64, e.cfg.NumFilters)

	for f := range numFrames {
		offset := f * e.cfg.FrameShift

		for i := range fftBuf {
			fftBuf[i] = 0
		}
		for i := range e.cfg.FrameLength {
			fftBuf[i] = complex(samples[offset+i]*e.window[i], 0)
		}
		fft(fftBuf)

		for k := range halfFFT {
			re := real(fftBuf[k])
			im := imag(fftBuf[k])
			powerSpec[k] = re*re + im*im
		}

		for m := range e.cfg.NumFilters {
			var energy float64
			for k, w := range e.filterbank[m] {
				energy += w * powerSpec[k]
			}
			if energy < logFloor {
				energy = logFloor
			}
			logMel[m] = math.Log(energy)
		}

		for n := range e.cfg.NumCoeffs {
			var c float64
			for m, basis := range e.dctBasis[n] {
				c += logMel[m] * basis
			}
			sum[n] += c
			sumSq[n] += c * c
		}
	}

	// Mean and (population) standard deviation per coefficient.
	inv := 1 / float64(numFrames)
	for n := range e.cfg.NumCoeffs {
		mean := sum[n] * inv
		variance := sumSq[n]*inv - mean*mean
		if variance < 0 {
			variance = 0
		}
		out[n] = float32(mean)
		out[e.cfg.NumCoeffs+n] = float32(math.Sqrt(variance))
	}

	Normalize(out)
	return out
}

// Normalize scales v to unit L2 norm in place. A zero vector is left as-is
// rather than dividing by zero.
func Normalize(v []float32) {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	if sq == 0 {
		return
	}
	inv := 1 / math.Sqrt(sq)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// Cosine returns the cosine similarity of a and b, clamped to [-1, 1].
// Mismatched lengths or a zero-norm operand score 0 (no similarity signal).
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return sim
}

// resampleLinear converts samples from srcRate to dstRate by linear
// interpolation.
func resampleLinear(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}
	out := make([]float64, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

package voiceprint

import (
	"math"
	"math/cmplx"
)

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// hammingWindow computes a Hamming window of length n.
func hammingWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// hzToMel converts a frequency in Hz to the mel scale.
func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// melToHz converts a mel value back to Hz.
func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterbank builds triangular mel filter weights spanning 0 Hz to
// Nyquist. Returns [numFilters][fftSize/2+1] weights.
func melFilterbank(numFilters, fftSize, sampleRate int) [][]float64 {
	halfFFT := fftSize/2 + 1

	melLow := hzToMel(0)
	melHigh := hzToMel(float64(sampleRate) / 2)

	// numFilters+2 equally spaced points on the mel scale; each filter
	// rises from point m to m+1 and falls to m+2.
	points := make([]int, numFilters+2)
	for i := range points {
		mel := melLow + float64(i)*(melHigh-melLow)/float64(numFilters+1)
		bin := int(math.Floor(melToHz(mel) * float64(fftSize) / float64(sampleRate)))
		if bin >= halfFFT {
			bin = halfFFT - 1
		}
		points[i] = bin
	}

	fb := make([][]float64, numFilters)
	for m := range numFilters {
		fb[m] = make([]float64, halfFFT)
		left, center, right := points[m], points[m+1], points[m+2]
		for k := left; k <= center; k++ {
			if center > left {
				fb[m][k] = float64(k-left) / float64(center-left)
			}
		}
		for k := center; k <= right; k++ {
			if right > center {
				fb[m][k] = float64(right-k) / float64(right-center)
			}
		}
	}
	return fb
}

// dctIIBasis precomputes the DCT-II basis used to decorrelate log mel
// energies: basis[n][m] = cos(pi * n * (m + 0.5) / numFilters).
// Returns [numCoeffs][numFilters].
func dctIIBasis(numCoeffs, numFilters int) [][]float64 {
	basis := make([][]float64, numCoeffs)
	for n := range numCoeffs {
		basis[n] = make([]float64, numFilters)
		for m := range numFilters {
			basis[n][m] = math.Cos(math.Pi * float64(n) * (float64(m) + 0.5) / float64(numFilters))
		}
	}
	return basis
}

// fft computes the in-place radix-2 Cooley-Tukey FFT. The input length must
// be a power of 2.
func fft(x []complex128) {
	n := len(x)
	if n <= 1 {
		return
	}

	// Reorder by bit-reversed index.
	j := 0
	for i := 1; i < n; i++ {
		bit := n >> 1
		for j&bit != 0 {
			j ^= bit
			bit >>= 1
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}

	// Butterflies, doubling the span each pass.
	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		root := cmplx.Exp(complex(0, -2*math.Pi/float64(size)))
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			for k := range half {
				u := x[start+k]
				t := w * x[start+k+half]
				x[start+k] = u + t
				x[start+k+half] = u - t
				w *= root
			}
		}
	}
}

package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Canonical is the pipeline ingest format: 16 kHz mono.
var Canonical = Format{SampleRate: CanonicalRate, Channels: 1}

// FormatConverter converts Chunks to a target format. It logs a warning on
// the first format mismatch and validates PCM data alignment. Create one per
// stream; not designed for shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert converts a chunk to the target format. If the source format already
// matches the target, the chunk is returned unchanged (zero allocation).
// Conversion order: downmix first, then resample, so multi-channel input is
// never resampled per channel.
func (c *FormatConverter) Convert(chunk Chunk) Chunk {
	if len(chunk.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio format converter: odd byte count in PCM data, dropping chunk",
				"bytes", len(chunk.Data),
				"sampleRate", chunk.SampleRate,
				"channels", chunk.Channels,
			)
		})
		return Chunk{
			SampleRate: c.Target.SampleRate,
			Channels:   c.Target.Channels,
			Timestamp:  chunk.Timestamp,
		}
	}

	if chunk.SampleRate == c.Target.SampleRate && chunk.Channels == c.Target.Channels {
		return chunk
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", formatString(chunk.SampleRate, chunk.Channels),
			"to", formatString(c.Target.SampleRate, c.Target.Channels),
		)
	})

	pcm := chunk.Data
	channels := chunk.Channels

	if channels != c.Target.Channels && c.Target.Channels == 1 {
		pcm = DownmixMono(pcm, channels)
		channels = 1
	}
	if chunk.SampleRate != c.Target.SampleRate && channels == 1 {
		pcm = ResampleMono16(pcm, chunk.SampleRate, c.Target.SampleRate)
	}

	return Chunk{
		Data:       pcm,
		SampleRate: c.Target.SampleRate,
		Channels:   channels,
		Timestamp:  chunk.Timestamp,
	}
}

// DownmixMono averages all channels per frame to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
// If channels <= 1 the input is returned unchanged.
func DownmixMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / (BytesPerSample * channels)
	out := make([]byte, frames*BytesPerSample)
	for i := range frames {
		var sum int32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[idx : idx+2])))
		}
		avg := sum / int32(channels)
		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(int16(avg)))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. The input must be little-endian int16 samples. If srcRate ==
// dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(binary.LittleEndian.Uint16(pcm[srcIdx*2 : srcIdx*2+2]))
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(binary.LittleEndian.Uint16(pcm[(srcIdx+1)*2 : (srcIdx+1)*2+2]))
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(interpolated))
	}
	return out
}

// Float64Samples converts 16-bit signed little-endian PCM to float64 samples
// normalised to [-1.0, 1.0). Any trailing odd byte is ignored.
func Float64Samples(pcm []byte) []float64 {
	n := len(pcm) / 2
	samples := make([]float64, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float64(sample) / 32768.0
	}
	return samples
}

// Float32Samples converts 16-bit signed little-endian PCM to float32 samples
// normalised to [-1.0, 1.0). Any trailing odd byte is ignored.
func Float32Samples(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// Int16Samples converts 16-bit signed little-endian PCM to raw int16 samples.
// Any trailing odd byte is ignored.
func Int16Samples(pcm []byte) []int16 {
	n := len(pcm) / 2
	samples := make([]int16, n)
	for i := range n {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
	return samples
}

// PCMBytes converts raw int16 samples back to 16-bit signed little-endian PCM.
func PCMBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(s))
	}
	return out
}

// RMS16 returns the root-mean-square energy of 16-bit mono PCM in raw 16-bit
// units (0 for silence, up to 32767 for a full-scale square wave).
func RMS16(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// formatString returns a human-readable string for a sample rate and channel
// count, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}

package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// wavHeaderSize is the byte size of the canonical 44-byte PCM WAV header
// written by EncodeWAV.
const wavHeaderSize = 44

// ErrNotWAV is returned by DecodeWAV when the input does not start with a
// RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")

// EncodeWAV writes pcm as a 16-bit PCM RIFF WAV stream. The pcm slice must be
// interleaved little-endian int16 samples matching sampleRate and channels.
func EncodeWAV(w io.Writer, pcm []byte, sampleRate, channels int) error {
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("audio: invalid WAV format %dHz/%dch", sampleRate, channels)
	}

	byteRate := sampleRate * channels * BytesPerSample
	blockAlign := channels * BytesPerSample

	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // audio format: PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], 16) // bits per sample
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("audio: write WAV header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("audio: write WAV data: %w", err)
	}
	return nil
}

// WriteWAVFile writes pcm to path as a 16-bit PCM WAV file.
func WriteWAVFile(path string, pcm []byte, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create %s: %w", path, err)
	}
	if err := EncodeWAV(f, pcm, sampleRate, channels); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("audio: close %s: %w", path, err)
	}
	return nil
}

// DecodeWAV parses a 16-bit PCM RIFF WAV stream and returns the raw sample
// data together with its format. Compressed or non-16-bit encodings are
// rejected with an explicit error; this decoder exists for enrollment
// recordings and replay sources, not as a general media reader.
func DecodeWAV(r io.Reader) (pcm []byte, sampleRate, channels int, err error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, 0, 0, fmt.Errorf("audio: read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, 0, ErrNotWAV
	}

	var (
		haveFmt  bool
		haveData bool
	)
	for !haveData {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, 0, 0, fmt.Errorf("audio: read chunk header: %w", err)
		}
		id := string(chunkHeader[0:4])
		size := int(binary.LittleEndian.Uint32(chunkHeader[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, fmt.Errorf("audio: fmt chunk too small (%d bytes)", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, 0, 0, fmt.Errorf("audio: read fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits := binary.LittleEndian.Uint16(body[14:16])
			if format != 1 {
				return nil, 0, 0, fmt.Errorf("audio: unsupported WAV encoding %d (want PCM)", format)
			}
			if bits != 16 {
				return nil, 0, 0, fmt.Errorf("audio: unsupported sample width %d bits (want 16)", bits)
			}
			if channels <= 0 || sampleRate <= 0 {
				return nil, 0, 0, fmt.Errorf("audio: invalid WAV format %dHz/%dch", sampleRate, channels)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, 0, 0, errors.New("audio: WAV data chunk before fmt chunk")
			}
			pcm = make([]byte, size)
			if _, err := io.ReadFull(r, pcm); err != nil {
				return nil, 0, 0, fmt.Errorf("audio: read WAV data: %w", err)
			}
			haveData = true
		default:
			// Skip unknown chunks (LIST, fact, ...). Chunk bodies are
			// word-aligned: odd sizes carry one pad byte.
			skip := int64(size)
			if size%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, 0, 0, fmt.Errorf("audio: skip %q chunk: %w", id, err)
			}
		}
	}

	if !haveData {
		return nil, 0, 0, errors.New("audio: WAV stream has no data chunk")
	}
	return pcm, sampleRate, channels, nil
}

// ReadWAVFile reads a 16-bit PCM WAV file from path.
func ReadWAVFile(path string) (pcm []byte, sampleRate, channels int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()
	pcm, sampleRate, channels, err = DecodeWAV(f)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("audio: decode %s: %w", path, err)
	}
	return pcm, sampleRate, channels, nil
}

package diarize

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// loadWAV reads a PCM WAV file into normalized float64 samples in [-1, 1].
// Multi-channel audio is mixed down by averaging channels. Only 16-bit PCM
// is supported; the pipeline normalizes uploads to that format first.
func loadWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, 0, fmt.Errorf("read riff header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a wav file")
	}

	var (
		channels      uint16
		sampleRate    uint32
		bitsPerSample uint16
		haveFormat    bool
	)

	chunkHeader := make([]byte, 8)
	for {
		if _, err := io.ReadFull(f, chunkHeader); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, 0, fmt.Errorf("read chunk header: %w", err)
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			fmtData := make([]byte, chunkSize)
			if _, err := io.ReadFull(f, fmtData); err != nil {
				return nil, 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			channels = binary.LittleEndian.Uint16(fmtData[2:4])
			sampleRate = binary.LittleEndian.Uint32(fmtData[4:8])
			bitsPerSample = binary.LittleEndian.Uint16(fmtData[14:16])
			haveFormat = true

		case "data":
			if !haveFormat {
				return nil, 0, fmt.Errorf("data chunk before fmt chunk")
			}
			if bitsPerSample != 16 {
				return nil, 0, fmt.Errorf("unsupported bit depth %d", bitsPerSample)
			}
			if channels == 0 {
				return nil, 0, fmt.Errorf("fmt chunk reports zero channels")
			}
			raw := make([]byte, chunkSize)
			if _, err := io.ReadFull(f, raw); err != nil {
				return nil, 0, fmt.Errorf("read data chunk: %w", err)
			}
			return decodePCM16(raw, int(channels)), int(sampleRate), nil

		default:
			// Chunks are word aligned.
			skip := int64(chunkSize)
			if chunkSize%2 == 1 {
				skip++
			}
			if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
				return nil, 0, fmt.Errorf("skip %s chunk: %w", chunkID, err)
			}
		}
	}
	return nil, 0, fmt.Errorf("no data chunk found")
}

// decodePCM16 converts interleaved little-endian 16-bit samples into mono
// float64 samples in [-1, 1].
func decodePCM16(raw []byte, channels int) []float64 {
	frameBytes := 2 * channels
	frames := len(raw) / frameBytes
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			off := i*frameBytes + ch*2
			sum += float64(int16(binary.LittleEndian.Uint16(raw[off:off+2]))) / 32768.0
		}
		samples[i] = sum / float64(channels)
	}
	return samples
}

// rms is the root-mean-square energy of the sample window.
func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

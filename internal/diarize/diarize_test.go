package diarize

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmfontes/callscribe/pkg/models"
)

// fakeEmbedder yields one of two voice prints depending on which side of
// split the span starts on, and counts how often it was invoked.
type fakeEmbedder struct {
	calls int
	err   error
	split float64
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string, spans []Span) ([][]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(spans))
	for i, s := range spans {
		jitter := 0.02 * float64(i)
		if s.Start < f.split {
			out[i] = []float64{1, jitter}
		} else {
			out[i] = []float64{jitter, 1}
		}
	}
	return out, nil
}

func writeWAV(t *testing.T, samples []float64, sampleRate int) string {
	t.Helper()
	dataSize := len(samples) * 2

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	for _, s := range samples {
		binary.Write(buf, binary.LittleEndian, int16(s*32767))
	}

	path := filepath.Join(t.TempDir(), "test.wav")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func tone(seconds float64, sampleRate int, amplitude float64) []float64 {
	samples := make([]float64, int(seconds*float64(sampleRate)))
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
	}
	return samples
}

func secondSegments(n int) []models.Segment {
	segments := make([]models.Segment, n)
	for i := range segments {
		segments[i] = models.Segment{Start: float64(i), End: float64(i + 1), Text: "..."}
	}
	return segments
}

func TestDiarize_TwoSpeakers(t *testing.T) {
	audioPath := writeWAV(t, tone(6, 8000, 0.5), 8000)
	embedder := &fakeEmbedder{split: 3}
	engine := NewEngine(embedder, 2, 4, 10, time.Hour)

	result, err := engine.Diarize(context.Background(), audioPath, "fp-two", secondSegments(6))
	require.NoError(t, err)

	assert.Equal(t, 2, result.SpeakerCount)
	assert.Equal(t, []int{0, 0, 0, 1, 1, 1}, result.Labels)
	assert.Greater(t, result.Score, 0.0)
	assert.False(t, result.FromCache)
}

func TestDiarize_CacheSkipsEmbedding(t *testing.T) {
	audioPath := writeWAV(t, tone(6, 8000, 0.5), 8000)
	embedder := &fakeEmbedder{split: 3}
	engine := NewEngine(embedder, 2, 4, 10, time.Hour)
	ctx := context.Background()
	segments := secondSegments(6)

	first, err := engine.Diarize(ctx, audioPath, "fp-cached", segments)
	require.NoError(t, err)
	require.Equal(t, 1, embedder.calls)

	want := make([]int, len(first.Labels))
	copy(want, first.Labels)

	// Mutating the computed call's slice must not reach the cached entry.
	first.Labels[0] = 99

	second, err := engine.Diarize(ctx, audioPath, "fp-cached", segments)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, want, second.Labels)
	assert.Equal(t, first.SpeakerCount, second.SpeakerCount)
	assert.Equal(t, 1, embedder.calls)

	// Nor must mutating a hit's slice poison later hits.
	second.Labels[0] = 99
	third, err := engine.Diarize(ctx, audioPath, "fp-cached", segments)
	require.NoError(t, err)
	assert.Equal(t, want, third.Labels)
}

func TestDiarize_SilentAudioSkipsClustering(t *testing.T) {
	audioPath := writeWAV(t, make([]float64, 6*8000), 8000)
	embedder := &fakeEmbedder{split: 3}
	engine := NewEngine(embedder, 2, 4, 10, time.Hour)

	result, err := engine.Diarize(context.Background(), audioPath, "fp-silent", secondSegments(6))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 0, 0, 0, 0, 0}, result.Labels)
	assert.Equal(t, 1, result.SpeakerCount)
	assert.Equal(t, 0.0, result.Score)
	assert.Equal(t, 0, embedder.calls)
}

func TestDiarize_ShortSegmentsAreFilled(t *testing.T) {
	audioPath := writeWAV(t, tone(6, 8000, 0.5), 8000)
	embedder := &fakeEmbedder{split: 3}
	engine := NewEngine(embedder, 2, 4, 10, time.Hour)

	segments := secondSegments(6)
	// Shrink one segment below the duration floor.
	segments[2].End = segments[2].Start + 0.1

	result, err := engine.Diarize(context.Background(), audioPath, "fp-short", segments)
	require.NoError(t, err)

	require.Len(t, result.Labels, 6)
	for _, l := range result.Labels {
		assert.GreaterOrEqual(t, l, 0)
	}
}

func TestDiarize_EmptySegments(t *testing.T) {
	engine := NewEngine(&fakeEmbedder{}, 2, 4, 10, time.Hour)

	result, err := engine.Diarize(context.Background(), "/irrelevant.wav", "fp-empty", nil)
	require.NoError(t, err)
	assert.Empty(t, result.Labels)
	assert.Equal(t, 0, result.SpeakerCount)
}

func TestDiarize_EmbedderFailure(t *testing.T) {
	audioPath := writeWAV(t, tone(6, 8000, 0.5), 8000)
	embedder := &fakeEmbedder{err: errors.New("model not loaded")}
	engine := NewEngine(embedder, 2, 4, 10, time.Hour)

	_, err := engine.Diarize(context.Background(), audioPath, "fp-err", secondSegments(6))
	assert.ErrorContains(t, err, "model not loaded")
}

func TestDiarize_MissingAudioFile(t *testing.T) {
	engine := NewEngine(&fakeEmbedder{}, 2, 4, 10, time.Hour)

	_, err := engine.Diarize(context.Background(), "/does/not/exist.wav", "fp-missing", secondSegments(2))
	assert.ErrorContains(t, err, "load audio")
}

func TestLoadWAV_Roundtrip(t *testing.T) {
	samples := tone(1, 8000, 0.5)
	audioPath := writeWAV(t, samples, 8000)

	loaded, rate, err := loadWAV(audioPath)
	require.NoError(t, err)
	assert.Equal(t, 8000, rate)
	require.Len(t, loaded, len(samples))
	assert.InDelta(t, rms(samples), rms(loaded), 0.001)
}

func TestLoadWAV_RejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0o644))

	_, _, err := loadWAV(path)
	assert.Error(t, err)
}

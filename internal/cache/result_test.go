package cache_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmfontes/callscribe/internal/cache"
)

type fakeResult struct {
	Text     string   `json:"text"`
	Language string   `json:"language"`
	Segments []string `json:"segments"`
}

// brokenCache fails every operation, standing in for an unreachable backend.
type brokenCache struct{}

var errBackendDown = errors.New("backend unreachable")

func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errBackendDown
}
func (brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errBackendDown
}
func (brokenCache) Delete(context.Context, string) error                   { return errBackendDown }
func (brokenCache) DeleteByPrefix(context.Context, string) (int64, error)  { return 0, errBackendDown }
func (brokenCache) CountByPrefix(context.Context, string) (int64, error)   { return 0, errBackendDown }
func (brokenCache) MemoryUsedMB(context.Context) (float64, error)          { return 0, errBackendDown }
func (brokenCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, errBackendDown
}
func (brokenCache) Ping(context.Context) error { return errBackendDown }
func (brokenCache) Close() error               { return nil }

func writeTempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "call.wav")
	require.NoError(t, os.WriteFile(path, []byte("fake audio bytes"), 0o644))
	return path
}

func TestResultCache_TranscriptionRoundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := cache.NewResultCache(setupRedis(t), time.Hour, time.Hour)
	ctx := context.Background()
	audioPath := writeTempAudio(t)

	opts := map[string]bool{"diarization": true}
	stored := fakeResult{
		Text:     "hello there",
		Language: "en",
		Segments: []string{"hello", "there"},
	}
	rc.SetTranscription(ctx, audioPath, opts, stored)

	var loaded fakeResult
	require.True(t, rc.GetTranscription(ctx, audioPath, opts, &loaded))
	assert.Equal(t, stored, loaded)

	// Different options miss.
	var miss fakeResult
	assert.False(t, rc.GetTranscription(ctx, audioPath, map[string]bool{"diarization": false}, &miss))
}

func TestResultCache_TTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := cache.NewResultCache(setupRedis(t), time.Second, time.Second)
	ctx := context.Background()
	audioPath := writeTempAudio(t)

	rc.SetTranscription(ctx, audioPath, nil, fakeResult{Text: "short lived"})

	var loaded fakeResult
	require.True(t, rc.GetTranscription(ctx, audioPath, nil, &loaded))

	time.Sleep(1500 * time.Millisecond)
	assert.False(t, rc.GetTranscription(ctx, audioPath, nil, &loaded))
}

func TestResultCache_AnalysisRoundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := cache.NewResultCache(setupRedis(t), time.Hour, time.Hour)
	ctx := context.Background()

	rules := []string{"guaranteed return", "monthly draw"}
	stored := map[string]any{"summary": "ok", "accepted": true}
	rc.SetAnalysis(ctx, "full transcript text", rules, stored)

	// Rule order must not matter.
	reordered := []string{"monthly draw", "guaranteed return"}
	var loaded map[string]any
	require.True(t, rc.GetAnalysis(ctx, "full transcript text", reordered, &loaded))
	assert.Equal(t, "ok", loaded["summary"])

	// Different text misses.
	assert.False(t, rc.GetAnalysis(ctx, "other transcript", rules, &loaded))
}

func TestResultCache_Stats(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := cache.NewResultCache(setupRedis(t), time.Hour, time.Hour)
	ctx := context.Background()
	audioPath := writeTempAudio(t)

	rc.SetTranscription(ctx, audioPath, nil, fakeResult{Text: "a"})
	rc.SetAnalysis(ctx, "text", nil, map[string]string{"summary": "b"})

	stats, err := rc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalKeys)
	assert.Equal(t, int64(1), stats.TranscriptionKeys)
	assert.Equal(t, int64(1), stats.AnalysisKeys)
	assert.Greater(t, stats.MemoryMB, 0.0)

	deleted, err := rc.ClearNamespace(ctx, cache.NamespaceTranscription)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = rc.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

// Best-effort contract: an unreachable backend is a miss, never an error.
func TestResultCache_BackendUnreachable(t *testing.T) {
	rc := cache.NewResultCache(brokenCache{}, time.Hour, time.Hour)
	ctx := context.Background()

	rc.SetTranscription(ctx, "/tmp/missing.wav", nil, fakeResult{Text: "dropped"})

	var loaded fakeResult
	assert.False(t, rc.GetTranscription(ctx, "/tmp/missing.wav", nil, &loaded))
}

func TestFileFingerprint(t *testing.T) {
	audioPath := writeTempAudio(t)

	fp1 := cache.FileFingerprint(audioPath)
	fp2 := cache.FileFingerprint(audioPath)
	assert.Equal(t, fp1, fp2)

	// Changing size changes the fingerprint.
	require.NoError(t, os.WriteFile(audioPath, []byte("different length content"), 0o644))
	assert.NotEqual(t, fp1, cache.FileFingerprint(audioPath))

	// Missing files still produce a stable fingerprint.
	missing := cache.FileFingerprint("/does/not/exist.wav")
	assert.Equal(t, missing, cache.FileFingerprint("/does/not/exist.wav"))
	assert.NotEmpty(t, missing)
}

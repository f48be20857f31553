package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/gzip"
)

// ResultCache stores pipeline stage outputs keyed by content fingerprint.
// Values are JSON-encoded and gzip-compressed. Every operation is
// best-effort: backend failures are logged and surface as a miss or a
// silent no-op, never as a job error.
type ResultCache struct {
	cache            Cache
	transcriptionTTL time.Duration
	analysisTTL      time.Duration
}

// Stats summarizes cache occupancy for the admin surface.
type Stats struct {
	TotalKeys         int64   `json:"total_keys"`
	TranscriptionKeys int64   `json:"transcription_keys"`
	AnalysisKeys      int64   `json:"analysis_keys"`
	MemoryMB          float64 `json:"memory_mb"`
}

// NewResultCache creates a ResultCache over the given backend.
func NewResultCache(c Cache, transcriptionTTL, analysisTTL time.Duration) *ResultCache {
	return &ResultCache{
		cache:            c,
		transcriptionTTL: transcriptionTTL,
		analysisTTL:      analysisTTL,
	}
}

// GetTranscription loads a cached transcription for (audio fingerprint, options)
// into out. Returns false on miss or on any backend/decode failure.
func (rc *ResultCache) GetTranscription(ctx context.Context, audioPath string, options any, out any) bool {
	key := TranscriptionKey(FileFingerprint(audioPath), OptionsHash(options))
	return rc.get(ctx, key, out)
}

// SetTranscription stores a transcription result. Failures are logged and dropped.
func (rc *ResultCache) SetTranscription(ctx context.Context, audioPath string, options any, value any) {
	key := TranscriptionKey(FileFingerprint(audioPath), OptionsHash(options))
	rc.set(ctx, key, value, rc.transcriptionTTL)
}

// GetAnalysis loads a cached analysis for (text, rule set) into out.
func (rc *ResultCache) GetAnalysis(ctx context.Context, text string, ruleKeywords []string, out any) bool {
	key := AnalysisKey(TextHash(text), RulesHash(ruleKeywords))
	return rc.get(ctx, key, out)
}

// SetAnalysis stores an analysis result.
func (rc *ResultCache) SetAnalysis(ctx context.Context, text string, ruleKeywords []string, value any) {
	key := AnalysisKey(TextHash(text), RulesHash(ruleKeywords))
	rc.set(ctx, key, value, rc.analysisTTL)
}

// ClearAll removes every cached result.
func (rc *ResultCache) ClearAll(ctx context.Context) (int64, error) {
	var total int64
	for _, ns := range []string{NamespaceTranscription, NamespaceAnalysis} {
		n, err := rc.cache.DeleteByPrefix(ctx, ns+":")
		total += n
		if err != nil {
			return total, fmt.Errorf("clear namespace %s: %w", ns, err)
		}
	}
	return total, nil
}

// ClearNamespace removes all cached results in one namespace.
func (rc *ResultCache) ClearNamespace(ctx context.Context, namespace string) (int64, error) {
	if namespace != NamespaceTranscription && namespace != NamespaceAnalysis {
		return 0, fmt.Errorf("unknown cache namespace %q", namespace)
	}
	return rc.cache.DeleteByPrefix(ctx, namespace+":")
}

// Stats reports key counts per namespace and backend memory usage.
func (rc *ResultCache) Stats(ctx context.Context) (*Stats, error) {
	transcription, err := rc.cache.CountByPrefix(ctx, NamespaceTranscription+":")
	if err != nil {
		return nil, fmt.Errorf("count transcription keys: %w", err)
	}
	analysis, err := rc.cache.CountByPrefix(ctx, NamespaceAnalysis+":")
	if err != nil {
		return nil, fmt.Errorf("count analysis keys: %w", err)
	}
	memMB, err := rc.cache.MemoryUsedMB(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory usage: %w", err)
	}
	return &Stats{
		TotalKeys:         transcription + analysis,
		TranscriptionKeys: transcription,
		AnalysisKeys:      analysis,
		MemoryMB:          memMB,
	}, nil
}

func (rc *ResultCache) get(ctx context.Context, key string, out any) bool {
	data, found, err := rc.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("cache get failed", "key", key, "error", err)
		return false
	}
	if !found {
		return false
	}
	if err := decompress(data, out); err != nil {
		slog.Warn("cache decode failed", "key", key, "error", err)
		return false
	}
	return true
}

func (rc *ResultCache) set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := compress(value)
	if err != nil {
		slog.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := rc.cache.Set(ctx, key, data, ttl); err != nil {
		slog.Warn("cache set failed", "key", key, "error", err)
	}
}

func compress(value any) ([]byte, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, 6)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(encoded); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte, out any) error {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer zr.Close()

	decoded, err := io.ReadAll(zr)
	if err != nil {
		return err
	}
	return json.Unmarshal(decoded, out)
}

// Package diarize assigns a speaker index to each transcript segment.
// The engine filters out short and silent segments, extracts one speaker
// embedding per surviving segment, selects the speaker count by silhouette
// score over a range of candidate clusterings, and smooths the resulting
// label sequence. Results are cached so repeat calls over the same audio
// perform no embedding work.
package diarize

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmfontes/callscribe/pkg/models"
)

const (
	// minSegmentSeconds discards segments too short to embed reliably.
	minSegmentSeconds = 0.3
	// energyFloor discards segments whose RMS energy reads as silence.
	energyFloor = 0.01
	// smoothingWindow is the majority-vote window over the label sequence.
	smoothingWindow = 5
	// unknownLabel marks segments that were filtered out before clustering.
	unknownLabel = -1
)

// Result is one diarization outcome: an ordered speaker index per input
// segment, the detected speaker count, and the winning silhouette score.
type Result struct {
	Labels       []int
	SpeakerCount int
	Score        float64
	FromCache    bool
}

// Engine computes speaker labels for transcript segments.
type Engine struct {
	embedder    Embedder
	cache       *labelCache
	minSpeakers int
	maxSpeakers int
}

// NewEngine creates an Engine with a bounded label cache.
func NewEngine(embedder Embedder, minSpeakers, maxSpeakers, cacheSize int, cacheTTL time.Duration) *Engine {
	return &Engine{
		embedder:    embedder,
		cache:       newLabelCache(cacheSize, cacheTTL),
		minSpeakers: minSpeakers,
		maxSpeakers: maxSpeakers,
	}
}

// Diarize returns one speaker index per segment. The cache is consulted
// before any audio is read; a hit returns the previously computed label
// sequence unchanged.
func (e *Engine) Diarize(ctx context.Context, audioPath, fingerprint string, segments []models.Segment) (*Result, error) {
	if len(segments) == 0 {
		return &Result{Labels: []int{}, SpeakerCount: 0, Score: 0}, nil
	}

	key := e.cacheKey(fingerprint, len(segments))
	if entry, ok := e.cache.Get(key); ok {
		labels := make([]int, len(entry.labels))
		copy(labels, entry.labels)
		return &Result{
			Labels:       labels,
			SpeakerCount: entry.speakerCount,
			Score:        entry.score,
			FromCache:    true,
		}, nil
	}

	result, err := e.compute(ctx, audioPath, segments)
	if err != nil {
		return nil, err
	}

	// The cached entry keeps its own copy; callers own the returned slice.
	stored := make([]int, len(result.Labels))
	copy(stored, result.Labels)
	e.cache.Set(key, &labelEntry{
		labels:       stored,
		speakerCount: result.SpeakerCount,
		score:        result.Score,
	})
	return result, nil
}

func (e *Engine) compute(ctx context.Context, audioPath string, segments []models.Segment) (*Result, error) {
	samples, sampleRate, err := loadWAV(audioPath)
	if err != nil {
		return nil, fmt.Errorf("load audio: %w", err)
	}

	spans, validIndices := filterSegments(samples, sampleRate, segments)

	// Too little usable speech to distinguish speakers.
	if len(spans) < e.minSpeakers {
		slog.Info("not enough valid segments for clustering",
			"valid", len(spans), "min_speakers", e.minSpeakers)
		return &Result{
			Labels:       uniformLabels(len(segments)),
			SpeakerCount: 1,
			Score:        0,
		}, nil
	}

	embeddings, err := e.embedder.Embed(ctx, audioPath, spans)
	if err != nil {
		return nil, fmt.Errorf("extract embeddings: %w", err)
	}
	if len(embeddings) != len(spans) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d spans", len(embeddings), len(spans))
	}

	for _, emb := range embeddings {
		unitNormalize(emb)
	}

	labels, speakerCount, score := e.selectClustering(embeddings)

	full := make([]int, len(segments))
	for i := range full {
		full[i] = unknownLabel
	}
	for pos, idx := range validIndices {
		full[idx] = labels[pos]
	}

	smoothed := SmoothLabels(full, smoothingWindow)

	slog.Info("diarization complete",
		"segments", len(segments),
		"clustered", len(spans),
		"speakers", speakerCount,
		"silhouette", fmt.Sprintf("%.3f", score))

	return &Result{Labels: smoothed, SpeakerCount: speakerCount, Score: score}, nil
}

// selectClustering tries every candidate speaker count and keeps the best
// silhouette score. The comparison is strictly greater-than over ascending
// k, so ties keep the smallest candidate count. If every attempt fails the
// fallback clusters at the smallest possible count with score 0.
func (e *Engine) selectClustering(embeddings [][]float64) (labels []int, speakerCount int, score float64) {
	maxK := e.maxSpeakers
	if len(embeddings) < maxK {
		maxK = len(embeddings)
	}

	bestScore := -1.0
	var bestLabels []int
	bestK := 0

	for k := e.minSpeakers; k <= maxK; k++ {
		candidate, err := clusterAgglomerative(embeddings, k)
		if err != nil {
			slog.Warn("clustering attempt failed", "k", k, "error", err)
			continue
		}
		s, err := silhouetteScore(embeddings, candidate)
		if err != nil {
			slog.Warn("silhouette scoring failed", "k", k, "error", err)
			continue
		}
		if s > bestScore {
			bestScore = s
			bestLabels = candidate
			bestK = k
		}
	}

	if bestLabels == nil {
		minPossible := e.minSpeakers
		if len(embeddings) < minPossible {
			minPossible = len(embeddings)
		}
		fallback, err := clusterAgglomerative(embeddings, minPossible)
		if err != nil {
			// Cannot happen with k <= n, but degrade to one speaker anyway.
			return uniformLabels(len(embeddings)), 1, 0
		}
		return fallback, minPossible, 0
	}

	return bestLabels, bestK, bestScore
}

// Span is one clustering candidate's position within the audio.
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// filterSegments keeps segments long and loud enough to embed, returning
// their audio spans and positions in the original segment list.
func filterSegments(samples []float64, sampleRate int, segments []models.Segment) ([]Span, []int) {
	var spans []Span
	var indices []int

	for i, seg := range segments {
		if seg.End-seg.Start < minSegmentSeconds {
			continue
		}
		start := int(seg.Start * float64(sampleRate))
		end := int(seg.End * float64(sampleRate))
		if start >= len(samples) {
			continue
		}
		if end > len(samples) {
			end = len(samples)
		}
		if end <= start {
			continue
		}
		if rms(samples[start:end]) < energyFloor {
			continue
		}
		spans = append(spans, Span{Start: seg.Start, End: seg.End})
		indices = append(indices, i)
	}
	return spans, indices
}

// SmoothLabels applies a sliding-window majority vote over the label
// sequence, ignoring unknown labels, then forward-fills any position still
// unknown from the most recent known label (0 if none precedes it).
// Idempotent on uniform input.
func SmoothLabels(labels []int, window int) []int {
	smoothed := make([]int, len(labels))
	copy(smoothed, labels)

	half := window / 2
	for i := range labels {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + 1
		if hi > len(labels) {
			hi = len(labels)
		}

		counts := map[int]int{}
		for _, l := range labels[lo:hi] {
			if l != unknownLabel {
				counts[l]++
			}
		}
		if len(counts) == 0 {
			continue
		}

		// Ties keep the label seen first in the window.
		best, bestCount := unknownLabel, 0
		for _, l := range labels[lo:hi] {
			if l != unknownLabel && counts[l] > bestCount {
				best, bestCount = l, counts[l]
			}
		}
		smoothed[i] = best
	}

	last := 0
	for i, l := range smoothed {
		if l == unknownLabel {
			smoothed[i] = last
		} else {
			last = l
		}
	}
	return smoothed
}

func uniformLabels(n int) []int {
	return make([]int, n)
}

func (e *Engine) cacheKey(fingerprint string, segmentCount int) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s_%d_%d_%d", fingerprint, segmentCount, e.minSpeakers, e.maxSpeakers))
	return fmt.Sprintf("%x", sum)
}

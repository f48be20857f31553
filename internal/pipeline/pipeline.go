// Package pipeline runs the processing stages for one transcription job:
// normalize, transcribe, diarize, analyze. Stage failures are isolated per
// stage policy. Normalization falls back to the original audio, diarization
// degrades to a single speaker, analysis degrades to a placeholder summary.
// Only a transcription failure fails the job.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dmfontes/callscribe/internal/cache"
	"github.com/dmfontes/callscribe/internal/diarize"
	"github.com/dmfontes/callscribe/pkg/models"
)

// Transcription is the output of the transcribe stage.
type Transcription struct {
	Segments []models.Segment `json:"segments"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
}

// Transcriber converts audio into timed text segments. Implementations
// report progress as a 0-99 percentage while segments are produced.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, onProgress func(int)) (*Transcription, error)
}

// Normalizer prepares raw uploads for the speech model.
type Normalizer interface {
	Normalize(ctx context.Context, inputPath string) (string, error)
}

// Diarizer assigns one speaker index per segment.
type Diarizer interface {
	Diarize(ctx context.Context, audioPath, fingerprint string, segments []models.Segment) (*diarize.Result, error)
}

// Result is the full outcome of a pipeline run.
type Result struct {
	Text           string
	CorrectedText  string
	Language       string
	Duration       float64
	ProcessingTime float64
	Summary        string
	Topics         string
	Compliance     Compliance
	WordCount      int
	SpeakerCount   int
}

// Orchestrator wires the stages together with the shared result cache.
type Orchestrator struct {
	normalizer  Normalizer
	transcriber Transcriber
	diarizer    Diarizer
	analyzer    *Analyzer
	results     *cache.ResultCache
}

func NewOrchestrator(normalizer Normalizer, transcriber Transcriber, diarizer Diarizer, analyzer *Analyzer, results *cache.ResultCache) *Orchestrator {
	return &Orchestrator{
		normalizer:  normalizer,
		transcriber: transcriber,
		diarizer:    diarizer,
		analyzer:    analyzer,
		results:     results,
	}
}

// Process runs all stages over the audio file. onProgress receives values in
// [0, 100] and is always invoked with 100 before a successful return, even
// for zero-segment audio.
func (o *Orchestrator) Process(ctx context.Context, audioPath string, opts models.TaskOptions, rules []models.AnalysisRule, onProgress func(int)) (*Result, error) {
	started := time.Now()
	if onProgress == nil {
		onProgress = func(int) {}
	}

	fingerprint := cache.FileFingerprint(audioPath)

	transcription, err := o.transcribe(ctx, audioPath, opts, onProgress)
	if err != nil {
		return nil, err
	}

	speakers := o.assignSpeakers(ctx, audioPath, fingerprint, opts, transcription.Segments)

	text := FormatTranscript(transcription.Segments, speakers, opts.Timestamp, opts.Diarization)

	analysis := o.analyze(ctx, text, rules)

	onProgress(100)

	speakerCount := 0
	for _, s := range speakers {
		if s+1 > speakerCount {
			speakerCount = s + 1
		}
	}

	return &Result{
		Text: text,
		// Spell correction is disabled; the corrected text mirrors the raw text.
		CorrectedText:  text,
		Language:       transcription.Language,
		Duration:       transcription.Duration,
		ProcessingTime: time.Since(started).Seconds(),
		Summary:        analysis.Summary,
		Topics:         analysis.Topics,
		Compliance:     analysis.Compliance,
		WordCount:      len(strings.Fields(text)),
		SpeakerCount:   speakerCount,
	}, nil
}

// transcribe resolves the transcription from cache or runs normalize and
// the speech model. A normalization failure falls back to the original file.
func (o *Orchestrator) transcribe(ctx context.Context, audioPath string, opts models.TaskOptions, onProgress func(int)) (*Transcription, error) {
	var cached Transcription
	if o.results.GetTranscription(ctx, audioPath, opts, &cached) {
		slog.Info("transcription cache hit", "path", audioPath)
		return &cached, nil
	}

	workPath := audioPath
	if normalized, err := o.normalizer.Normalize(ctx, audioPath); err != nil {
		slog.Warn("audio normalization failed, using original file", "path", audioPath, "error", err)
	} else {
		workPath = normalized
	}
	if workPath != audioPath {
		defer func() {
			if err := os.Remove(workPath); err != nil {
				slog.Warn("cleanup of normalized audio failed", "path", workPath, "error", err)
			}
		}()
	}

	transcription, err := o.transcriber.Transcribe(ctx, workPath, onProgress)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}

	o.results.SetTranscription(ctx, audioPath, opts, transcription)
	return transcription, nil
}

// assignSpeakers returns one label per segment. Diarization disabled or
// failing yields a uniform single speaker.
func (o *Orchestrator) assignSpeakers(ctx context.Context, audioPath, fingerprint string, opts models.TaskOptions, segments []models.Segment) []int {
	labels := make([]int, len(segments))
	if !opts.Diarization || len(segments) == 0 {
		return labels
	}

	result, err := o.diarizer.Diarize(ctx, audioPath, fingerprint, segments)
	if err != nil {
		slog.Warn("diarization failed, falling back to single speaker", "path", audioPath, "error", err)
		return labels
	}
	return result.Labels
}

// analyze resolves the analysis from cache or runs the rule engine. Any
// failure degrades to a placeholder summary with empty topics.
func (o *Orchestrator) analyze(ctx context.Context, text string, rules []models.AnalysisRule) *Analysis {
	keywords := make([]string, 0, len(rules))
	for _, r := range rules {
		keywords = append(keywords, r.Keywords)
	}

	var cached Analysis
	if o.results.GetAnalysis(ctx, text, keywords, &cached) {
		slog.Info("analysis cache hit")
		return &cached
	}

	analysis, err := o.analyzer.Analyze(text, rules)
	if err != nil {
		slog.Error("analysis failed, using placeholder", "error", err)
		return &Analysis{Summary: placeholderSummary, Topics: ""}
	}

	o.results.SetAnalysis(ctx, text, keywords, analysis)
	return analysis
}

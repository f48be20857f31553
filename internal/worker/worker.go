// Package worker runs the job consumption loop: claim a job from the queue,
// run the pipeline over it, persist the outcome, and publish lifecycle
// events. One job is processed at a time per process; concurrency comes from
// running multiple worker processes.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/dmfontes/callscribe/internal/notify"
	"github.com/dmfontes/callscribe/internal/pipeline"
	"github.com/dmfontes/callscribe/internal/queue"
	"github.com/dmfontes/callscribe/internal/store"
	"github.com/dmfontes/callscribe/pkg/models"
)

// Processor runs the pipeline for one job.
type Processor interface {
	Process(ctx context.Context, audioPath string, opts models.TaskOptions, rules []models.AnalysisRule, onProgress func(int)) (*pipeline.Result, error)
}

// Publisher fans lifecycle events out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event notify.Event) error
}

// JobSource yields pending jobs.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Message, bool, error)
}

// Worker consumes jobs until stopped or its job budget runs out.
type Worker struct {
	store     store.Store
	jobs      JobSource
	processor Processor
	publisher Publisher

	maxMemoryMB int
	maxJobs     int
	pollTimeout time.Duration

	// residentMB reports this process's resident memory. Swappable in tests.
	residentMB func() (float64, error)
}

func New(st store.Store, jobs JobSource, processor Processor, publisher Publisher, maxMemoryMB, maxJobs int) *Worker {
	return &Worker{
		store:       st,
		jobs:        jobs,
		processor:   processor,
		publisher:   publisher,
		maxMemoryMB: maxMemoryMB,
		maxJobs:     maxJobs,
		pollTimeout: 5 * time.Second,
		residentMB:  processResidentMB,
	}
}

func processResidentMB() (float64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	mem, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return float64(mem.RSS) / 1024 / 1024, nil
}

// Run claims and processes jobs until the context is cancelled or maxJobs
// have been handled. The in-flight job always finishes before Run returns.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("worker started", "max_memory_mb", w.maxMemoryMB, "max_jobs", w.maxJobs)

	processed := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopping", "processed", processed)
			return nil
		default:
		}

		msg, found, err := w.jobs.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("worker stopping", "processed", processed)
				return nil
			}
			slog.Error("dequeue failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if !found {
			continue
		}

		w.handle(ctx, msg)
		processed++

		if w.maxJobs > 0 && processed >= w.maxJobs {
			slog.Info("job budget reached, worker stopping for recycle", "processed", processed)
			return nil
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg *queue.Message) {
	// A termination signal stops the claim loop only. The claimed job and
	// its store/publish writes run to completion on a detached context.
	ctx = context.WithoutCancel(ctx)

	logger := slog.With("job_id", msg.JobID)
	logger.Info("job claimed", "audio_path", msg.AudioPath)

	// The memory check comes first; an over-ceiling worker must not touch
	// the audio file.
	if rss, err := w.residentMB(); err != nil {
		logger.Warn("resident memory check failed", "error", err)
	} else if rss > float64(w.maxMemoryMB) {
		w.fail(ctx, msg.JobID, fmt.Sprintf("worker out of memory: resident %.0f MB exceeds ceiling %d MB", rss, w.maxMemoryMB))
		return
	}

	if _, err := os.Stat(msg.AudioPath); err != nil {
		w.fail(ctx, msg.JobID, "audio file not found: "+msg.AudioPath)
		return
	}

	if err := w.store.UpdateTaskStatus(ctx, msg.JobID, models.StatusProcessing); err != nil {
		if errors.Is(err, store.ErrTerminalState) {
			logger.Info("job already terminal, skipping")
			return
		}
		logger.Error("could not mark job processing", "error", err)
		return
	}
	w.publish(ctx, notify.StatusEvent(msg.JobID.String(), models.StatusProcessing, ""))

	rules, err := w.store.ListActiveRules(ctx)
	if err != nil {
		logger.Warn("loading analysis rules failed, using defaults only", "error", err)
	}
	ruleValues := make([]models.AnalysisRule, 0, len(rules))
	for _, r := range rules {
		ruleValues = append(ruleValues, *r)
	}

	onProgress := func(p int) {
		if err := w.store.UpdateTaskProgress(ctx, msg.JobID, p); err != nil {
			logger.Warn("progress write failed", "progress", p, "error", err)
		}
		w.publish(ctx, notify.ProgressEvent(msg.JobID.String(), p))
	}

	result, err := w.processor.Process(ctx, msg.AudioPath, msg.Options, ruleValues, onProgress)
	if err != nil {
		w.fail(ctx, msg.JobID, err.Error())
		return
	}

	compliance, err := json.Marshal(result.Compliance)
	if err != nil {
		compliance = []byte("{}")
	}

	saveErr := w.store.SaveTaskResult(ctx, msg.JobID, &store.TaskResult{
		Text:           result.Text,
		CorrectedText:  result.CorrectedText,
		Language:       result.Language,
		Duration:       result.Duration,
		ProcessingTime: result.ProcessingTime,
		Summary:        result.Summary,
		Topics:         result.Topics,
		Compliance:     compliance,
	})
	if saveErr != nil {
		if errors.Is(saveErr, store.ErrTerminalState) {
			logger.Info("job reached a terminal state elsewhere, result dropped")
			return
		}
		logger.Error("persisting result failed", "error", saveErr)
		w.fail(ctx, msg.JobID, "persisting result failed: "+saveErr.Error())
		return
	}

	w.publish(ctx, notify.StatusEvent(msg.JobID.String(), models.StatusCompleted, ""))
	w.publish(ctx, notify.CompletionEvent(msg.JobID.String(), map[string]any{
		"text":     result.Text,
		"language": result.Language,
		"duration": result.Duration,
		"summary":  result.Summary,
		"topics":   result.Topics,
	}))
	logger.Info("job completed",
		"language", result.Language,
		"duration", result.Duration,
		"processing_time", result.ProcessingTime,
		"words", result.WordCount)
}

func (w *Worker) fail(ctx context.Context, id uuid.UUID, message string) {
	logger := slog.With("job_id", id)
	logger.Error("job failed", "reason", message)

	if err := w.store.UpdateTaskStatus(ctx, id, models.StatusFailed, store.WithErrorMessage(message)); err != nil {
		if errors.Is(err, store.ErrTerminalState) {
			logger.Info("job already terminal, failure not recorded")
			return
		}
		logger.Error("could not mark job failed", "error", err)
		return
	}
	w.publish(ctx, notify.StatusEvent(id.String(), models.StatusFailed, message))
}

func (w *Worker) publish(ctx context.Context, event notify.Event) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.Publish(ctx, event); err != nil {
		slog.Warn("event publish failed", "type", event.Type, "task_id", event.TaskID, "error", err)
	}
}

package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmfontes/callscribe/internal/api/response"
	"github.com/dmfontes/callscribe/internal/cache"
	"github.com/dmfontes/callscribe/internal/queue"
	"github.com/dmfontes/callscribe/internal/store"
	"github.com/dmfontes/callscribe/pkg/models"
)

// Enqueuer submits a job to the processing queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg *queue.Message) error
}

var allowedExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true, ".ogg": true, ".flac": true,
}

// NewUploadHandler returns the handler for POST /api/v1/tasks. The response
// is sent as soon as the pending record exists; the durability barrier
// (fsync + rename), the queued transition, and the enqueue run afterwards,
// in that order, so a job is never visible to workers before its file is.
func NewUploadHandler(st store.Store, q Enqueuer, uploadDir string, maxFileSizeMB int) http.HandlerFunc {
	maxBytes := int64(maxFileSizeMB) << 20

	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				fmt.Sprintf("could not parse upload (limit %d MB)", maxFileSizeMB), nil)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "file field is required", nil)
			return
		}
		defer file.Close()

		ext := strings.ToLower(filepath.Ext(header.Filename))
		if !allowedExtensions[ext] {
			response.Error(w, http.StatusBadRequest, "UNSUPPORTED_FORMAT",
				"unsupported audio format: "+ext, nil)
			return
		}

		opts := models.TaskOptions{
			Diarization: r.FormValue("diarization") == "true",
			Timestamp:   r.FormValue("timestamp") == "true",
		}

		jobID := uuid.New()
		finalPath := filepath.Join(uploadDir, jobID.String()+ext)

		// The body must be consumed before responding; durability comes later.
		partPath, err := receiveUpload(file, finalPath)
		if err != nil {
			slog.Error("upload receive failed", "filename", header.Filename, "error", err)
			response.Error(w, http.StatusInternalServerError, "UPLOAD_FAILED", "could not store upload", nil)
			return
		}

		task := &models.TranscriptionTask{
			ID:        jobID,
			Status:    models.StatusPending,
			Filename:  header.Filename,
			AudioPath: finalPath,
			Options:   opts,
			CreatedAt: time.Now().UTC(),
		}
		if err := st.CreateTask(r.Context(), task); err != nil {
			os.Remove(partPath)
			slog.Error("task create failed", "job_id", jobID, "error", err)
			response.Error(w, http.StatusInternalServerError, "UPLOAD_FAILED", "could not create task", nil)
			return
		}

		response.Accepted(w, map[string]any{
			"job_id":   jobID,
			"status":   models.StatusPending,
			"filename": header.Filename,
		})

		go finalizeUpload(st, q, task, partPath)
	}
}

// receiveUpload streams the multipart body into a work file next to the
// final path and returns the work file's path.
func receiveUpload(src multipart.File, finalPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	partPath := finalPath + ".part"
	dst, err := os.Create(partPath)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(partPath)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(partPath)
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return partPath, nil
}

// finalizeUpload makes the file durable, flips the task to queued, and
// enqueues it. Any failure marks the task failed so it never sits in
// pending forever.
func finalizeUpload(st store.Store, q Enqueuer, task *models.TranscriptionTask, partPath string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fail := func(reason string, err error) {
		slog.Error("upload finalize failed", "job_id", task.ID, "reason", reason, "error", err)
		os.Remove(partPath)
		if uerr := st.UpdateTaskStatus(ctx, task.ID, models.StatusFailed,
			store.WithErrorMessage(reason)); uerr != nil && !errors.Is(uerr, store.ErrTerminalState) {
			slog.Error("could not mark task failed", "job_id", task.ID, "error", uerr)
		}
	}

	if err := syncFile(partPath); err != nil {
		fail("persisting upload failed", err)
		return
	}
	if err := os.Rename(partPath, task.AudioPath); err != nil {
		fail("persisting upload failed", err)
		return
	}

	fingerprint := cache.FileFingerprint(task.AudioPath)
	if err := st.UpdateTaskStatus(ctx, task.ID, models.StatusQueued,
		store.WithFingerprint(fingerprint)); err != nil {
		if errors.Is(err, store.ErrTerminalState) {
			slog.Info("task terminal before queueing, dropping upload", "job_id", task.ID)
			os.Remove(task.AudioPath)
			return
		}
		slog.Error("could not mark task queued", "job_id", task.ID, "error", err)
		return
	}

	if err := q.Enqueue(ctx, &queue.Message{
		JobID:     task.ID,
		AudioPath: task.AudioPath,
		Options:   task.Options,
	}); err != nil {
		if uerr := st.UpdateTaskStatus(ctx, task.ID, models.StatusFailed,
			store.WithErrorMessage("queueing failed: "+err.Error())); uerr != nil && !errors.Is(uerr, store.ErrTerminalState) {
			slog.Error("could not mark task failed", "job_id", task.ID, "error", uerr)
		}
		return
	}

	slog.Info("task queued", "job_id", task.ID, "audio_path", task.AudioPath)
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

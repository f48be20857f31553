package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmfontes/callscribe/internal/api/response"
	"github.com/dmfontes/callscribe/internal/store"
	"github.com/dmfontes/callscribe/pkg/models"
)

const defaultListLimit = 50

type taskStatusPayload struct {
	JobID    uuid.UUID `json:"job_id"`
	Status   string    `json:"status"`
	Progress int       `json:"progress"`
	Filename string    `json:"filename"`
	Error    *string   `json:"error,omitempty"`
}

func statusPayload(t *models.TranscriptionTask) taskStatusPayload {
	return taskStatusPayload{
		JobID:    t.ID,
		Status:   t.Status,
		Progress: t.Progress,
		Filename: t.Filename,
		Error:    t.ErrorMessage,
	}
}

// NewTaskStatusHandler returns the handler for GET /api/v1/tasks/{taskID}.
func NewTaskStatusHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, ok := fetchTask(w, r, st)
		if !ok {
			return
		}
		response.JSON(w, statusPayload(task))
	}
}

type taskResultPayload struct {
	JobID                 uuid.UUID       `json:"job_id"`
	Text                  *string         `json:"text"`
	CorrectedText         *string         `json:"corrected_text"`
	Language              *string         `json:"language"`
	DurationSeconds       *float64        `json:"duration_seconds"`
	ProcessingTimeSeconds *float64        `json:"processing_time_seconds"`
	Summary               *string         `json:"summary"`
	Topics                *string         `json:"topics"`
	ComplianceAnalysis    json.RawMessage `json:"compliance_analysis,omitempty"`
	Notes                 *string         `json:"notes,omitempty"`
}

// NewTaskResultHandler returns the handler for GET /api/v1/tasks/{taskID}/result.
// The result exists only once the task completed; earlier (and failed) tasks
// answer 409 with the current status.
func NewTaskResultHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, ok := fetchTask(w, r, st)
		if !ok {
			return
		}

		if task.Status != models.StatusCompleted {
			response.Error(w, http.StatusConflict, "TASK_NOT_COMPLETED",
				"task has no result yet", map[string]any{
					"status":   task.Status,
					"progress": task.Progress,
				})
			return
		}

		response.JSON(w, taskResultPayload{
			JobID:                 task.ID,
			Text:                  task.Text,
			CorrectedText:         task.CorrectedText,
			Language:              task.Language,
			DurationSeconds:       task.Duration,
			ProcessingTimeSeconds: task.ProcessingTime,
			Summary:               task.Summary,
			Topics:                task.Topics,
			ComplianceAnalysis:    task.Compliance,
			Notes:                 task.Notes,
		})
	}
}

const maxNotesLength = 10000

type updateNotesRequest struct {
	Notes string `json:"notes"`
}

// NewUpdateNotesHandler returns the handler for PUT /api/v1/tasks/{taskID}/notes.
// Notes are operator annotations and stay editable after the task finishes.
func NewUpdateNotesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "taskID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_ID", "task id must be a UUID", nil)
			return
		}

		var req updateNotesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON with a notes field", nil)
			return
		}
		if len(req.Notes) > maxNotesLength {
			response.Error(w, http.StatusBadRequest, "NOTES_TOO_LONG",
				"notes exceed the maximum length", map[string]any{"max_length": maxNotesLength})
			return
		}

		if err := st.UpdateTaskNotes(r.Context(), id, req.Notes); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "task not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not update notes", nil)
			return
		}

		response.JSON(w, map[string]any{"job_id": id, "notes": req.Notes})
	}
}

// NewListTasksHandler returns the handler for GET /api/v1/tasks, newest first.
func NewListTasksHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := st.ListTasks(r.Context(), defaultListLimit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not list tasks", nil)
			return
		}

		payload := make([]taskStatusPayload, 0, len(tasks))
		for _, t := range tasks {
			payload = append(payload, statusPayload(t))
		}
		response.Collection(w, payload, response.PaginationMeta{
			Page:    1,
			Limit:   defaultListLimit,
			Total:   len(payload),
			HasNext: len(payload) == defaultListLimit,
		})
	}
}

func fetchTask(w http.ResponseWriter, r *http.Request, st store.Store) (*models.TranscriptionTask, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ID", "task id must be a UUID", nil)
		return nil, false
	}

	task, err := st.GetTask(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "task not found", nil)
		return nil, false
	}
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "could not load task", nil)
		return nil, false
	}
	return task, true
}

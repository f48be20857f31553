package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending    = "pending"
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// TerminalStatus reports whether a status admits no further pipeline transitions.
func TerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// TaskOptions selects optional pipeline stages for one task.
type TaskOptions struct {
	Diarization bool `json:"diarization"`
	Timestamp   bool `json:"timestamp"`
}

// TranscriptionTask is one audio-to-transcript processing request.
// Created by the upload handler; mutated only by workers through the store.
// Version increments on every write so a worker finishing after an
// administrative force-fail loses the race instead of overwriting it.
type TranscriptionTask struct {
	ID             uuid.UUID   `db:"id"              json:"id"`
	Status         string      `db:"status"          json:"status"`
	Filename       string      `db:"filename"        json:"filename"`
	AudioPath      string      `db:"audio_path"      json:"-"`
	Fingerprint    string      `db:"fingerprint"     json:"-"`
	Progress       int         `db:"progress"        json:"progress"`
	Options        TaskOptions `db:"options"         json:"options"`
	ErrorMessage   *string     `db:"error_message"   json:"error_message,omitempty"`
	Text           *string     `db:"text"            json:"text,omitempty"`
	CorrectedText  *string     `db:"corrected_text"  json:"corrected_text,omitempty"`
	Language       *string     `db:"language"        json:"language,omitempty"`
	Duration       *float64    `db:"duration"        json:"duration_seconds,omitempty"`
	ProcessingTime *float64    `db:"processing_time" json:"processing_time_seconds,omitempty"`
	Summary        *string     `db:"summary"         json:"summary,omitempty"`
	Topics         *string     `db:"topics"          json:"topics,omitempty"`
	Compliance     []byte      `db:"compliance"      json:"compliance_analysis,omitempty"`
	Notes          *string     `db:"notes"           json:"notes,omitempty"`
	Version        int64       `db:"version"         json:"-"`
	CreatedAt      time.Time   `db:"created_at"      json:"created_at"`
	StartedAt      *time.Time  `db:"started_at"      json:"started_at,omitempty"`
	CompletedAt    *time.Time  `db:"completed_at"    json:"completed_at,omitempty"`
}

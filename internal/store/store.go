package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dmfontes/callscribe/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// ErrTerminalState is returned when an update would move a task that has
// already reached completed or failed. Workers racing an administrative
// force-fail land here instead of overwriting the record.
var ErrTerminalState = errors.New("task is in a terminal state")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateTask(ctx context.Context, task *models.TranscriptionTask) error
	GetTask(ctx context.Context, id uuid.UUID) (*models.TranscriptionTask, error)
	ListTasks(ctx context.Context, limit int) ([]*models.TranscriptionTask, error)
	UpdateTaskStatus(ctx context.Context, id uuid.UUID, status string, opts ...TaskUpdateOption) error
	UpdateTaskProgress(ctx context.Context, id uuid.UUID, progress int) error
	UpdateTaskNotes(ctx context.Context, id uuid.UUID, notes string) error
	SaveTaskResult(ctx context.Context, id uuid.UUID, result *TaskResult) error

	ListActiveRules(ctx context.Context) ([]*models.AnalysisRule, error)
}

// TaskResult carries the pipeline output persisted on successful completion.
type TaskResult struct {
	Text           string
	CorrectedText  string
	Language       string
	Duration       float64
	ProcessingTime float64
	Summary        string
	Topics         string
	Compliance     []byte
}

type taskUpdateParams struct {
	ErrorMessage *string
	Fingerprint  *string
}

type TaskUpdateOption func(*taskUpdateParams)

func WithErrorMessage(msg string) TaskUpdateOption {
	return func(p *taskUpdateParams) {
		p.ErrorMessage = &msg
	}
}

// WithFingerprint records the input descriptor once the uploaded file has
// been durably written.
func WithFingerprint(fp string) TaskUpdateOption {
	return func(p *taskUpdateParams) {
		p.Fingerprint = &fp
	}
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmfontes/callscribe/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const taskColumns = `id, status, filename, audio_path, fingerprint, progress, options,
	error_message, text, corrected_text, language, duration, processing_time,
	summary, topics, compliance, notes, version, created_at, started_at, completed_at`

func scanTask(row pgx.Row) (*models.TranscriptionTask, error) {
	var t models.TranscriptionTask
	var options []byte
	err := row.Scan(&t.ID, &t.Status, &t.Filename, &t.AudioPath, &t.Fingerprint, &t.Progress,
		&options, &t.ErrorMessage, &t.Text, &t.CorrectedText, &t.Language, &t.Duration,
		&t.ProcessingTime, &t.Summary, &t.Topics, &t.Compliance, &t.Notes, &t.Version,
		&t.CreatedAt, &t.StartedAt, &t.CompletedAt)
	if err != nil {
		return nil, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &t.Options); err != nil {
			return nil, fmt.Errorf("decode task options: %w", err)
		}
	}
	return &t, nil
}

// --- Tasks ---

func (s *PostgresStore) CreateTask(ctx context.Context, task *models.TranscriptionTask) error {
	options, err := json.Marshal(task.Options)
	if err != nil {
		return fmt.Errorf("encode task options: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO transcription_tasks (id, status, filename, audio_path, fingerprint, options, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		task.ID, task.Status, task.Filename, task.AudioPath, task.Fingerprint, options, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id uuid.UUID) (*models.TranscriptionTask, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM transcription_tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, limit int) ([]*models.TranscriptionTask, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM transcription_tasks ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.TranscriptionTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTaskStatus transitions a task. Transitions out of a terminal state are
// rejected with ErrTerminalState; every successful write bumps the version.
// Moving to processing records started_at; moving to a terminal state records
// completed_at.
func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, id uuid.UUID, status string, opts ...TaskUpdateOption) error {
	var params taskUpdateParams
	for _, opt := range opts {
		opt(&params)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE transcription_tasks SET
		   status = $2,
		   error_message = COALESCE($3, error_message),
		   fingerprint = COALESCE($4, fingerprint),
		   started_at = CASE WHEN $2 = 'processing' THEN NOW() ELSE started_at END,
		   completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN NOW() ELSE completed_at END,
		   version = version + 1
		 WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
		id, status, params.ErrorMessage, params.Fingerprint)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetTask(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrTerminalState
	}
	return nil
}

// UpdateTaskProgress records pipeline progress. GREATEST keeps progress
// monotonically non-decreasing even under concurrent writers; only tasks in
// processing accept progress.
func (s *PostgresStore) UpdateTaskProgress(ctx context.Context, id uuid.UUID, progress int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE transcription_tasks SET
		   progress = GREATEST(progress, $2),
		   version = version + 1
		 WHERE id = $1 AND status = 'processing'`,
		id, progress)
	if err != nil {
		return fmt.Errorf("update task progress: %w", err)
	}
	return nil
}

// UpdateTaskNotes replaces a task's operator notes. Notes stay editable after
// the task reaches a terminal state.
func (s *PostgresStore) UpdateTaskNotes(ctx context.Context, id uuid.UUID, notes string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transcription_tasks SET
		   notes = $2,
		   version = version + 1
		 WHERE id = $1`,
		id, notes)
	if err != nil {
		return fmt.Errorf("update task notes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveTaskResult persists the pipeline output and marks the task completed.
func (s *PostgresStore) SaveTaskResult(ctx context.Context, id uuid.UUID, result *TaskResult) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transcription_tasks SET
		   status = 'completed',
		   progress = 100,
		   text = $2,
		   corrected_text = $3,
		   language = $4,
		   duration = $5,
		   processing_time = $6,
		   summary = $7,
		   topics = $8,
		   compliance = $9,
		   completed_at = NOW(),
		   version = version + 1
		 WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
		id, result.Text, result.CorrectedText, result.Language, result.Duration,
		result.ProcessingTime, result.Summary, result.Topics, result.Compliance)
	if err != nil {
		return fmt.Errorf("save task result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetTask(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrTerminalState
	}
	return nil
}

// --- Analysis rules ---

func (s *PostgresStore) ListActiveRules(ctx context.Context) ([]*models.AnalysisRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, category, keywords, is_active, created_at, updated_at
		 FROM analysis_rules WHERE is_active = TRUE ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.AnalysisRule
	for rows.Next() {
		var r models.AnalysisRule
		if err := rows.Scan(&r.ID, &r.Name, &r.Category, &r.Keywords, &r.IsActive,
			&r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan analysis rule: %w", err)
		}
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}

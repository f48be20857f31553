package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmfontes/callscribe/internal/notify"
	"github.com/dmfontes/callscribe/internal/pipeline"
	"github.com/dmfontes/callscribe/internal/queue"
	"github.com/dmfontes/callscribe/internal/store"
	"github.com/dmfontes/callscribe/pkg/models"
)

type fakeStore struct {
	mu            sync.Mutex
	statuses      []string
	progress      []int
	result        *store.TaskResult
	errorMessages []string
	statusErr     error
	rules         []*models.AnalysisRule
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) CreateTask(context.Context, *models.TranscriptionTask) error {
	return nil
}
func (f *fakeStore) GetTask(context.Context, uuid.UUID) (*models.TranscriptionTask, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) ListTasks(context.Context, int) ([]*models.TranscriptionTask, error) {
	return nil, nil
}

func (f *fakeStore) UpdateTaskStatus(_ context.Context, _ uuid.UUID, status string, opts ...store.TaskUpdateOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeStore) UpdateTaskProgress(_ context.Context, _ uuid.UUID, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, progress)
	return nil
}

func (f *fakeStore) UpdateTaskNotes(context.Context, uuid.UUID, string) error { return nil }

func (f *fakeStore) SaveTaskResult(_ context.Context, _ uuid.UUID, result *store.TaskResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return f.statusErr
	}
	// Mirror PostgresStore.SaveTaskResult, which atomically marks the task
	// completed alongside persisting the result.
	f.statuses = append(f.statuses, models.StatusCompleted)
	f.result = result
	return nil
}

func (f *fakeStore) ListActiveRules(context.Context) ([]*models.AnalysisRule, error) {
	return f.rules, nil
}

type fakeSource struct {
	mu     sync.Mutex
	jobs   []*queue.Message
	cancel context.CancelFunc
}

func (f *fakeSource) Dequeue(ctx context.Context, _ time.Duration) (*queue.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobs) == 0 {
		f.cancel()
		return nil, false, ctx.Err()
	}
	msg := f.jobs[0]
	f.jobs = f.jobs[1:]
	return msg, true, nil
}

type fakeProcessor struct {
	mu     sync.Mutex
	calls  int
	err    error
	result *pipeline.Result
}

func (f *fakeProcessor) Process(_ context.Context, _ string, _ models.TaskOptions, _ []models.AnalysisRule, onProgress func(int)) (*pipeline.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	onProgress(50)
	onProgress(100)
	return f.result, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (f *fakePublisher) Publish(_ context.Context, event notify.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

func audioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "call.wav")
	require.NoError(t, os.WriteFile(path, []byte("audio"), 0o644))
	return path
}

func newTestWorker(st store.Store, src JobSource, proc Processor, pub Publisher, maxJobs int) *Worker {
	w := New(st, src, proc, pub, 3500, maxJobs)
	w.residentMB = func() (float64, error) { return 100, nil }
	return w
}

func runWorker(t *testing.T, w *Worker, src *fakeSource) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	src.cancel = cancel
	require.NoError(t, w.Run(ctx))
}

func TestWorker_ProcessesJob(t *testing.T) {
	st := &fakeStore{}
	src := &fakeSource{jobs: []*queue.Message{{JobID: uuid.New(), AudioPath: audioFile(t)}}}
	proc := &fakeProcessor{result: &pipeline.Result{Text: "hello", Language: "en", Duration: 8}}
	pub := &fakePublisher{}

	runWorker(t, newTestWorker(st, src, proc, pub, 1), src)

	assert.Equal(t, []string{models.StatusProcessing, models.StatusCompleted}, st.statuses)
	assert.Equal(t, []int{50, 100}, st.progress)
	require.NotNil(t, st.result)
	assert.Equal(t, "hello", st.result.Text)

	types := pub.types()
	require.Len(t, types, 5)
	assert.Equal(t, notify.EventStatusUpdate, types[0])
	assert.Equal(t, notify.EventProgressUpdate, types[1])
	assert.Equal(t, notify.EventProgressUpdate, types[2])
	assert.Equal(t, notify.EventStatusUpdate, types[3])
	assert.Equal(t, notify.EventCompletion, types[4])
}

func TestWorker_MemoryCeilingFailsJobWithoutProcessing(t *testing.T) {
	st := &fakeStore{}
	src := &fakeSource{jobs: []*queue.Message{{JobID: uuid.New(), AudioPath: audioFile(t)}}}
	proc := &fakeProcessor{result: &pipeline.Result{}}
	pub := &fakePublisher{}

	w := newTestWorker(st, src, proc, pub, 1)
	w.residentMB = func() (float64, error) { return 4000, nil }
	runWorker(t, w, src)

	assert.Equal(t, 0, proc.calls)
	assert.Equal(t, []string{models.StatusFailed}, st.statuses)
	require.Len(t, pub.events, 1)
	assert.Contains(t, pub.events[0].Error, "out of memory")
}

func TestWorker_MissingAudioFileFailsJob(t *testing.T) {
	st := &fakeStore{}
	src := &fakeSource{jobs: []*queue.Message{{JobID: uuid.New(), AudioPath: "/gone/call.wav"}}}
	proc := &fakeProcessor{result: &pipeline.Result{}}
	pub := &fakePublisher{}

	runWorker(t, newTestWorker(st, src, proc, pub, 1), src)

	assert.Equal(t, 0, proc.calls)
	assert.Equal(t, []string{models.StatusFailed}, st.statuses)
	assert.Contains(t, pub.events[0].Error, "audio file not found")
}

func TestWorker_TerminalJobIsSkipped(t *testing.T) {
	st := &fakeStore{statusErr: store.ErrTerminalState}
	src := &fakeSource{jobs: []*queue.Message{{JobID: uuid.New(), AudioPath: audioFile(t)}}}
	proc := &fakeProcessor{result: &pipeline.Result{}}
	pub := &fakePublisher{}

	runWorker(t, newTestWorker(st, src, proc, pub, 1), src)

	assert.Equal(t, 0, proc.calls)
	assert.Empty(t, pub.events)
}

func TestWorker_ProcessorErrorFailsJob(t *testing.T) {
	st := &fakeStore{}
	src := &fakeSource{jobs: []*queue.Message{{JobID: uuid.New(), AudioPath: audioFile(t)}}}
	proc := &fakeProcessor{err: errors.New("transcribe: model crashed")}
	pub := &fakePublisher{}

	runWorker(t, newTestWorker(st, src, proc, pub, 1), src)

	assert.Equal(t, []string{models.StatusProcessing, models.StatusFailed}, st.statuses)
	last := pub.events[len(pub.events)-1]
	assert.Equal(t, notify.EventStatusUpdate, last.Type)
	assert.Contains(t, last.Error, "model crashed")
}

// shutdownProcessor cancels the worker's run context mid-job, simulating a
// termination signal arriving while a job is in flight.
type shutdownProcessor struct {
	cancel context.CancelFunc
	ctxErr error
	result *pipeline.Result
}

func (f *shutdownProcessor) Process(ctx context.Context, _ string, _ models.TaskOptions, _ []models.AnalysisRule, onProgress func(int)) (*pipeline.Result, error) {
	f.cancel()
	f.ctxErr = ctx.Err()
	onProgress(100)
	return f.result, nil
}

func TestWorker_TerminationSignalFinishesInFlightJob(t *testing.T) {
	st := &fakeStore{}
	src := &fakeSource{jobs: []*queue.Message{{JobID: uuid.New(), AudioPath: audioFile(t)}}}
	pub := &fakePublisher{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src.cancel = cancel
	proc := &shutdownProcessor{cancel: cancel, result: &pipeline.Result{Text: "finished after signal"}}

	w := newTestWorker(st, src, proc, pub, 1)
	require.NoError(t, w.Run(ctx))

	// The in-flight job must not observe the cancellation and must complete.
	assert.NoError(t, proc.ctxErr)
	assert.Equal(t, []string{models.StatusProcessing, models.StatusCompleted}, st.statuses)
	require.NotNil(t, st.result)
	assert.Equal(t, "finished after signal", st.result.Text)
}

func TestWorker_JobBudgetStopsLoop(t *testing.T) {
	path := audioFile(t)
	st := &fakeStore{}
	src := &fakeSource{jobs: []*queue.Message{
		{JobID: uuid.New(), AudioPath: path},
		{JobID: uuid.New(), AudioPath: path},
		{JobID: uuid.New(), AudioPath: path},
	}}
	proc := &fakeProcessor{result: &pipeline.Result{}}

	runWorker(t, newTestWorker(st, src, proc, &fakePublisher{}, 2), src)

	assert.Equal(t, 2, proc.calls)
	assert.Len(t, src.jobs, 1)
}

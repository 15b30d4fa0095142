package task

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTaskStore records every persistence call so tests can assert the
// persist-before-queue ordering and status transitions.
type mockTaskStore struct {
	mu         sync.Mutex
	saved      []uuid.UUID
	statuses   map[uuid.UUID][]TaskStatus
	messages   map[uuid.UUID]string
	pending    []*Record
	processing []*Record
	saveErr    error
}

func newMockTaskStore() *mockTaskStore {
	return &mockTaskStore{
		statuses: make(map[uuid.UUID][]TaskStatus),
		messages: make(map[uuid.UUID]string),
	}
}

func (m *mockTaskStore) SaveTask(ctx context.Context, task Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, task.ID())
	return nil
}

func (m *mockTaskStore) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statuses[taskID] = append(m.statuses[taskID], status)
	m.messages[taskID] = errorMsg
	return nil
}

func (m *mockTaskStore) GetPendingTasks(ctx context.Context) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, nil
}

func (m *mockTaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processing, nil
}

func (m *mockTaskStore) WithTx(tx *sql.Tx) TaskStore { return m }

func (m *mockTaskStore) statusHistory(taskID uuid.UUID) []TaskStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := make([]TaskStatus, len(m.statuses[taskID]))
	copy(history, m.statuses[taskID])
	return history
}

func (m *mockTaskStore) lastStatus(taskID uuid.UUID) TaskStatus {
	history := m.statusHistory(taskID)
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1]
}

// testTask is a minimal Task whose Execute behavior is injectable.
type testTask struct {
	id      uuid.UUID
	execute func(ctx context.Context) error
}

func newTestTask(execute func(ctx context.Context) error) *testTask {
	return &testTask{id: uuid.New(), execute: execute}
}

func (t *testTask) ID() uuid.UUID      { return t.id }
func (t *testTask) Type() string       { return "test_task" }
func (t *testTask) Payload() []byte    { return []byte(`{}`) }
func (t *testTask) Status() TaskStatus { return TaskStatusPending }

func (t *testTask) Execute(ctx context.Context) error {
	if t.execute != nil {
		return t.execute(ctx)
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:            2,
		QueueSize:              10,
		StuckTaskAge:           time.Minute,
		StuckTaskCheckInterval: time.Hour,
	}
}

func TestDefaultTaskRunnerConfig(t *testing.T) {
	cfg := DefaultTaskRunnerConfig()

	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, 100, cfg.QueueSize)
	assert.Equal(t, 30*time.Minute, cfg.StuckTaskAge)
	assert.Equal(t, 5*time.Minute, cfg.StuckTaskCheckInterval)
}

func TestSubmit_PersistsBeforeQueueing(t *testing.T) {
	store := newMockTaskStore()
	runner := NewTaskRunner(store, nil, testConfig(), discardLogger())

	task := newTestTask(nil)
	require.NoError(t, runner.Submit(context.Background(), task))

	assert.Equal(t, []uuid.UUID{task.ID()}, store.saved)
}

func TestSubmit_SaveFailure(t *testing.T) {
	store := newMockTaskStore()
	store.saveErr = errors.New("database unavailable")
	runner := NewTaskRunner(store, nil, testConfig(), discardLogger())

	err := runner.Submit(context.Background(), newTestTask(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save task")
}

func TestSubmit_QueueFull(t *testing.T) {
	store := newMockTaskStore()
	cfg := testConfig()
	cfg.QueueSize = 1
	runner := NewTaskRunner(store, nil, cfg, discardLogger())

	// The runner is never started, so the first task fills the queue.
	require.NoError(t, runner.Submit(context.Background(), newTestTask(nil)))

	err := runner.Submit(context.Background(), newTestTask(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue is full")
}

func TestRunner_ProcessesTask(t *testing.T) {
	store := newMockTaskStore()
	runner := NewTaskRunner(store, nil, testConfig(), discardLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	executed := make(chan struct{})
	task := newTestTask(func(ctx context.Context) error {
		close(executed)
		return nil
	})

	require.NoError(t, runner.Submit(context.Background(), task))

	select {
	case <-executed:
	case <-time.After(5 * time.Second):
		t.Fatal("task was not executed")
	}

	require.Eventually(t, func() bool {
		return store.lastStatus(task.ID()) == TaskStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []TaskStatus{TaskStatusProcessing, TaskStatusCompleted}, store.statusHistory(task.ID()))
}

func TestRunner_MarksFailedTask(t *testing.T) {
	store := newMockTaskStore()
	runner := NewTaskRunner(store, nil, testConfig(), discardLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	task := newTestTask(func(ctx context.Context) error {
		return errors.New("prime exploded")
	})

	require.NoError(t, runner.Submit(context.Background(), task))

	require.Eventually(t, func() bool {
		return store.lastStatus(task.ID()) == TaskStatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, "prime exploded", store.messages[task.ID()])
}

func TestRecover_RequeuesUnfinishedRecords(t *testing.T) {
	store := newMockTaskStore()

	pendingID := uuid.New()
	processingID := uuid.New()
	store.pending = []*Record{{ID: pendingID, Type: "test_task", Status: TaskStatusPending}}
	store.processing = []*Record{{ID: processingID, Type: "test_task", Status: TaskStatusProcessing}}

	var mu sync.Mutex
	executed := make(map[uuid.UUID]bool)

	rehydrate := func(rec *Record) (Task, error) {
		id := rec.ID
		return &testTask{id: id, execute: func(ctx context.Context) error {
			mu.Lock()
			executed[id] = true
			mu.Unlock()
			return nil
		}}, nil
	}

	runner := NewTaskRunner(store, rehydrate, testConfig(), discardLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return executed[pendingID] && executed[processingID]
	}, 5*time.Second, 10*time.Millisecond)

	// The interrupted task is reset to pending before being requeued.
	history := store.statusHistory(processingID)
	require.NotEmpty(t, history)
	assert.Equal(t, TaskStatusPending, history[0])
}

func TestRecover_RehydrationFailureMarksTaskFailed(t *testing.T) {
	store := newMockTaskStore()

	recID := uuid.New()
	store.pending = []*Record{{ID: recID, Type: "unknown_type", Status: TaskStatusPending}}

	rehydrate := func(rec *Record) (Task, error) {
		return nil, errors.New("unknown task type")
	}

	runner := NewTaskRunner(store, rehydrate, testConfig(), discardLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	require.Eventually(t, func() bool {
		return store.lastStatus(recID) == TaskStatusFailed
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRecover_NilRehydrateMarksTaskFailed(t *testing.T) {
	store := newMockTaskStore()

	recID := uuid.New()
	store.pending = []*Record{{ID: recID, Type: "test_task", Status: TaskStatusPending}}

	runner := NewTaskRunner(store, nil, testConfig(), discardLogger())
	require.NoError(t, runner.Start())
	defer runner.Stop()

	require.Eventually(t, func() bool {
		return store.lastStatus(recID) == TaskStatusFailed
	}, 5*time.Second, 10*time.Millisecond)
}

package task

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task type constants
const (
	// TaskTypePrimeScope represents the task type for recomputing the
	// materialized configuration of a single scope
	TaskTypePrimeScope = "prime_scope"
)

// Task represents a unit of background work to be processed
type Task interface {
	// ID returns the task's unique identifier
	ID() uuid.UUID

	// Type returns the task type identifier
	Type() string

	// Payload returns the task data as a byte slice
	Payload() []byte

	// Status returns the current task status
	Status() TaskStatus

	// Execute runs the task logic
	Execute(ctx context.Context) error
}

// Record is the persisted form of a task. Recovered records carry no
// behavior; a RehydrateFunc turns them back into executable tasks.
type Record struct {
	ID           uuid.UUID
	Type         string
	Payload      []byte
	Status       TaskStatus
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RehydrateFunc rebuilds an executable Task from a stored record after a
// restart. Implementations dispatch on rec.Type and decode rec.Payload.
type RehydrateFunc func(rec *Record) (Task, error)

// TaskStore defines the interface for persisting tasks
type TaskStore interface {
	// SaveTask persists a task to the database
	SaveTask(ctx context.Context, task Task) error

	// UpdateTaskStatus updates the status of a task
	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error

	// GetPendingTasks retrieves all task records with "pending" status
	GetPendingTasks(ctx context.Context) ([]*Record, error)

	// GetProcessingTasks retrieves task records with "processing" status.
	// If olderThan is non-zero, only returns tasks that have been in this
	// state longer than the specified duration
	GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]*Record, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}

package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNilPrimer = errors.New("primer cannot be nil")
	ErrNilLogger = errors.New("logger cannot be nil")
)

// Primer defines the interface for recomputing the materialized
// configuration of a scope. The zero workspace ID addresses the system
// scope.
type Primer interface {
	PrimeWorkspace(ctx context.Context, workspaceID uuid.UUID) error
}

// primeScopePayload represents the serialized data stored in the task
type primeScopePayload struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
}

// PrimeScopeTask implements the Task interface for recomputing the
// resolved configuration of one scope in the background.
type PrimeScopeTask struct {
	id          uuid.UUID
	workspaceID uuid.UUID
	primer      Primer
	logger      *slog.Logger
	status      TaskStatus
}

// NewPrimeScopeTask creates a new prime task for the given workspace
// (uuid.Nil for the system scope).
func NewPrimeScopeTask(workspaceID uuid.UUID, primer Primer, logger *slog.Logger) (*PrimeScopeTask, error) {
	if primer == nil {
		return nil, ErrNilPrimer
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	return &PrimeScopeTask{
		id:          uuid.New(),
		workspaceID: workspaceID,
		primer:      primer,
		logger:      logger.With("task_type", TaskTypePrimeScope, "workspace_id", workspaceID),
		status:      TaskStatusPending,
	}, nil
}

// RehydratePrimeScopeTask returns a RehydrateFunc that rebuilds prime
// tasks from stored records after a restart.
func RehydratePrimeScopeTask(primer Primer, logger *slog.Logger) RehydrateFunc {
	return func(rec *Record) (Task, error) {
		if rec.Type != TaskTypePrimeScope {
			return nil, fmt.Errorf("unknown task type %q", rec.Type)
		}

		var payload primeScopePayload
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode prime task payload: %w", err)
		}

		t, err := NewPrimeScopeTask(payload.WorkspaceID, primer, logger)
		if err != nil {
			return nil, err
		}

		// Keep the stored identity so status updates land on the same row
		t.id = rec.ID
		t.status = rec.Status
		return t, nil
	}
}

// ID returns the task's unique identifier
func (t *PrimeScopeTask) ID() uuid.UUID {
	return t.id
}

// Type returns the task type identifier
func (t *PrimeScopeTask) Type() string {
	return TaskTypePrimeScope
}

// Payload returns the task data as a byte slice
func (t *PrimeScopeTask) Payload() []byte {
	payload := primeScopePayload{
		WorkspaceID: t.workspaceID,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.logger.Error("failed to marshal task payload", "error", err)
		return []byte{}
	}

	return data
}

// Status returns the current task status
func (t *PrimeScopeTask) Status() TaskStatus {
	return t.status
}

// Execute recomputes the scope's materialized configuration.
func (t *PrimeScopeTask) Execute(ctx context.Context) error {
	t.status = TaskStatusProcessing
	t.logger.Info("starting scope prime task")

	if err := ctx.Err(); err != nil {
		t.status = TaskStatusFailed
		return fmt.Errorf("task cancelled by context: %w", err)
	}

	if err := t.primer.PrimeWorkspace(ctx, t.workspaceID); err != nil {
		t.status = TaskStatusFailed
		t.logger.Error("scope prime failed", "error", err)
		return fmt.Errorf("failed to prime scope: %w", err)
	}

	t.status = TaskStatusCompleted
	t.logger.Info("scope prime task completed")
	return nil
}

package settings

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/phrazzld/strata/internal/service/materialize"
	"github.com/phrazzld/strata/internal/task"
)

// PrimeTrigger schedules a re-prime of one scope after a write.
// uuid.Nil addresses the system scope.
type PrimeTrigger interface {
	TriggerPrime(ctx context.Context, workspaceID uuid.UUID) error
}

// InlinePrimeTrigger primes synchronously in the caller's request. Simple
// and immediately consistent, at the cost of write latency.
type InlinePrimeTrigger struct {
	primer *materialize.Primer
}

// NewInlinePrimeTrigger creates a trigger that primes inline.
func NewInlinePrimeTrigger(primer *materialize.Primer) *InlinePrimeTrigger {
	return &InlinePrimeTrigger{primer: primer}
}

// TriggerPrime implements PrimeTrigger.
func (t *InlinePrimeTrigger) TriggerPrime(ctx context.Context, workspaceID uuid.UUID) error {
	return t.primer.PrimeWorkspace(ctx, workspaceID)
}

// AsyncPrimeTrigger enqueues a persistent background task instead of
// priming inline. Reads stay stale until a worker picks the task up; that
// staleness window is the documented consistency contract.
type AsyncPrimeTrigger struct {
	runner *task.TaskRunner
	primer task.Primer
	logger *slog.Logger
}

// NewAsyncPrimeTrigger creates a trigger backed by the task runner.
func NewAsyncPrimeTrigger(runner *task.TaskRunner, primer task.Primer, logger *slog.Logger) *AsyncPrimeTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncPrimeTrigger{runner: runner, primer: primer, logger: logger}
}

// TriggerPrime implements PrimeTrigger.
func (t *AsyncPrimeTrigger) TriggerPrime(ctx context.Context, workspaceID uuid.UUID) error {
	primeTask, err := task.NewPrimeScopeTask(workspaceID, t.primer, t.logger)
	if err != nil {
		return fmt.Errorf("failed to create prime task: %w", err)
	}

	if err := t.runner.Submit(ctx, primeTask); err != nil {
		return fmt.Errorf("failed to enqueue prime task: %w", err)
	}

	return nil
}

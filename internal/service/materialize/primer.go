// Package materialize implements the prime pass: running the resolver
// over the full cross-product of a scope's channels and keys and writing
// the results into the materialized read table.
package materialize

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/phrazzld/strata/internal/service/resolution"
	"github.com/phrazzld/strata/internal/store"
)

// Primer recomputes the materialized configuration for scopes. Each
// workspace is primed inside one transaction so readers never observe a
// half-primed scope; priming different workspaces is independent and runs
// concurrently in PrimeAll.
type Primer struct {
	db       *sql.DB
	resolver *resolution.Resolver
	resolved store.ResolvedStore
	channels store.ChannelStore
	profiles store.ProfileStore
	workers  int
	logger   *slog.Logger
	metrics  *Metrics
}

// NewPrimer creates a Primer. workers bounds the per-workspace concurrency
// of PrimeAll; values below 1 are clamped to 1. metrics may be nil.
func NewPrimer(
	db *sql.DB,
	resolver *resolution.Resolver,
	resolved store.ResolvedStore,
	channels store.ChannelStore,
	profiles store.ProfileStore,
	workers int,
	logger *slog.Logger,
	metrics *Metrics,
) *Primer {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Primer{
		db:       db,
		resolver: resolver,
		resolved: resolved,
		channels: channels,
		profiles: profiles,
		workers:  workers,
		logger:   logger.With(slog.String("component", "primer")),
		metrics:  metrics,
	}
}

// PrimeWorkspace recomputes and atomically replaces the resolved entries
// for one workspace. uuid.Nil addresses the system scope. The pass is
// idempotent: rerunning it with no intervening writes produces the same
// rows, so an interrupted prime is safely retried by running it again.
func (p *Primer) PrimeWorkspace(ctx context.Context, workspaceID uuid.UUID) error {
	scope := "workspace"
	var scopePtr *uuid.UUID
	if workspaceID == uuid.Nil {
		scope = "system"
	} else {
		id := workspaceID
		scopePtr = &id
	}

	start := time.Now()

	entries, err := p.resolver.ResolveScope(ctx, scopePtr)
	if err != nil {
		p.metrics.observe(scope, time.Since(start).Seconds(), 0, err)
		return fmt.Errorf("failed to resolve scope: %w", err)
	}

	// Clear-then-upsert inside one transaction: stale rows for deleted
	// keys or channels disappear, and readers see the old state or the
	// new one, never a mix.
	err = store.RunInTransaction(ctx, p.db, func(ctx context.Context, tx *sql.Tx) error {
		resolved := p.resolved.WithTx(tx)

		if err := resolved.ClearWorkspace(ctx, workspaceID); err != nil {
			return fmt.Errorf("failed to clear workspace entries: %w", err)
		}

		if err := resolved.UpsertBatch(ctx, entries); err != nil {
			return fmt.Errorf("failed to write resolved entries: %w", err)
		}

		return nil
	})

	p.metrics.observe(scope, time.Since(start).Seconds(), len(entries), err)

	if err != nil {
		p.logger.Error("prime failed",
			slog.String("workspace_id", workspaceID.String()),
			slog.String("error", err.Error()))
		return err
	}

	p.logger.Info("scope primed",
		slog.String("workspace_id", workspaceID.String()),
		slog.Int("entries", len(entries)),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// PrimeSystem recomputes the system scope only.
func (p *Primer) PrimeSystem(ctx context.Context) error {
	return p.PrimeWorkspace(ctx, uuid.Nil)
}

// PrimeAll recomputes the system scope and every known workspace.
// Workspaces prime concurrently, bounded by the configured worker count,
// each owning its own transaction. A failed workspace does not stop the
// others; the first error is returned after all passes finish.
func (p *Primer) PrimeAll(ctx context.Context) error {
	workspaceIDs, err := p.workspaceIDs(ctx)
	if err != nil {
		return err
	}

	p.logger.Info("priming all scopes", slog.Int("workspaces", len(workspaceIDs)))

	// System scope first: workspace resolution falls back onto it
	if err := p.PrimeSystem(ctx); err != nil {
		return fmt.Errorf("failed to prime system scope: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, workspaceID := range workspaceIDs {
		id := workspaceID
		g.Go(func() error {
			if err := p.PrimeWorkspace(gctx, id); err != nil {
				return fmt.Errorf("failed to prime workspace %s: %w", id, err)
			}
			return nil
		})
	}

	return g.Wait()
}

// LastPrimedAt returns when a workspace's entries were last computed, or
// the zero time if it has never been primed. uuid.Nil addresses the
// system scope.
func (p *Primer) LastPrimedAt(ctx context.Context, workspaceID uuid.UUID) (time.Time, error) {
	return p.resolved.LastComputedAt(ctx, workspaceID)
}

// workspaceIDs enumerates every workspace that owns a profile or a
// channel; either is enough to give the workspace resolvable state.
func (p *Primer) workspaceIDs(ctx context.Context) ([]uuid.UUID, error) {
	fromProfiles, err := p.profiles.ListWorkspaceIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list profile workspaces: %w", err)
	}

	fromChannels, err := p.channels.ListWorkspaceIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel workspaces: %w", err)
	}

	seen := make(map[uuid.UUID]bool, len(fromProfiles)+len(fromChannels))
	var ids []uuid.UUID
	for _, id := range fromProfiles {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range fromChannels {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	return ids, nil
}

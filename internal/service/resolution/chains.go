package resolution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/strata/internal/domain"
	"github.com/phrazzld/strata/internal/store"
)

// channelChain walks a channel's parent pointers and returns the
// inheritance chain, most specific first. Parents are resolved against the
// byID map; a parent missing from the map ends the chain.
//
// The data is admin-mutable and will occasionally end up cyclic, so the
// walk carries a visited set. On a cycle it logs a structured error once
// and returns the chain collected so far instead of looping or failing:
// configuration must keep serving even with a corrupted parent pointer.
func channelChain(log *slog.Logger, start *domain.Channel, byID map[uuid.UUID]*domain.Channel) []*domain.Channel {
	if start == nil {
		return nil
	}

	chain := []*domain.Channel{start}
	visited := map[uuid.UUID]bool{start.ID: true}

	current := start
	for current.ParentID != nil {
		parentID := *current.ParentID

		if visited[parentID] {
			log.Error("circular reference detected in channel inheritance chain",
				slog.String("channel_id", current.ID.String()),
				slog.String("parent_id", parentID.String()))
			break
		}

		parent, ok := byID[parentID]
		if !ok {
			break
		}

		visited[parentID] = true
		chain = append(chain, parent)
		current = parent
	}

	return chain
}

// chainContainsCode reports whether a channel with the given code appears
// anywhere in the chain.
func chainContainsCode(chain []*domain.Channel, code string) bool {
	for _, ch := range chain {
		if ch.Code == code {
			return true
		}
	}
	return false
}

// profileChain builds the ordered list of profiles applicable to a
// workspace: the workspace's own profiles by priority descending, each
// expanded through its parent-profile chain, then the system profiles the
// same way. A nil workspaceID yields the system chain only.
//
// Parent expansion carries the same visited-set discipline as channels; a
// cyclic parent pointer is logged once and the chain truncated there.
func profileChain(
	ctx context.Context,
	log *slog.Logger,
	profiles store.ProfileStore,
	workspaceID *uuid.UUID,
) ([]*domain.Profile, error) {
	var chain []*domain.Profile
	visited := make(map[uuid.UUID]bool)

	appendWithParents := func(profile *domain.Profile) error {
		current := profile
		for current != nil {
			if visited[current.ID] {
				log.Error("circular reference detected in profile inheritance chain",
					slog.String("profile_id", current.ID.String()))
				return nil
			}

			visited[current.ID] = true
			chain = append(chain, current)

			if current.ParentProfileID == nil {
				return nil
			}

			parent, err := profiles.GetByID(ctx, *current.ParentProfileID)
			if err != nil {
				if store.IsNotFoundError(err) {
					// Dangling parent pointer, end the chain here
					return nil
				}
				return fmt.Errorf("failed to load parent profile: %w", err)
			}

			current = parent
		}
		return nil
	}

	if workspaceID != nil {
		scoped, err := profiles.ListForScope(ctx, domain.ScopeWorkspace, workspaceID)
		if err != nil {
			return nil, fmt.Errorf("failed to list workspace profiles: %w", err)
		}
		for _, profile := range scoped {
			if err := appendWithParents(profile); err != nil {
				return nil, err
			}
		}
	}

	system, err := profiles.ListForScope(ctx, domain.ScopeSystem, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list system profiles: %w", err)
	}
	for _, profile := range system {
		if err := appendWithParents(profile); err != nil {
			return nil, err
		}
	}

	return chain, nil
}

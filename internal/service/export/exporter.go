// Package export serializes resolved configuration to JSON or YAML for
// backup and migration. It consumes the materialized rows; no resolution
// logic lives here.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/phrazzld/strata/internal/domain"
	"github.com/phrazzld/strata/internal/store"
)

// Format identifies an export serialization format.
type Format string

// Supported export formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// maskedValue replaces sensitive values in exports. Sensitive keys are
// masked whole, never partially revealed.
const maskedValue = "********"

// Options controls what an export contains.
type Options struct {
	// WorkspaceID selects the scope; nil exports the system scope.
	WorkspaceID *uuid.UUID

	// Category filters to keys of one category when non-empty.
	Category string

	// ConfiguredOnly drops virtual (default-only) entries.
	ConfiguredOnly bool

	// IncludeSensitive exports sensitive values in the clear. Off by
	// default; sensitive values are masked.
	IncludeSensitive bool

	// IncludeKeyDefinitions embeds the key registry in the document.
	// Defaults to true via DefaultOptions.
	IncludeKeyDefinitions bool
}

// DefaultOptions returns the standard export options.
func DefaultOptions() Options {
	return Options{IncludeKeyDefinitions: true}
}

// Entry is one exported configuration value.
type Entry struct {
	Key       string    `json:"key" yaml:"key"`
	Channel   string    `json:"channel,omitempty" yaml:"channel,omitempty"`
	Value     any       `json:"value" yaml:"value"`
	Type      string    `json:"type" yaml:"type"`
	Locked    bool      `json:"locked,omitempty" yaml:"locked,omitempty"`
	Virtual   bool      `json:"virtual,omitempty" yaml:"virtual,omitempty"`
	Sensitive bool      `json:"sensitive,omitempty" yaml:"sensitive,omitempty"`
	Masked    bool      `json:"masked,omitempty" yaml:"masked,omitempty"`
	Computed  time.Time `json:"computed_at" yaml:"computed_at"`
}

// KeyDefinition is the exported form of a registry key.
type KeyDefinition struct {
	Code        string `json:"code" yaml:"code"`
	Type        string `json:"type" yaml:"type"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
	Sensitive   bool   `json:"sensitive,omitempty" yaml:"sensitive,omitempty"`
}

// Document is the full export payload.
type Document struct {
	Workspace   string          `json:"workspace,omitempty" yaml:"workspace,omitempty"`
	GeneratedAt time.Time       `json:"generated_at" yaml:"generated_at"`
	Entries     []Entry         `json:"entries" yaml:"entries"`
	Keys        []KeyDefinition `json:"keys,omitempty" yaml:"keys,omitempty"`
}

// Exporter reads materialized configuration and serializes it.
type Exporter struct {
	resolved store.ResolvedStore
	keys     store.KeyStore
	channels store.ChannelStore
	logger   *slog.Logger
}

// NewExporter creates an Exporter.
// If logger is nil, a default logger will be used.
func NewExporter(
	resolved store.ResolvedStore,
	keys store.KeyStore,
	channels store.ChannelStore,
	logger *slog.Logger,
) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Exporter{
		resolved: resolved,
		keys:     keys,
		channels: channels,
		logger:   logger.With(slog.String("component", "exporter")),
	}
}

// Collect gathers the export entries for a scope, applying category,
// configured-only and sensitivity filtering. The API list endpoint and the
// CLI use this directly.
func (e *Exporter) Collect(ctx context.Context, opts Options) ([]Entry, error) {
	keys, err := e.keys.List(ctx, opts.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	keyByCode := make(map[string]*domain.Key, len(keys))
	for _, key := range keys {
		keyByCode[key.Code] = key
	}

	scope := uuid.Nil
	if opts.WorkspaceID != nil {
		scope = *opts.WorkspaceID
	}

	rows, err := e.resolved.ListScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list resolved entries: %w", err)
	}

	channelCodes, err := e.channelCodes(ctx, opts.WorkspaceID)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		key, ok := keyByCode[row.KeyCode]
		if !ok {
			// Key filtered out by category, or deleted since the last prime
			continue
		}

		if opts.ConfiguredOnly && row.Virtual {
			continue
		}

		entry := Entry{
			Key:       row.KeyCode,
			Type:      string(row.Type),
			Locked:    row.Locked,
			Virtual:   row.Virtual,
			Sensitive: key.IsSensitive,
			Computed:  row.ComputedAt,
		}

		if row.ChannelID != uuid.Nil {
			if code, ok := channelCodes[row.ChannelID]; ok {
				entry.Channel = code
			} else {
				entry.Channel = row.ChannelID.String()
			}
		}

		if key.IsSensitive && !opts.IncludeSensitive {
			entry.Value = maskedValue
			entry.Masked = true
		} else {
			typed, err := domain.CastValue(row.Type, row.Value)
			if err != nil {
				return nil, fmt.Errorf("failed to cast value for key %q: %w", row.KeyCode, err)
			}
			entry.Value = typed
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// Export builds the full document for a scope and serializes it in the
// given format.
func (e *Exporter) Export(ctx context.Context, opts Options, format Format) ([]byte, error) {
	entries, err := e.Collect(ctx, opts)
	if err != nil {
		return nil, err
	}

	doc := Document{
		GeneratedAt: time.Now().UTC(),
		Entries:     entries,
	}
	if opts.WorkspaceID != nil {
		doc.Workspace = opts.WorkspaceID.String()
	}

	if opts.IncludeKeyDefinitions {
		keys, err := e.keys.List(ctx, opts.Category)
		if err != nil {
			return nil, fmt.Errorf("failed to list keys: %w", err)
		}

		doc.Keys = make([]KeyDefinition, 0, len(keys))
		for _, key := range keys {
			def := KeyDefinition{
				Code:        key.Code,
				Type:        string(key.Type),
				Category:    key.Category,
				Description: key.Description,
				Sensitive:   key.IsSensitive,
			}

			if key.IsSensitive && !opts.IncludeSensitive {
				def.Default = maskedValue
			} else if len(key.DefaultValue) > 0 {
				typed, err := domain.CastValue(key.Type, key.DefaultValue)
				if err != nil {
					return nil, fmt.Errorf("failed to cast default for key %q: %w", key.Code, err)
				}
				def.Default = typed
			}

			doc.Keys = append(doc.Keys, def)
		}
	}

	switch format {
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatYAML:
		return yaml.Marshal(doc)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// FormatFromPath infers the export format from a file extension.
// Unrecognized extensions default to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// channelCodes maps channel IDs to codes so exports read naturally.
func (e *Exporter) channelCodes(ctx context.Context, workspaceID *uuid.UUID) (map[uuid.UUID]string, error) {
	channels, err := e.channels.ListForWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}

	codes := make(map[uuid.UUID]string, len(channels))
	for _, channel := range channels {
		codes[channel.ID] = channel.Code
	}
	return codes, nil
}

// Package cli implements the recall command-line surface. One file per
// sub-command; shared bootstrap lives here.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/embedding"
	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/internal/logger"
	"github.com/scrypster/recall/internal/state"
	"github.com/scrypster/recall/internal/syncer"
	"github.com/scrypster/recall/internal/vectorstore"
	"github.com/scrypster/recall/internal/vectorstore/chromem"
	"github.com/scrypster/recall/internal/vectorstore/pgvector"
	"github.com/scrypster/recall/internal/vectorstore/qdrant"
	"github.com/scrypster/recall/pkg/types"
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:           "recall",
	Short:         "Vector-backed memory for AI agents",
	Long:          "recall stores and retrieves free-text agent memories in a vector database,\nwith hybrid search, importance reinforcement, markdown sync and consolidation.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and returns the process exit code. Failures are one
// line on stderr; an unrecognized sub-command prints usage and exits zero.
func Execute() int {
	if err := RootCmd.Execute(); err != nil {
		if strings.HasPrefix(err.Error(), "unknown command") {
			_ = RootCmd.Usage()
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// app bundles the wired dependencies of one invocation.
type app struct {
	cfg   *config.Config
	log   zerolog.Logger
	index vectorstore.Index
	emb   embedding.Embedder
	eng   *engine.Engine
}

// newApp loads config and wires the engine against the configured backend.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.LogLevel)

	var index vectorstore.Index
	switch cfg.Vector.Backend {
	case "qdrant":
		index = qdrant.New(qdrant.Config{
			BaseURL:    cfg.Vector.QdrantURL,
			Collection: cfg.Agent.Collection,
			Timeout:    cfg.Vector.Timeout(),
		})
	case "pgvector":
		if index, err = pgvector.New(cfg.Vector.PostgresDSN); err != nil {
			return nil, err
		}
	case "chromem":
		if index, err = chromem.New(cfg.Agent.Collection); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported vector backend %q", cfg.Vector.Backend)
	}

	var emb embedding.Embedder = embedding.NewClient(embedding.Config{
		BaseURL:   cfg.Embedding.URL,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.Embedding.Timeout(),
	})
	if cfg.Embedding.CacheEnabled {
		if emb, err = embedding.NewCachedEmbedder(emb, 4096); err != nil {
			return nil, err
		}
	}

	a := &app{
		cfg:   cfg,
		log:   log,
		index: index,
		emb:   emb,
		eng:   engine.New(cfg.Agent.AgentID, emb, index, log),
	}
	if err := a.eng.EnsureReady(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases backend resources.
func (a *app) Close() {
	if err := a.index.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close index")
	}
}

// openState opens the sync-state database from config.
func (a *app) openState() (*state.Store, error) {
	return state.Open(a.cfg.Sync.StatePath)
}

// newSyncer builds a Syncer over an open state store.
func (a *app) newSyncer(st *state.Store) *syncer.Syncer {
	return syncer.New(a.eng, st, syncer.Config{
		MinSectionLength:    a.cfg.Sync.MinSectionLength,
		ExportMinImportance: a.cfg.Sync.ExportMinImportance,
		RatePerSecond:       a.cfg.Sync.RatePerSecond,
	}, a.log)
}

// parseTypes converts a comma-separated type list into memory types.
func parseTypes(s string) ([]types.MemoryType, error) {
	if s == "" {
		return nil, nil
	}
	var out []types.MemoryType
	for _, part := range strings.Split(s, ",") {
		mt, err := types.ParseMemoryType(part)
		if err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, nil
}

// splitList splits a comma-separated flag value, dropping empties.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// printJSON writes v to stdout as indented JSON. Stdout carries only
// payload; logs go to stderr.
func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

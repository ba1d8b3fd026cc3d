// Package syncer keeps vector memory and markdown files in step: import
// splits files into sections and stores the new ones, export renders
// high-value memories back to markdown, and watch re-imports on change.
// A local SQLite state database remembers which section hashes were already
// synced so imports are incremental.
package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/internal/state"
	"github.com/scrypster/recall/pkg/types"
)

// importImportance is assigned to imported sections unless frontmatter
// overrides it. Markdown files are curated, so they rank above the store
// default.
const importImportance = 0.7

// exportProbeQuery is the generic query used to surface high-importance
// semantic memories for export.
const exportProbeQuery = "important facts knowledge preferences"

const (
	exportSemanticLimit = 100
	exportEpisodicLimit = 50
	exportEpisodicSpan  = 7 * 24 * time.Hour
)

// MemoryAPI is the slice of the engine the syncer needs.
type MemoryAPI interface {
	Store(ctx context.Context, content string, opts engine.StoreOptions) (*types.MemoryRecord, error)
	Search(ctx context.Context, query string, opts engine.SearchOptions) ([]engine.SearchResult, error)
	Recent(ctx context.Context, limit int, memTypes []types.MemoryType, since time.Time) ([]*types.MemoryRecord, error)
	Count(ctx context.Context, memTypes []types.MemoryType) (int, error)
}

// Config tunes the syncer.
type Config struct {
	// MinSectionLength drops sections shorter than this on import.
	MinSectionLength int

	// ExportMinImportance is the importance floor for exported memories.
	ExportMinImportance float64

	// RatePerSecond bounds import upserts so bulk files do not hammer the
	// embedding server.
	RatePerSecond float64
}

// Syncer performs markdown import and export.
type Syncer struct {
	api     MemoryAPI
	st      *state.Store
	cfg     Config
	limiter *rate.Limiter
	log     zerolog.Logger

	now func() time.Time
}

// New builds a Syncer.
func New(api MemoryAPI, st *state.Store, cfg Config, log zerolog.Logger) *Syncer {
	if cfg.MinSectionLength <= 0 {
		cfg.MinSectionLength = 50
	}
	if cfg.ExportMinImportance <= 0 {
		cfg.ExportMinImportance = 0.5
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	return &Syncer{
		api:     api,
		st:      st,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		log:     log.With().Str("component", "syncer").Logger(),
		now:     time.Now,
	}
}

// ImportStats summarizes one import.
type ImportStats struct {
	New     int
	Skipped int
	Short   int
}

// ContentHash is the dedup key for a section body.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:12]
}

// Import reads a markdown file and stores each new section as a memory.
// Sections already recorded in the state database are skipped, so repeated
// imports of the same file are cheap no-ops.
func (s *Syncer) Import(ctx context.Context, path string) (*ImportStats, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	fm, sections, err := ParseDocument(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	memType := types.Semantic
	if fm.Type != "" {
		if memType, err = types.ParseMemoryType(fm.Type); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	importance := importImportance
	if fm.Importance > 0 {
		importance = fm.Importance
	}

	stats := &ImportStats{}
	for _, sec := range sections {
		if len(sec.Body) < s.cfg.MinSectionLength {
			stats.Short++
			continue
		}

		hash := ContentHash(sec.Body)
		seen, err := s.st.HasSection(ctx, hash)
		if err != nil {
			return nil, err
		}
		if seen {
			stats.Skipped++
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		entities := append([]string{}, fm.Entities...)
		if slug := sec.Slug(); slug != "" {
			entities = append(entities, slug)
		}
		imp := importance
		rec, err := s.api.Store(ctx, SectionContent(sec), engine.StoreOptions{
			Type:       memType,
			Importance: &imp,
			Entities:   entities,
			Metadata: map[string]any{
				"source":    path,
				"synced_at": s.now().UTC().Format(time.RFC3339),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to store section %q: %w", sec.Header, err)
		}
		if err := s.st.MarkSection(ctx, hash, rec.ID, path); err != nil {
			return nil, err
		}
		stats.New++
	}

	s.log.Info().Str("path", path).Int("new", stats.New).
		Int("skipped", stats.Skipped).Msg("import complete")
	return stats, nil
}

// Export renders high-importance semantic memories and last week's episodic
// records to a sectioned markdown file. Returns how many memories were
// written.
func (s *Syncer) Export(ctx context.Context, path string) (int, error) {
	semantic, err := s.api.Search(ctx, exportProbeQuery, engine.SearchOptions{
		Limit:         exportSemanticLimit,
		Types:         []types.MemoryType{types.Semantic},
		MinImportance: s.cfg.ExportMinImportance,
	})
	if err != nil {
		return 0, err
	}

	episodic, err := s.api.Recent(ctx, exportEpisodicLimit,
		[]types.MemoryType{types.Episodic}, s.now().Add(-exportEpisodicSpan))
	if err != nil {
		return 0, err
	}

	seen := map[string]struct{}{}
	var knowledge, conversations []*types.MemoryRecord
	for _, hit := range semantic {
		h := ContentHash(hit.Record.Content)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		knowledge = append(knowledge, hit.Record)
	}
	for _, rec := range episodic {
		h := ContentHash(rec.Content)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		conversations = append(conversations, rec)
	}

	var b strings.Builder
	b.WriteString("# Memory Export\n")
	fmt.Fprintf(&b, "*Exported: %s*\n", s.now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "*Min importance: %.1f*\n\n", s.cfg.ExportMinImportance)
	writeSection(&b, "Semantic Knowledge", knowledge)
	writeSection(&b, "Recent Conversations", conversations)

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}

	s.log.Info().Str("path", path).Int("count", len(seen)).Msg("export complete")
	return len(seen), nil
}

// writeSection renders one export section. Long content is truncated and
// flattened to one line per memory.
func writeSection(b *strings.Builder, title string, records []*types.MemoryRecord) {
	if len(records) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, rec := range records {
		content := truncate(strings.TrimSpace(strings.ReplaceAll(rec.Content, "\n", " ")), 200)
		fmt.Fprintf(b, "- **[%.1f]** %s\n", rec.Importance, content)
		if len(rec.Entities) > 0 {
			tags := rec.Entities
			if len(tags) > 5 {
				tags = tags[:5]
			}
			fmt.Fprintf(b, "  - *Tags: %s*\n", strings.Join(tags, ", "))
		}
	}
	b.WriteString("\n")
}

// truncate cuts s to at most max bytes, backing up so a multi-byte rune is
// never split.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// SyncStats summarizes a bidirectional sync.
type SyncStats struct {
	Import   *ImportStats
	Exported int
	Total    int
}

// FullSync imports new sections from path, then exports back to exportPath
// when it is non-empty.
func (s *Syncer) FullSync(ctx context.Context, path, exportPath string) (*SyncStats, error) {
	imported, err := s.Import(ctx, path)
	if err != nil {
		return nil, err
	}

	stats := &SyncStats{Import: imported}
	if exportPath != "" {
		if stats.Exported, err = s.Export(ctx, exportPath); err != nil {
			return nil, err
		}
	}

	if stats.Total, err = s.api.Count(ctx, nil); err != nil {
		return nil, err
	}
	return stats, nil
}

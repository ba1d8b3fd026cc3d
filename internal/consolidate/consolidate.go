// Package consolidate distills accumulated episodic memories into durable
// semantic facts using an LLM. Runs are gated by a backlog/age trigger
// policy and tracked by a watermark, so the same episodic records are never
// distilled twice. Episodic sources are read-only here; consolidation only
// ever creates new records.
package consolidate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/pkg/types"
)

// watermarkName keys the consolidation watermark in the state store.
const watermarkName = "consolidate"

// derivedImportance is the starting importance of distilled facts. Higher
// than the store default: a fact that survived distillation has already
// proven some relevance.
const derivedImportance = 0.6

// MemoryStore is the slice of the engine consolidation needs.
type MemoryStore interface {
	Recent(ctx context.Context, limit int, memTypes []types.MemoryType, since time.Time) ([]*types.MemoryRecord, error)
	Store(ctx context.Context, content string, opts engine.StoreOptions) (*types.MemoryRecord, error)
}

// WatermarkStore persists the last-consolidated timestamp across runs.
type WatermarkStore interface {
	Watermark(ctx context.Context, name string) (time.Time, error)
	SetWatermark(ctx context.Context, name string, ts time.Time) error
}

// Config is the trigger policy.
type Config struct {
	// MinEpisodic is the backlog size below which a run is skipped.
	MinEpisodic int

	// MinAge is how old the oldest backlog record must be. Fresh sessions
	// are left alone so a run never splits an ongoing conversation.
	MinAge time.Duration

	// MaxBatch caps how many episodic records one run distills.
	MaxBatch int
}

// Runner performs consolidation runs.
type Runner struct {
	store MemoryStore
	gen   llm.TextGenerator
	marks WatermarkStore
	cfg   Config
	log   zerolog.Logger

	now func() time.Time
}

// New builds a Runner.
func New(store MemoryStore, gen llm.TextGenerator, marks WatermarkStore, cfg Config, log zerolog.Logger) *Runner {
	if cfg.MinEpisodic <= 0 {
		cfg.MinEpisodic = 20
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = time.Hour
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 50
	}
	return &Runner{
		store: store,
		gen:   gen,
		marks: marks,
		cfg:   cfg,
		log:   log.With().Str("component", "consolidate").Logger(),
		now:   time.Now,
	}
}

// Report summarizes one run.
type Report struct {
	// Skipped is a human-readable reason when the run did nothing, empty
	// when facts were stored.
	Skipped string

	BatchID  string
	Examined int
	Sessions int
	Stored   []*types.MemoryRecord
}

// Run checks the trigger policy and, when it fires, distills the episodic
// backlog into semantic records session by session. An unavailable LLM stops
// the run instead of failing it: facts stored so far stay in the report and
// the watermark covers only the sessions that completed.
func (r *Runner) Run(ctx context.Context, force bool) (*Report, error) {
	since, err := r.marks.Watermark(ctx, watermarkName)
	if err != nil {
		return nil, err
	}

	backlog, err := r.store.Recent(ctx, r.cfg.MaxBatch*2, []types.MemoryType{types.Episodic}, since)
	if err != nil {
		return nil, err
	}
	// Drop records already consumed by a previous run. Recent's floor is
	// inclusive, so the watermark record itself comes back.
	backlog = dropThrough(backlog, since)

	if !force {
		if reason := r.trigger(backlog); reason != "" {
			r.log.Debug().Str("reason", reason).Msg("consolidation skipped")
			return &Report{Skipped: reason, Examined: len(backlog)}, nil
		}
	}
	if len(backlog) == 0 {
		return &Report{Skipped: "no episodic backlog"}, nil
	}

	// Recent is newest-first; distill oldest-first so the watermark can
	// advance contiguously.
	reverse(backlog)
	if len(backlog) > r.cfg.MaxBatch {
		backlog = backlog[:r.cfg.MaxBatch]
	}

	report := &Report{
		BatchID:  uuid.NewString(),
		Examined: len(backlog),
	}

	groups := groupBySession(backlog)
	var done []*types.MemoryRecord
	for gi, group := range groups {
		facts, err := r.distill(ctx, group.records)
		if errors.Is(err, llm.ErrUnavailable) {
			// Keep whatever earlier sessions produced and advance the
			// watermark as far as the completed records allow, so the next
			// run does not distill them again.
			r.log.Warn().Err(err).Str("session", group.session).
				Int("stored", len(report.Stored)).Msg("llm unavailable, consolidation stopped early")
			report.Skipped = "llm unavailable"
			if err := r.advance(ctx, since, done, groups[gi:]); err != nil {
				return nil, err
			}
			return report, nil
		}
		if err != nil {
			return nil, err
		}
		report.Sessions++
		done = append(done, group.records...)

		ids := make([]string, 0, len(group.records))
		entities := map[string]struct{}{}
		for _, rec := range group.records {
			ids = append(ids, rec.ID)
			for _, e := range rec.Entities {
				entities[e] = struct{}{}
			}
		}

		for _, fact := range facts {
			imp := derivedImportance
			rec, err := r.store.Store(ctx, fact, engine.StoreOptions{
				Type:             types.Semantic,
				Importance:       &imp,
				Entities:         keys(entities),
				SessionID:        group.session,
				ConsolidatedFrom: ids,
				BatchID:          report.BatchID,
			})
			if err != nil {
				return nil, fmt.Errorf("store distilled fact: %w", err)
			}
			report.Stored = append(report.Stored, rec)
		}
	}

	newest := backlog[len(backlog)-1].Timestamp
	if err := r.marks.SetWatermark(ctx, watermarkName, newest); err != nil {
		return nil, err
	}

	r.log.Info().Str("batch_id", report.BatchID).Int("examined", report.Examined).
		Int("stored", len(report.Stored)).Msg("consolidation complete")
	return report, nil
}

// advance moves the watermark past completed records after a partial run.
// Sessions can interleave in time, so the watermark only covers completed
// records strictly older than every record still pending; anything newer is
// left for the next run.
func (r *Runner) advance(ctx context.Context, since time.Time, done []*types.MemoryRecord, pending []sessionGroup) error {
	var floor time.Time
	for _, group := range pending {
		for _, rec := range group.records {
			if floor.IsZero() || rec.Timestamp.Before(floor) {
				floor = rec.Timestamp
			}
		}
	}
	mark := since
	for _, rec := range done {
		if rec.Timestamp.Before(floor) && rec.Timestamp.After(mark) {
			mark = rec.Timestamp
		}
	}
	if !mark.After(since) {
		return nil
	}
	return r.marks.SetWatermark(ctx, watermarkName, mark)
}

// trigger returns a skip reason, or empty when the policy fires.
func (r *Runner) trigger(backlog []*types.MemoryRecord) string {
	if len(backlog) < r.cfg.MinEpisodic {
		return fmt.Sprintf("backlog %d below threshold %d", len(backlog), r.cfg.MinEpisodic)
	}
	oldest := backlog[len(backlog)-1].Timestamp
	if age := r.now().Sub(oldest); age < r.cfg.MinAge {
		return fmt.Sprintf("oldest record age %s below %s", age.Round(time.Second), r.cfg.MinAge)
	}
	return ""
}

// distill prompts the LLM with one session's records and parses the facts.
func (r *Runner) distill(ctx context.Context, records []*types.MemoryRecord) ([]string, error) {
	out, err := r.gen.Complete(ctx, buildPrompt(records))
	if err != nil {
		return nil, err
	}
	return ParseFacts(out), nil
}

type sessionGroup struct {
	session string
	records []*types.MemoryRecord
}

// groupBySession partitions records by session id, preserving the order in
// which sessions first appear. Records without a session share one group.
func groupBySession(records []*types.MemoryRecord) []sessionGroup {
	index := map[string]int{}
	var groups []sessionGroup
	for _, rec := range records {
		i, ok := index[rec.SessionID]
		if !ok {
			i = len(groups)
			index[rec.SessionID] = i
			groups = append(groups, sessionGroup{session: rec.SessionID})
		}
		groups[i].records = append(groups[i].records, rec)
	}
	return groups
}

// dropThrough removes records at or before the watermark.
func dropThrough(records []*types.MemoryRecord, mark time.Time) []*types.MemoryRecord {
	if mark.IsZero() {
		return records
	}
	out := records[:0]
	for _, rec := range records {
		if rec.Timestamp.After(mark) {
			out = append(out, rec)
		}
	}
	return out
}

func reverse(records []*types.MemoryRecord) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}

func keys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

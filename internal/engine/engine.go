// Package engine implements the memory operations on top of an embedder and
// a vector store index: storing records, dense and hybrid retrieval, and
// importance reinforcement. Every operation is scoped to one agent.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scrypster/recall/internal/embedding"
	"github.com/scrypster/recall/internal/vectorstore"
	"github.com/scrypster/recall/pkg/types"
)

// DefaultImportance is assigned when the caller does not score a memory.
const DefaultImportance = 0.5

// Engine ties an embedder and an index together for one agent. Safe for
// concurrent use when its dependencies are.
type Engine struct {
	agentID string
	embed   embedding.Embedder
	index   vectorstore.Index
	log     zerolog.Logger

	now func() time.Time
}

// New builds an Engine scoped to agentID.
func New(agentID string, embed embedding.Embedder, index vectorstore.Index, log zerolog.Logger) *Engine {
	return &Engine{
		agentID: agentID,
		embed:   embed,
		index:   index,
		log:     log.With().Str("component", "engine").Str("agent_id", agentID).Logger(),
		now:     time.Now,
	}
}

// EnsureReady prepares the backing collection for this engine's embedding
// dimension. Idempotent.
func (e *Engine) EnsureReady(ctx context.Context) error {
	return e.index.EnsureReady(ctx, e.embed.Dimension())
}

// scoped forces the engine's agent id onto a filter so no query can cross
// agent boundaries.
func (e *Engine) scoped(f vectorstore.Filter) vectorstore.Filter {
	f.AgentID = e.agentID
	return f
}

// scan scrolls every point matching the agent-scoped filter, capped at
// keywordScanLimit. A full window means the backend holds more matching
// points than the cap and the caller is seeing a sample, so it is logged.
func (e *Engine) scan(ctx context.Context, f vectorstore.Filter, op string) ([]vectorstore.Point, error) {
	points, err := e.index.Scroll(ctx, e.scoped(f), keywordScanLimit)
	if err != nil {
		return nil, err
	}
	if len(points) >= keywordScanLimit {
		e.log.Warn().Str("op", op).Int("limit", keywordScanLimit).
			Msg("scan window full, results may be incomplete")
	}
	return points, nil
}

// StoreOptions carries the optional attributes of a new memory.
type StoreOptions struct {
	// ID, when set, makes the store idempotent: re-storing the same id
	// replaces the point instead of duplicating it.
	ID string

	Type       types.MemoryType
	Importance *float64
	Entities   []string
	SessionID  string
	Metadata   map[string]any

	// ConsolidatedFrom marks the record as consolidation-derived and lists
	// the source record ids. BatchID groups records distilled in one run.
	ConsolidatedFrom []string
	BatchID          string
}

// Store embeds content and persists it as a new memory record.
func (e *Engine) Store(ctx context.Context, content string, opts StoreOptions) (*types.MemoryRecord, error) {
	if opts.Type == "" {
		opts.Type = types.Semantic
	}
	importance := DefaultImportance
	if opts.Importance != nil {
		importance = *opts.Importance
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	rec := &types.MemoryRecord{
		ID:                id,
		Content:           content,
		MemoryType:        opts.Type,
		AgentID:           e.agentID,
		Timestamp:         e.now().UTC(),
		Importance:        importance,
		InitialImportance: importance,
		ImportanceHistory: []float64{importance},
		Entities:          opts.Entities,
		SessionID:         opts.SessionID,
		Metadata:          opts.Metadata,

		Consolidated:         len(opts.ConsolidatedFrom) > 0,
		ConsolidatedFrom:     opts.ConsolidatedFrom,
		ConsolidationBatchID: opts.BatchID,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	vector, err := e.embed.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	if err := e.index.Upsert(ctx, vectorstore.Point{ID: id, Vector: vector, Record: rec}); err != nil {
		return nil, err
	}

	e.log.Debug().Str("id", id).Str("type", string(rec.MemoryType)).
		Float64("importance", importance).Msg("memory stored")
	return rec, nil
}

// SearchResult is one retrieval hit.
type SearchResult struct {
	Record *types.MemoryRecord
	Score  float64
}

// SearchOptions narrows a dense search.
type SearchOptions struct {
	Limit         int
	Types         []types.MemoryType
	MinImportance float64
	Entities      []string
	SessionID     string
}

// Search embeds the query and returns the most similar memories.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = 5
	}

	vector, err := e.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := e.index.Query(ctx, vector, e.scoped(vectorstore.Filter{
		MemoryTypes:   opts.Types,
		MinImportance: opts.MinImportance,
		Entities:      opts.Entities,
		SessionID:     opts.SessionID,
	}), opts.Limit)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, SearchResult{Record: h.Record, Score: h.Score})
	}
	return results, nil
}

// Recent returns memories newest first, optionally restricted by type and a
// time floor. Backends scroll in arbitrary order, so ordering happens here.
func (e *Engine) Recent(ctx context.Context, limit int, memTypes []types.MemoryType, since time.Time) ([]*types.MemoryRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	points, err := e.scan(ctx, vectorstore.Filter{
		MemoryTypes: memTypes,
		Since:       since,
	}, "recent")
	if err != nil {
		return nil, err
	}

	records := make([]*types.MemoryRecord, 0, len(points))
	for _, p := range points {
		records = append(records, p.Record)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// ByEntities returns memories tagged with any of the given entities, highest
// importance first.
func (e *Engine) ByEntities(ctx context.Context, entities []string, limit int) ([]*types.MemoryRecord, error) {
	if len(entities) == 0 {
		return nil, fmt.Errorf("%w: at least one entity is required", types.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}

	points, err := e.scan(ctx, vectorstore.Filter{Entities: entities}, "by_entities")
	if err != nil {
		return nil, err
	}

	records := make([]*types.MemoryRecord, 0, len(points))
	for _, p := range points {
		records = append(records, p.Record)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Importance != records[j].Importance {
			return records[i].Importance > records[j].Importance
		}
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Count returns how many memories this agent has, optionally by type.
func (e *Engine) Count(ctx context.Context, memTypes []types.MemoryType) (int, error) {
	return e.index.Count(ctx, e.scoped(vectorstore.Filter{MemoryTypes: memTypes}))
}

// FeedbackResult reports an applied reinforcement.
type FeedbackResult struct {
	Record *types.MemoryRecord
	Before float64
	After  float64
}

// Feedback applies a usage signal to one memory: recomputes importance,
// increments the retrieval count (every signal counts as a feedback
// submission), bumps the signal's own counter, stamps the matching
// timestamp and appends the new importance to history. Fetch and patch are separate backend calls, so
// concurrent feedback on the same id is last-write-wins.
func (e *Engine) Feedback(ctx context.Context, id string, signal types.Signal) (*FeedbackResult, error) {
	point, err := e.index.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	rec := point.Record
	if rec.AgentID != e.agentID {
		return nil, fmt.Errorf("%w: %s", vectorstore.ErrNotFound, id)
	}

	before := rec.Importance
	after, err := Reinforce(before, signal, rec.RetrievalCount)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	history := append(append([]float64{}, rec.ImportanceHistory...), after)

	// retrieval_count counts feedback submissions of any kind; it is the
	// damping term for the next reinforcement. The per-signal counters
	// track usage depth on top of it.
	retrievals := rec.RetrievalCount + 1
	patch := vectorstore.Patch{
		Importance:        &after,
		ImportanceHistory: history,
		RetrievalCount:    &retrievals,
	}
	rec.RetrievalCount = retrievals
	switch signal {
	case types.SignalRetrieval:
		patch.LastRetrieved = &now
		rec.LastRetrieved = &now
	case types.SignalUtilization:
		n := rec.UtilizationCount + 1
		patch.UtilizationCount = &n
		patch.LastUtilized = &now
		rec.UtilizationCount = n
		rec.LastUtilized = &now
	case types.SignalOutcome:
		n := rec.OutcomeCount + 1
		patch.OutcomeCount = &n
		patch.LastBoosted = &now
		rec.OutcomeCount = n
		rec.LastBoosted = &now
	}

	if err := e.index.PatchPayload(ctx, id, patch); err != nil {
		return nil, err
	}
	rec.Importance = after
	rec.ImportanceHistory = history

	e.log.Debug().Str("id", id).Str("signal", string(signal)).
		Float64("before", before).Float64("after", after).Msg("feedback applied")
	return &FeedbackResult{Record: rec, Before: before, After: after}, nil
}

// Get returns one memory by id, restricted to this agent.
func (e *Engine) Get(ctx context.Context, id string) (*types.MemoryRecord, error) {
	point, err := e.index.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if point.Record.AgentID != e.agentID {
		return nil, fmt.Errorf("%w: %s", vectorstore.ErrNotFound, id)
	}
	return point.Record, nil
}

// ReindexColbert backfills late-interaction token vectors for memories that
// do not have them yet. The index must support named multivectors; late
// supplies per-token embeddings. Returns how many records were reindexed.
func (e *Engine) ReindexColbert(ctx context.Context, late embedding.LateEmbedder, limit int) (int, error) {
	mv, ok := e.index.(vectorstore.MultivectorIndex)
	if !ok {
		return 0, fmt.Errorf("%w: backend does not support token vectors", types.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 100
	}

	points, err := e.scan(ctx, vectorstore.Filter{}, "reindex")
	if err != nil {
		return 0, err
	}

	reindexed := 0
	for _, p := range points {
		if p.Record.HasColbert {
			continue
		}
		if reindexed >= limit {
			break
		}
		vectors, err := late.EmbedTokens(ctx, p.Record.Content)
		if err != nil {
			return reindexed, fmt.Errorf("embed tokens for %s: %w", p.ID, err)
		}
		if err := mv.UpdateTokenVectors(ctx, p.ID, vectors); err != nil {
			return reindexed, err
		}
		has := true
		n := len(vectors)
		if err := e.index.PatchPayload(ctx, p.ID, vectorstore.Patch{
			HasColbert:        &has,
			ColbertTokenCount: &n,
		}); err != nil {
			return reindexed, err
		}
		reindexed++
		e.log.Debug().Str("id", p.ID).Int("tokens", n).Msg("token vectors indexed")
	}
	return reindexed, nil
}

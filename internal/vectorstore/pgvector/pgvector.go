// Package pgvector implements vectorstore.Index on PostgreSQL with the
// pgvector extension. It exists for deployments that already run Postgres
// and would rather not operate a separate vector database.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/scrypster/recall/internal/vectorstore"
	"github.com/scrypster/recall/pkg/types"
)

// Store persists memories in a single Postgres table with a vector column.
type Store struct {
	db *sql.DB
}

var _ vectorstore.Index = (*Store)(nil)

// New opens a connection pool against dsn. The schema is applied by
// EnsureReady, not here, because the vector column width is not known until
// the embedding configuration is resolved.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &vectorstore.ServiceError{Op: "connect", Body: err.Error()}
	}
	return &Store{db: db}, nil
}

// EnsureReady enables the extension and creates the memories table with a
// dim-wide vector column. Idempotent.
func (s *Store) EnsureReady(ctx context.Context, dim int) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return &vectorstore.ServiceError{Op: "ensure extension", Body: err.Error()}
	}

	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    agent_id TEXT NOT NULL,
    content TEXT NOT NULL,
    memory_type TEXT NOT NULL,
    importance DOUBLE PRECISION NOT NULL,
    initial_importance DOUBLE PRECISION NOT NULL,
    importance_history JSONB NOT NULL DEFAULT '[]',
    entities TEXT[] NOT NULL DEFAULT '{}',
    session_id TEXT NOT NULL DEFAULT '',
    metadata JSONB,
    ts TIMESTAMPTZ NOT NULL,
    retrieval_count INTEGER NOT NULL DEFAULT 0,
    utilization_count INTEGER NOT NULL DEFAULT 0,
    outcome_count INTEGER NOT NULL DEFAULT 0,
    last_retrieved TIMESTAMPTZ,
    last_utilized TIMESTAMPTZ,
    last_boosted TIMESTAMPTZ,
    consolidated BOOLEAN NOT NULL DEFAULT FALSE,
    consolidated_from TEXT[] NOT NULL DEFAULT '{}',
    consolidation_batch_id TEXT NOT NULL DEFAULT '',
    has_colbert BOOLEAN NOT NULL DEFAULT FALSE,
    colbert_token_count INTEGER NOT NULL DEFAULT 0,
    embedding vector(%d)
);
CREATE INDEX IF NOT EXISTS memories_agent_idx ON memories (agent_id);
CREATE INDEX IF NOT EXISTS memories_ts_idx ON memories (ts DESC);
`, dim)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return &vectorstore.ServiceError{Op: "ensure schema", Body: err.Error()}
	}
	return nil
}

// memoryColumns is the canonical SELECT list; scanRow must match its order.
const memoryColumns = `
	id, agent_id, content, memory_type, importance, initial_importance,
	importance_history, entities, session_id, metadata, ts,
	retrieval_count, utilization_count, outcome_count,
	last_retrieved, last_utilized, last_boosted,
	consolidated, consolidated_from, consolidation_batch_id,
	has_colbert, colbert_token_count
`

// Upsert writes points by id.
func (s *Store) Upsert(ctx context.Context, points ...vectorstore.Point) error {
	const stmt = `
		INSERT INTO memories (
			id, agent_id, content, memory_type, importance, initial_importance,
			importance_history, entities, session_id, metadata, ts,
			retrieval_count, utilization_count, outcome_count,
			last_retrieved, last_utilized, last_boosted,
			consolidated, consolidated_from, consolidation_batch_id,
			has_colbert, colbert_token_count, embedding
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			memory_type = EXCLUDED.memory_type,
			importance = EXCLUDED.importance,
			importance_history = EXCLUDED.importance_history,
			entities = EXCLUDED.entities,
			session_id = EXCLUDED.session_id,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding
	`
	for _, p := range points {
		rec := p.Record
		history, err := json.Marshal(orEmptyHistory(rec.ImportanceHistory))
		if err != nil {
			return fmt.Errorf("pgvector: encode history: %w", err)
		}
		var metadata any
		if rec.Metadata != nil {
			raw, err := json.Marshal(rec.Metadata)
			if err != nil {
				return fmt.Errorf("pgvector: encode metadata: %w", err)
			}
			metadata = raw
		}

		_, err = s.db.ExecContext(ctx, stmt,
			p.ID, rec.AgentID, rec.Content, string(rec.MemoryType),
			rec.Importance, rec.InitialImportance, history,
			pq.Array(orEmpty(rec.Entities)), rec.SessionID, metadata, rec.Timestamp.UTC(),
			rec.RetrievalCount, rec.UtilizationCount, rec.OutcomeCount,
			rec.LastRetrieved, rec.LastUtilized, rec.LastBoosted,
			rec.Consolidated, pq.Array(orEmpty(rec.ConsolidatedFrom)), rec.ConsolidationBatchID,
			rec.HasColbert, rec.ColbertTokenCount, pgv.NewVector(p.Vector),
		)
		if err != nil {
			return &vectorstore.ServiceError{Op: "upsert", Body: err.Error()}
		}
	}
	return nil
}

// Query ranks by cosine similarity (1 - cosine distance).
func (s *Store) Query(ctx context.Context, vector []float32, f vectorstore.Filter, limit int) ([]vectorstore.ScoredPoint, error) {
	where, args := buildWhere(f, 2)
	query := fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $1) AS score
		FROM memories
		%s
		ORDER BY embedding <=> $1
		LIMIT %d
	`, memoryColumns, where, limit)

	args = append([]any{pgv.NewVector(vector)}, args...)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &vectorstore.ServiceError{Op: "query", Body: err.Error()}
	}
	defer rows.Close()

	var hits []vectorstore.ScoredPoint
	for rows.Next() {
		rec, score, err := scanRow(rows, true)
		if err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		hits = append(hits, vectorstore.ScoredPoint{
			Point: vectorstore.Point{ID: rec.ID, Record: rec},
			Score: score,
		})
	}
	return hits, rows.Err()
}

// Scroll returns matching rows newest first.
func (s *Store) Scroll(ctx context.Context, f vectorstore.Filter, limit int) ([]vectorstore.Point, error) {
	where, args := buildWhere(f, 1)
	query := fmt.Sprintf(`
		SELECT %s FROM memories %s ORDER BY ts DESC LIMIT %d
	`, memoryColumns, where, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &vectorstore.ServiceError{Op: "scroll", Body: err.Error()}
	}
	defer rows.Close()

	var points []vectorstore.Point
	for rows.Next() {
		rec, _, err := scanRow(rows, false)
		if err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		points = append(points, vectorstore.Point{ID: rec.ID, Record: rec})
	}
	return points, rows.Err()
}

// Fetch returns one row by id.
func (s *Store) Fetch(ctx context.Context, id string) (*vectorstore.Point, error) {
	query := fmt.Sprintf("SELECT %s FROM memories WHERE id = $1", memoryColumns)
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, &vectorstore.ServiceError{Op: "fetch", Body: err.Error()}
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, &vectorstore.ServiceError{Op: "fetch", Body: err.Error()}
		}
		return nil, vectorstore.ErrNotFound
	}
	rec, _, err := scanRow(rows, false)
	if err != nil {
		return nil, fmt.Errorf("pgvector: scan: %w", err)
	}
	return &vectorstore.Point{ID: rec.ID, Record: rec}, nil
}

// PatchPayload updates the mutable columns named by the patch.
func (s *Store) PatchPayload(ctx context.Context, id string, patch vectorstore.Patch) error {
	var sets []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Importance != nil {
		add("importance", *patch.Importance)
	}
	if patch.ImportanceHistory != nil {
		raw, err := json.Marshal(patch.ImportanceHistory)
		if err != nil {
			return fmt.Errorf("pgvector: encode history: %w", err)
		}
		add("importance_history", raw)
	}
	if patch.RetrievalCount != nil {
		add("retrieval_count", *patch.RetrievalCount)
	}
	if patch.UtilizationCount != nil {
		add("utilization_count", *patch.UtilizationCount)
	}
	if patch.OutcomeCount != nil {
		add("outcome_count", *patch.OutcomeCount)
	}
	if patch.LastRetrieved != nil {
		add("last_retrieved", patch.LastRetrieved.UTC())
	}
	if patch.LastUtilized != nil {
		add("last_utilized", patch.LastUtilized.UTC())
	}
	if patch.LastBoosted != nil {
		add("last_boosted", patch.LastBoosted.UTC())
	}
	if patch.HasColbert != nil {
		add("has_colbert", *patch.HasColbert)
	}
	if patch.ColbertTokenCount != nil {
		add("colbert_token_count", *patch.ColbertTokenCount)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	stmt := fmt.Sprintf("UPDATE memories SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	result, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return &vectorstore.ServiceError{Op: "patch payload", Body: err.Error()}
	}
	n, err := result.RowsAffected()
	if err != nil {
		return &vectorstore.ServiceError{Op: "patch payload", Body: err.Error()}
	}
	if n == 0 {
		return vectorstore.ErrNotFound
	}
	return nil
}

// Count returns the number of matching rows.
func (s *Store) Count(ctx context.Context, f vectorstore.Filter) (int, error) {
	where, args := buildWhere(f, 1)
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories "+where, args...).Scan(&n)
	if err != nil {
		return 0, &vectorstore.ServiceError{Op: "count", Body: err.Error()}
	}
	return n, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// buildWhere renders the shared filter as SQL, with placeholders starting at
// firstArg. Entities use array overlap (&&) for any-of semantics.
func buildWhere(f vectorstore.Filter, firstArg int) (string, []any) {
	var conds []string
	var args []any
	next := func() int { return firstArg + len(args) }

	if f.AgentID != "" {
		conds = append(conds, fmt.Sprintf("agent_id = $%d", next()))
		args = append(args, f.AgentID)
	}
	if len(f.MemoryTypes) > 0 {
		typeStrs := make([]string, 0, len(f.MemoryTypes))
		for _, t := range f.MemoryTypes {
			typeStrs = append(typeStrs, string(t))
		}
		conds = append(conds, fmt.Sprintf("memory_type = ANY($%d)", next()))
		args = append(args, pq.Array(typeStrs))
	}
	if f.MinImportance > 0 {
		conds = append(conds, fmt.Sprintf("importance >= $%d", next()))
		args = append(args, f.MinImportance)
	}
	if !f.Since.IsZero() {
		conds = append(conds, fmt.Sprintf("ts >= $%d", next()))
		args = append(args, f.Since.UTC())
	}
	if f.SessionID != "" {
		conds = append(conds, fmt.Sprintf("session_id = $%d", next()))
		args = append(args, f.SessionID)
	}
	if len(f.Entities) > 0 {
		conds = append(conds, fmt.Sprintf("entities && $%d", next()))
		args = append(args, pq.Array(f.Entities))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// scanRow decodes one row in memoryColumns order; when withScore is set, a
// trailing score column is expected.
func scanRow(rows *sql.Rows, withScore bool) (*types.MemoryRecord, float64, error) {
	var (
		rec          types.MemoryRecord
		memType      string
		history      []byte
		entities     pq.StringArray
		metadata     []byte
		consolidated pq.StringArray
		lastRetr     sql.NullTime
		lastUtil     sql.NullTime
		lastBoost    sql.NullTime
		score        float64
	)

	dest := []any{
		&rec.ID, &rec.AgentID, &rec.Content, &memType,
		&rec.Importance, &rec.InitialImportance,
		&history, &entities, &rec.SessionID, &metadata, &rec.Timestamp,
		&rec.RetrievalCount, &rec.UtilizationCount, &rec.OutcomeCount,
		&lastRetr, &lastUtil, &lastBoost,
		&rec.Consolidated, &consolidated, &rec.ConsolidationBatchID,
		&rec.HasColbert, &rec.ColbertTokenCount,
	}
	if withScore {
		dest = append(dest, &score)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, 0, err
	}

	rec.MemoryType = types.MemoryType(memType)
	rec.Entities = entities
	rec.ConsolidatedFrom = consolidated
	if len(history) > 0 {
		if err := json.Unmarshal(history, &rec.ImportanceHistory); err != nil {
			return nil, 0, err
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return nil, 0, err
		}
	}
	if lastRetr.Valid {
		t := lastRetr.Time
		rec.LastRetrieved = &t
	}
	if lastUtil.Valid {
		t := lastUtil.Time
		rec.LastUtilized = &t
	}
	if lastBoost.Valid {
		t := lastBoost.Time
		rec.LastBoosted = &t
	}
	return &rec, score, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orEmptyHistory(h []float64) []float64 {
	if h == nil {
		return []float64{}
	}
	return h
}

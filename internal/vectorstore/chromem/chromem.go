// Package chromem implements vectorstore.Index on top of chromem-go, a pure
// Go embedded vector database. It keeps everything in process memory, which
// makes it the backend for tests and for library consumers that embed recall
// without running a Qdrant deployment.
//
// chromem only stores vector + flat string metadata, so the authoritative
// record payloads live in a mutex-guarded map beside the collection; chromem
// is consulted solely for similarity ranking.
package chromem

import (
	"context"
	"fmt"
	"sync"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/scrypster/recall/internal/vectorstore"
	"github.com/scrypster/recall/pkg/types"
)

// Store is an embedded, in-process vector index.
type Store struct {
	db  *chromemgo.DB
	col *chromemgo.Collection

	mu      sync.RWMutex
	records map[string]*entry
}

type entry struct {
	vector []float32
	record types.MemoryRecord // copy; callers never see internal pointers
}

var _ vectorstore.Index = (*Store)(nil)

// New creates an empty embedded store for the given collection name.
func New(collection string) (*Store, error) {
	db := chromemgo.NewDB()
	col, err := db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: create collection: %w", err)
	}
	return &Store{
		db:      db,
		col:     col,
		records: make(map[string]*entry),
	}, nil
}

// EnsureReady is a no-op; the collection is created eagerly in New.
func (s *Store) EnsureReady(ctx context.Context, dim int) error { return nil }

// Upsert stores points, replacing any existing entry with the same id.
func (s *Store) Upsert(ctx context.Context, points ...vectorstore.Point) error {
	for _, p := range points {
		if p.Record == nil {
			return fmt.Errorf("chromem: point %s has no record", p.ID)
		}
		doc := chromemgo.Document{
			ID:        p.ID,
			Content:   p.Record.Content,
			Embedding: p.Vector,
			Metadata: map[string]string{
				"agent_id":    p.Record.AgentID,
				"memory_type": string(p.Record.MemoryType),
			},
		}
		if err := s.col.AddDocument(ctx, doc); err != nil {
			return &vectorstore.ServiceError{Op: "upsert", Body: err.Error()}
		}

		s.mu.Lock()
		s.records[p.ID] = &entry{vector: p.Vector, record: *p.Record}
		s.mu.Unlock()
	}
	return nil
}

// Query ranks via chromem and applies the filter against the mirrored
// payloads, since chromem metadata only supports equality matching.
func (s *Store) Query(ctx context.Context, vector []float32, f vectorstore.Filter, limit int) ([]vectorstore.ScoredPoint, error) {
	// chromem rejects nResults larger than the collection; rank everything
	// and let the filter cut it down.
	n := s.col.Count()
	if n == 0 {
		return nil, nil
	}

	results, err := s.col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, &vectorstore.ServiceError{Op: "query", Body: err.Error()}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []vectorstore.ScoredPoint
	for _, r := range results {
		e, ok := s.records[r.ID]
		if !ok || !matches(&e.record, f) {
			continue
		}
		rec := e.record
		hits = append(hits, vectorstore.ScoredPoint{
			Point: vectorstore.Point{ID: r.ID, Record: &rec},
			Score: float64(r.Similarity),
		})
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

// Scroll returns up to limit matching points in map order.
func (s *Store) Scroll(ctx context.Context, f vectorstore.Filter, limit int) ([]vectorstore.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var points []vectorstore.Point
	for id, e := range s.records {
		if !matches(&e.record, f) {
			continue
		}
		rec := e.record
		points = append(points, vectorstore.Point{ID: id, Record: &rec})
		if len(points) == limit {
			break
		}
	}
	return points, nil
}

// Fetch returns one point by id.
func (s *Store) Fetch(ctx context.Context, id string) (*vectorstore.Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.records[id]
	if !ok {
		return nil, vectorstore.ErrNotFound
	}
	rec := e.record
	return &vectorstore.Point{ID: id, Vector: e.vector, Record: &rec}, nil
}

// PatchPayload applies the patch to the mirrored record. Last write wins.
func (s *Store) PatchPayload(ctx context.Context, id string, patch vectorstore.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[id]
	if !ok {
		return vectorstore.ErrNotFound
	}
	if patch.Importance != nil {
		e.record.Importance = *patch.Importance
	}
	if patch.ImportanceHistory != nil {
		e.record.ImportanceHistory = append([]float64(nil), patch.ImportanceHistory...)
	}
	if patch.RetrievalCount != nil {
		e.record.RetrievalCount = *patch.RetrievalCount
	}
	if patch.UtilizationCount != nil {
		e.record.UtilizationCount = *patch.UtilizationCount
	}
	if patch.OutcomeCount != nil {
		e.record.OutcomeCount = *patch.OutcomeCount
	}
	if patch.LastRetrieved != nil {
		t := *patch.LastRetrieved
		e.record.LastRetrieved = &t
	}
	if patch.LastUtilized != nil {
		t := *patch.LastUtilized
		e.record.LastUtilized = &t
	}
	if patch.LastBoosted != nil {
		t := *patch.LastBoosted
		e.record.LastBoosted = &t
	}
	if patch.HasColbert != nil {
		e.record.HasColbert = *patch.HasColbert
	}
	if patch.ColbertTokenCount != nil {
		e.record.ColbertTokenCount = *patch.ColbertTokenCount
	}
	return nil
}

// Count returns the number of matching points.
func (s *Store) Count(ctx context.Context, f vectorstore.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.records {
		if matches(&e.record, f) {
			n++
		}
	}
	return n, nil
}

// Close is a no-op; everything lives in process memory.
func (s *Store) Close() error { return nil }

// matches applies the shared filter semantics to one record.
func matches(rec *types.MemoryRecord, f vectorstore.Filter) bool {
	if f.AgentID != "" && rec.AgentID != f.AgentID {
		return false
	}
	if len(f.MemoryTypes) > 0 {
		found := false
		for _, t := range f.MemoryTypes {
			if rec.MemoryType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.MinImportance > 0 && rec.Importance < f.MinImportance {
		return false
	}
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	if f.SessionID != "" && rec.SessionID != f.SessionID {
		return false
	}
	if len(f.Entities) > 0 && !rec.IntersectsEntities(f.Entities) {
		return false
	}
	return true
}

package chromem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scrypster/recall/internal/vectorstore"
	"github.com/scrypster/recall/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New("test_memory")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func record(id, content string, importance float64, entities ...string) *types.MemoryRecord {
	return &types.MemoryRecord{
		ID:         id,
		Content:    content,
		MemoryType: types.Semantic,
		AgentID:    "default",
		Importance: importance,
		Timestamp:  time.Now().UTC(),
		Entities:   entities,
	}
}

func TestUpsertFetchCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := record("id-1", "prefers dark mode", 0.8, "user", "preferences")
	if err := s.Upsert(ctx, vectorstore.Point{ID: rec.ID, Vector: []float32{1, 0, 0}, Record: rec}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Fetch(ctx, "id-1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got.Record.Content != rec.Content {
		t.Errorf("unexpected content %q", got.Record.Content)
	}

	n, err := s.Count(ctx, vectorstore.Filter{AgentID: "default"})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected count 1, got %d", n)
	}

	// Other agents never see the point.
	n, _ = s.Count(ctx, vectorstore.Filter{AgentID: "other"})
	if n != 0 {
		t.Errorf("agent scoping leak: count=%d", n)
	}
}

func TestFetch_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Fetch(context.Background(), "nope"); !errors.Is(err, vectorstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQuery_RanksBySimilarity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := record("id-a", "alpha", 0.5)
	b := record("id-b", "beta", 0.5)
	s.Upsert(ctx, vectorstore.Point{ID: a.ID, Vector: []float32{1, 0, 0}, Record: a})
	s.Upsert(ctx, vectorstore.Point{ID: b.ID, Vector: []float32{0, 1, 0}, Record: b})

	hits, err := s.Query(ctx, []float32{0.9, 0.1, 0}, vectorstore.Filter{AgentID: "default"}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ID != "id-a" {
		t.Errorf("expected id-a ranked first, got %s", hits[0].ID)
	}
}

func TestQuery_FilterByImportanceAndEntities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hi := record("id-hi", "high importance", 0.9, "user")
	lo := record("id-lo", "low importance", 0.2, "deployment")
	s.Upsert(ctx, vectorstore.Point{ID: hi.ID, Vector: []float32{1, 0}, Record: hi})
	s.Upsert(ctx, vectorstore.Point{ID: lo.ID, Vector: []float32{1, 0}, Record: lo})

	hits, err := s.Query(ctx, []float32{1, 0}, vectorstore.Filter{AgentID: "default", MinImportance: 0.5}, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "id-hi" {
		t.Errorf("importance filter failed: %+v", hits)
	}

	points, err := s.Scroll(ctx, vectorstore.Filter{AgentID: "default", Entities: []string{"user", "preferences"}}, 10)
	if err != nil {
		t.Fatalf("Scroll: %v", err)
	}
	if len(points) != 1 || points[0].ID != "id-hi" {
		t.Errorf("entity intersection filter failed: %+v", points)
	}
}

func TestQuery_EmptyCollection(t *testing.T) {
	s := newTestStore(t)
	hits, err := s.Query(context.Background(), []float32{1, 0}, vectorstore.Filter{}, 5)
	if err != nil {
		t.Fatalf("Query on empty collection: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestPatchPayload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := record("id-1", "patched later", 0.5)
	s.Upsert(ctx, vectorstore.Point{ID: rec.ID, Vector: []float32{1}, Record: rec})

	imp := 0.75
	count := 2
	now := time.Now().UTC()
	err := s.PatchPayload(ctx, "id-1", vectorstore.Patch{
		Importance:        &imp,
		RetrievalCount:    &count,
		LastBoosted:       &now,
		ImportanceHistory: []float64{0.5, 0.75},
	})
	if err != nil {
		t.Fatalf("PatchPayload: %v", err)
	}

	got, _ := s.Fetch(ctx, "id-1")
	if got.Record.Importance != 0.75 || got.Record.RetrievalCount != 2 {
		t.Errorf("patch not applied: %+v", got.Record)
	}
	if len(got.Record.ImportanceHistory) != 2 {
		t.Errorf("history not replaced: %v", got.Record.ImportanceHistory)
	}

	if err := s.PatchPayload(ctx, "ghost", vectorstore.Patch{Importance: &imp}); !errors.Is(err, vectorstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing id, got %v", err)
	}
}

func TestFetch_ReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := record("id-1", "original", 0.5)
	s.Upsert(ctx, vectorstore.Point{ID: rec.ID, Vector: []float32{1}, Record: rec})

	got, _ := s.Fetch(ctx, "id-1")
	got.Record.Content = "mutated by caller"

	again, _ := s.Fetch(ctx, "id-1")
	if again.Record.Content != "original" {
		t.Error("Fetch must return copies, not internal pointers")
	}
}

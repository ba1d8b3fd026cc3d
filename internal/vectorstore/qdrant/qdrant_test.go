package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/scrypster/recall/internal/vectorstore"
	"github.com/scrypster/recall/pkg/types"
)

func testRecord() *types.MemoryRecord {
	return &types.MemoryRecord{
		ID:                "7c6d3f92-32cd-4a0e-8f44-111111111111",
		Content:           "Coolify deploys from the main branch",
		MemoryType:        types.Semantic,
		AgentID:           "default",
		Importance:        0.7,
		InitialImportance: 0.7,
		Timestamp:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Entities:          []string{"coolify", "deployment"},
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	rec := testRecord()
	payload, err := recordToPayload(rec)
	if err != nil {
		t.Fatalf("recordToPayload: %v", err)
	}
	if _, ok := payload["id"]; ok {
		t.Error("payload must not duplicate the point id")
	}
	if payload["agent_id"] != "default" {
		t.Errorf("agent_id missing from payload: %v", payload["agent_id"])
	}

	back, err := payloadToRecord(rec.ID, payload)
	if err != nil {
		t.Fatalf("payloadToRecord: %v", err)
	}
	if back.Content != rec.Content || back.MemoryType != rec.MemoryType || back.Importance != rec.Importance {
		t.Errorf("round trip mismatch: %+v", back)
	}
	if !back.Timestamp.Equal(rec.Timestamp) {
		t.Errorf("timestamp mismatch: %v vs %v", back.Timestamp, rec.Timestamp)
	}
}

func TestBuildFilter(t *testing.T) {
	f := vectorstore.Filter{
		AgentID:       "default",
		MemoryTypes:   []types.MemoryType{types.Semantic, types.Episodic},
		MinImportance: 0.5,
		Entities:      []string{"user", "preferences"},
	}
	qf := buildFilter(f)
	if qf == nil {
		t.Fatal("expected non-nil filter")
	}
	must := qf["must"].([]map[string]any)
	if len(must) != 3 {
		t.Errorf("expected 3 must conditions, got %d", len(must))
	}
	should := qf["should"].([]map[string]any)
	if len(should) != 2 {
		t.Errorf("expected 2 should conditions for any-of entities, got %d", len(should))
	}
}

func TestBuildFilter_Empty(t *testing.T) {
	if qf := buildFilter(vectorstore.Filter{}); qf != nil {
		t.Errorf("zero filter should build nil, got %v", qf)
	}
}

// fakeQdrant records the last request body per path and serves canned
// responses wrapped in the Qdrant envelope.
type fakeQdrant struct {
	mux      *http.ServeMux
	requests map[string]json.RawMessage
}

func newFakeQdrant(t *testing.T, results map[string]any) (*fakeQdrant, *httptest.Server) {
	t.Helper()
	f := &fakeQdrant{mux: http.NewServeMux(), requests: map[string]json.RawMessage{}}
	for path, result := range results {
		path, result := path, result
		f.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			var body json.RawMessage
			json.NewDecoder(r.Body).Decode(&body)
			f.requests[path] = body
			json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
		})
	}
	return f, httptest.NewServer(f.mux)
}

func TestUpsertAndSearch(t *testing.T) {
	rec := testRecord()
	payload, _ := recordToPayload(rec)
	f, srv := newFakeQdrant(t, map[string]any{
		"/collections/agent_memory/points": map[string]any{"status": "acknowledged"},
		"/collections/agent_memory/points/search": []map[string]any{
			{"id": rec.ID, "score": 0.91, "payload": payload},
		},
	})
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL, Collection: "agent_memory"})
	err := s.Upsert(context.Background(), vectorstore.Point{ID: rec.ID, Vector: []float32{0.1, 0.2}, Record: rec})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	var upsertReq struct {
		Points []struct {
			ID     string         `json:"id"`
			Vector map[string]any `json:"vector"`
		} `json:"points"`
	}
	json.Unmarshal(f.requests["/collections/agent_memory/points"], &upsertReq)
	if len(upsertReq.Points) != 1 || upsertReq.Points[0].ID != rec.ID {
		t.Fatalf("unexpected upsert request: %+v", upsertReq)
	}
	if _, ok := upsertReq.Points[0].Vector[denseVectorName]; !ok {
		t.Error("upsert must use the named dense vector")
	}

	hits, err := s.Query(context.Background(), []float32{0.1, 0.2}, vectorstore.Filter{AgentID: "default"}, 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 1 || hits[0].Score != 0.91 || hits[0].Record.Content != rec.Content {
		t.Errorf("unexpected hits: %+v", hits)
	}
}

func TestCount(t *testing.T) {
	_, srv := newFakeQdrant(t, map[string]any{
		"/collections/agent_memory/points/count": map[string]any{"count": 42},
	})
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL, Collection: "agent_memory"})
	n, err := s.Count(context.Background(), vectorstore.Filter{AgentID: "default"})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 42 {
		t.Errorf("expected 42, got %d", n)
	}
}

func TestFetch_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL, Collection: "agent_memory"})
	_, err := s.Fetch(context.Background(), "missing-id")
	if !errors.Is(err, vectorstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQuery_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "wal full", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL, Collection: "agent_memory"})
	_, err := s.Query(context.Background(), []float32{0.1}, vectorstore.Filter{}, 5)
	if !errors.Is(err, vectorstore.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	var svcErr *vectorstore.ServiceError
	if !errors.As(err, &svcErr) || !svcErr.Transient() {
		t.Errorf("5xx should be transient: %v", err)
	}
}

func TestQuery_BadRequestIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad vector size", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL, Collection: "agent_memory"})
	_, err := s.Query(context.Background(), []float32{0.1}, vectorstore.Filter{}, 5)
	var svcErr *vectorstore.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if svcErr.Transient() {
		t.Error("4xx must not be transient")
	}
}

func TestPatchPayload_SendsFields(t *testing.T) {
	f, srv := newFakeQdrant(t, map[string]any{
		"/collections/agent_memory/points/payload": map[string]any{"status": "acknowledged"},
	})
	defer srv.Close()

	s := New(Config{BaseURL: srv.URL, Collection: "agent_memory"})
	imp := 0.85
	count := 3
	err := s.PatchPayload(context.Background(), "some-id", vectorstore.Patch{
		Importance:     &imp,
		RetrievalCount: &count,
	})
	if err != nil {
		t.Fatalf("PatchPayload: %v", err)
	}

	var req struct {
		Payload map[string]any `json:"payload"`
		Points  []string       `json:"points"`
	}
	json.Unmarshal(f.requests["/collections/agent_memory/points/payload"], &req)
	if req.Payload["importance"] != 0.85 {
		t.Errorf("importance not patched: %v", req.Payload)
	}
	if len(req.Points) != 1 || req.Points[0] != "some-id" {
		t.Errorf("unexpected points list: %v", req.Points)
	}
}

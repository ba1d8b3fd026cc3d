// Package qdrant implements vectorstore.Index against the Qdrant REST API.
// This is the primary backend: the collection holds a named dense vector per
// point plus an optional named ColBERT multivector populated by reindexing.
package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/scrypster/recall/internal/vectorstore"
	"github.com/scrypster/recall/pkg/types"
)

const (
	denseVectorName   = "dense"
	colbertVectorName = "colbert"
)

// Config holds connection settings for a Qdrant deployment.
type Config struct {
	// BaseURL of the Qdrant REST API, e.g. http://memory-qdrant:6333.
	BaseURL string

	// Collection name. One collection can hold multiple agents; payloads
	// carry the agent scope.
	Collection string

	// Timeout bounds each request.
	Timeout time.Duration

	// ColbertDimension is the per-token vector width reserved at collection
	// creation for late-interaction reranking.
	ColbertDimension int
}

// Store talks to one Qdrant collection.
type Store struct {
	http       *resty.Client
	collection string
	colbertDim int
}

var _ vectorstore.Index = (*Store)(nil)
var _ vectorstore.MultivectorIndex = (*Store)(nil)

// New creates a Qdrant-backed store.
func New(cfg Config) *Store {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.ColbertDimension == 0 {
		cfg.ColbertDimension = 128
	}
	return &Store{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetHeader("Content-Type", "application/json").
			SetTimeout(cfg.Timeout),
		collection: cfg.Collection,
		colbertDim: cfg.ColbertDimension,
	}
}

// envelope is Qdrant's response wrapper.
type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

// EnsureReady creates the collection when it does not exist yet.
func (s *Store) EnsureReady(ctx context.Context, dim int) error {
	resp, err := s.http.R().SetContext(ctx).Get("/collections/" + s.collection)
	if err != nil {
		return &vectorstore.ServiceError{Op: "ensure", Body: err.Error()}
	}
	if resp.StatusCode() == http.StatusOK {
		return nil
	}
	if resp.StatusCode() != http.StatusNotFound {
		return &vectorstore.ServiceError{Op: "ensure", Status: resp.StatusCode(), Body: resp.String()}
	}

	body := map[string]any{
		"vectors": map[string]any{
			denseVectorName: map[string]any{
				"size":     dim,
				"distance": "Cosine",
			},
			colbertVectorName: map[string]any{
				"size":     s.colbertDim,
				"distance": "Cosine",
				"multivector_config": map[string]any{
					"comparator": "max_sim",
				},
			},
		},
	}
	resp, err = s.http.R().SetContext(ctx).SetBody(body).Put("/collections/" + s.collection)
	if err != nil {
		return &vectorstore.ServiceError{Op: "create collection", Body: err.Error()}
	}
	if resp.StatusCode() != http.StatusOK {
		return &vectorstore.ServiceError{Op: "create collection", Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// Upsert writes points with their dense vectors and payloads.
func (s *Store) Upsert(ctx context.Context, points ...vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}
	wire := make([]map[string]any, 0, len(points))
	for _, p := range points {
		payload, err := recordToPayload(p.Record)
		if err != nil {
			return fmt.Errorf("qdrant: encode payload for %s: %w", p.ID, err)
		}
		wire = append(wire, map[string]any{
			"id":      p.ID,
			"vector":  map[string]any{denseVectorName: p.Vector},
			"payload": payload,
		})
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParam("wait", "true").
		SetBody(map[string]any{"points": wire}).
		Put(s.pointsPath(""))
	if err != nil {
		return &vectorstore.ServiceError{Op: "upsert", Body: err.Error()}
	}
	if resp.StatusCode() != http.StatusOK {
		return &vectorstore.ServiceError{Op: "upsert", Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// Query runs a filtered similarity search over the dense vector space.
func (s *Store) Query(ctx context.Context, vector []float32, f vectorstore.Filter, limit int) ([]vectorstore.ScoredPoint, error) {
	body := map[string]any{
		"vector":       map[string]any{"name": denseVectorName, "vector": vector},
		"limit":        limit,
		"with_payload": true,
	}
	if qf := buildFilter(f); qf != nil {
		body["filter"] = qf
	}

	var result []struct {
		ID      string         `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	}
	if err := s.post(ctx, "search", s.pointsPath("/search"), body, &result); err != nil {
		return nil, err
	}

	hits := make([]vectorstore.ScoredPoint, 0, len(result))
	for _, r := range result {
		rec, err := payloadToRecord(r.ID, r.Payload)
		if err != nil {
			return nil, fmt.Errorf("qdrant: decode payload for %s: %w", r.ID, err)
		}
		hits = append(hits, vectorstore.ScoredPoint{
			Point: vectorstore.Point{ID: r.ID, Record: rec},
			Score: r.Score,
		})
	}
	return hits, nil
}

// Scroll pages through points matching the filter, payloads only.
func (s *Store) Scroll(ctx context.Context, f vectorstore.Filter, limit int) ([]vectorstore.Point, error) {
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
	}
	if qf := buildFilter(f); qf != nil {
		body["filter"] = qf
	}

	var result struct {
		Points []struct {
			ID      string         `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	if err := s.post(ctx, "scroll", s.pointsPath("/scroll"), body, &result); err != nil {
		return nil, err
	}

	points := make([]vectorstore.Point, 0, len(result.Points))
	for _, r := range result.Points {
		rec, err := payloadToRecord(r.ID, r.Payload)
		if err != nil {
			return nil, fmt.Errorf("qdrant: decode payload for %s: %w", r.ID, err)
		}
		points = append(points, vectorstore.Point{ID: r.ID, Record: rec})
	}
	return points, nil
}

// Fetch retrieves one point by id.
func (s *Store) Fetch(ctx context.Context, id string) (*vectorstore.Point, error) {
	resp, err := s.http.R().SetContext(ctx).Get(s.pointsPath("/" + id))
	if err != nil {
		return nil, &vectorstore.ServiceError{Op: "fetch", Body: err.Error()}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, vectorstore.ErrNotFound
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &vectorstore.ServiceError{Op: "fetch", Status: resp.StatusCode(), Body: resp.String()}
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, &vectorstore.ServiceError{Op: "fetch", Body: err.Error()}
	}
	var result struct {
		ID      string         `json:"id"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, &vectorstore.ServiceError{Op: "fetch", Body: err.Error()}
	}
	if result.ID == "" {
		return nil, vectorstore.ErrNotFound
	}
	rec, err := payloadToRecord(result.ID, result.Payload)
	if err != nil {
		return nil, fmt.Errorf("qdrant: decode payload for %s: %w", id, err)
	}
	return &vectorstore.Point{ID: result.ID, Record: rec}, nil
}

// PatchPayload merges the patch fields into the stored payload.
func (s *Store) PatchPayload(ctx context.Context, id string, patch vectorstore.Patch) error {
	fields := patch.Fields()
	if len(fields) == 0 {
		return nil
	}
	body := map[string]any{
		"payload": fields,
		"points":  []string{id},
	}
	var ignored json.RawMessage
	if err := s.post(ctx, "patch payload", s.pointsPath("/payload"), body, &ignored); err != nil {
		return err
	}
	return nil
}

// Count returns the exact number of points matching the filter.
func (s *Store) Count(ctx context.Context, f vectorstore.Filter) (int, error) {
	body := map[string]any{"exact": true}
	if qf := buildFilter(f); qf != nil {
		body["filter"] = qf
	}
	var result struct {
		Count int `json:"count"`
	}
	if err := s.post(ctx, "count", s.pointsPath("/count"), body, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// UpdateTokenVectors replaces the named ColBERT multivector for one point.
func (s *Store) UpdateTokenVectors(ctx context.Context, id string, vectors [][]float32) error {
	body := map[string]any{
		"points": []map[string]any{
			{"id": id, "vector": map[string]any{colbertVectorName: vectors}},
		},
	}
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParam("wait", "true").
		SetBody(body).
		Put(s.pointsPath("/vectors"))
	if err != nil {
		return &vectorstore.ServiceError{Op: "update vectors", Body: err.Error()}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return vectorstore.ErrNotFound
	}
	if resp.StatusCode() != http.StatusOK {
		return &vectorstore.ServiceError{Op: "update vectors", Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// Close is a no-op; the HTTP client holds no persistent resources.
func (s *Store) Close() error { return nil }

func (s *Store) pointsPath(suffix string) string {
	return "/collections/" + s.collection + "/points" + suffix
}

// post issues a POST, unwraps the Qdrant envelope and decodes result into out.
func (s *Store) post(ctx context.Context, op, path string, body any, out any) error {
	resp, err := s.http.R().SetContext(ctx).SetBody(body).Post(path)
	if err != nil {
		return &vectorstore.ServiceError{Op: op, Body: err.Error()}
	}
	if resp.StatusCode() != http.StatusOK {
		return &vectorstore.ServiceError{Op: op, Status: resp.StatusCode(), Body: resp.String()}
	}
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return &vectorstore.ServiceError{Op: op, Body: "malformed response: " + err.Error()}
	}
	if len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return &vectorstore.ServiceError{Op: op, Body: "malformed result: " + err.Error()}
	}
	return nil
}

// buildFilter translates a vectorstore.Filter into Qdrant filter JSON.
// Entities go into a should group, which gives any-of semantics alongside
// the must conditions.
func buildFilter(f vectorstore.Filter) map[string]any {
	var must []map[string]any
	if f.AgentID != "" {
		must = append(must, map[string]any{
			"key": "agent_id", "match": map[string]any{"value": f.AgentID},
		})
	}
	if len(f.MemoryTypes) > 0 {
		anyOf := make([]string, 0, len(f.MemoryTypes))
		for _, t := range f.MemoryTypes {
			anyOf = append(anyOf, string(t))
		}
		must = append(must, map[string]any{
			"key": "memory_type", "match": map[string]any{"any": anyOf},
		})
	}
	if f.MinImportance > 0 {
		must = append(must, map[string]any{
			"key": "importance", "range": map[string]any{"gte": f.MinImportance},
		})
	}
	if !f.Since.IsZero() {
		must = append(must, map[string]any{
			"key": "timestamp", "range": map[string]any{"gte": f.Since.UTC().Format(time.RFC3339Nano)},
		})
	}
	if f.SessionID != "" {
		must = append(must, map[string]any{
			"key": "session_id", "match": map[string]any{"value": f.SessionID},
		})
	}
	var should []map[string]any
	for _, e := range f.Entities {
		should = append(should, map[string]any{
			"key": "entities", "match": map[string]any{"value": e},
		})
	}

	if len(must) == 0 && len(should) == 0 {
		return nil
	}
	filter := map[string]any{}
	if len(must) > 0 {
		filter["must"] = must
	}
	if len(should) > 0 {
		filter["should"] = should
	}
	return filter
}

// recordToPayload converts a record to the wire payload (id lives outside the
// payload in Qdrant's point structure).
func recordToPayload(rec *types.MemoryRecord) (map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	delete(payload, "id")
	return payload, nil
}

// payloadToRecord converts a wire payload back to a record.
func payloadToRecord(id string, payload map[string]any) (*types.MemoryRecord, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var rec types.MemoryRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	rec.ID = id
	return &rec, nil
}

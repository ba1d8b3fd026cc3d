// Package vectorstore defines the capability interface recall expects from a
// vector database, plus the filter and patch vocabulary shared by all
// backends. The index math itself always lives in the backend service (or
// embedded library); this layer only moves points and payloads.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/recall/pkg/types"
)

// ErrNotFound indicates the referenced point id does not exist.
var ErrNotFound = errors.New("memory not found")

// ErrUnavailable indicates the backing store could not serve the request.
var ErrUnavailable = errors.New("vector store unavailable")

// ServiceError wraps a failed backend call with enough detail for the caller
// to decide on retry.
type ServiceError struct {
	Op     string // operation name, e.g. "upsert"
	Status int    // HTTP status, 0 for transport-level failures
	Body   string // response body excerpt, may be empty
}

func (e *ServiceError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("vector store unavailable: %s failed: %s", e.Op, e.Body)
	}
	return fmt.Sprintf("vector store unavailable: %s returned status %d: %s", e.Op, e.Status, e.Body)
}

// Unwrap makes errors.Is(err, ErrUnavailable) hold for every ServiceError.
func (e *ServiceError) Unwrap() error { return ErrUnavailable }

// Transient reports whether retrying could plausibly succeed: transport
// failures, timeouts and 5xx responses are transient; 4xx are not.
func (e *ServiceError) Transient() bool {
	return e.Status == 0 || e.Status >= 500
}

// Point is one stored memory: its id, dense vector and payload record.
// Vector may be nil on reads that only request payloads.
type Point struct {
	ID     string
	Vector []float32
	Record *types.MemoryRecord
}

// Filter narrows queries, scrolls and counts. The zero value matches
// everything; the engine always sets AgentID before a filter reaches a
// backend.
type Filter struct {
	AgentID       string
	MemoryTypes   []types.MemoryType
	MinImportance float64

	// Entities matches records whose entity set intersects this set
	// (any-of, not all-of).
	Entities []string

	// Since keeps records with timestamp >= Since when non-zero.
	Since time.Time

	SessionID string
}

// ScoredPoint is a query hit with its similarity score.
type ScoredPoint struct {
	Point
	Score float64
}

// Patch is an in-place payload update. Nil fields are left untouched;
// ImportanceHistory, when non-nil, replaces the stored history outright.
type Patch struct {
	Importance        *float64
	ImportanceHistory []float64
	RetrievalCount    *int
	UtilizationCount  *int
	OutcomeCount      *int
	LastRetrieved     *time.Time
	LastUtilized      *time.Time
	LastBoosted       *time.Time
	HasColbert        *bool
	ColbertTokenCount *int
}

// Fields returns the patch as wire-format payload keys. Backends that patch
// JSON payloads (qdrant, chromem) apply this map directly.
func (p Patch) Fields() map[string]any {
	m := make(map[string]any)
	if p.Importance != nil {
		m["importance"] = *p.Importance
	}
	if p.ImportanceHistory != nil {
		m["importance_history"] = p.ImportanceHistory
	}
	if p.RetrievalCount != nil {
		m["retrieval_count"] = *p.RetrievalCount
	}
	if p.UtilizationCount != nil {
		m["utilization_count"] = *p.UtilizationCount
	}
	if p.OutcomeCount != nil {
		m["outcome_count"] = *p.OutcomeCount
	}
	if p.LastRetrieved != nil {
		m["last_retrieved"] = p.LastRetrieved.UTC().Format(time.RFC3339Nano)
	}
	if p.LastUtilized != nil {
		m["last_utilized"] = p.LastUtilized.UTC().Format(time.RFC3339Nano)
	}
	if p.LastBoosted != nil {
		m["last_boosted"] = p.LastBoosted.UTC().Format(time.RFC3339Nano)
	}
	if p.HasColbert != nil {
		m["has_colbert"] = *p.HasColbert
	}
	if p.ColbertTokenCount != nil {
		m["colbert_token_count"] = *p.ColbertTokenCount
	}
	return m
}

// Index is the vector store capability recall depends on. Implementations
// must be safe for concurrent use. No method provides read-modify-write
// atomicity; concurrent patches to the same point are last-write-wins.
type Index interface {
	// EnsureReady creates the collection (or schema) when missing.
	// Idempotent.
	EnsureReady(ctx context.Context, dim int) error

	// Upsert writes points by id. Re-upserting an id replaces the point,
	// which makes retried stores idempotent.
	Upsert(ctx context.Context, points ...Point) error

	// Query returns up to limit points by descending similarity to vector,
	// restricted by f. An empty result is not an error.
	Query(ctx context.Context, vector []float32, f Filter, limit int) ([]ScoredPoint, error)

	// Scroll returns up to limit points matching f, payloads only, in
	// backend order. Callers sort.
	Scroll(ctx context.Context, f Filter, limit int) ([]Point, error)

	// Fetch returns one point by id, or ErrNotFound.
	Fetch(ctx context.Context, id string) (*Point, error)

	// PatchPayload applies an in-place payload update to id, or ErrNotFound.
	PatchPayload(ctx context.Context, id string, patch Patch) error

	// Count returns the number of points matching f.
	Count(ctx context.Context, f Filter) (int, error)

	// Close releases backend resources.
	Close() error
}

// MultivectorIndex is implemented by backends that store named
// late-interaction vectors alongside the dense vector (qdrant only).
type MultivectorIndex interface {
	// UpdateTokenVectors replaces the ColBERT token vectors for id.
	UpdateTokenVectors(ctx context.Context, id string, vectors [][]float32) error
}

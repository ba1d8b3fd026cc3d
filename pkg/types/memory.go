// Package types defines the memory record schema shared by every layer of
// recall. Records are persisted as vector-store payloads, so the JSON tags
// here are the wire format and must stay stable across releases.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidInput indicates malformed caller input: an empty required field,
// an unknown memory type, or an importance value outside [0,1].
var ErrInvalidInput = errors.New("invalid input")

// MemoryType classifies how a record was formed and how long it should matter.
type MemoryType string

const (
	// Semantic is a distilled, durable fact ("prefers tabs over spaces").
	Semantic MemoryType = "semantic"

	// Episodic is a conversation or event record, usually tied to a session.
	Episodic MemoryType = "episodic"

	// Working is short-lived session context.
	Working MemoryType = "working"
)

// ParseMemoryType validates and normalizes a memory type string.
func ParseMemoryType(s string) (MemoryType, error) {
	switch MemoryType(strings.ToLower(strings.TrimSpace(s))) {
	case Semantic:
		return Semantic, nil
	case Episodic:
		return Episodic, nil
	case Working:
		return Working, nil
	}
	return "", fmt.Errorf("%w: unknown memory type %q", ErrInvalidInput, s)
}

// Signal classifies how a retrieved memory was used, in increasing order of
// evidential weight.
type Signal string

const (
	// SignalRetrieval means the record was merely returned by a query.
	SignalRetrieval Signal = "retrieval"

	// SignalUtilization means the record was returned and then referenced
	// by the consumer.
	SignalUtilization Signal = "utilization"

	// SignalOutcome means a confirmed result was attributed to the record.
	SignalOutcome Signal = "outcome"
)

// ParseSignal validates and normalizes a reinforcement signal string.
func ParseSignal(s string) (Signal, error) {
	switch Signal(strings.ToLower(strings.TrimSpace(s))) {
	case SignalRetrieval:
		return SignalRetrieval, nil
	case SignalUtilization:
		return SignalUtilization, nil
	case SignalOutcome:
		return SignalOutcome, nil
	}
	return "", fmt.Errorf("%w: unknown signal %q", ErrInvalidInput, s)
}

// MemoryRecord is the payload persisted per memory. The embedding vector
// itself lives in the external vector store and is not tracked here.
//
// Identity (ID), Content, Timestamp and Entities are immutable after
// creation. Importance and the usage counters are mutated in place by
// feedback; everything else only ever changes through consolidation
// creating new derived records.
type MemoryRecord struct {
	ID         string     `json:"id"`
	Content    string     `json:"content"`
	MemoryType MemoryType `json:"memory_type"`
	AgentID    string     `json:"agent_id"`
	Timestamp  time.Time  `json:"timestamp"`

	Importance        float64   `json:"importance"`
	InitialImportance float64   `json:"initial_importance"`
	ImportanceHistory []float64 `json:"importance_history,omitempty"`

	Entities  []string       `json:"entities,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// Usage counters, incremented by feedback.
	RetrievalCount   int        `json:"retrieval_count"`
	UtilizationCount int        `json:"utilization_count"`
	OutcomeCount     int        `json:"outcome_count"`
	LastRetrieved    *time.Time `json:"last_retrieved,omitempty"`
	LastUtilized     *time.Time `json:"last_utilized,omitempty"`
	LastBoosted      *time.Time `json:"last_boosted,omitempty"`

	// Consolidation bookkeeping. Set on derived semantic records; episodic
	// sources are never patched.
	Consolidated         bool     `json:"consolidated"`
	ConsolidatedFrom     []string `json:"consolidated_from,omitempty"`
	ConsolidationBatchID string   `json:"consolidation_batch_id,omitempty"`

	// Late-interaction reindex bookkeeping.
	HasColbert        bool `json:"has_colbert"`
	ColbertTokenCount int  `json:"colbert_token_count"`
}

// Validate checks record invariants that must hold before persistence.
func (r *MemoryRecord) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if _, err := ParseMemoryType(string(r.MemoryType)); err != nil {
		return err
	}
	if r.Importance < 0 || r.Importance > 1 {
		return fmt.Errorf("%w: importance %.3f outside [0,1]", ErrInvalidInput, r.Importance)
	}
	if r.RetrievalCount < 0 {
		return fmt.Errorf("%w: negative retrieval count", ErrInvalidInput)
	}
	return nil
}

// HasEntity reports whether the record carries the given entity tag.
// Matching is case-insensitive, consistent with entity slugs being
// lowercased at creation.
func (r *MemoryRecord) HasEntity(entity string) bool {
	entity = strings.ToLower(strings.TrimSpace(entity))
	for _, e := range r.Entities {
		if strings.ToLower(e) == entity {
			return true
		}
	}
	return false
}

// IntersectsEntities reports whether the record's entity set intersects the
// requested set. An empty request matches nothing.
func (r *MemoryRecord) IntersectsEntities(entities []string) bool {
	for _, e := range entities {
		if r.HasEntity(e) {
			return true
		}
	}
	return false
}

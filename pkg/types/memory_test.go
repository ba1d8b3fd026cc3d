package types

import (
	"errors"
	"testing"
	"time"
)

func validRecord() *MemoryRecord {
	return &MemoryRecord{
		ID:         "0f9f1c1e-8f1a-4c2e-9f57-3a4b2b7f9d11",
		Content:    "Master prefers minimal communication",
		MemoryType: Semantic,
		AgentID:    "default",
		Importance: 0.9,
		Timestamp:  time.Now().UTC(),
		Entities:   []string{"user", "preferences"},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validRecord().Validate(); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}
}

func TestValidate_EmptyContent(t *testing.T) {
	r := validRecord()
	r.Content = "   "
	if err := r.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestValidate_UnknownType(t *testing.T) {
	r := validRecord()
	r.MemoryType = "procedural"
	if err := r.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestValidate_ImportanceRange(t *testing.T) {
	for _, v := range []float64{-0.01, 1.01, 2.0} {
		r := validRecord()
		r.Importance = v
		if err := r.Validate(); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("importance=%v: expected ErrInvalidInput, got %v", v, err)
		}
	}
}

func TestParseMemoryType(t *testing.T) {
	mt, err := ParseMemoryType(" Episodic ")
	if err != nil {
		t.Fatalf("ParseMemoryType: %v", err)
	}
	if mt != Episodic {
		t.Errorf("expected episodic, got %s", mt)
	}
	if _, err := ParseMemoryType("short-term"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown type, got %v", err)
	}
}

func TestParseSignal(t *testing.T) {
	for _, s := range []string{"retrieval", "utilization", "outcome"} {
		if _, err := ParseSignal(s); err != nil {
			t.Errorf("ParseSignal(%q): %v", s, err)
		}
	}
	if _, err := ParseSignal("decay"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unknown signal, got %v", err)
	}
}

func TestIntersectsEntities(t *testing.T) {
	r := validRecord()
	if !r.IntersectsEntities([]string{"user", "deployment"}) {
		t.Error("expected intersection with shared entity")
	}
	if r.IntersectsEntities([]string{"deployment"}) {
		t.Error("expected no intersection for disjoint sets")
	}
	if r.IntersectsEntities(nil) {
		t.Error("empty request must match nothing")
	}
}

func TestHasEntity_CaseInsensitive(t *testing.T) {
	r := validRecord()
	r.Entities = []string{"Docker"}
	if !r.HasEntity("docker") {
		t.Error("entity matching should be case-insensitive")
	}
}

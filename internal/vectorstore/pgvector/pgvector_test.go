package pgvector

import (
	"strings"
	"testing"

	"github.com/scrypster/recall/internal/vectorstore"
	"github.com/scrypster/recall/pkg/types"
)

// The store itself needs a live Postgres with pgvector; these tests cover
// the SQL assembly, which is where the filter semantics live.

func TestBuildWhere_Empty(t *testing.T) {
	where, args := buildWhere(vectorstore.Filter{}, 1)
	if where != "" || args != nil {
		t.Errorf("zero filter should produce no WHERE clause, got %q %v", where, args)
	}
}

func TestBuildWhere_AllConditions(t *testing.T) {
	f := vectorstore.Filter{
		AgentID:       "default",
		MemoryTypes:   []types.MemoryType{types.Episodic},
		MinImportance: 0.4,
		SessionID:     "sess-1",
		Entities:      []string{"user"},
	}
	where, args := buildWhere(f, 2)
	if len(args) != 5 {
		t.Fatalf("expected 5 args, got %d", len(args))
	}
	for _, want := range []string{"agent_id = $2", "memory_type = ANY($3)", "importance >= $4", "session_id = $5", "entities && $6"} {
		if !strings.Contains(where, want) {
			t.Errorf("WHERE missing %q: %s", want, where)
		}
	}
}

func TestBuildWhere_PlaceholderOffset(t *testing.T) {
	// Query prepends the vector as $1, so filters must start at $2.
	where, _ := buildWhere(vectorstore.Filter{AgentID: "a"}, 2)
	if !strings.Contains(where, "$2") || strings.Contains(where, "$1 ") {
		t.Errorf("unexpected placeholders: %s", where)
	}
}

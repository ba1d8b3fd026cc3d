package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSections(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.HasSection(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.MarkSection(ctx, "abc123", "mem-1", "notes.md"))

	ok, err = s.HasSection(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, ok)

	// Re-marking is a no-op, not an error.
	require.NoError(t, s.MarkSection(ctx, "abc123", "mem-2", "other.md"))

	n, err := s.SectionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWatermark(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ts, err := s.Watermark(ctx, "consolidate")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	want := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, s.SetWatermark(ctx, "consolidate", want))

	ts, err = s.Watermark(ctx, "consolidate")
	require.NoError(t, err)
	assert.True(t, want.Equal(ts))

	// Advancing overwrites.
	later := want.Add(time.Hour)
	require.NoError(t, s.SetWatermark(ctx, "consolidate", later))
	ts, err = s.Watermark(ctx, "consolidate")
	require.NoError(t, err)
	assert.True(t, later.Equal(ts))
}

func TestReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.MarkSection(ctx, "h1", "m1", "a.md"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	ok, err := s.HasSection(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, ok)
}

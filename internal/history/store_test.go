// ABOUTME: Tests for the local SQLite transcript store.
// ABOUTME: Validates schema creation, append/read round trips, ordering, and limits.

package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_AppendAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.Append(ctx, Entry{
		ThreadID: "th-1", Role: "user", Text: "fix the parser", Timestamp: base,
	}))
	require.NoError(t, s.Append(ctx, Entry{
		ThreadID: "th-1", AgentID: "coder", Role: "agent", Text: "done", Timestamp: base.Add(time.Second),
	}))

	entries, err := s.Recent(ctx, "th-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Oldest first.
	assert.Equal(t, "fix the parser", entries[0].Text)
	assert.Equal(t, "user", entries[0].Role)
	assert.Equal(t, "done", entries[1].Text)
	assert.Equal(t, "coder", entries[1].AgentID)
	assert.NotEmpty(t, entries[0].ID, "missing ID should be filled in")
	assert.True(t, entries[1].Timestamp.After(entries[0].Timestamp))
}

func TestStore_RecentLimitKeepsNewest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, Entry{
			ThreadID:  "th-1",
			Role:      "user",
			Text:      string(rune('a' + i)),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := s.Recent(ctx, "th-1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// The limit keeps the newest entries, still returned oldest first.
	assert.Equal(t, "d", entries[0].Text)
	assert.Equal(t, "e", entries[1].Text)
}

func TestStore_RecentIsolatesThreads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, Entry{ThreadID: "th-1", Role: "user", Text: "one"}))
	require.NoError(t, s.Append(ctx, Entry{ThreadID: "th-2", Role: "user", Text: "two"}))

	entries, err := s.Recent(ctx, "th-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "one", entries[0].Text)
}

func TestStore_RecentEmptyThread(t *testing.T) {
	s := newTestStore(t)

	entries, err := s.Recent(context.Background(), "nope", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_Threads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	require.NoError(t, s.Append(ctx, Entry{ThreadID: "old", Role: "user", Text: "x", Timestamp: base}))
	require.NoError(t, s.Append(ctx, Entry{ThreadID: "new", Role: "user", Text: "y", Timestamp: base.Add(time.Minute)}))

	threads, err := s.Threads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "new", threads[0], "most recently active thread first")
}

func TestNewStore_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	s, err := NewStore(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(context.Background(), Entry{ThreadID: "t", Role: "user", Text: "hi"}))
}

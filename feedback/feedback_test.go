package feedback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeCases(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	sq, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	// Each connection to :memory: is a separate database.
	sq.db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"jsonl":  NewJSONLStore(t.TempDir()),
		"sqlite": sq,
	}
}

func TestStore_AppendLoadClear(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	persona := Key{Type: "persona", ID: "mentor"}
	writer := Key{Type: "writer", ID: "prose"}

	for name, s := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := s.Load(ctx, persona)
			require.NoError(t, err)
			assert.Empty(t, got)

			require.NoError(t, s.Append(ctx, persona, Entry{Timestamp: ts, Source: SourceAction, Outcome: OutcomeFeedback, Text: "Too formal", ThreadID: "t1", Turn: 0}))
			require.NoError(t, s.Append(ctx, persona, Entry{Timestamp: ts.Add(time.Minute), Source: SourceAction, Outcome: OutcomeAccepted, ThreadID: "t1", Turn: 1}))
			require.NoError(t, s.Append(ctx, writer, Entry{Timestamp: ts, Source: SourceManual, Outcome: OutcomeFeedback, Text: "More code"}))

			got, err = s.Load(ctx, persona)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "Too formal", got[0].Text)
			assert.Equal(t, OutcomeAccepted, got[1].Outcome)
			assert.Equal(t, 1, got[1].Turn)
			assert.True(t, ts.Add(time.Minute).Equal(got[1].Timestamp))

			require.NoError(t, s.Clear(ctx, persona))
			got, err = s.Load(ctx, persona)
			require.NoError(t, err)
			assert.Empty(t, got)

			// Other logs are untouched.
			got, err = s.Load(ctx, writer)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, SourceManual, got[0].Source)

			// Clearing an empty log is fine.
			require.NoError(t, s.Clear(ctx, persona))
		})
	}
}

func TestStore_ConsumeKeepsLaterEntries(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	key := Key{Type: "persona", ID: "mentor"}
	other := Key{Type: "writer", ID: "prose"}

	for name, s := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, text := range []string{"a", "b", "c"} {
				require.NoError(t, s.Append(ctx, key, Entry{Timestamp: ts, Source: SourceManual, Outcome: OutcomeFeedback, Text: text}))
			}
			require.NoError(t, s.Append(ctx, other, Entry{Timestamp: ts, Source: SourceManual, Outcome: OutcomeFeedback, Text: "z"}))

			require.NoError(t, s.Consume(ctx, key, 2))
			got, err := s.Load(ctx, key)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "c", got[0].Text)

			require.NoError(t, s.Append(ctx, key, Entry{Timestamp: ts, Source: SourceManual, Outcome: OutcomeFeedback, Text: "d"}))
			got, err = s.Load(ctx, key)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "d", got[1].Text)

			// Consuming more than is there empties the log.
			require.NoError(t, s.Consume(ctx, key, 5))
			got, err = s.Load(ctx, key)
			require.NoError(t, err)
			assert.Empty(t, got)
			require.NoError(t, s.Consume(ctx, key, 1))
			require.NoError(t, s.Consume(ctx, key, 0))

			got, err = s.Load(ctx, other)
			require.NoError(t, err)
			assert.Len(t, got, 1)
		})
	}
}

func TestSQLiteStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	var mode string
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	key := Key{Type: "persona", ID: "mentor"}
	const writers = 16
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Append(ctx, key, Entry{Timestamp: time.Now(), Source: SourceManual, Outcome: OutcomeFeedback, Text: fmt.Sprintf("note %d", i)})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Load(ctx, key)
	require.NoError(t, err)
	assert.Len(t, got, writers)
}

func TestStore_RejectsUnsafeKeys(t *testing.T) {
	for name, s := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Append(context.Background(), Key{Type: "persona", ID: "../x"}, Entry{})
			assert.ErrorContains(t, err, "invalid feedback key")
		})
	}
}

func TestJSONLStore_FileLayout(t *testing.T) {
	root := t.TempDir()
	s := NewJSONLStore(root)
	key := Key{Type: "architect", ID: "architect"}
	require.NoError(t, s.Append(context.Background(), key, Entry{Source: SourceAction, Outcome: OutcomeFeedback, Text: "narrower"}))

	raw, err := os.ReadFile(filepath.Join(root, "architect", "architect", FileName))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"outcome":"feedback"`)
	assert.Contains(t, string(raw), `"text":"narrower"`)
	assert.Equal(t, byte('\n'), raw[len(raw)-1])
}

func TestJSONLStore_CorruptLineIsReported(t *testing.T) {
	root := t.TempDir()
	s := NewJSONLStore(root)
	key := Key{Type: "writer", ID: "prose"}
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path(key)), 0o755))
	require.NoError(t, os.WriteFile(s.Path(key), []byte("{\"outcome\":\"accepted\"}\nnot json\n"), 0o644))

	_, err := s.Load(context.Background(), key)
	assert.ErrorContains(t, err, "line 2")
}

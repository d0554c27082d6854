package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SchemaDDL creates the feedback table.
const SchemaDDL = `
CREATE TABLE IF NOT EXISTS feedback (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_type TEXT NOT NULL,
	agent_id   TEXT NOT NULL,
	ts         TEXT NOT NULL,
	source     TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	text       TEXT NOT NULL DEFAULT '',
	thread_id  TEXT NOT NULL DEFAULT '',
	turn       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_feedback_agent ON feedback(agent_type, agent_id, seq);
`

// SQLiteStore keeps every agent's log in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps db and makes sure the schema exists.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, SchemaDDL); err != nil {
		return nil, fmt.Errorf("feedback schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// BusyTimeout is how long a connection waits on a locked database before
// failing with SQLITE_BUSY.
const BusyTimeout = 5000 * time.Millisecond

// OpenSQLite opens (or creates) the database file at path in WAL mode.
// busy_timeout is per connection, so it rides on the DSN and every pooled
// connection gets it.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)", path, BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open feedback db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping feedback db: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", BusyTimeout.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	s, err := NewSQLiteStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Append(ctx context.Context, key Key, e Entry) error {
	if err := validKey(key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (agent_type, agent_id, ts, source, outcome, text, thread_id, turn)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key.Type, key.ID, e.Timestamp.UTC().Format(time.RFC3339Nano),
		string(e.Source), string(e.Outcome), e.Text, e.ThreadID, e.Turn,
	)
	if err != nil {
		return fmt.Errorf("feedback insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, key Key) ([]Entry, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, source, outcome, text, thread_id, turn
		 FROM feedback WHERE agent_type = ? AND agent_id = ? ORDER BY seq`,
		key.Type, key.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("feedback query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e               Entry
			ts, src, outcom string
		)
		if err := rows.Scan(&ts, &src, &outcom, &e.Text, &e.ThreadID, &e.Turn); err != nil {
			return nil, fmt.Errorf("feedback scan: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("feedback timestamp %q: %w", ts, err)
		}
		e.Source = Source(src)
		e.Outcome = Outcome(outcom)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("feedback rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, key Key) error {
	if err := validKey(key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM feedback WHERE agent_type = ? AND agent_id = ?`, key.Type, key.ID,
	); err != nil {
		return fmt.Errorf("feedback clear: %w", err)
	}
	return nil
}

// Consume deletes the oldest n entries of key, leaving anything appended
// after they were loaded.
func (s *SQLiteStore) Consume(ctx context.Context, key Key, n int) error {
	if err := validKey(key); err != nil {
		return err
	}
	if n <= 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM feedback WHERE seq IN (
		   SELECT seq FROM feedback WHERE agent_type = ? AND agent_id = ? ORDER BY seq LIMIT ?)`,
		key.Type, key.ID, n,
	); err != nil {
		return fmt.Errorf("feedback consume: %w", err)
	}
	return nil
}

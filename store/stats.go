package store

// Stats keeps the chat-event stream in sqlite.  A stats query is a
// COUNT over [now-window, now], filtered by group, stat kind, and
// optionally user.

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const statsSchema = `
CREATE TABLE IF NOT EXISTS events (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id INTEGER NOT NULL,
	user_id  INTEGER,
	tag      TEXT NOT NULL,
	at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_group_at ON events (group_id, at);
`

// Stats is a StatsStore over a sqlite database.  Use ":memory:" for
// tests.
type Stats struct {
	db *sql.DB
}

// OpenStats opens (and if needed creates) the stats database.
func OpenStats(path string) (*Stats, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases coherent and
	// serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(statsSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &Stats{db: db}, nil
}

// Close closes the database.
func (s *Stats) Close() error {
	return s.db.Close()
}

func (s *Stats) Record(ctx context.Context, groupID, userID int64, tag string, at time.Time) error {
	var user interface{}
	if userID != 0 {
		user = userID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (group_id, user_id, tag, at) VALUES (?, ?, ?, ?)`,
		groupID, user, tag, at.Unix())
	return err
}

func (s *Stats) Count(ctx context.Context, groupID int64, kind string, window time.Duration, userID int64) (int, error) {
	tags, have := statTags[kind]
	if !have {
		return 0, fmt.Errorf("unknown stat kind %q", kind)
	}

	since := time.Now().Add(-window).Unix()

	marks := strings.Repeat("?,", len(tags))
	marks = marks[:len(marks)-1]
	q := `SELECT COUNT(*) FROM events WHERE group_id = ? AND at >= ? AND tag IN (` + marks + `)`
	args := []interface{}{groupID, since}
	for _, tag := range tags {
		args = append(args, tag)
	}
	if userID != 0 {
		q += ` AND user_id = ?`
		args = append(args, userID)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Prune drops events older than the given age.  Run periodically to
// keep the stream bounded.
func (s *Stats) Prune(ctx context.Context, age time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE at < ?`, time.Now().Add(-age).Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

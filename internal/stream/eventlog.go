package stream

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	recentPerChannel = 64
	cachedChannels   = 1024
)

// Log is an append-only record of published events, keyed by channel name.
// A bounded in-memory tail backs fast replay for late subscribers; when a
// postgres DSN is configured the full history is also persisted.
type Log struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error

	mu     sync.Mutex
	recent *lru.Cache[string, []Event]
}

// NewLog builds an in-memory-only log.
func NewLog() *Log {
	cache, _ := lru.New[string, []Event](cachedChannels)
	return &Log{recent: cache}
}

// NewPostgresLog builds a log persisting to postgres in addition to the
// in-memory tail.
func NewPostgresLog(dsn string) (*Log, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	l := NewLog()
	l.db = db
	return l, nil
}

func (l *Log) ensureSchema() error {
	if l == nil || l.db == nil {
		return nil
	}
	l.schemaOnce.Do(func() {
		_, l.schemaErr = l.db.Exec(`
CREATE TABLE IF NOT EXISTS stream_events (
  id BIGSERIAL PRIMARY KEY,
  channel TEXT NOT NULL,
  event_type TEXT NOT NULL,
  job_type TEXT NOT NULL DEFAULT '',
  data JSONB NOT NULL DEFAULT '{}',
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_stream_events_channel ON stream_events (channel, id);
`)
	})
	return l.schemaErr
}

// Append records the event under the channel. The in-memory tail is always
// updated; the database write is skipped when no backend is configured.
func (l *Log) Append(ctx context.Context, channel string, evt Event) error {
	if l == nil {
		return nil
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil
	}

	l.mu.Lock()
	tail, _ := l.recent.Get(channel)
	tail = append(append([]Event(nil), tail...), evt)
	if len(tail) > recentPerChannel {
		tail = tail[len(tail)-recentPerChannel:]
	}
	l.recent.Add(channel, tail)
	l.mu.Unlock()

	if l.db == nil {
		return nil
	}
	if err := l.ensureSchema(); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx, `
INSERT INTO stream_events (channel, event_type, job_type, data, created_at)
VALUES ($1, $2, $3, $4, $5)`,
		channel, evt.Kind, evt.JobType, []byte(evt.Data), evt.Timestamp)
	return err
}

// Recent returns up to limit most recent events on the channel, oldest first.
// The in-memory tail answers when it has enough; otherwise the database is
// consulted.
func (l *Log) Recent(ctx context.Context, channel string, limit int) ([]Event, error) {
	if l == nil {
		return nil, nil
	}
	channel = strings.TrimSpace(channel)
	if limit <= 0 || limit > recentPerChannel {
		limit = recentPerChannel
	}

	l.mu.Lock()
	tail, ok := l.recent.Get(channel)
	l.mu.Unlock()
	if ok && len(tail) > 0 {
		if len(tail) > limit {
			tail = tail[len(tail)-limit:]
		}
		return append([]Event(nil), tail...), nil
	}

	if l.db == nil {
		return nil, nil
	}
	if err := l.ensureSchema(); err != nil {
		return nil, err
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT event_type, job_type, data, created_at
FROM (
  SELECT event_type, job_type, data, created_at, id
  FROM stream_events WHERE channel = $1
  ORDER BY id DESC LIMIT $2
) sub ORDER BY id ASC`, channel, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0, limit)
	for rows.Next() {
		var evt Event
		var data []byte
		if err := rows.Scan(&evt.Kind, &evt.JobType, &data, &evt.Timestamp); err != nil {
			continue
		}
		evt.Data = data
		out = append(out, evt)
	}
	return out, rows.Err()
}

// Close releases the database handle, if any.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/rodmena-limited/supervice/internal/history"
)

// Sink writes lifecycle records to an SQLite database.
type Sink struct {
	db *sql.DB
}

// New opens an SQLite sink. DSN forms:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" or ":memory:" without a prefix
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &Sink{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS state_events(
		timestamp TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		groupname TEXT NOT NULL,
		from_state TEXT,
		pid INTEGER,
		message TEXT
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Send(ctx context.Context, r history.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state_events(timestamp, type, name, groupname, from_state, pid, message)
		VALUES(?, ?, ?, ?, ?, ?, ?);`,
		r.OccurredAt, r.Type, r.Process, r.Group, r.FromState, r.PID, r.Message)
	return err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

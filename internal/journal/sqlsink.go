package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// SQLSink appends journal events to the keepbusy_journal table. One
// implementation serves SQLite (modernc.org/sqlite) and Postgres (pgx
// stdlib); only the placeholder style differs. The schema is created if
// missing. The sink is append-only and independent of the state file.
type SQLSink struct {
	db      *sql.DB
	dialect string // "sqlite" or "postgres"
}

// NewSQLSink opens dsn with the driver for dialect and ensures the
// schema. dsn is passed to sql.Open verbatim.
func NewSQLSink(dialect, dsn string) (*SQLSink, error) {
	var drv string
	switch dialect {
	case "sqlite":
		drv = "sqlite"
	case "postgres":
		drv = "pgx"
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	if dsn == "" {
		return nil, errors.New("empty DSN for SQL journal sink")
	}
	db, err := sql.Open(drv, dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLSink{db: db, dialect: dialect}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLSink) ensureSchema(ctx context.Context) error {
	id := `id BIGSERIAL PRIMARY KEY`
	ts := `TIMESTAMPTZ`
	if s.dialect == "sqlite" {
		id = `id INTEGER PRIMARY KEY AUTOINCREMENT`
		ts = `TIMESTAMP`
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS keepbusy_journal(
			%s,
			occurred_at %s NOT NULL,
			event TEXT NOT NULL,
			state TEXT NOT NULL,
			detail TEXT NULL,
			cpu_cores INTEGER NOT NULL,
			cpu_load_percent INTEGER NOT NULL,
			memory_percent INTEGER NOT NULL
		);`, id, ts),
		`CREATE INDEX IF NOT EXISTS idx_keepbusy_journal_event ON keepbusy_journal(event);`,
		`CREATE INDEX IF NOT EXISTS idx_keepbusy_journal_occurred_at ON keepbusy_journal(occurred_at);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLSink) Send(ctx context.Context, e Event) error {
	detail := interface{}(nil)
	if e.Detail != "" {
		detail = e.Detail
	}
	q := `INSERT INTO keepbusy_journal(occurred_at, event, state, detail, cpu_cores, cpu_load_percent, memory_percent)
		VALUES($1,$2,$3,$4,$5,$6,$7);`
	if s.dialect == "sqlite" {
		q = `INSERT INTO keepbusy_journal(occurred_at, event, state, detail, cpu_cores, cpu_load_percent, memory_percent)
		VALUES(?,?,?,?,?,?,?);`
	}
	_, err := s.db.ExecContext(ctx, q,
		e.OccurredAt.UTC(), string(e.Type), e.State, detail,
		e.CPUCores, e.CPULoadPercent, e.MemoryPercent)
	return err
}

func (s *SQLSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

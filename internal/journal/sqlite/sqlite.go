package sqlite

import (
	"errors"
	"strings"

	"github.com/loykin/keepbusy/internal/journal"
)

// New creates a SQLite journal sink.
// DSN forms:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" or ":memory:" (without prefix)
func New(dsn string) (*journal.SQLSink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}
	return journal.NewSQLSink("sqlite", dsn)
}

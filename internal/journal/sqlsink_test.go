package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLSinkSQLiteRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	sink, err := NewSQLSink("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}

	ctx := context.Background()
	events := []Event{
		{
			Type:           EventEnabled,
			OccurredAt:     time.Now().UTC(),
			State:          "enabled",
			CPUCores:       2,
			CPULoadPercent: 15,
			MemoryPercent:  15,
		},
		{
			Type:       EventDisabled,
			OccurredAt: time.Now().UTC(),
			State:      "disabled",
			Detail:     "operator request",
		},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Failed to send %s event: %v", e.Type, err)
		}
	}

	var count int
	if err := sink.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM keepbusy_journal`).Scan(&count); err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	if count != 2 {
		t.Fatalf("Expected 2 rows, got %d", count)
	}

	var event, state string
	var cores, load, mem int
	row := sink.db.QueryRowContext(ctx,
		`SELECT event, state, cpu_cores, cpu_load_percent, memory_percent FROM keepbusy_journal ORDER BY id LIMIT 1`)
	if err := row.Scan(&event, &state, &cores, &load, &mem); err != nil {
		t.Fatalf("Failed to scan first row: %v", err)
	}
	if event != "enabled" || state != "enabled" {
		t.Errorf("Expected enabled/enabled, got %s/%s", event, state)
	}
	if cores != 2 || load != 15 || mem != 15 {
		t.Errorf("Expected plan 2/15/15, got %d/%d/%d", cores, load, mem)
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("Failed to close sink: %v", err)
	}

	// Reopening the same file must not disturb existing rows.
	reopened, err := NewSQLSink("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen sink: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if err := reopened.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM keepbusy_journal`).Scan(&count); err != nil {
		t.Fatalf("Failed to count rows after reopen: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 rows after reopen, got %d", count)
	}
}

func TestSQLSinkNullDetail(t *testing.T) {
	sink, err := NewSQLSink("sqlite", filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	if err := sink.Send(ctx, Event{Type: EventApplied, OccurredAt: time.Now().UTC(), State: "enabled"}); err != nil {
		t.Fatalf("Failed to send event without detail: %v", err)
	}
	if err := sink.Send(ctx, Event{Type: EventApplyFailed, OccurredAt: time.Now().UTC(), State: "degraded", Detail: "reread rejected"}); err != nil {
		t.Fatalf("Failed to send event with detail: %v", err)
	}

	var nullCount int
	if err := sink.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM keepbusy_journal WHERE detail IS NULL`).Scan(&nullCount); err != nil {
		t.Fatalf("Failed to count null details: %v", err)
	}
	if nullCount != 1 {
		t.Errorf("Expected 1 row with NULL detail, got %d", nullCount)
	}
}

func TestSQLSinkRejectsBadConfig(t *testing.T) {
	if _, err := NewSQLSink("mysql", "whatever"); err == nil {
		t.Error("Expected error for unsupported dialect, got nil")
	}
	if _, err := NewSQLSink("sqlite", ""); err == nil {
		t.Error("Expected error for empty DSN, got nil")
	}
}

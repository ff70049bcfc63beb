package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/loykin/keepbusy/internal/journal"
)

func TestSQLiteSink_SchemePrefix(t *testing.T) {
	dbPath := t.TempDir() + "/journal.db"

	sink, err := New("sqlite://" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	event := journal.Event{
		Type:           journal.EventEnabled,
		OccurredAt:     time.Now().UTC(),
		State:          "enabled",
		CPUCores:       2,
		CPULoadPercent: 15,
		MemoryPercent:  15,
	}
	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("Failed to send event: %v", err)
	}
}

func TestSQLiteSink_InMemory(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	event := journal.Event{
		Type:       journal.EventWatchdogMissing,
		OccurredAt: time.Now().UTC(),
		State:      "enabled",
		Detail:     "cpu-stress not RUNNING",
	}
	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("Failed to send event: %v", err)
	}
}

func TestSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("Expected error for empty DSN, got nil")
	}
}

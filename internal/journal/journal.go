package journal

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle or diagnostic event.
type EventType string

const (
	EventEnabled               EventType = "enabled"
	EventDisabled              EventType = "disabled"
	EventApplied               EventType = "applied"
	EventApplyFailed           EventType = "apply_failed"
	EventRolledBack            EventType = "rolled_back"
	EventRollbackFailed        EventType = "rollback_failed"
	EventVerifyDegraded        EventType = "verify_degraded"
	EventControlPlaneRestarted EventType = "control_plane_restarted"
	EventWatchdogMissing       EventType = "watchdog_missing"
	EventDescriptorDrift       EventType = "descriptor_drift"
)

// Event is one record exported to external systems (audit/statistics).
// Plain value fields only, so sinks serialize it without reaching back
// into the tool.
type Event struct {
	Type           EventType `json:"type"`
	OccurredAt     time.Time `json:"occurred_at"`
	State          string    `json:"state,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	CPUCores       int       `json:"cpu_cores,omitempty"`
	CPULoadPercent int       `json:"cpu_load_percent,omitempty"`
	MemoryPercent  int       `json:"memory_percent,omitempty"`
}

// Sink is a destination for journal events. Implementations must be safe
// for concurrent use. Send failures are reported to the caller, which
// logs them; they never fail a reconciliation.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// NopSink discards events. Used when no journal DSN is configured.
type NopSink struct{}

func (NopSink) Send(context.Context, Event) error { return nil }

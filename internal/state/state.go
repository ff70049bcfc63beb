package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/keepbusy/internal/plan"
)

// State file keys. The file is a flat KEY=VALUE record consumed only by
// this tool, never by the control plane.
const (
	keyEnabled  = "ENABLED"
	keyCores    = "CPU_CORES"
	keyCPULoad  = "CPU_LOAD_PERCENT"
	keyMemory   = "MEMORY_PERCENT"
	keyModified = "LAST_MODIFIED"
)

// PersistenceError wraps a state file write failure. It is reported and
// never fatal: in-memory intent still governs the current session.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("state %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// Snapshot is one tolerant read of the state file.
type Snapshot struct {
	Plan     plan.Plan
	Enabled  bool
	Modified time.Time
}

// Store persists the last-applied plan and the enabled flag in a single
// file. Single writer (the reconciler); readers may run concurrently, so
// writes go through temp-then-rename and never expose a partial file.
type Store struct {
	Path string
	// DetectedCores shapes the default plan returned by tolerant loads.
	DetectedCores int
}

func New(path string, detectedCores int) *Store {
	return &Store{Path: path, DetectedCores: detectedCores}
}

// Save atomically replaces the state file with the given plan and flag,
// stamping LAST_MODIFIED with the current UTC time.
func (s *Store) Save(p plan.Plan, enabled bool) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Op: "save", Path: s.Path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, "state-*.tmp")
	if err != nil {
		return &PersistenceError{Op: "save", Path: s.Path, Err: err}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s=%t\n", keyEnabled, enabled)
	fmt.Fprintf(&b, "%s=%d\n", keyCores, p.CPUCores)
	fmt.Fprintf(&b, "%s=%d\n", keyCPULoad, p.CPULoadPercent)
	fmt.Fprintf(&b, "%s=%d\n", keyMemory, p.MemoryPercent)
	fmt.Fprintf(&b, "%s=%s\n", keyModified, time.Now().UTC().Format(time.RFC3339))
	if _, err = tmp.WriteString(b.String()); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return &PersistenceError{Op: "save", Path: s.Path, Err: err}
	}
	_ = os.Chmod(tmp.Name(), 0o644)
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		_ = os.Remove(tmp.Name())
		return &PersistenceError{Op: "save", Path: s.Path, Err: err}
	}
	return nil
}

// Load reads the last saved plan and enabled flag. Tolerant by contract:
// a missing file, unknown syntax, a bad number, or an out-of-range field
// all yield (default plan, false) and never an error.
func (s *Store) Load() (plan.Plan, bool) {
	snap := s.Snapshot()
	return snap.Plan, snap.Enabled
}

// Snapshot is Load plus the recorded modification time; Modified is zero
// when the record is absent or unreadable.
func (s *Store) Snapshot() Snapshot {
	fallback := Snapshot{Plan: plan.Default(s.DetectedCores)}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return fallback
	}
	snap, err := parse(data)
	if err != nil {
		return fallback
	}
	return snap
}

func parse(data []byte) (Snapshot, error) {
	var snap Snapshot
	seen := map[string]bool{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return snap, fmt.Errorf("malformed line %q", line)
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		switch key {
		case keyEnabled:
			b, err := strconv.ParseBool(val)
			if err != nil {
				return snap, fmt.Errorf("bad %s: %q", key, val)
			}
			snap.Enabled = b
		case keyCores:
			n, err := parseRange(val, 1, plan.MaxUsableCores)
			if err != nil {
				return snap, fmt.Errorf("bad %s: %w", key, err)
			}
			snap.Plan.CPUCores = n
		case keyCPULoad:
			n, err := parseRange(val, plan.MinPercent, plan.MaxPercent)
			if err != nil {
				return snap, fmt.Errorf("bad %s: %w", key, err)
			}
			snap.Plan.CPULoadPercent = n
		case keyMemory:
			n, err := parseRange(val, plan.MinPercent, plan.MaxPercent)
			if err != nil {
				return snap, fmt.Errorf("bad %s: %w", key, err)
			}
			snap.Plan.MemoryPercent = n
		case keyModified:
			// Metadata only; a bad timestamp does not poison the record.
			if ts, err := time.Parse(time.RFC3339, val); err == nil {
				snap.Modified = ts
			}
			continue
		default:
			// Unknown keys are ignored for forward compatibility.
			continue
		}
		seen[key] = true
	}
	for _, key := range []string{keyEnabled, keyCores, keyCPULoad, keyMemory} {
		if !seen[key] {
			return snap, fmt.Errorf("missing %s", key)
		}
	}
	return snap, nil
}

func parseRange(s string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%d out of range [%d,%d]", n, lo, hi)
	}
	return n, nil
}

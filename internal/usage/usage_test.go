package usage

import (
	"os"
	"testing"
)

func TestCollectSelf(t *testing.T) {
	pid := int32(os.Getpid())

	samples := Collect(map[string]int32{"self": pid})
	s, ok := samples["self"]
	if !ok {
		t.Fatal("expected a sample for the running test process")
	}
	if s.PID != pid {
		t.Errorf("expected PID %d, got %d", pid, s.PID)
	}
	if s.MemoryRSS == 0 {
		t.Error("expected non-zero RSS for the running test process")
	}
	if s.MemoryMB <= 0 {
		t.Errorf("expected positive MemoryMB, got %f", s.MemoryMB)
	}
	if s.NumThreads <= 0 {
		t.Errorf("expected positive thread count, got %d", s.NumThreads)
	}
}

func TestCollectSkipsDeadAndInvalidPIDs(t *testing.T) {
	samples := Collect(map[string]int32{
		"invalid": 0,
		"negative": -1,
		// PID near the default pid_max; extremely unlikely to exist.
		"gone": 1<<22 - 7,
	})
	if len(samples) != 0 {
		t.Errorf("expected no samples, got %v", samples)
	}
}

func TestCollectEmpty(t *testing.T) {
	if got := Collect(nil); len(got) != 0 {
		t.Errorf("expected empty result for nil input, got %v", got)
	}
}

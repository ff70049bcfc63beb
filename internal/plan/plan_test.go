package plan

import "testing"

func TestDetectCoresBounds(t *testing.T) {
	n := DetectCores()
	if n < 1 || n > MaxUsableCores {
		t.Fatalf("DetectCores() = %d, want within [1,%d]", n, MaxUsableCores)
	}
}

func TestDefaultPlan(t *testing.T) {
	p := Default(2)
	want := Plan{CPUCores: 2, CPULoadPercent: 15, MemoryPercent: 15}
	if !p.Equal(want) {
		t.Fatalf("Default(2) = %+v, want %+v", p, want)
	}
	if p := Default(100); p.CPUCores != MaxUsableCores {
		t.Fatalf("Default(100).CPUCores = %d, want %d", p.CPUCores, MaxUsableCores)
	}
	if p := Default(0); p.CPUCores != 1 {
		t.Fatalf("Default(0).CPUCores = %d, want 1", p.CPUCores)
	}
}

func TestPlanString(t *testing.T) {
	p := Plan{CPUCores: 2, CPULoadPercent: 15, MemoryPercent: 30}
	if got, want := p.String(), "cores=2 cpu=15% mem=30%"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

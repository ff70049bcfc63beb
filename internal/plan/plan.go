package plan

import (
	"fmt"
	"runtime"
)

const (
	// DefaultCPULoadPercent and DefaultMemoryPercent are the compiled-in
	// fallbacks when no usable input and no last known good value exist.
	DefaultCPULoadPercent = 15
	DefaultMemoryPercent  = 15

	// MaxUsableCores caps the stressed core count regardless of what the
	// machine reports. Free-tier shapes expose at most 4 usable cores.
	MaxUsableCores = 4

	MinPercent = 1
	MaxPercent = 100
)

// Plan is a validated set of resource-consumption targets. Every field is
// always in range; values are produced by Validator.Normalize and nothing
// else writes them.
type Plan struct {
	CPUCores       int `json:"cpu_cores"`
	CPULoadPercent int `json:"cpu_load_percent"`
	MemoryPercent  int `json:"memory_percent"`
}

// Raw carries unvalidated input exactly as typed by the user. An empty
// field means "keep the last known good value, or fall back to the default".
type Raw struct {
	CPUCores       string
	CPULoadPercent string
	MemoryPercent  string
}

// DetectCores returns the usable core count for this machine:
// runtime.NumCPU capped at MaxUsableCores, never below 1.
func DetectCores() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	if n > MaxUsableCores {
		return MaxUsableCores
	}
	return n
}

// Default returns the compiled-in plan for a machine with detectedCores
// usable cores.
func Default(detectedCores int) Plan {
	return Plan{
		CPUCores:       clamp(detectedCores, 1, MaxUsableCores),
		CPULoadPercent: DefaultCPULoadPercent,
		MemoryPercent:  DefaultMemoryPercent,
	}
}

func (p Plan) String() string {
	return fmt.Sprintf("cores=%d cpu=%d%% mem=%d%%", p.CPUCores, p.CPULoadPercent, p.MemoryPercent)
}

// Equal reports whether two plans request the same targets.
func (p Plan) Equal(o Plan) bool {
	return p.CPUCores == o.CPUCores &&
		p.CPULoadPercent == o.CPULoadPercent &&
		p.MemoryPercent == o.MemoryPercent
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

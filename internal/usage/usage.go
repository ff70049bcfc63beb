package usage

import (
	"runtime"

	"github.com/shirou/gopsutil/v4/process"
)

// Sample holds observed resource usage for one supervised process.
type Sample struct {
	PID        int32   `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
	MemoryRSS  uint64  `json:"memory_rss"`
	NumThreads int32   `json:"num_threads"`
	NumFDs     int32   `json:"num_fds,omitempty"` // Unix only
}

// Collect samples resource usage for the given PIDs, keyed by process
// name. Processes that exit between status query and sampling are
// skipped; diagnostics must not fail because a PID went away.
func Collect(pids map[string]int32) map[string]Sample {
	out := make(map[string]Sample, len(pids))
	for name, pid := range pids {
		if pid <= 0 {
			continue
		}
		s, err := sampleOne(pid)
		if err != nil {
			continue
		}
		out[name] = s
	}
	return out
}

func sampleOne(pid int32) (Sample, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return Sample{}, err
	}

	s := Sample{PID: pid}

	// CPU percent needs a prior observation for an exact figure; the
	// first call returns usage since process start, which is good
	// enough for a diagnostic view.
	if cpu, err := proc.CPUPercent(); err == nil {
		s.CPUPercent = cpu
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return Sample{}, err
	}
	s.MemoryRSS = memInfo.RSS
	s.MemoryMB = float64(memInfo.RSS) / 1024 / 1024

	if n, err := proc.NumThreads(); err == nil {
		s.NumThreads = n
	}
	if runtime.GOOS != "windows" {
		if n, err := proc.NumFDs(); err == nil {
			s.NumFDs = n
		}
	}
	return s, nil
}

package client

import "time"

// ProcessStatus mirrors one parsed control-plane status line as served
// by the watchdog API.
type ProcessStatus struct {
	Name   string `json:"name"`
	Group  string `json:"group,omitempty"`
	State  string `json:"state"`
	PID    int    `json:"pid,omitempty"`
	Uptime string `json:"uptime,omitempty"`
	Raw    string `json:"raw,omitempty"`
}

// UsageSample is the observed resource usage of one supervised process.
type UsageSample struct {
	PID        int32   `json:"pid"`
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
	MemoryRSS  uint64  `json:"memory_rss"`
	NumThreads int32   `json:"num_threads"`
	NumFDs     int32   `json:"num_fds,omitempty"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Processes []ProcessStatus        `json:"processes"`
	Usage     map[string]UsageSample `json:"usage,omitempty"`
}

// StateResponse is the body of GET /api/state.
type StateResponse struct {
	Enabled        bool      `json:"enabled"`
	CPUCores       int       `json:"cpu_cores"`
	CPULoadPercent int       `json:"cpu_load_percent"`
	MemoryPercent  int       `json:"memory_percent"`
	Modified       time.Time `json:"modified,omitempty"`
}

// ErrorResponse is the error body served by the API.
type ErrorResponse struct {
	Error string `json:"error"`
}

package supervisor

import (
	"strconv"
	"strings"
)

// ProcessStatus is one parsed line of the control plane's status output.
type ProcessStatus struct {
	// Name is the short process name within its group.
	Name  string `json:"name"`
	Group string `json:"group,omitempty"`
	// State is the plane's own state word: RUNNING, STARTING, STOPPED,
	// BACKOFF, FATAL, EXITED, UNKNOWN.
	State  string `json:"state"`
	PID    int    `json:"pid,omitempty"`
	Uptime string `json:"uptime,omitempty"`
	Raw    string `json:"raw,omitempty"`
}

func (s ProcessStatus) Running() bool { return s.State == "RUNNING" }

// parseStatus turns supervisorctl status output into ProcessStatus values.
// Lines look like:
//
//	keepbusy:cpu-stress              RUNNING   pid 4242, uptime 1:02:03
//	keepbusy:watchdog                STOPPED   Not started
//	keepbusy:memory-stress           FATAL     Exited too quickly
//
// Unparseable lines are skipped; status is a best-effort read.
func parseStatus(output string) []ProcessStatus {
	var out []ProcessStatus
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || !isStateWord(fields[1]) {
			continue
		}
		st := ProcessStatus{Raw: line, State: fields[1]}
		st.Group, st.Name = splitName(fields[0])
		if pid, ok := pidField(fields); ok {
			st.PID = pid
		}
		if up, ok := uptimeField(line); ok {
			st.Uptime = up
		}
		out = append(out, st)
	}
	return out
}

func splitName(full string) (group, name string) {
	if g, n, ok := strings.Cut(full, ":"); ok {
		return g, n
	}
	return "", full
}

func isStateWord(s string) bool {
	switch s {
	case "RUNNING", "STARTING", "STOPPED", "STOPPING", "BACKOFF", "FATAL", "EXITED", "UNKNOWN":
		return true
	}
	return false
}

func pidField(fields []string) (int, bool) {
	for i, f := range fields {
		if f == "pid" && i+1 < len(fields) {
			n, err := strconv.Atoi(strings.TrimSuffix(fields[i+1], ","))
			if err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func uptimeField(line string) (string, bool) {
	if _, after, ok := strings.Cut(line, "uptime "); ok {
		return strings.TrimSpace(after), true
	}
	return "", false
}

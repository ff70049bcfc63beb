package descriptor

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/keepbusy/internal/plan"
)

// Program names the control plane runs for us. Stable identifiers:
// verification and the watchdog match live status against them.
const (
	ProgramCPU      = "cpu-stress"
	ProgramMemory   = "memory-stress"
	ProgramWatchdog = "watchdog"

	DefaultGroup = "keepbusy"

	// Watchdog interval bounds. The watchdog diagnoses on a fixed cadence;
	// anything outside this window is clamped.
	MinWatchdogInterval = 30 * time.Second
	MaxWatchdogInterval = 60 * time.Second

	// startretries for every program. autorestart=true already restarts on
	// any exit; this keeps repeated startup failures from going FATAL.
	startRetries = 1000000
)

// ProgramNames lists the managed process names in descriptor order.
func ProgramNames() []string {
	return []string{ProgramCPU, ProgramMemory, ProgramWatchdog}
}

// StressNames lists the programs that actually burn resources, i.e. the
// ones the watchdog checks for.
func StressNames() []string {
	return []string{ProgramCPU, ProgramMemory}
}

// Renderer turns a validated plan into a supervisord program file.
// Render is a pure function of the receiver, the plan, and the timestamp:
// identical inputs produce identical bytes.
type Renderer struct {
	// Group is the process group name, DefaultGroup when empty.
	Group string
	// StressBin is the stress generator invoked by the cpu and memory
	// programs, "stress-ng" when empty.
	StressBin string
	// SelfBin is the binary the watchdog program runs, "keepbusy" when
	// empty. Callers normally pass their own executable path.
	SelfBin string
	// LogDir receives per-program stdout logs.
	LogDir string
	// WatchdogInterval is clamped into [MinWatchdogInterval, MaxWatchdogInterval].
	WatchdogInterval time.Duration
	// WatchdogListen, when set, is passed to the watchdog as its status
	// API listen address.
	WatchdogListen string

	LogMaxBytes  string
	LogBackups   int
	StopWaitSecs int
}

func (r Renderer) withDefaults() Renderer {
	if r.Group == "" {
		r.Group = DefaultGroup
	}
	if r.StressBin == "" {
		r.StressBin = "stress-ng"
	}
	if r.SelfBin == "" {
		r.SelfBin = "keepbusy"
	}
	if r.LogDir == "" {
		r.LogDir = "/var/log/keepbusy"
	}
	if r.WatchdogInterval < MinWatchdogInterval {
		r.WatchdogInterval = MinWatchdogInterval
	}
	if r.WatchdogInterval > MaxWatchdogInterval {
		r.WatchdogInterval = MaxWatchdogInterval
	}
	if r.LogMaxBytes == "" {
		r.LogMaxBytes = "10MB"
	}
	if r.LogBackups <= 0 {
		r.LogBackups = 3
	}
	if r.StopWaitSecs <= 0 {
		r.StopWaitSecs = 10
	}
	return r
}

// Render produces the full descriptor. The generation timestamp appears
// only in a leading comment, which the control plane ignores.
func (r Renderer) Render(p plan.Plan, generatedAt time.Time) []byte {
	r = r.withDefaults()
	var b strings.Builder
	fmt.Fprintf(&b, "; %s supervision descriptor\n", r.Group)
	fmt.Fprintf(&b, "; generated %s\n", generatedAt.UTC().Format(time.RFC3339))
	b.WriteString("\n")

	r.program(&b, ProgramCPU, 100,
		fmt.Sprintf("%s --cpu %d --cpu-load %d --timeout 0", r.StressBin, p.CPUCores, p.CPULoadPercent))
	r.program(&b, ProgramMemory, 200,
		fmt.Sprintf("%s --vm 1 --vm-bytes %d%% --vm-method all --timeout 0", r.StressBin, p.MemoryPercent))
	r.program(&b, ProgramWatchdog, 300, r.watchdogCommand())

	fmt.Fprintf(&b, "[group:%s]\n", r.Group)
	fmt.Fprintf(&b, "programs=%s\n", strings.Join(ProgramNames(), ","))
	fmt.Fprintf(&b, "priority=999\n")
	return []byte(b.String())
}

func (r Renderer) watchdogCommand() string {
	cmd := fmt.Sprintf("%s watchdog --interval %s", r.SelfBin, r.WatchdogInterval)
	if r.WatchdogListen != "" {
		cmd += " --listen " + r.WatchdogListen
	}
	return cmd
}

func (r Renderer) program(b *strings.Builder, name string, priority int, command string) {
	fmt.Fprintf(b, "[program:%s]\n", name)
	fmt.Fprintf(b, "command=%s\n", escape(command))
	fmt.Fprintf(b, "autostart=true\n")
	fmt.Fprintf(b, "autorestart=true\n")
	fmt.Fprintf(b, "startretries=%d\n", startRetries)
	fmt.Fprintf(b, "startsecs=5\n")
	fmt.Fprintf(b, "stopsignal=TERM\n")
	fmt.Fprintf(b, "stopwaitsecs=%d\n", r.StopWaitSecs)
	fmt.Fprintf(b, "stopasgroup=true\n")
	fmt.Fprintf(b, "killasgroup=true\n")
	fmt.Fprintf(b, "priority=%d\n", priority)
	fmt.Fprintf(b, "stdout_logfile=%s\n", escape(filepath.Join(r.LogDir, name+".log")))
	fmt.Fprintf(b, "stdout_logfile_maxbytes=%s\n", r.LogMaxBytes)
	fmt.Fprintf(b, "stdout_logfile_backups=%d\n", r.LogBackups)
	fmt.Fprintf(b, "redirect_stderr=true\n")
	b.WriteString("\n")
}

// escape doubles literal percent signs. supervisord runs string values
// through %(...)s expansion, so a bare % in a command or path would be
// read as a format marker.
func escape(v string) string {
	return strings.ReplaceAll(v, "%", "%%")
}

package watchdog

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/loykin/keepbusy/internal/descriptor"
	"github.com/loykin/keepbusy/internal/journal"
	"github.com/loykin/keepbusy/internal/metrics"
	"github.com/loykin/keepbusy/internal/server"
	"github.com/loykin/keepbusy/internal/state"
	"github.com/loykin/keepbusy/internal/supervisor"
	"github.com/loykin/keepbusy/internal/usage"
)

// Config shapes one watchdog daemon.
type Config struct {
	// Interval between checks, clamped into the descriptor's window.
	Interval time.Duration
	// Listen, when set, binds the read-only status API and /metrics.
	Listen string
}

// Watchdog periodically inspects whether the expected stress processes
// are present and emits a diagnostic record when they are not. It never
// takes corrective action: restarts are the control plane's job. It runs
// under the control plane itself, as the descriptor's third program.
type Watchdog struct {
	cfg    Config
	gw     supervisor.Gateway
	store  *state.Store
	logger *slog.Logger
	jrn    journal.Sink
}

func New(cfg Config, gw supervisor.Gateway, store *state.Store) *Watchdog {
	if cfg.Interval < descriptor.MinWatchdogInterval {
		cfg.Interval = descriptor.MinWatchdogInterval
	}
	if cfg.Interval > descriptor.MaxWatchdogInterval {
		cfg.Interval = descriptor.MaxWatchdogInterval
	}
	return &Watchdog{
		cfg:    cfg,
		gw:     gw,
		store:  store,
		logger: slog.Default(),
		jrn:    journal.NopSink{},
	}
}

func (w *Watchdog) SetLogger(l *slog.Logger) {
	if l != nil {
		w.logger = l
	}
}

func (w *Watchdog) SetJournal(s journal.Sink) {
	if s != nil {
		w.jrn = s
	}
}

// Run blocks until ctx is cancelled. One check runs immediately, then
// one per interval. The drift watcher and the status API are started
// alongside when configured; neither failing stops the check loop.
func (w *Watchdog) Run(ctx context.Context) error {
	TryWatch(ctx, w.gw.DescriptorPath(), w.logger, w.jrn)

	var httpSrv *http.Server
	if w.cfg.Listen != "" {
		srv, err := server.NewServer(w.cfg.Listen, "", w.gw, w.store)
		if err != nil {
			w.logger.Warn("status API not started", "listen", w.cfg.Listen, "error", err)
		} else {
			httpSrv = srv
			w.logger.Info("status API listening", "listen", w.cfg.Listen)
		}
	}

	w.check(ctx)
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if httpSrv != nil {
				_ = httpSrv.Close()
			}
			return ctx.Err()
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

// check is one diagnostic pass. Disabled intent means an empty process
// set is correct and nothing is reported.
func (w *Watchdog) check(ctx context.Context) {
	metrics.IncWatchdogCheck()

	_, enabled := w.store.Load()
	if !enabled {
		return
	}

	sts, err := w.gw.QueryStatus(ctx)
	if err != nil {
		w.logger.Debug("status query failed", "error", err)
	}
	running := make(map[string]int32, len(sts))
	for _, st := range sts {
		if st.Running() {
			running[st.Name] = int32(st.PID)
		}
	}

	for _, name := range descriptor.StressNames() {
		if _, ok := running[name]; ok {
			continue
		}
		metrics.IncWatchdogMissing(name)
		w.logger.Warn("expected process not running", "process", name)
		if err := w.jrn.Send(ctx, journal.Event{
			Type:       journal.EventWatchdogMissing,
			OccurredAt: time.Now().UTC(),
			Detail:     name,
		}); err != nil {
			w.logger.Warn("journal send failed", "error", err)
		}
	}

	pids := make(map[string]int32, len(running))
	for name, pid := range running {
		if pid > 0 {
			pids[name] = pid
		}
	}
	for name, s := range usage.Collect(pids) {
		metrics.SetProcessUsage(name, s.CPUPercent, s.MemoryMB)
	}
}

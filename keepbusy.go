package keepbusy

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	cfgpkg "github.com/loykin/keepbusy/internal/config"
	"github.com/loykin/keepbusy/internal/descriptor"
	"github.com/loykin/keepbusy/internal/detector"
	"github.com/loykin/keepbusy/internal/journal"
	jfactory "github.com/loykin/keepbusy/internal/journal/factory"
	"github.com/loykin/keepbusy/internal/lock"
	"github.com/loykin/keepbusy/internal/logger"
	"github.com/loykin/keepbusy/internal/metrics"
	"github.com/loykin/keepbusy/internal/plan"
	"github.com/loykin/keepbusy/internal/reconcile"
	"github.com/loykin/keepbusy/internal/retry"
	"github.com/loykin/keepbusy/internal/server"
	"github.com/loykin/keepbusy/internal/state"
	"github.com/loykin/keepbusy/internal/supervisor"
	"github.com/loykin/keepbusy/internal/watchdog"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Plan = plan.Plan

type Raw = plan.Raw

type Coercion = plan.Coercion

type Result = reconcile.Result

type StatusReport = reconcile.StatusReport

type ProcessStatus = supervisor.ProcessStatus

type Event = journal.Event

type Check = detector.Check

type Config = cfgpkg.Config

type ContentionError = lock.ContentionError

// DefaultConfig returns the compiled-in configuration.
func DefaultConfig() Config { return cfgpkg.Default() }

// LoadConfig reads a TOML config file over the defaults; an empty path
// returns the defaults.
func LoadConfig(path string) (Config, error) { return cfgpkg.Load(path) }

// Tool is the assembled reconciler: config, logger, state store,
// control-plane gateway, journal, all wired. The CLI and the embedding
// examples both go through it.
type Tool struct {
	cfg    Config
	logger *slog.Logger
	store  *state.Store
	gw     supervisor.Gateway
	rec    *reconcile.Reconciler
	jrn    journal.Sink
}

// Option adjusts Tool assembly; mainly used by tests and embedders.
type Option func(*options)

type options struct {
	runner  supervisor.Runner
	logger  *slog.Logger
	journal journal.Sink
	selfBin string
}

// WithRunner substitutes the command runner used to drive the
// control-plane CLI.
func WithRunner(r supervisor.Runner) Option {
	return func(o *options) { o.runner = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithJournal overrides the journal sink built from the configured DSN.
func WithJournal(s journal.Sink) Option {
	return func(o *options) { o.journal = s }
}

// WithSelfBin overrides the binary path rendered into the watchdog
// program spec; the default is this executable.
func WithSelfBin(path string) Option {
	return func(o *options) { o.selfBin = path }
}

// New assembles a Tool from cfg. A configured journal DSN that cannot
// be opened is an error: the operator asked for an audit trail and
// silently dropping it would betray that.
func New(cfg Config, opts ...Option) (*Tool, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	lg := o.logger
	if lg == nil {
		lg = logger.New(logger.Config{
			Level:      cfg.Log.Level,
			Color:      cfg.Log.Color,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		})
	}

	jrn := o.journal
	if jrn == nil {
		jrn = journal.NopSink{}
		if cfg.Journal.DSN != "" {
			sink, err := jfactory.NewSinkFromDSN(cfg.Journal.DSN)
			if err != nil {
				return nil, err
			}
			jrn = sink
		}
	}

	store := state.New(cfg.Paths.State, plan.DetectCores())

	gw := supervisor.New(supervisor.Config{
		CtlBin:         cfg.Supervisor.CtlBin,
		CtlArgs:        cfg.Supervisor.CtlArgs,
		Group:          cfg.Supervisor.Group,
		DescriptorPath: cfg.Paths.Descriptor,
		CommandTimeout: cfg.Supervisor.CommandTimeout,
		ServiceRestart: cfg.Supervisor.ServiceRestart,
		ServiceSettle:  cfg.Supervisor.ServiceSettle,
	})
	if o.runner != nil {
		gw.SetRunner(o.runner)
	}
	gw.SetLogger(lg)
	gw.SetJournal(jrn)

	selfBin := o.selfBin
	if selfBin == "" {
		if exe, err := os.Executable(); err == nil {
			selfBin = exe
		}
	}
	renderer := descriptor.Renderer{
		Group:            cfg.Supervisor.Group,
		StressBin:        cfg.Stress.Bin,
		SelfBin:          selfBin,
		LogDir:           cfg.Paths.LogDir,
		WatchdogInterval: cfg.Watchdog.Interval,
		WatchdogListen:   cfg.Watchdog.Listen,
	}
	backups := descriptor.Backups{Dir: cfg.Paths.BackupDir, Retention: cfg.Backup.Retention}

	rec := reconcile.New(reconcile.Config{
		Settle:    cfg.Verify.Settle,
		Verify:    retry.Policy{MaxAttempts: cfg.Verify.Attempts, Backoff: cfg.Verify.Delay},
		StopGrace: cfg.Verify.StopGrace,
	}, gw, store, renderer, backups)
	rec.SetLogger(lg)
	rec.SetJournal(jrn)

	return &Tool{cfg: cfg, logger: lg, store: store, gw: gw, rec: rec, jrn: jrn}, nil
}

// Lock takes the single-instance lock for mutating operations. The
// caller releases it; read-only operations do not lock.
func (t *Tool) Lock() (*lock.InstanceLock, error) {
	return lock.Acquire(t.cfg.Paths.Lock)
}

// Apply validates raw input and reconciles the live process set to it,
// leaving the tool enabled.
func (t *Tool) Apply(ctx context.Context, raw Raw) (Result, error) {
	return t.rec.Apply(ctx, raw)
}

// Enable applies with empty input: last known-good plan, else defaults.
func (t *Tool) Enable(ctx context.Context) (Result, error) {
	return t.rec.Apply(ctx, Raw{})
}

func (t *Tool) Disable(ctx context.Context) (Result, error) {
	return t.rec.Disable(ctx)
}

func (t *Tool) Toggle(ctx context.Context) (Result, error) {
	return t.rec.Toggle(ctx, Raw{})
}

// QuickSetup enables with a named preset (light, default, heavy).
// Preset values go through the validator like any other input.
func (t *Tool) QuickSetup(ctx context.Context, preset string) (Result, error) {
	raw, ok := plan.Preset(preset, plan.DetectCores())
	if !ok {
		return Result{}, &UnknownPresetError{Name: preset}
	}
	return t.rec.Apply(ctx, raw)
}

// Status always answers, even with the state file and the control
// plane both unusable.
func (t *Tool) Status(ctx context.Context) StatusReport {
	return t.rec.Status(ctx)
}

// Health runs the dependency probes for the health-check view.
func (t *Tool) Health(ctx context.Context) []Check {
	_ = ctx
	return detector.Run(map[string]detector.Detector{
		"stress-binary": detector.BinaryDetector{Binary: t.cfg.Stress.Bin},
		"ctl-binary":    detector.BinaryDetector{Binary: t.cfg.Supervisor.CtlBin},
		"control-plane": detector.ControlPlaneDetector{Gateway: t.gw, Timeout: t.cfg.Supervisor.CommandTimeout},
		"descriptor":    detector.FileDetector{Path: t.cfg.Paths.Descriptor},
		"state-file":    detector.StateDetector{Path: t.cfg.Paths.State},
	})
}

// RunWatchdog blocks in the diagnose-only watchdog loop until ctx is
// cancelled. Interval and listen fall back to the configured values
// when zero/empty. The watchdog is the process that serves /metrics,
// so the keepbusy collectors are registered here; until registration
// the metric helpers are no-ops.
func (t *Tool) RunWatchdog(ctx context.Context, interval time.Duration, listen string) error {
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		t.logger.Warn("metrics registration failed", "error", err)
	}
	if interval <= 0 {
		interval = t.cfg.Watchdog.Interval
	}
	if listen == "" {
		listen = t.cfg.Watchdog.Listen
	}
	wd := watchdog.New(watchdog.Config{Interval: interval, Listen: listen}, t.gw, t.store)
	wd.SetLogger(t.logger)
	wd.SetJournal(t.jrn)
	return wd.Run(ctx)
}

// StatusHandler returns the read-only status API (healthz, status,
// state, metrics) as an http.Handler, for mounting in any server or
// mux. The watchdog serves the same handler on its listen address.
func (t *Tool) StatusHandler(basePath string) http.Handler {
	return server.NewRouter(t.gw, t.store, basePath).Handler()
}

// Config returns the configuration the tool was assembled with.
func (t *Tool) Config() Config { return t.cfg }

func (t *Tool) Logger() *slog.Logger { return t.logger }

// Close releases the journal sink when it holds a connection.
func (t *Tool) Close() error {
	if c, ok := t.jrn.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// UnknownPresetError names a quick-setup preset that does not exist.
type UnknownPresetError struct{ Name string }

func (e *UnknownPresetError) Error() string {
	return "unknown preset " + e.Name
}

// IsRollbackFailure reports the irrecoverable apply outcome, one of the
// two conditions that justify a non-zero exit.
func IsRollbackFailure(err error) bool { return reconcile.IsRollbackFailure(err) }

// IsContention reports that another instance holds the run lock.
func IsContention(err error) bool { return lock.IsContention(err) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}

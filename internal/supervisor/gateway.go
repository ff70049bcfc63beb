package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/keepbusy/internal/journal"
	"github.com/loykin/keepbusy/internal/metrics"
)

// Config fixes how the gateway reaches the control plane.
type Config struct {
	CtlBin  string
	CtlArgs []string
	Group   string
	// DescriptorPath is the plane's config location for our group; the
	// gateway owns all writes to it.
	DescriptorPath string
	CommandTimeout time.Duration
	// ServiceRestart is the argv for the one bounded attempt to bring a
	// down control-plane daemon back before reporting unavailable.
	ServiceRestart []string
	// ServiceSettle is the pause after a service restart before the failed
	// command is retried.
	ServiceSettle time.Duration
}

func (c Config) withDefaults() Config {
	if c.CtlBin == "" {
		c.CtlBin = "supervisorctl"
	}
	if c.Group == "" {
		c.Group = "keepbusy"
	}
	if c.DescriptorPath == "" {
		c.DescriptorPath = "/etc/supervisor/conf.d/keepbusy.conf"
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 30 * time.Second
	}
	if len(c.ServiceRestart) == 0 {
		c.ServiceRestart = []string{"systemctl", "restart", "supervisor"}
	}
	if c.ServiceSettle <= 0 {
		c.ServiceSettle = 2 * time.Second
	}
	return c
}

// Gateway is the sole interface to the external process-control plane.
// Every failure is a *ControlPlaneError; operations on the process group
// are idempotent.
type Gateway interface {
	ApplyDescriptor(ctx context.Context, descriptor []byte) error
	RestoreDescriptor(ctx context.Context, descriptor []byte) error
	StartGroup(ctx context.Context) error
	StopGroup(ctx context.Context) error
	RestartGroup(ctx context.Context) error
	SignalGroup(ctx context.Context, sig string) error
	QueryStatus(ctx context.Context) ([]ProcessStatus, error)
	Reachable(ctx context.Context) error
	DescriptorPath() string
}

// CtlGateway drives the supervisord CLI. Output text is scanned for the
// plane's own success and error markers; exit codes alone are not trusted.
type CtlGateway struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
	jrn    journal.Sink
}

func New(cfg Config) *CtlGateway {
	return &CtlGateway{
		cfg:    cfg.withDefaults(),
		runner: ExecRunner{},
		logger: slog.Default(),
		jrn:    journal.NopSink{},
	}
}

// SetRunner substitutes the command runner, mainly for tests.
func (g *CtlGateway) SetRunner(r Runner) {
	if r != nil {
		g.runner = r
	}
}

func (g *CtlGateway) SetLogger(l *slog.Logger) {
	if l != nil {
		g.logger = l
	}
}

func (g *CtlGateway) SetJournal(s journal.Sink) {
	if s != nil {
		g.jrn = s
	}
}

func (g *CtlGateway) DescriptorPath() string { return g.cfg.DescriptorPath }

func (g *CtlGateway) selector() string { return g.cfg.Group + ":*" }

// ApplyDescriptor writes the descriptor to the plane's config location and
// runs the reread/update pair. Success requires both phases to finish with
// no error markers in output.
func (g *CtlGateway) ApplyDescriptor(ctx context.Context, descriptor []byte) error {
	if err := g.writeDescriptor(descriptor); err != nil {
		return newError(Rejected, "write descriptor", "", err)
	}
	if _, err := g.ctl(ctx, "reread", nil, "reread"); err != nil {
		return err
	}
	if _, err := g.ctl(ctx, "update", nil, "update"); err != nil {
		return err
	}
	return nil
}

// RestoreDescriptor puts earlier descriptor bytes back in place after a
// failed apply. Only the file write decides success: the reread/update
// pair is best-effort because an unreachable plane is often the reason
// the restore is happening at all.
func (g *CtlGateway) RestoreDescriptor(ctx context.Context, descriptor []byte) error {
	if err := g.writeDescriptor(descriptor); err != nil {
		return newError(Rejected, "restore descriptor", "", err)
	}
	if _, err := g.ctl(ctx, "reread", nil, "reread"); err != nil {
		g.logger.Warn("reread after descriptor restore failed", "error", err)
		return nil
	}
	if _, err := g.ctl(ctx, "update", nil, "update"); err != nil {
		g.logger.Warn("update after descriptor restore failed", "error", err)
	}
	return nil
}

// StartGroup is idempotent: an already-running group is a success.
func (g *CtlGateway) StartGroup(ctx context.Context) error {
	_, err := g.ctl(ctx, "start group", []string{"already started"}, "start", g.selector())
	return err
}

// StopGroup is idempotent: an already-stopped group is a success.
func (g *CtlGateway) StopGroup(ctx context.Context) error {
	_, err := g.ctl(ctx, "stop group", []string{"not running"}, "stop", g.selector())
	return err
}

func (g *CtlGateway) RestartGroup(ctx context.Context) error {
	_, err := g.ctl(ctx, "restart group", []string{"already started", "not running"}, "restart", g.selector())
	return err
}

// SignalGroup delivers a raw signal to every process in the group, used as
// the forceful fallback when a graceful stop leaves processes behind.
func (g *CtlGateway) SignalGroup(ctx context.Context, sig string) error {
	_, err := g.ctl(ctx, "signal group", []string{"not running"}, "signal", sig, g.selector())
	return err
}

// QueryStatus is best-effort: when the plane is unreachable or knows
// nothing about the group it returns an empty set, and callers treat
// unknown as not running.
func (g *CtlGateway) QueryStatus(ctx context.Context) ([]ProcessStatus, error) {
	out, err := g.run(ctx, "status", g.selector())
	if sts := parseStatus(out); len(sts) > 0 {
		return sts, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, newError(Timeout, "status", out, err)
	}
	return nil, nil
}

// Reachable probes the plane's CLI without side effects; no service
// restart is attempted from a probe.
func (g *CtlGateway) Reachable(ctx context.Context) error {
	_, err := g.once(ctx, "version", nil, "version")
	return err
}

// ctl runs one supervisorctl command. On unavailability it restarts the
// control-plane service once and retries the command a single time.
func (g *CtlGateway) ctl(ctx context.Context, op string, allow []string, args ...string) (string, error) {
	out, err := g.once(ctx, op, allow, args...)
	if IsUnavailable(err) {
		if rerr := g.restartService(ctx); rerr == nil {
			out, err = g.once(ctx, op, allow, args...)
		}
	}
	return out, err
}

func (g *CtlGateway) once(ctx context.Context, op string, allow []string, args ...string) (string, error) {
	out, err := g.run(ctx, args...)
	if cerr := classify(op, out, err, allow); cerr != nil {
		return out, cerr
	}
	return out, nil
}

func (g *CtlGateway) run(ctx context.Context, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, g.cfg.CommandTimeout)
	defer cancel()
	full := append(append([]string{}, g.cfg.CtlArgs...), args...)
	return g.runner.Run(cctx, g.cfg.CtlBin, full...)
}

func (g *CtlGateway) restartService(ctx context.Context) error {
	argv := g.cfg.ServiceRestart
	g.logger.Warn("control plane unreachable, restarting service", "argv", strings.Join(argv, " "))
	cctx, cancel := context.WithTimeout(ctx, g.cfg.CommandTimeout)
	defer cancel()
	out, err := g.runner.Run(cctx, argv[0], argv[1:]...)
	if err != nil {
		g.logger.Warn("service restart failed", "error", err, "output", firstLine(out))
		return err
	}
	metrics.IncControlPlaneRestart()
	if jerr := g.jrn.Send(ctx, journal.Event{
		Type:       journal.EventControlPlaneRestarted,
		OccurredAt: time.Now().UTC(),
		Detail:     strings.Join(argv, " "),
	}); jerr != nil {
		g.logger.Warn("journal send failed", "error", jerr)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(g.cfg.ServiceSettle):
	}
	return nil
}

func (g *CtlGateway) writeDescriptor(descriptor []byte) error {
	dir := filepath.Dir(g.cfg.DescriptorPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create descriptor dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".keepbusy-*.conf")
	if err != nil {
		return fmt.Errorf("create descriptor temp: %w", err)
	}
	if _, err = tmp.Write(descriptor); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write descriptor: %w", err)
	}
	_ = os.Chmod(tmp.Name(), 0o644)
	if err := os.Rename(tmp.Name(), g.cfg.DescriptorPath); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("install descriptor: %w", err)
	}
	return nil
}

// classify maps one command's outcome onto the error taxonomy. allow lists
// output markers that are successes despite the plane flagging them as
// errors (idempotent start/stop).
func classify(op, out string, err error, allow []string) error {
	lower := strings.ToLower(out)
	for _, a := range allow {
		if strings.Contains(lower, a) {
			return nil
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return newError(Timeout, op, out, err)
	case errors.Is(err, exec.ErrNotFound):
		return newError(Unavailable, op, out, err)
	case unavailableOutput(lower):
		return newError(Unavailable, op, out, err)
	case strings.Contains(lower, "error"):
		return newError(Rejected, op, out, err)
	case err != nil:
		return newError(Rejected, op, out, err)
	}
	return nil
}

func unavailableOutput(lower string) bool {
	for _, marker := range []string{
		"no such file",
		"refused connection",
		"connection refused",
		"socket.error",
		"is the daemon running",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

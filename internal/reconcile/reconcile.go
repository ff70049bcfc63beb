package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/loykin/keepbusy/internal/descriptor"
	"github.com/loykin/keepbusy/internal/journal"
	"github.com/loykin/keepbusy/internal/metrics"
	"github.com/loykin/keepbusy/internal/plan"
	"github.com/loykin/keepbusy/internal/retry"
	"github.com/loykin/keepbusy/internal/state"
	"github.com/loykin/keepbusy/internal/supervisor"
	"github.com/loykin/keepbusy/internal/usage"
)

// State names the reconciler's position in an operation. Disabled and
// Enabled are the only resting states; Enabling and Disabling exist
// within a single operation; Degraded is terminal for the current
// operation only, a later Apply proceeds normally.
type State string

const (
	StateDisabled  State = "disabled"
	StateEnabling  State = "enabling"
	StateEnabled   State = "enabled"
	StateDisabling State = "disabling"
	StateDegraded  State = "degraded"
)

// Config bounds every wait and retry the reconciler performs. One
// operation runs end-to-end within these budgets and then returns;
// nothing blocks indefinitely.
type Config struct {
	// Settle is the pause between starting the group and the first
	// verification look, and again after each verification restart.
	Settle time.Duration
	// Verify bounds the restart-and-recheck loop after an apply.
	Verify retry.Policy
	// StopGrace is how long a graceful stop gets before leftover
	// processes are killed forcefully.
	StopGrace time.Duration
}

func (c Config) withDefaults() Config {
	if c.Settle <= 0 {
		c.Settle = 2 * time.Second
	}
	if c.Verify.MaxAttempts < 1 {
		c.Verify.MaxAttempts = 3
	}
	if c.Verify.Backoff <= 0 {
		c.Verify.Backoff = 2 * time.Second
	}
	if c.StopGrace <= 0 {
		c.StopGrace = 3 * time.Second
	}
	return c
}

// Result reports how an operation ended. The reconciler never claims
// silent success: a degraded outcome carries the failing phase, the
// missing processes, and the backup path when one matters.
type Result struct {
	State     State           `json:"state"`
	Plan      plan.Plan       `json:"plan"`
	Coercions []plan.Coercion `json:"-"`
	// Degraded marks an operation that finished but could not confirm
	// convergence.
	Degraded bool     `json:"degraded,omitempty"`
	Missing  []string `json:"missing,omitempty"`
	// FailedPhase names where a failed operation stopped.
	FailedPhase string `json:"failed_phase,omitempty"`
	// BackupPath is the pre-apply descriptor backup, when one was taken.
	BackupPath string `json:"backup_path,omitempty"`
	// Forced marks a disable that needed the kill fallback.
	Forced bool `json:"forced,omitempty"`
	// PersistErr records a state file write failure. Reported, never
	// fatal: in-memory intent still governs the session.
	PersistErr error `json:"-"`
}

// StatusReport always answers, even when both the state file and the
// control plane are unusable; "unknown, assumed disabled" is a valid
// answer and shows up as the zero-value report.
type StatusReport struct {
	State             State                      `json:"state"`
	Enabled           bool                       `json:"enabled"`
	Plan              plan.Plan                  `json:"plan"`
	Modified          time.Time                  `json:"modified,omitempty"`
	DescriptorPresent bool                       `json:"descriptor_present"`
	Converged         bool                       `json:"converged"`
	Processes         []supervisor.ProcessStatus `json:"processes,omitempty"`
	Usage             map[string]usage.Sample    `json:"usage,omitempty"`
}

// Reconciler makes live process state match a declared plan: validate,
// render, back up, apply through the control plane, verify convergence,
// persist intent. It owns all writes to the descriptor (via the
// gateway) and to the state file, performs one operation at a time, and
// holds no supervisory loop of its own.
type Reconciler struct {
	cfg      Config
	gw       supervisor.Gateway
	store    *state.Store
	renderer descriptor.Renderer
	backups  descriptor.Backups

	detectedCores int
	logger        *slog.Logger
	jrn           journal.Sink
}

func New(cfg Config, gw supervisor.Gateway, store *state.Store, renderer descriptor.Renderer, backups descriptor.Backups) *Reconciler {
	return &Reconciler{
		cfg:           cfg.withDefaults(),
		gw:            gw,
		store:         store,
		renderer:      renderer,
		backups:       backups,
		detectedCores: plan.DetectCores(),
		logger:        slog.Default(),
		jrn:           journal.NopSink{},
	}
}

func (r *Reconciler) SetLogger(l *slog.Logger) {
	if l != nil {
		r.logger = l
	}
}

func (r *Reconciler) SetJournal(s journal.Sink) {
	if s != nil {
		r.jrn = s
	}
}

// SetDetectedCores overrides core detection, mainly for tests.
func (r *Reconciler) SetDetectedCores(n int) {
	if n > 0 {
		r.detectedCores = n
	}
}

// Apply drives the full enable path: validate raw input against the
// last known-good plan, render the descriptor, back up the current one,
// apply and start through the gateway, verify convergence, persist
// enabled intent. Re-entrant: applying while enabled re-renders and
// restarts the group, preserving enabled=true throughout.
func (r *Reconciler) Apply(ctx context.Context, raw plan.Raw) (Result, error) {
	metrics.IncReconcile("apply")
	started := time.Now()

	snap := r.store.Snapshot()
	v := plan.NewValidator(r.detectedCores, &snap.Plan)
	p, coercions := v.Normalize(raw)
	res := Result{State: StateEnabling, Plan: p, Coercions: coercions}
	for _, c := range coercions {
		r.logger.Info("input normalized", "field", c.Field, "given", c.Given, "used", c.Used, "reason", c.Reason)
	}

	rendered := r.renderer.Render(p, time.Now())

	backupPath, err := r.backups.Backup(r.gw.DescriptorPath())
	if err != nil {
		// Overwriting without a backup could lose the only known-good
		// descriptor, so the apply stops here.
		r.journal(ctx, journal.EventApplyFailed, StateDegraded, p, "backup: "+err.Error())
		return r.failed(res, "backup", err)
	}
	res.BackupPath = backupPath

	if err := r.gw.ApplyDescriptor(ctx, rendered); err != nil {
		return r.rollback(ctx, res, "apply", err)
	}
	if err := r.gw.StartGroup(ctx); err != nil {
		return r.rollback(ctx, res, "start", err)
	}
	metrics.ObserveApplyDuration(time.Since(started).Seconds())
	r.journal(ctx, journal.EventApplied, StateEnabling, p, "")

	if err := r.backups.Prune(); err != nil {
		r.logger.Warn("backup prune failed", "error", err)
	}

	r.sleep(ctx, r.cfg.Settle)
	if missing := r.verify(ctx); len(missing) > 0 {
		res.Degraded = true
		res.Missing = missing
		metrics.IncReconcileFailure("verify")
		r.journal(ctx, journal.EventVerifyDegraded, StateEnabling, p, strings.Join(missing, ","))
		r.logger.Warn("enabled without convergence", "missing", strings.Join(missing, ","))
	}

	res.State = StateEnabled
	if err := r.store.Save(p, true); err != nil {
		res.PersistErr = err
		metrics.IncReconcileFailure("persist")
		r.logger.Warn("state save failed, session intent unaffected", "error", err)
	}
	metrics.SetEnabled(true)
	r.journal(ctx, journal.EventEnabled, StateEnabled, p, "")
	r.logger.Info("enabled", "plan", p.String(), "degraded", res.Degraded)
	return res, nil
}

// Disable stops the group, kills leftovers after the grace period, and
// persists disabled intent.
func (r *Reconciler) Disable(ctx context.Context) (Result, error) {
	metrics.IncReconcile("disable")
	snap := r.store.Snapshot()
	res := Result{State: StateDisabling, Plan: snap.Plan}

	if err := r.gw.StopGroup(ctx); err != nil {
		return r.failed(res, "stop", err)
	}

	r.sleep(ctx, r.cfg.StopGrace)
	if still := r.running(ctx); len(still) > 0 {
		r.logger.Warn("graceful stop left processes running, killing", "processes", strings.Join(still, ","))
		res.Forced = true
		if err := r.gw.SignalGroup(ctx, "KILL"); err != nil {
			return r.failed(res, "kill", err)
		}
	}

	res.State = StateDisabled
	if err := r.store.Save(snap.Plan, false); err != nil {
		res.PersistErr = err
		metrics.IncReconcileFailure("persist")
		r.logger.Warn("state save failed, session intent unaffected", "error", err)
	}
	metrics.SetEnabled(false)
	r.journal(ctx, journal.EventDisabled, StateDisabled, snap.Plan, "")
	r.logger.Info("disabled", "forced", res.Forced)
	return res, nil
}

// Toggle dispatches on persisted intent: enabled disables, anything
// else applies raw.
func (r *Reconciler) Toggle(ctx context.Context, raw plan.Raw) (Result, error) {
	if _, enabled := r.store.Load(); enabled {
		return r.Disable(ctx)
	}
	return r.Apply(ctx, raw)
}

// Status composes a report from the tolerant state read and a
// best-effort live query. It never fails.
func (r *Reconciler) Status(ctx context.Context) StatusReport {
	snap := r.store.Snapshot()
	rep := StatusReport{
		State:    StateDisabled,
		Enabled:  snap.Enabled,
		Plan:     snap.Plan,
		Modified: snap.Modified,
	}
	if snap.Enabled {
		rep.State = StateEnabled
	}
	if _, err := os.Stat(r.gw.DescriptorPath()); err == nil {
		rep.DescriptorPresent = true
	}
	sts, err := r.gw.QueryStatus(ctx)
	if err != nil {
		r.logger.Debug("status query failed", "error", err)
	}
	rep.Processes = sts
	rep.Converged = len(missingFrom(sts)) == 0

	pids := make(map[string]int32)
	for _, st := range sts {
		if st.Running() && st.PID > 0 {
			pids[st.Name] = int32(st.PID)
		}
	}
	if len(pids) > 0 {
		rep.Usage = usage.Collect(pids)
	}
	return rep
}

// verify rechecks convergence with bounded restart retries and returns
// the names still missing when the budget runs out.
func (r *Reconciler) verify(ctx context.Context) []string {
	missing := r.missing(ctx)
	if len(missing) == 0 {
		return nil
	}
	verr := &VerificationError{Missing: missing}
	err := r.cfg.Verify.Do(ctx, func() error {
		metrics.IncVerifyRetry()
		if err := r.gw.RestartGroup(ctx); err != nil {
			r.logger.Warn("verification restart failed", "error", err)
		}
		r.sleep(ctx, r.cfg.Settle)
		if verr.Missing = r.missing(ctx); len(verr.Missing) > 0 {
			return verr
		}
		return nil
	})
	if err == nil {
		return nil
	}
	return verr.Missing
}

// missing lists expected process names not currently RUNNING. An
// unreachable plane yields an empty status set, so everything counts as
// missing; unknown is treated as not running.
func (r *Reconciler) missing(ctx context.Context) []string {
	sts, _ := r.gw.QueryStatus(ctx)
	return missingFrom(sts)
}

func missingFrom(sts []supervisor.ProcessStatus) []string {
	runningSet := make(map[string]bool, len(sts))
	for _, st := range sts {
		if st.Running() {
			runningSet[st.Name] = true
		}
	}
	var missing []string
	for _, name := range descriptor.ProgramNames() {
		if !runningSet[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// running lists managed processes the plane still reports as RUNNING.
func (r *Reconciler) running(ctx context.Context) []string {
	sts, _ := r.gw.QueryStatus(ctx)
	var alive []string
	for _, st := range sts {
		if st.Running() {
			alive = append(alive, st.Name)
		}
	}
	return alive
}

// rollback restores the pre-apply backup after a gateway failure. With
// no backup (first enable) there is nothing to restore and the original
// error is surfaced as-is. A failed restore is the irrecoverable case:
// the result keeps the backup path so a human can recover by hand.
func (r *Reconciler) rollback(ctx context.Context, res Result, phase string, applyErr error) (Result, error) {
	metrics.IncReconcileFailure(phase)
	res.State = StateDegraded
	res.FailedPhase = phase
	r.journal(ctx, journal.EventApplyFailed, StateDegraded, res.Plan, phase+": "+applyErr.Error())

	if res.BackupPath == "" {
		r.logger.Error("apply failed with no prior descriptor to restore", "phase", phase, "error", applyErr)
		return res, fmt.Errorf("%s: %w", phase, applyErr)
	}

	data, err := os.ReadFile(res.BackupPath)
	if err == nil {
		err = r.gw.RestoreDescriptor(ctx, data)
	}
	if err != nil {
		metrics.IncReconcileFailure("rollback")
		r.journal(ctx, journal.EventRollbackFailed, StateDegraded, res.Plan, err.Error())
		r.logger.Error("descriptor rollback failed", "backup", res.BackupPath, "error", err)
		return res, &RollbackError{Phase: phase, BackupPath: res.BackupPath, ApplyErr: applyErr, RestoreErr: err}
	}
	r.journal(ctx, journal.EventRolledBack, StateDegraded, res.Plan, res.BackupPath)
	r.logger.Warn("apply failed, previous descriptor restored", "phase", phase, "error", applyErr)
	return res, fmt.Errorf("%s: %w", phase, applyErr)
}

// failed reports a degraded operation with nothing to roll back. The
// state file stays untouched, so persisted intent still names the last
// state that was actually reached.
func (r *Reconciler) failed(res Result, phase string, err error) (Result, error) {
	metrics.IncReconcileFailure(phase)
	res.State = StateDegraded
	res.FailedPhase = phase
	r.logger.Error("operation failed", "phase", phase, "error", err)
	return res, fmt.Errorf("%s: %w", phase, err)
}

func (r *Reconciler) journal(ctx context.Context, typ journal.EventType, st State, p plan.Plan, detail string) {
	err := r.jrn.Send(ctx, journal.Event{
		Type:           typ,
		OccurredAt:     time.Now().UTC(),
		State:          string(st),
		Detail:         detail,
		CPUCores:       p.CPUCores,
		CPULoadPercent: p.CPULoadPercent,
		MemoryPercent:  p.MemoryPercent,
	})
	if err != nil {
		r.logger.Warn("journal send failed", "type", string(typ), "error", err)
	}
}

func (r *Reconciler) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

package keepbusy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/keepbusy/internal/supervisor"
)

// okRunner answers every control-plane command with a healthy
// transcript, including a fully RUNNING status table.
type okRunner struct {
	group string
	calls [][]string
}

func (r *okRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if len(args) > 0 && args[0] == "status" {
		return fmt.Sprintf(
			"%[1]s:cpu-stress    RUNNING   pid 101, uptime 0:00:10\n"+
				"%[1]s:memory-stress RUNNING   pid 102, uptime 0:00:10\n"+
				"%[1]s:watchdog      RUNNING   pid 103, uptime 0:00:10\n", r.group), nil
	}
	return "", nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Paths.Descriptor = filepath.Join(dir, "keepbusy.conf")
	cfg.Paths.BackupDir = filepath.Join(dir, "backups")
	cfg.Paths.State = filepath.Join(dir, "state")
	cfg.Paths.Lock = filepath.Join(dir, "keepbusy.lock")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Watchdog.Listen = "" // tests that want the API pass an address
	cfg.Verify.Settle = time.Millisecond
	cfg.Verify.Delay = time.Millisecond
	cfg.Verify.StopGrace = time.Millisecond
	cfg.Supervisor.ServiceSettle = time.Millisecond
	cfg.Log.Level = "error"
	return cfg
}

func newTestTool(t *testing.T) (*Tool, *okRunner) {
	t.Helper()
	cfg := testConfig(t)
	runner := &okRunner{group: cfg.Supervisor.Group}
	tool, err := New(cfg, WithRunner(runner), WithSelfBin("/usr/local/bin/keepbusy"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tool, runner
}

func TestEnableStatusDisable(t *testing.T) {
	tool, _ := newTestTool(t)
	ctx := context.Background()

	res, err := tool.Enable(ctx)
	if err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if res.Degraded {
		t.Fatalf("healthy transcript must not be degraded: %+v", res)
	}

	st := tool.Status(ctx)
	if !st.Enabled || !st.Converged || !st.DescriptorPresent {
		t.Fatalf("unexpected status after enable: %+v", st)
	}

	if _, err := tool.Disable(ctx); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if st := tool.Status(ctx); st.Enabled {
		t.Fatalf("still enabled after disable: %+v", st)
	}
}

func TestApplyWithExplicitValues(t *testing.T) {
	tool, _ := newTestTool(t)

	res, err := tool.Apply(context.Background(), Raw{CPUCores: "1", CPULoadPercent: "25", MemoryPercent: "35"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := Plan{CPUCores: 1, CPULoadPercent: 25, MemoryPercent: 35}
	if res.Plan != want {
		t.Fatalf("plan = %+v, want %+v", res.Plan, want)
	}
}

func TestQuickSetupPresets(t *testing.T) {
	tool, _ := newTestTool(t)

	res, err := tool.QuickSetup(context.Background(), "light")
	if err != nil {
		t.Fatalf("QuickSetup: %v", err)
	}
	if res.Plan.CPUCores != 1 || res.Plan.CPULoadPercent != 10 || res.Plan.MemoryPercent != 10 {
		t.Fatalf("unexpected light plan: %+v", res.Plan)
	}

	if _, err := tool.QuickSetup(context.Background(), "nope"); err == nil {
		t.Fatal("unknown preset must fail")
	}
}

func TestLockExcludesSecondHolder(t *testing.T) {
	tool, _ := newTestTool(t)

	l, err := tool.Lock()
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer func() { _ = l.Release() }()

	// Same-process flock re-acquisition succeeds on some platforms, so
	// contention is exercised against a second flock on the same path in
	// the lock package's own tests. Here the lock must at least exist.
	if l.Path() != tool.Config().Paths.Lock {
		t.Fatalf("lock path = %s", l.Path())
	}
}

func TestHealthAlwaysReturnsChecks(t *testing.T) {
	tool, _ := newTestTool(t)
	checks := tool.Health(context.Background())
	if len(checks) != 5 {
		t.Fatalf("expected 5 checks, got %d", len(checks))
	}
}

func TestWithJournalOverride(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.DSN = "" // no sink configured
	runner := &okRunner{group: cfg.Supervisor.Group}
	sink := &countingSink{}
	tool, err := New(cfg, WithRunner(runner), WithJournal(sink), WithSelfBin("keepbusy"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := tool.Enable(context.Background()); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if sink.n == 0 {
		t.Fatal("expected journal events through the injected sink")
	}
}

type countingSink struct{ n int }

func (s *countingSink) Send(context.Context, Event) error {
	s.n++
	return nil
}

func TestRunWatchdogStopsOnCancel(t *testing.T) {
	tool, _ := newTestTool(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tool.RunWatchdog(ctx, 30*time.Second, "") }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("RunWatchdog returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog did not stop on cancel")
	}
}

func TestRunWatchdogServesCollectors(t *testing.T) {
	tool, _ := newTestTool(t)
	const addr = "127.0.0.1:18647"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- tool.RunWatchdog(ctx, 30*time.Second, addr) }()

	deadline := time.Now().Add(5 * time.Second)
	var body string
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err == nil {
			b, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			body = string(b)
			if strings.Contains(body, "keepbusy_watchdog_checks_total") {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	if !strings.Contains(body, "keepbusy_watchdog_checks_total") {
		t.Fatalf("watchdog /metrics is missing the keepbusy collectors:\n%.1000s", body)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog did not stop on cancel")
	}
}

var _ supervisor.Runner = (*okRunner)(nil)

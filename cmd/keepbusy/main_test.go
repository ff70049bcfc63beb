package main

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loykin/keepbusy"
	"github.com/stretchr/testify/require"
)

// scriptedRunner answers every supervisorctl invocation with a healthy
// transcript so commands can run end-to-end without a control plane.
type scriptedRunner struct {
	group string
}

func (r *scriptedRunner) Run(_ context.Context, _ string, args ...string) (string, error) {
	if len(args) > 0 && args[0] == "status" {
		return fmt.Sprintf(
			"%[1]s:cpu-stress    RUNNING   pid 11, uptime 0:01:00\n"+
				"%[1]s:memory-stress RUNNING   pid 12, uptime 0:01:00\n"+
				"%[1]s:watchdog      RUNNING   pid 13, uptime 0:01:00\n", r.group), nil
	}
	return "", nil
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := keepbusy.DefaultConfig()
	cfg.Paths.Descriptor = filepath.Join(dir, "keepbusy.conf")
	cfg.Paths.BackupDir = filepath.Join(dir, "backups")
	cfg.Paths.State = filepath.Join(dir, "state")
	cfg.Paths.Lock = filepath.Join(dir, "keepbusy.lock")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Watchdog.Listen = "" // no API in CLI tests
	cfg.Verify.Settle = time.Millisecond
	cfg.Verify.Delay = time.Millisecond
	cfg.Verify.StopGrace = time.Millisecond
	cfg.Supervisor.ServiceSettle = time.Millisecond
	cfg.Log.Level = "error"
	cfg.Log.Color = false

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, cfg.Save(path))
	return path
}

func execute(t *testing.T, in string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := buildRoot(strings.NewReader(in), &out,
		keepbusy.WithRunner(&scriptedRunner{group: "keepbusy"}),
		keepbusy.WithSelfBin("/usr/local/bin/keepbusy"),
	)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.Execute()
	return out.String(), err
}

func TestEnableDisableToggle(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := execute(t, "", "--config", cfgPath, "enable")
	require.NoError(t, err)
	require.Contains(t, out, "state: enabled")

	out, err = execute(t, "", "--config", cfgPath, "toggle")
	require.NoError(t, err)
	require.Contains(t, out, "state: disabled")

	out, err = execute(t, "", "--config", cfgPath, "toggle")
	require.NoError(t, err)
	require.Contains(t, out, "state: enabled")

	out, err = execute(t, "", "--config", cfgPath, "disable")
	require.NoError(t, err)
	require.Contains(t, out, "state: disabled")
}

func TestApplyReportsCoercions(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := execute(t, "", "--config", cfgPath, "apply", "--cores=1", "--cpu-load=250", "--memory=20")
	require.NoError(t, err)
	require.Contains(t, out, "state: enabled")
	require.Contains(t, out, "adjusted")
}

func TestQuickSetupUnknownPresetExitsZero(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := execute(t, "", "--config", cfgPath, "quick-setup", "extreme")
	require.NoError(t, err)
	require.Contains(t, out, "operation failed")
}

func TestStatusFallsBackToDirectQuery(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := execute(t, "", "--config", cfgPath, "enable")
	require.NoError(t, err)

	out, err := execute(t, "", "--config", cfgPath, "status")
	require.NoError(t, err)
	require.Contains(t, out, "state:      enabled")
	require.Contains(t, out, "cpu-stress")
}

func TestHealthListsAllProbes(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := execute(t, "", "--config", cfgPath, "health")
	require.NoError(t, err)
	for _, name := range []string{"stress-binary", "ctl-binary", "control-plane", "descriptor", "state-file"} {
		require.Contains(t, out, name)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	require.Contains(t, out, "keepbusy "+version)
}

func TestMenuStatusThenExit(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := execute(t, "3\nexit\n", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "1) toggle")
	require.Contains(t, out, "state:")
}

func TestMenuToleratesBadInput(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := execute(t, "bogus\n\n8\n", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "unrecognized choice")
}

func TestMenuEndsOnEOF(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := execute(t, "", "--config", cfgPath)
	require.NoError(t, err)
}

func TestMenuContentionIsFatal(t *testing.T) {
	cfgPath := writeTestConfig(t)

	cfg, err := keepbusy.LoadConfig(cfgPath)
	require.NoError(t, err)
	holder, err := keepbusy.New(cfg,
		keepbusy.WithRunner(&scriptedRunner{group: "keepbusy"}),
		keepbusy.WithSelfBin("keepbusy"))
	require.NoError(t, err)
	l, err := holder.Lock()
	require.NoError(t, err)
	defer func() { _ = l.Release() }()

	_, err = execute(t, "8\n", "--config", cfgPath)
	require.Error(t, err)
	require.True(t, keepbusy.IsContention(err))
}

func TestNormalizeChoice(t *testing.T) {
	cases := map[string]string{
		"1":        "toggle",
		"toggle":   "toggle",
		" Toggle ": "toggle",
		"2":        "configure",
		"config":   "configure",
		"4":        "quick-setup",
		"quick":    "quick-setup",
		"5":        "health-check",
		"health":   "health-check",
		"6":        "advanced",
		"settings": "advanced",
		"q":        "exit",
		"8":        "exit",
		"unknown":  "",
		"9":        "",
		"":         "",
		"?":        "help",
	}
	for in, want := range cases {
		require.Equal(t, want, normalizeChoice(in), "input %q", in)
	}
}

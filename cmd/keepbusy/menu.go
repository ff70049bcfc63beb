package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/keepbusy"
)

// defaultConfigPath is where the advanced-settings menu saves edits when
// no --config was given.
const defaultConfigPath = "/etc/keepbusy/config.toml"

const menuText = `
keepbusy — keeps this instance busy enough to stay alive

  1) toggle            enable or disable, depending on current state
  2) configure         set cores / cpu load / memory and enable
  3) status            persisted intent and live process state
  4) quick-setup       apply a preset: light, default, heavy
  5) health-check      probe binaries, control plane, descriptor, state
  6) advanced settings edit watchdog, backup, journal, logging
  7) help
  8) exit
`

const helpText = `
keepbusy renders a supervisord program group running stress-ng workers,
applies it through supervisorctl, verifies the processes came up, and
remembers the settings across runs. The control plane restarts the
workers forever; a watchdog process only reports when something is gone.

configure and quick-setup both end with the tool enabled. Values out of
range are adjusted, never rejected. Use 'keepbusy --help' for the
non-interactive subcommands.
`

// menu is the interactive session. It holds the instance lock for its
// whole lifetime, so a second keepbusy cannot mutate underneath it.
type menu struct {
	in   *bufio.Reader
	out  io.Writer
	cmd  *command
	tool *keepbusy.Tool
	cfg  keepbusy.Config
}

// runMenu is the bare-invocation entrypoint. Lock contention and a
// failed rollback are the only errors that escape.
func runMenu(ctx context.Context, in io.Reader, out io.Writer, c *command) error {
	t, err := c.tool()
	if err != nil {
		_, _ = fmt.Fprintf(out, "setup failed: %v\n", err)
		return nil
	}
	defer func() { _ = t.Close() }()

	l, err := t.Lock()
	if err != nil {
		return err
	}
	defer func() { _ = l.Release() }()

	m := &menu{
		in:   bufio.NewReader(in),
		out:  out,
		cmd:  c,
		tool: t,
		cfg:  t.Config(),
	}
	return m.run(ctx)
}

func (m *menu) run(ctx context.Context) error {
	for {
		_, _ = fmt.Fprint(m.out, menuText)
		line, ok := m.prompt("select")
		if !ok {
			return nil
		}
		switch normalizeChoice(line) {
		case "toggle":
			if err := m.mutate(ctx, m.tool.Toggle); err != nil {
				return err
			}
		case "configure":
			if err := m.configure(ctx); err != nil {
				return err
			}
		case "status":
			renderStatus(m.out, m.tool.Status(ctx))
		case "quick-setup":
			if err := m.quickSetup(ctx); err != nil {
				return err
			}
		case "health-check":
			renderChecks(m.out, m.tool.Health(ctx))
		case "advanced":
			m.advanced()
		case "help":
			_, _ = fmt.Fprint(m.out, helpText)
		case "exit":
			return nil
		default:
			_, _ = fmt.Fprintf(m.out, "unrecognized choice %q, enter a number 1-8 or an item name\n", line)
		}
	}
}

// normalizeChoice accepts item numbers or names, case-insensitively.
func normalizeChoice(line string) string {
	s := strings.ToLower(strings.TrimSpace(line))
	switch s {
	case "1", "toggle":
		return "toggle"
	case "2", "configure", "config":
		return "configure"
	case "3", "status":
		return "status"
	case "4", "quick-setup", "quicksetup", "quick":
		return "quick-setup"
	case "5", "health-check", "healthcheck", "health":
		return "health-check"
	case "6", "advanced settings", "advanced", "settings":
		return "advanced"
	case "7", "help", "?":
		return "help"
	case "8", "exit", "quit", "q":
		return "exit"
	}
	return ""
}

// mutate runs one reconcile operation inside the session. A failed
// rollback ends the session with an error; everything else keeps the
// menu alive.
func (m *menu) mutate(ctx context.Context, op func(context.Context) (keepbusy.Result, error)) error {
	res, err := op(ctx)
	if err != nil {
		if keepbusy.IsRollbackFailure(err) {
			return err
		}
		_, _ = fmt.Fprintf(m.out, "operation failed: %v\n", err)
		renderStatus(m.out, m.tool.Status(ctx))
		return nil
	}
	renderResult(m.out, res)
	return nil
}

func (m *menu) configure(ctx context.Context) error {
	_, _ = fmt.Fprintln(m.out, "empty input keeps the automatic value; out-of-range values are adjusted")
	cores, ok := m.prompt("cpu cores")
	if !ok {
		return nil
	}
	load, ok := m.prompt("cpu load percent")
	if !ok {
		return nil
	}
	mem, ok := m.prompt("memory percent")
	if !ok {
		return nil
	}
	return m.mutate(ctx, func(ctx context.Context) (keepbusy.Result, error) {
		return m.tool.Apply(ctx, keepbusy.Raw{CPUCores: cores, CPULoadPercent: load, MemoryPercent: mem})
	})
}

func (m *menu) quickSetup(ctx context.Context) error {
	preset, ok := m.prompt("preset [light|default|heavy]")
	if !ok {
		return nil
	}
	preset = strings.ToLower(strings.TrimSpace(preset))
	if preset == "" {
		preset = "default"
	}
	return m.mutate(ctx, func(ctx context.Context) (keepbusy.Result, error) {
		return m.tool.QuickSetup(ctx, preset)
	})
}

// advanced edits the session's config copy and writes it back on save.
// Edits apply from the next invocation; the running session keeps the
// settings it started with.
func (m *menu) advanced() {
	for {
		_, _ = fmt.Fprintf(m.out, `
advanced settings
  1) watchdog interval  %s
  2) watchdog listen    %s
  3) backup retention   %d
  4) journal dsn        %s
  5) log level          %s
  6) save
  7) back
`, m.cfg.Watchdog.Interval, m.cfg.Watchdog.Listen, m.cfg.Backup.Retention, orNone(m.cfg.Journal.DSN), m.cfg.Log.Level)
		line, ok := m.prompt("select")
		if !ok {
			return
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "1", "interval", "watchdog interval":
			v, ok := m.prompt("interval (e.g. 45s)")
			if !ok {
				return
			}
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				_, _ = fmt.Fprintf(m.out, "not a duration: %v\n", err)
				continue
			}
			m.cfg.Watchdog.Interval = d
		case "2", "listen", "watchdog listen":
			v, ok := m.prompt("listen address (empty disables the API)")
			if !ok {
				return
			}
			m.cfg.Watchdog.Listen = strings.TrimSpace(v)
		case "3", "retention", "backup retention":
			v, ok := m.prompt("backups to keep")
			if !ok {
				return
			}
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil || n < 1 {
				_, _ = fmt.Fprintln(m.out, "retention must be a positive number")
				continue
			}
			m.cfg.Backup.Retention = n
		case "4", "dsn", "journal", "journal dsn":
			v, ok := m.prompt("journal dsn (empty disables)")
			if !ok {
				return
			}
			m.cfg.Journal.DSN = strings.TrimSpace(v)
		case "5", "level", "log level":
			v, ok := m.prompt("level [debug|info|warn|error]")
			if !ok {
				return
			}
			m.cfg.Log.Level = strings.ToLower(strings.TrimSpace(v))
		case "6", "save":
			path := m.cmd.global.ConfigPath
			if path == "" {
				path = defaultConfigPath
			}
			if err := m.cfg.Save(path); err != nil {
				_, _ = fmt.Fprintf(m.out, "save failed: %v\n", err)
				continue
			}
			_, _ = fmt.Fprintf(m.out, "saved to %s (takes effect on next run)\n", path)
		case "7", "back", "b":
			return
		default:
			_, _ = fmt.Fprintf(m.out, "unrecognized choice %q\n", line)
		}
	}
}

// prompt reads one line; ok is false on EOF, which ends the session the
// same way exit does.
func (m *menu) prompt(label string) (string, bool) {
	_, _ = fmt.Fprintf(m.out, "%s> ", label)
	line, err := m.in.ReadString('\n')
	if err != nil && line == "" {
		_, _ = fmt.Fprintln(m.out)
		return "", false
	}
	return strings.TrimRight(line, "\r\n"), true
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

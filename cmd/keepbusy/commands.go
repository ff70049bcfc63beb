package main

import (
	"context"
	"fmt"
	"io"

	"github.com/loykin/keepbusy"
	"github.com/loykin/keepbusy/pkg/client"
)

// command binds the handlers to the global flags and an output writer.
// Tools are assembled per invocation so --config takes effect after
// flag parsing.
type command struct {
	global *GlobalFlags
	out    io.Writer
	// opts are extra assembly options, injected by tests.
	opts []keepbusy.Option
}

func (c *command) tool() (*keepbusy.Tool, error) {
	cfg, err := keepbusy.LoadConfig(c.global.ConfigPath)
	if err != nil {
		return nil, err
	}
	return keepbusy.New(cfg, c.opts...)
}

// mutate runs op under the instance lock. Lock contention and a failed
// rollback propagate so main can exit non-zero; every other failure is
// printed, followed by the status the tool can still report, and the
// invocation succeeds.
func (c *command) mutate(ctx context.Context, op func(context.Context, *keepbusy.Tool) (keepbusy.Result, error)) error {
	t, err := c.tool()
	if err != nil {
		_, _ = fmt.Fprintf(c.out, "setup failed: %v\n", err)
		return nil
	}
	defer func() { _ = t.Close() }()

	l, err := t.Lock()
	if err != nil {
		return err
	}
	defer func() { _ = l.Release() }()

	res, err := op(ctx, t)
	if err != nil {
		if keepbusy.IsRollbackFailure(err) {
			return err
		}
		_, _ = fmt.Fprintf(c.out, "operation failed: %v\n", err)
		renderStatus(c.out, t.Status(ctx))
		return nil
	}
	renderResult(c.out, res)
	return nil
}

func (c *command) Enable(ctx context.Context) error {
	return c.mutate(ctx, func(ctx context.Context, t *keepbusy.Tool) (keepbusy.Result, error) {
		return t.Enable(ctx)
	})
}

func (c *command) Disable(ctx context.Context) error {
	return c.mutate(ctx, func(ctx context.Context, t *keepbusy.Tool) (keepbusy.Result, error) {
		return t.Disable(ctx)
	})
}

func (c *command) Toggle(ctx context.Context) error {
	return c.mutate(ctx, func(ctx context.Context, t *keepbusy.Tool) (keepbusy.Result, error) {
		return t.Toggle(ctx)
	})
}

func (c *command) Apply(ctx context.Context, f ApplyFlags) error {
	return c.mutate(ctx, func(ctx context.Context, t *keepbusy.Tool) (keepbusy.Result, error) {
		return t.Apply(ctx, keepbusy.Raw{
			CPUCores:       f.Cores,
			CPULoadPercent: f.CPULoad,
			MemoryPercent:  f.Memory,
		})
	})
}

func (c *command) QuickSetup(ctx context.Context, preset string) error {
	return c.mutate(ctx, func(ctx context.Context, t *keepbusy.Tool) (keepbusy.Result, error) {
		return t.QuickSetup(ctx, preset)
	})
}

// Status asks a running watchdog's API first and falls back to a direct
// control-plane query when no watchdog is listening. Read-only: no lock.
func (c *command) Status(ctx context.Context, f StatusFlags) error {
	t, err := c.tool()
	if err != nil {
		_, _ = fmt.Fprintf(c.out, "setup failed: %v\n", err)
		return nil
	}
	defer func() { _ = t.Close() }()

	apiURL := f.APIUrl
	if apiURL == "" {
		apiURL = "http://" + t.Config().Watchdog.Listen
	}
	api := client.New(client.Config{BaseURL: apiURL, Timeout: f.APITimeout, Logger: t.Logger()})
	if api.IsReachable(ctx) {
		if err := c.statusViaAPI(ctx, api); err == nil {
			return nil
		}
	}

	renderStatus(c.out, t.Status(ctx))
	return nil
}

func (c *command) statusViaAPI(ctx context.Context, api *client.Client) error {
	st, err := api.State(ctx)
	if err != nil {
		return err
	}
	live, err := api.Status(ctx)
	if err != nil {
		return err
	}
	renderAPIStatus(c.out, st, live)
	return nil
}

// Health runs the dependency probes. Failed probes are rows in the
// table, not a reason to exit non-zero.
func (c *command) Health(ctx context.Context) error {
	t, err := c.tool()
	if err != nil {
		_, _ = fmt.Fprintf(c.out, "setup failed: %v\n", err)
		return nil
	}
	defer func() { _ = t.Close() }()
	renderChecks(c.out, t.Health(ctx))
	return nil
}

// Watchdog blocks in the diagnose-only loop until the context ends. It
// does not take the instance lock: the control plane already guarantees
// a single watchdog.
func (c *command) Watchdog(ctx context.Context, f WatchdogFlags) error {
	t, err := c.tool()
	if err != nil {
		return err
	}
	defer func() { _ = t.Close() }()
	if err := t.RunWatchdog(ctx, f.Interval, f.Listen); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/keepbusy"
	"github.com/spf13/cobra"
)

// version is stamped by the build.
var version = "dev"

func main() {
	root := buildRoot(os.Stdin, os.Stdout)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		// Only an instance already running or a rollback that failed to
		// restore the previous descriptor justify a non-zero exit; any
		// other failure was already reported with the best status the
		// tool could produce.
		if keepbusy.IsContention(err) || keepbusy.IsRollbackFailure(err) {
			os.Exit(1)
		}
	}
}

// buildRoot wires the command tree. in/out are parameters so tests can
// drive the menu and read the output.
func buildRoot(in io.Reader, out io.Writer, opts ...keepbusy.Option) *cobra.Command {
	globalFlags := &GlobalFlags{}
	applyFlags := &ApplyFlags{}
	statusFlags := &StatusFlags{}
	watchdogFlags := &WatchdogFlags{}

	cmd := &command{global: globalFlags, out: out, opts: opts}

	root := createRootCommand(globalFlags, cmd, in, out)

	root.AddCommand(
		createEnableCommand(cmd),
		createDisableCommand(cmd),
		createToggleCommand(cmd),
		createApplyCommand(cmd, applyFlags),
		createQuickSetupCommand(cmd),
		createStatusCommand(cmd, statusFlags),
		createHealthCommand(cmd),
		createWatchdogCommand(cmd, watchdogFlags),
		createVersionCommand(out),
	)

	return root
}

func createRootCommand(flags *GlobalFlags, cmd *command, in io.Reader, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "keepbusy",
		Short: "Keeps a cloud instance busy enough to avoid idle reclamation",
		Long: `keepbusy maintains a supervisord program group of stress-ng workers so
an always-free cloud instance never looks idle. Run it bare for the
interactive menu, or use the subcommands directly.

Examples:
  keepbusy                                  # interactive menu
  keepbusy quick-setup light                # enable with the light preset
  keepbusy apply --cores=2 --cpu-load=20    # explicit values
  keepbusy status                           # intent and live state
  keepbusy watchdog --listen=127.0.0.1:8321 # diagnose-only daemon`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, args []string) error {
			return runMenu(c.Context(), in, out, cmd)
		},
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")

	return root
}

func createEnableCommand(cmd *command) *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Enable with the last known-good settings (or defaults)",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Enable(c.Context())
		},
	}
}

func createDisableCommand(cmd *command) *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Stop the stress workers and remember the settings",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Disable(c.Context())
		},
	}
}

func createToggleCommand(cmd *command) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Enable if disabled, disable if enabled",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Toggle(c.Context())
		},
	}
}

func createApplyCommand(cmd *command, flags *ApplyFlags) *cobra.Command {
	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply explicit settings and enable",
		Long: `Apply explicit resource settings. Values are strings on purpose: anything
unparseable or out of range is adjusted to a safe value and reported,
never rejected. Omitted values fall back to the last known-good plan.

Examples:
  keepbusy apply --cores=2 --cpu-load=20 --memory=25
  keepbusy apply --cpu-load=10`,
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Apply(c.Context(), ApplyFlags{
				Cores:   flags.Cores,
				CPULoad: flags.CPULoad,
				Memory:  flags.Memory,
			})
		},
	}

	applyCmd.Flags().StringVar(&flags.Cores, "cores", "", "CPU cores to occupy (empty = auto)")
	applyCmd.Flags().StringVar(&flags.CPULoad, "cpu-load", "", "CPU load percent per core (empty = last good)")
	applyCmd.Flags().StringVar(&flags.Memory, "memory", "", "memory percent to hold (empty = last good)")

	return applyCmd
}

func createQuickSetupCommand(cmd *command) *cobra.Command {
	return &cobra.Command{
		Use:   "quick-setup [light|default|heavy]",
		Short: "Enable with a named preset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			preset := "default"
			if len(args) == 1 {
				preset = args[0]
			}
			return cmd.QuickSetup(c.Context(), preset)
		},
	}
}

func createStatusCommand(cmd *command, flags *StatusFlags) *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show persisted intent and live process state",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Status(c.Context(), StatusFlags{
				APIUrl:     flags.APIUrl,
				APITimeout: flags.APITimeout,
			})
		},
	}

	statusCmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "watchdog API URL (default: configured listen address)")
	statusCmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 5*time.Second, "request timeout")

	return statusCmd
}

func createHealthCommand(cmd *command) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the external pieces keepbusy depends on",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Health(c.Context())
		},
	}
}

func createWatchdogCommand(cmd *command, flags *WatchdogFlags) *cobra.Command {
	watchdogCmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Run the diagnose-only watchdog daemon",
		Long: `Run the watchdog loop: periodically verify the expected stress processes
are running and report the ones that are not. The watchdog never starts
or stops anything; correction is the control plane's job. Normally this
runs under supervisord as part of the rendered program group.`,
		RunE: func(c *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return cmd.Watchdog(ctx, WatchdogFlags{
				Interval: flags.Interval,
				Listen:   flags.Listen,
			})
		},
	}

	watchdogCmd.Flags().DurationVar(&flags.Interval, "interval", 0, "check interval (default: configured; clamped to 30s-60s)")
	watchdogCmd.Flags().StringVar(&flags.Listen, "listen", "", "status API listen address (default: configured)")

	return watchdogCmd
}

func createVersionCommand(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the keepbusy version",
		Run: func(c *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(out, "keepbusy %s\n", version)
		},
	}
}

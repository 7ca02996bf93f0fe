package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"igmonitor/pkg/config"
	"igmonitor/pkg/logger"
	"igmonitor/pkg/monitor"
)

var (
	// Run command flags
	window       time.Duration
	strictFilter bool
	debuggingURL string
	outputDir    string
	workers      int
	runTimeout   time.Duration
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [username...]",
	Short: "Scan the watched profiles once and download fresh posts",
	Long: `Run one monitoring pass: scan each profile's timeline, keep the posts
published within the freshness window, and download their images.

Profiles come from the command line, the IGMONITOR_USERNAMES environment
variable, or the config file, in that order of precedence. The browser must
already be running with remote debugging enabled and a logged-in session:

  chromium --remote-debugging-port=9222

A post already archived by an earlier run is detected by its files on disk
and skipped without refetching.`,
	Example: `  # Scan two profiles with default settings
  igmonitor run natgeo nasa

  # Widen the window and write somewhere else
  igmonitor run natgeo --window 48h --output /srv/archive

  # Profiles from config file, custom browser endpoint
  igmonitor run --debugging-url http://localhost:9333`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runMonitor(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().DurationVar(&window, "window", 0, "freshness window (default 24h)")
	runCmd.Flags().BoolVar(&strictFilter, "strict", false, "scan the whole timeline instead of stopping at the first stale post")
	runCmd.Flags().StringVar(&debuggingURL, "debugging-url", "", "browser remote debugging endpoint (default http://localhost:9222)")
	runCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for downloads (default ./data)")
	runCmd.Flags().IntVar(&workers, "workers", 0, "number of concurrent downloads (default 3)")
	runCmd.Flags().DurationVar(&runTimeout, "run-timeout", 0, "upper bound on the whole run (default 30m)")
}

func runMonitor(cmd *cobra.Command, args []string) {
	flags := make(map[string]interface{})
	if len(args) > 0 {
		flags["users"] = args
	}
	if window > 0 {
		flags["window"] = window
	}
	if cmd.Flags().Changed("strict") {
		flags["strict"] = strictFilter
	}
	if debuggingURL != "" {
		flags["debugging-url"] = debuggingURL
	}
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if workers > 0 {
		flags["workers"] = workers
	}
	if runTimeout > 0 {
		flags["run-timeout"] = runTimeout
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		logger.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		logger.WithError(err).Error("Failed to initialize logging")
		os.Exit(1)
	}
	logger.WithField("version", version).Info("Monitor starting")

	m, err := monitor.New(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize monitor")
		os.Exit(1)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Individual post and image failures are summarized in the run report
	// and do not affect the exit code; only run-level faults do.
	if _, err := m.Run(ctx); err != nil {
		logger.WithError(err).Error("Run aborted")
		os.Exit(1)
	}
}

// Make run the default command when no subcommand is specified
func init() {
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if delegatesToRun(args) {
			return runCmd.RunE(runCmd, args)
		}
		return cmd.Help()
	}
	rootCmd.Args = cobra.ArbitraryArgs
}

// delegatesToRun reports whether an invocation is handled by the run
// command: bare `igmonitor` and `igmonitor <username...>` both are.
func delegatesToRun(args []string) bool {
	return len(args) == 0 || !isKnownCommand(args[0])
}

func isKnownCommand(arg string) bool {
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == arg || cmd.HasAlias(arg) {
			return true
		}
	}
	return false
}

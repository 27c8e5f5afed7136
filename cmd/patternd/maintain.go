package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/patternd/internal/patternbank"
)

var (
	maintainProject string
	maintainWindow  int
	maintainUser    string
)

// maintainCmd groups the batch maintenance jobs for on-demand runs.
var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run maintenance jobs on demand",
	Long: `Run the engine's batch maintenance jobs for one project.

Subcommands mirror what the background scheduler runs periodically:
decay, correlate, preferences, calibrate, and cleanup.`,
}

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Apply time decay to idle patterns",
	RunE:  runDecay,
}

var correlateCmd = &cobra.Command{
	Use:   "correlate",
	Short: "Analyze pattern correlations",
	RunE:  runCorrelate,
}

var preferencesCmd = &cobra.Command{
	Use:   "preferences",
	Short: "Rebuild the preference profile",
	RunE:  runPreferences,
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Audit predicted confidence against observed outcomes",
	RunE:  runCalibrate,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale low-confidence patterns",
	RunE:  runCleanup,
}

// runCmd starts the background maintenance daemon.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the maintenance scheduler until interrupted",
	Long: `Run the background maintenance scheduler for the configured projects.

The scheduler periodically applies decay, recomputes correlations and
preferences, audits calibration, and removes stale patterns. It blocks
until SIGINT or SIGTERM.`,
	RunE: runDaemon,
}

func init() {
	maintainCmd.PersistentFlags().StringVar(&maintainProject, "project", "", "project ID (required)")
	maintainCmd.PersistentFlags().IntVar(&maintainWindow, "window-days", 0, "analysis window in days (0 uses the configured default)")
	_ = maintainCmd.MarkPersistentFlagRequired("project")

	preferencesCmd.Flags().StringVar(&maintainUser, "user", "", "scope the profile to one user")

	maintainCmd.AddCommand(decayCmd)
	maintainCmd.AddCommand(correlateCmd)
	maintainCmd.AddCommand(preferencesCmd)
	maintainCmd.AddCommand(calibrateCmd)
	maintainCmd.AddCommand(cleanupCmd)
}

func runDecay(cmd *cobra.Command, args []string) error {
	env, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	decayed, err := env.service.RunDecaySweep(cmd.Context(), maintainProject)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "[patternd] Decayed %d pattern(s)\n", decayed)
	return nil
}

func runCorrelate(cmd *cobra.Command, args []string) error {
	env, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	correlations, err := env.service.RunCorrelationAnalysis(cmd.Context(), maintainProject, maintainWindow)
	if err != nil {
		return err
	}
	return printJSON(correlations)
}

func runPreferences(cmd *cobra.Command, args []string) error {
	env, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	profile, err := env.service.RunPreferenceLearning(cmd.Context(), maintainProject, maintainUser)
	if err != nil {
		return err
	}
	return printJSON(profile)
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	env, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := env.service.RunCalibration(cmd.Context(), maintainProject, maintainWindow)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	env, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	removed, err := env.service.RunRetentionCleanup(cmd.Context(), maintainProject)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "[patternd] Removed %d stale pattern(s)\n", removed)
	return nil
}

// runDaemon handles the run command.
func runDaemon(cmd *cobra.Command, args []string) error {
	env, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	mc := env.cfg.Maintenance
	if !mc.Enabled {
		return fmt.Errorf("maintenance is disabled in configuration; set maintenance.enabled")
	}

	scheduler, err := patternbank.NewMaintenanceScheduler(env.service, env.logger,
		patternbank.WithMaintenanceInterval(mc.Interval.Duration()),
		patternbank.WithMaintenanceProjects(mc.Projects),
		patternbank.WithJobTimeout(mc.JobTimeout.Duration()),
	)
	if err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	env.logger.Info("shutting down", zap.String("signal", sig.String()))
	return scheduler.Stop()
}

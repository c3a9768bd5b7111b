// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meshintel/papertrack/internal/config"
	"github.com/meshintel/papertrack/internal/dispatch"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Work the tracker backlog with a pool of workers",
	Long: `Run pulls every identifier that is neither fully processed nor exhausted
and feeds it to a fixed pool of workers, each holding a per-identifier
lease while it runs one orchestrator pass. The pool makes repeated rounds
until the backlog drains or the round ceiling is hit. Interrupting the run
leaves every record consistent; leases expire on their own.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Int("workers", 0, "worker pool size (overrides config)")
	runCmd.Flags().Int("max-passes", 0, "backlog round ceiling (overrides config)")
	runCmd.Flags().Bool("download-only", false, "skip the parse stage")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		cfg.Dispatch.Workers = workers
	}
	if passes, _ := cmd.Flags().GetInt("max-passes"); passes > 0 {
		cfg.Dispatch.MaxPasses = passes
	}
	downloadOnly, _ := cmd.Flags().GetBool("download-only")

	logger, closeLog := config.SetupLogger(cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)

	orch, store, cleanup, err := newOrchestrator(cfg, downloadOnly)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := dispatch.New(store, orch, cfg.Dispatch)
	_, err = d.Run(ctx, os.Stdout)
	return err
}

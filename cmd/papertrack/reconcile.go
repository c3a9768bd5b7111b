// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/meshintel/papertrack/internal/config"
	"github.com/meshintel/papertrack/internal/content"
	"github.com/meshintel/papertrack/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair tracker state against files on disk",
	Long: `Reconcile compares every tracked identifier (and every file in the papers
and output directories) against the tracker's records. Valid PDFs nobody
recorded become downloads, recorded downloads with no valid file behind
them are taken back so acquisition retries, and parser outputs and content
rows are back-filled the same way. Every correction leaves a
reconciliation-fix event in the audit log.`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().String("report", "", "write the run report as YAML to this file")
	reconcileCmd.Flags().Bool("remove-invalid", false, "delete files that fail validation")

	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if remove, _ := cmd.Flags().GetBool("remove-invalid"); remove {
		cfg.Reconcile.RemoveInvalid = true
	}

	logger, closeLog := config.SetupLogger(cfg.Log)
	defer closeLog()
	slog.SetDefault(logger)

	store, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	docs, err := content.Open(cfg.Content)
	if err != nil {
		return fmt.Errorf("opening content database: %w", err)
	}
	defer docs.Close()

	engine := reconcile.New(store, docs, cfg.Acquisition, cfg.Parse, cfg.Reconcile)
	report, err := engine.Run(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("report"); path != "" {
		if err := reconcile.WriteReport(report, path); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Report written to %s\n", path)
	}
	return nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [dois...]",
	Short: "Run one acquisition pass over the given identifiers",
	Long: `Fetch gives each identifier a single orchestrator pass: at most one source
attempt, then whatever parsers still need the downloaded PDF. Already
processed and exhausted identifiers are skipped. Repeated invocations walk
the remaining sources one per pass.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().Bool("download-only", false, "skip the parse stage")

	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more DOIs")
	}
	ids, err := normalizeArgs(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	downloadOnly, _ := cmd.Flags().GetBool("download-only")

	orch, _, cleanup, err := newOrchestrator(cfg, downloadOnly)
	if err != nil {
		return err
	}
	defer cleanup()

	result := orch.ProcessBatch(cmd.Context(), ids, os.Stdout)
	if result.Errors > 0 {
		return fmt.Errorf("%d identifier(s) hit tracker errors", result.Errors)
	}
	return nil
}

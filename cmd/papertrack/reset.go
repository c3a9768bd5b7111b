// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meshintel/papertrack/internal/sources"
)

var resetCmd = &cobra.Command{
	Use:   "reset <doi>",
	Short: "Administratively reset one identifier to its default state",
	Long: `Reset returns a record to its untouched state: all sources unknown,
parsers not attempted, retry budget restored. This is the only way an
exhausted identifier re-enters the pipeline. The audit log keeps the full
history; the reset itself is logged with the given reason.`,
	Args: cobra.ExactArgs(1),
	RunE: runReset,
}

func init() {
	resetCmd.Flags().String("reason", "", "why the record is being reset (recorded in the audit log)")

	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	doi, err := sources.NormalizeDOI(args[0])
	if err != nil {
		return err
	}
	reason, _ := cmd.Flags().GetString("reason")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.ForceReset(cmd.Context(), doi, reason); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Reset %s\n", doi)
	return nil
}

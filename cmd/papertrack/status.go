// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/meshintel/papertrack/internal/sources"
)

var statusCmd = &cobra.Command{
	Use:   "status <doi>",
	Short: "Show the full processing state of one identifier",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Int("events", 0, "also print the last N audit events (0 = none)")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	doi, err := sources.NormalizeDOI(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Get(cmd.Context(), doi)
	if err != nil {
		return err
	}
	if rec.LastUpdated.IsZero() {
		fmt.Fprintf(os.Stdout, "%s is not tracked\n", doi)
		return nil
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	os.Stdout.Write(data)

	n, _ := cmd.Flags().GetInt("events")
	if n <= 0 {
		return nil
	}
	events, err := store.Events(cmd.Context(), doi, 0)
	if err != nil {
		return err
	}
	if len(events) > n {
		events = events[len(events)-n:]
	}
	fmt.Fprintf(os.Stdout, "\nlast %d event(s):\n", len(events))
	for _, ev := range events {
		fmt.Fprintf(os.Stdout, "  %s  %-22s %v\n",
			ev.Time.Format("2006-01-02 15:04:05"), ev.Type, ev.Detail)
	}
	return nil
}

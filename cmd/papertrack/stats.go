// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/meshintel/papertrack/internal/content"
	"github.com/meshintel/papertrack/internal/tracker"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print aggregate tracker counts",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().String("output", "text", "output format: text or yaml")

	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Stats(cmd.Context())
	if err != nil {
		return err
	}

	docCount := -1
	if docs, err := content.Open(cfg.Content); err == nil {
		if n, err := docs.Count(cmd.Context()); err == nil {
			docCount = n
		}
		docs.Close()
	}

	output, _ := cmd.Flags().GetString("output")
	switch output {
	case "text":
		fmt.Fprint(os.Stdout, tracker.FormatSummary(summary))
		if docCount >= 0 {
			fmt.Fprintf(os.Stdout, "\ndocuments:   %d\n", docCount)
		}
		return nil
	case "yaml":
		out := struct {
			tracker.Summary `yaml:",inline"`
			Documents       int `yaml:"documents,omitempty"`
		}{Summary: summary}
		if docCount >= 0 {
			out.Documents = docCount
		}
		data, err := yaml.Marshal(out)
		if err != nil {
			return fmt.Errorf("marshaling stats: %w", err)
		}
		os.Stdout.Write(data)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}

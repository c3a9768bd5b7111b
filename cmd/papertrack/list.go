// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/meshintel/papertrack/internal/tracker"
	"github.com/meshintel/papertrack/pkg/types"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked identifiers matching a filter",
	Long: `List prints tracker records filtered by download state, per-source flags,
parser status, errors, or retry budget spent. The default table shows one
line per identifier; --output json or yaml dumps full records, and
--ids-only emits bare DOIs for piping into seed files or other tools.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().String("downloaded", "", "filter by downloaded flag: yes, no, or unknown")
	listCmd.Flags().String("ingested", "", "filter by content_ingested flag: yes, no, or unknown")
	listCmd.Flags().String("source", "", "filter on this source's flags")
	listCmd.Flags().String("source-attempted", "", "with --source: attempted flag value")
	listCmd.Flags().String("source-succeeded", "", "with --source: succeeded flag value")
	listCmd.Flags().String("parser", "", "filter on this parser's status")
	listCmd.Flags().String("parse-status", "", "with --parser: not_attempted, success, or failed")
	listCmd.Flags().Bool("with-errors", false, "only records carrying a last error")
	listCmd.Flags().Int("min-retries", 0, "only records with at least this many retries spent")
	listCmd.Flags().Int("limit", 0, "maximum number of records (0 = all)")
	listCmd.Flags().String("output", "table", "output format: table, json, or yaml")
	listCmd.Flags().Bool("ids-only", false, "print bare DOIs, one per line")

	rootCmd.AddCommand(listCmd)
}

// triFlag parses a tri-state filter flag, where empty means no constraint.
func triFlag(cmd *cobra.Command, name string) (types.TriState, error) {
	val, _ := cmd.Flags().GetString(name)
	if val == "" {
		return "", nil
	}
	switch types.TriState(val) {
	case types.TriYes, types.TriNo, types.TriUnknown:
		return types.TriState(val), nil
	default:
		return "", fmt.Errorf("--%s must be yes, no, or unknown", name)
	}
}

func runList(cmd *cobra.Command, args []string) error {
	filter := tracker.Filter{}
	var err error
	if filter.Downloaded, err = triFlag(cmd, "downloaded"); err != nil {
		return err
	}
	if filter.ContentIngested, err = triFlag(cmd, "ingested"); err != nil {
		return err
	}
	filter.Source, _ = cmd.Flags().GetString("source")
	if filter.SourceAttempted, err = triFlag(cmd, "source-attempted"); err != nil {
		return err
	}
	if filter.SourceSucceeded, err = triFlag(cmd, "source-succeeded"); err != nil {
		return err
	}
	filter.Parser, _ = cmd.Flags().GetString("parser")
	if ps, _ := cmd.Flags().GetString("parse-status"); ps != "" {
		filter.ParseStatus = types.ParseStatus(ps)
	}
	filter.WithErrors, _ = cmd.Flags().GetBool("with-errors")
	filter.MinRetries, _ = cmd.Flags().GetInt("min-retries")
	filter.Limit, _ = cmd.Flags().GetInt("limit")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openTracker(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(cmd.Context(), filter)
	if err != nil {
		return err
	}

	if idsOnly, _ := cmd.Flags().GetBool("ids-only"); idsOnly {
		for _, rec := range records {
			fmt.Fprintln(os.Stdout, rec.ID)
		}
		return nil
	}

	output, _ := cmd.Flags().GetString("output")
	switch output {
	case "table":
		printTable(records)
		return nil
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "yaml":
		data, err := yaml.Marshal(records)
		if err != nil {
			return fmt.Errorf("marshaling records: %w", err)
		}
		os.Stdout.Write(data)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}

func printTable(records []types.Record) {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDOWNLOADED\tSOURCE\tINGESTED\tPARSERS\tRETRIES\tLAST ERROR")
	for _, rec := range records {
		var parsed []string
		for _, p := range types.KnownParsers() {
			if rec.Parser(p).Status == types.ParseSuccess {
				parsed = append(parsed, p)
			}
		}
		errMsg := rec.LastError
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			rec.ID, rec.Downloaded, rec.DownloadSource, rec.ContentIngested,
			strings.Join(parsed, ","), rec.RetryCount, errMsg)
	}
	w.Flush()
	fmt.Fprintf(os.Stdout, "\n%d record(s)\n", len(records))
}

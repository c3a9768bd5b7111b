// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/meshintel/papertrack/internal/sources"
)

var seedCmd = &cobra.Command{
	Use:   "seed [dois...]",
	Short: "Register identifiers with the tracker",
	Long: `Seed creates default tracker records for the given DOIs. Identifiers may
be passed as arguments or read from a file (--file): YAML files hold a list
of DOIs, anything else is one DOI per line with # comments. Already-tracked
identifiers are left untouched.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().String("file", "", "read identifiers from this file")

	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	if len(args) == 0 && file == "" {
		return fmt.Errorf("provide DOIs as arguments or a file with --file")
	}

	raw := append([]string(nil), args...)
	if file != "" {
		fromFile, err := readSeedFile(file)
		if err != nil {
			return err
		}
		raw = append(raw, fromFile...)
	}

	seen := make(map[string]struct{}, len(raw))
	var ids []string
	for _, r := range raw {
		doi, err := sources.NormalizeDOI(r)
		if err != nil {
			return err
		}
		if _, dup := seen[doi]; dup {
			continue
		}
		seen[doi] = struct{}{}
		ids = append(ids, doi)
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

	added, err := store.Seed(cmd.Context(), ids)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Seeded %d new identifier(s), %d already tracked\n", added, len(ids)-added)
	return nil
}

// readSeedFile loads identifiers from a seed file. YAML files are a list of
// DOI strings; plain files are line-oriented with # comments.
func readSeedFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		var ids []string
		if err := yaml.Unmarshal(data, &ids); err != nil {
			return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
		}
		return ids, nil
	}

	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	return ids, nil
}

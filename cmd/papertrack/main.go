// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the papertrack CLI. Each pipeline
// operation is a subcommand: seed, fetch, run, reconcile, status, list,
// stats, and reset. An external scheduler composes these into the full
// acquisition pipeline; every command is a single bounded pass.
package main

import (
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/meshintel/papertrack/internal/config"
	"github.com/meshintel/papertrack/internal/container"
	"github.com/meshintel/papertrack/internal/content"
	"github.com/meshintel/papertrack/internal/orchestrate"
	"github.com/meshintel/papertrack/internal/parse"
	"github.com/meshintel/papertrack/internal/secrets"
	"github.com/meshintel/papertrack/internal/sources"
	"github.com/meshintel/papertrack/internal/tracker"
	"github.com/meshintel/papertrack/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// secretDefault returns fallback when set, otherwise the secret value for
// key if one was loaded.
func secretDefault(key, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if v, ok := loadedSecrets[key]; ok {
		return v
	}
	return ""
}

// rootCmd is the base command for the papertrack CLI.
var rootCmd = &cobra.Command{
	Use:   "papertrack",
	Short: "DOI acquisition tracker and multi-source download orchestrator",
	Long: `papertrack coordinates the acquisition and processing of papers identified
by DOI. It tries several content sources in priority order, runs the
downloaded PDFs through independent parser engines, and keeps a durable
per-identifier record of exactly what has been tried, what succeeded, and
what should be tried next.

Each stage is a subcommand: seed registers identifiers, fetch and run drive
acquisition passes, reconcile repairs tracker state against what is on
disk, and status/list/stats expose the bookkeeping.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./papertrack.yaml or ~/.config/papertrack/config.yaml)")
}

// loadConfig resolves the effective configuration for a command: the config
// file named by --config (or the default search path), with credentials
// falling back to the .secrets/ directory.
func loadConfig(cmd *cobra.Command) (types.Config, error) {
	cfgFile, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return types.Config{}, err
	}

	cfg.Acquisition.UnpaywallEmail = secretDefault("unpaywall-email", cfg.Acquisition.UnpaywallEmail)
	cfg.Acquisition.SemanticScholarAPIKey = secretDefault("semantic-scholar-api-key", cfg.Acquisition.SemanticScholarAPIKey)
	if url, ok := loadedSecrets["grobid-url"]; ok && cfg.Parse.GrobidURL == config.Defaults().Parse.GrobidURL {
		cfg.Parse.GrobidURL = url
	}
	return cfg, nil
}

// openTracker opens the tracker database from the configuration.
func openTracker(cfg types.Config) (*tracker.Store, error) {
	store, err := tracker.Open(cfg.Tracker)
	if err != nil {
		return nil, fmt.Errorf("opening tracker: %w", err)
	}
	return store, nil
}

// newOrchestrator wires the full acquisition stack: tracker, fetchers in
// configured priority order, and (unless downloadOnly) the parse engines
// with the content store behind them. The returned cleanup closes every
// opened handle.
func newOrchestrator(cfg types.Config, downloadOnly bool) (*orchestrate.Orchestrator, *tracker.Store, func(), error) {
	store, err := openTracker(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	cleanup := func() { store.Close() }

	client := &http.Client{Timeout: cfg.Acquisition.Timeout}
	fetchers, err := sources.ForConfig(cfg.Acquisition, client)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	var ctrl *parse.Controller
	if !downloadOnly {
		docs, err := content.Open(cfg.Content)
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("opening content database: %w", err)
		}

		var rt container.Runtime
		for _, p := range cfg.Parse.Parsers {
			if p == types.ParserFast {
				rt, err = container.DetectRuntime()
				if err != nil {
					docs.Close()
					cleanup()
					return nil, nil, nil, fmt.Errorf("fast parser needs a container runtime: %w", err)
				}
				break
			}
		}

		engines, err := parse.ForConfig(cfg.Parse, client, rt)
		if err != nil {
			docs.Close()
			cleanup()
			return nil, nil, nil, err
		}
		ctrl = parse.NewController(cfg.Parse, engines, docs)

		storeClose := cleanup
		cleanup = func() {
			docs.Close()
			storeClose()
		}
	}

	return orchestrate.New(store, fetchers, ctrl, cfg.Acquisition), store, cleanup, nil
}

// normalizeArgs normalizes every argument to a DOI, rejecting the batch on
// the first identifier that is not one.
func normalizeArgs(args []string) ([]string, error) {
	ids := make([]string, 0, len(args))
	for _, arg := range args {
		doi, err := sources.NormalizeDOI(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, doi)
	}
	return ids, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

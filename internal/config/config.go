// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package config loads the papertrack configuration: a YAML file plus
// PAPERTRACK_* environment overrides, resolved into the typed Config the
// components consume. Missing values fall back to documented defaults, so
// an empty config file is a valid one.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/meshintel/papertrack/pkg/types"
)

// Defaults returns the configuration used when no file and no environment
// overrides are present. The source list is the default priority order.
func Defaults() types.Config {
	return types.Config{
		Tracker: types.TrackerConfig{
			DBPath: "tracker/tracker.db",
		},
		Acquisition: types.AcquisitionConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   60 * time.Second,
				UserAgent: "papertrack/0.1",
			},
			Sources:      types.KnownSources(),
			PapersDir:    "papers",
			RetryCeiling: 5,
		},
		Parse: types.ParseConfig{
			Parsers:   types.KnownParsers(),
			OutputDir: "parsed",
			GrobidURL: "http://localhost:8070",
			FastImage: "papertrack/fastparse:latest",
			Timeout:   120 * time.Second,
		},
		Dispatch: types.DispatchConfig{
			Workers:       4,
			LeaseTTL:      10 * time.Minute,
			MaxPasses:     3,
			RatePerSecond: 2,
			RateBurst:     4,
		},
		Content: types.ContentConfig{
			DBPath: "tracker/papers.db",
		},
		Log: types.LogConfig{
			Level: "info",
		},
	}
}

// Load reads the configuration. When cfgFile is empty the usual locations
// are searched (./papertrack.yaml, ~/.config/papertrack/config.yaml); a
// missing file is not an error, only an unreadable one is.
func Load(cfgFile string) (types.Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("papertrack")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "papertrack"))
		}
	}

	v.SetEnvPrefix("PAPERTRACK")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// No file in the search path is fine; an explicit file that cannot
		// be read, or a file that fails to parse, is not.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return types.Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	return fromViper(v), nil
}

func setDefaults(v *viper.Viper) {
	def := Defaults()

	v.SetDefault("tracker.db_path", def.Tracker.DBPath)

	v.SetDefault("acquisition.timeout", def.Acquisition.Timeout)
	v.SetDefault("acquisition.user_agent", def.Acquisition.UserAgent)
	v.SetDefault("acquisition.sources", def.Acquisition.Sources)
	v.SetDefault("acquisition.papers_dir", def.Acquisition.PapersDir)
	v.SetDefault("acquisition.retry_ceiling", def.Acquisition.RetryCeiling)
	v.SetDefault("acquisition.unpaywall_email", "")
	v.SetDefault("acquisition.semantic_scholar_api_key", "")
	v.SetDefault("acquisition.scihub_mirrors", []string{})

	v.SetDefault("parse.parsers", def.Parse.Parsers)
	v.SetDefault("parse.output_dir", def.Parse.OutputDir)
	v.SetDefault("parse.grobid_url", def.Parse.GrobidURL)
	v.SetDefault("parse.fast_image", def.Parse.FastImage)
	v.SetDefault("parse.timeout", def.Parse.Timeout)

	v.SetDefault("dispatch.workers", def.Dispatch.Workers)
	v.SetDefault("dispatch.lease_ttl", def.Dispatch.LeaseTTL)
	v.SetDefault("dispatch.max_passes", def.Dispatch.MaxPasses)
	v.SetDefault("dispatch.rate_per_second", def.Dispatch.RatePerSecond)
	v.SetDefault("dispatch.rate_burst", def.Dispatch.RateBurst)

	v.SetDefault("reconcile.remove_invalid", false)

	v.SetDefault("content.db_path", def.Content.DBPath)

	v.SetDefault("log.file", "")
	v.SetDefault("log.level", def.Log.Level)
}

func fromViper(v *viper.Viper) types.Config {
	return types.Config{
		Tracker: types.TrackerConfig{
			DBPath: v.GetString("tracker.db_path"),
		},
		Acquisition: types.AcquisitionConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   v.GetDuration("acquisition.timeout"),
				UserAgent: v.GetString("acquisition.user_agent"),
			},
			Sources:               v.GetStringSlice("acquisition.sources"),
			PapersDir:             v.GetString("acquisition.papers_dir"),
			RetryCeiling:          v.GetInt("acquisition.retry_ceiling"),
			UnpaywallEmail:        v.GetString("acquisition.unpaywall_email"),
			SemanticScholarAPIKey: v.GetString("acquisition.semantic_scholar_api_key"),
			SciHubMirrors:         v.GetStringSlice("acquisition.scihub_mirrors"),
		},
		Parse: types.ParseConfig{
			Parsers:   v.GetStringSlice("parse.parsers"),
			OutputDir: v.GetString("parse.output_dir"),
			GrobidURL: v.GetString("parse.grobid_url"),
			FastImage: v.GetString("parse.fast_image"),
			Timeout:   v.GetDuration("parse.timeout"),
		},
		Dispatch: types.DispatchConfig{
			Workers:       v.GetInt("dispatch.workers"),
			LeaseTTL:      v.GetDuration("dispatch.lease_ttl"),
			MaxPasses:     v.GetInt("dispatch.max_passes"),
			RatePerSecond: v.GetFloat64("dispatch.rate_per_second"),
			RateBurst:     v.GetInt("dispatch.rate_burst"),
		},
		Reconcile: types.ReconcileConfig{
			RemoveInvalid: v.GetBool("reconcile.remove_invalid"),
		},
		Content: types.ContentConfig{
			DBPath: v.GetString("content.db_path"),
		},
		Log: types.LogConfig{
			File:  v.GetString("log.file"),
			Level: v.GetString("log.level"),
		},
	}
}

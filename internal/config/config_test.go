// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshintel/papertrack/pkg/types"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	// Run from an empty directory so no stray papertrack.yaml is found.
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "tracker/tracker.db", cfg.Tracker.DBPath)
	assert.Equal(t, types.KnownSources(), cfg.Acquisition.Sources)
	assert.Equal(t, "papers", cfg.Acquisition.PapersDir)
	assert.Equal(t, 5, cfg.Acquisition.RetryCeiling)
	assert.Equal(t, 60*time.Second, cfg.Acquisition.Timeout)
	assert.Equal(t, types.KnownParsers(), cfg.Parse.Parsers)
	assert.Equal(t, "http://localhost:8070", cfg.Parse.GrobidURL)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, 10*time.Minute, cfg.Dispatch.LeaseTTL)
	assert.Equal(t, "tracker/papers.db", cfg.Content.DBPath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Reconcile.RemoveInvalid)
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "papertrack.yaml")
	content := `
tracker:
  db_path: /data/track.db
acquisition:
  sources: [unpaywall, scihub]
  retry_ceiling: 2
  timeout: 30s
  unpaywall_email: oa@example.org
parse:
  parsers: [fast]
  output_dir: /data/parsed
dispatch:
  workers: 8
  lease_ttl: 2m
  rate_per_second: 0.5
reconcile:
  remove_invalid: true
log:
  level: debug
  file: /data/papertrack.log
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/track.db", cfg.Tracker.DBPath)
	assert.Equal(t, []string{"unpaywall", "scihub"}, cfg.Acquisition.Sources)
	assert.Equal(t, 2, cfg.Acquisition.RetryCeiling)
	assert.Equal(t, 30*time.Second, cfg.Acquisition.Timeout)
	assert.Equal(t, "oa@example.org", cfg.Acquisition.UnpaywallEmail)
	assert.Equal(t, []string{"fast"}, cfg.Parse.Parsers)
	assert.Equal(t, "/data/parsed", cfg.Parse.OutputDir)
	assert.Equal(t, 8, cfg.Dispatch.Workers)
	assert.Equal(t, 2*time.Minute, cfg.Dispatch.LeaseTTL)
	assert.Equal(t, 0.5, cfg.Dispatch.RatePerSecond)
	assert.True(t, cfg.Reconcile.RemoveInvalid)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/data/papertrack.log", cfg.Log.File)

	// Values the file does not mention keep their defaults.
	assert.Equal(t, "papers", cfg.Acquisition.PapersDir)
	assert.Equal(t, "papertrack/fastparse:latest", cfg.Parse.FastImage)
}

func TestLoadExplicitFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "papertrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tracker: [not: a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"", "INFO"},
		{"bogus", "INFO"},
		{" Debug ", "DEBUG"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in).String(), "level %q", tt.in)
	}
}

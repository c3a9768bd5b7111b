// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshintel/papertrack/pkg/types"
)

func TestSetupLoggerWithWritersFansOut(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("pass finished", "id", "10.1234/x", "fetched", 1)

	assert.Contains(t, stderr.String(), "pass finished")
	assert.Contains(t, stderr.String(), "10.1234/x")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &entry))
	assert.Equal(t, "pass finished", entry["msg"])
	assert.Equal(t, "10.1234/x", entry["id"])
}

func TestSetupLoggerWithWritersRespectsLevel(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelWarn)

	logger.Info("quiet")
	logger.Warn("loud")

	assert.NotContains(t, stderr.String(), "quiet")
	assert.Contains(t, stderr.String(), "loud")
	assert.NotContains(t, file.String(), "quiet")
}

func TestSetupLoggerCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "papertrack.log")
	logger, cleanup := SetupLogger(types.LogConfig{File: path, Level: "info"})

	logger.Info("started")
	require.NoError(t, cleanup())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"started"`))
}

func TestSetupLoggerWithoutFile(t *testing.T) {
	logger, cleanup := SetupLogger(types.LogConfig{Level: "debug"})
	require.NotNil(t, logger)
	assert.NoError(t, cleanup())
}

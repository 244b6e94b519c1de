package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), config)
	require.FileExists(t, path)

	// Loading the written file gives the same configuration back.
	again, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, config, again)
}

func TestLoadConfigFillsMissingSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"default_order": 5, "server_config": {"addr": ":9000"}}`), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 5, config.DefaultOrder)
	require.Equal(t, ":9000", config.Server.Addr)
	require.Equal(t, DefaultConfig().Generate, config.Generate)
	require.Equal(t, DefaultConfig().Server.StreamConfig, config.Server.StreamConfig)
	require.Equal(t, "info", config.LogLevel, "unset fields keep their defaults")
}

func TestLoadConfigRejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"default_order": `), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	testCases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"Error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range testCases {
		require.Equal(t, want, parseLogLevel(in), "parseLogLevel(%q)", in)
	}
}

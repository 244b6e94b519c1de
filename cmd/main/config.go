package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/natefinch/atomic"
)

// GenerateConfig holds the default generation settings used by the CLI and
// the HTTP server.
type GenerateConfig struct {
	MaxLength int  `json:"max_length"`
	Weighted  bool `json:"weighted"`
	TopK      int  `json:"top_k"`
}

// ServerConfig holds the configuration for the HTTP server.
type ServerConfig struct {
	Addr           string        `json:"addr"`
	MaxLengthLimit int           `json:"max_length_limit"`
	StreamConfig   *StreamConfig `json:"stream_config"`
}

// StreamConfig holds settings for drip-feeding generated bytes to clients.
type StreamConfig struct {
	EnableDripFeed   bool `json:"enable_drip_feed"`
	ChunkSize        int  `json:"chunk_size"`
	DripFeedDelayMin int  `json:"min_drip_feed_delay_ms"`
	DripFeedDelayMax int  `json:"max_drip_feed_delay_ms"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	LogLevel     string          `json:"log_level"`
	DatabasePath string          `json:"database_path"`
	DefaultOrder int             `json:"default_order"`
	Generate     *GenerateConfig `json:"generate_config"`
	Server       *ServerConfig   `json:"server_config"`
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:     "info",
		DatabasePath: "./data/bytemarkov.db?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)",
		DefaultOrder: 3,
		Generate: &GenerateConfig{
			MaxLength: 1000,
			Weighted:  false,
			TopK:      0,
		},
		Server: &ServerConfig{
			Addr:           ":7277",
			MaxLengthLimit: 100000,
			StreamConfig: &StreamConfig{
				EnableDripFeed:   false,
				ChunkSize:        64,
				DripFeedDelayMin: 50,
				DripFeedDelayMax: 250,
			},
		},
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	// Initialize with default configurations
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Warn instead of failing, as the program can still run with defaults.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		// For other errors (e.g., permission denied), return the error.
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal the JSON from the file into the config struct.
	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Sections missing from an older file keep their defaults.
	defaults := DefaultConfig()
	if config.Generate == nil {
		config.Generate = defaults.Generate
	}
	if config.Server == nil {
		config.Server = defaults.Server
	}
	if config.Server.StreamConfig == nil {
		config.Server.StreamConfig = defaults.Server.StreamConfig
	}

	return config, nil
}

// parseLogLevel maps a config log level onto a slog level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

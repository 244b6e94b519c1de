package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CTAG07/bytemarkov/pkg/store"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// app carries the state shared by every command: the loaded configuration,
// the logger, and the open model store.
type app struct {
	configPath string
	dbPath     string
	logLevel   string

	config *Config
	logger *slog.Logger
	db     *sql.DB
	store  *store.Store
}

// newRootCmd builds the full command tree around a. Each call returns an
// independent tree, so tests can run commands without sharing flag state.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "bytemarkov",
		Short:         "Byte-level Markov chain text generator",
		Long:          "Train order-N byte-level Markov chains from any corpus, store them in SQLite, and generate new byte sequences from them.",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "./config.json", "Path to the JSON config file (created with defaults if missing)")
	root.PersistentFlags().StringVarP(&a.dbPath, "db", "d", "", "Database path (default: database_path from the config)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn or error (default: log_level from the config)")

	root.AddCommand(
		newTrainCmd(a),
		newGenerateCmd(a),
		newModelsCmd(a),
		newStatsCmd(a),
		newRmCmd(a),
		newPruneCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newServeCmd(a),
	)
	return root
}

// open loads the configuration, sets up logging and opens the store.
func (a *app) open(cmd *cobra.Command) error {
	config, err := LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if a.dbPath != "" {
		config.DatabasePath = a.dbPath
	}
	if a.logLevel != "" {
		config.LogLevel = a.logLevel
	}
	a.config = config

	// Logs go to stderr so generated bytes on stdout stay clean.
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: parseLogLevel(config.LogLevel)}))

	dbFile, _, _ := strings.Cut(config.DatabasePath, "?")
	if dir := filepath.Dir(dbFile); dir != "" {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := store.Open(config.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err = store.SetupSchema(db); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to setup markov schema: %w", err)
	}
	st, err := store.New(db)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create model store: %w", err)
	}
	st.SetLogger(a.logger)

	a.db = db
	a.store = st
	a.logger.Debug("Store opened", "database_path", config.DatabasePath)
	return nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database", "error", err)
		}
		a.db = nil
	}
}

// execute runs the command line in args and releases the store afterwards,
// whether or not the command succeeded.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

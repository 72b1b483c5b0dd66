package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/hurou927/docmap/internal/config"
	"github.com/hurou927/docmap/internal/db"
	"github.com/hurou927/docmap/internal/store"
)

var (
	cfgPath string
	cfg     *config.Config
	st      *store.Store
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "docmap",
	Short: "Map document types onto PostgreSQL tables",
	Long: `docmap reads document type declarations, derives the table, upsert function,
indexes and foreign keys each document is stored with, and emits or applies the
matching DDL. It can also load JSON documents and export document subsets.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgPath == "" {
			return fmt.Errorf("--config is required")
		}
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		st, err = store.Open(cfg)
		if err != nil {
			return fmt.Errorf("building mappings: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file (required)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "show detailed progress")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// connect validates the connection settings and opens a pool.
func connect(ctx context.Context) (*pgxpool.Pool, error) {
	if err := cfg.ValidateConnection(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	pool, err := db.NewPool(ctx, &cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// openOutput returns stdout for an empty path or "-", otherwise a new file.
func openOutput(path string) (*os.File, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

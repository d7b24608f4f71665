package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"devdiary/internal/config"
	"devdiary/internal/guard"
	"devdiary/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "devdiary",
	Short: "Mine git history into a daily evidence store and keep a work diary in sync",
	Long: `devdiary enumerates a repository's commit history into a per-day evidence
store, generates daily summaries from that evidence, and synchronizes them
into a markdown diary you can freely edit. Only marker-delimited regions
are ever touched.`,
}

var guards = guard.New()

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	return cfg, log, nil
}

func openStore() (*store.Store, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	dataDir := filepath.Join(dir, ".devdiary")
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("not initialized; run 'devdiary init' first")
	}
	return store.New(dir)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ehrlich-b/trackembed/internal/config"
	"github.com/ehrlich-b/trackembed/internal/extract"
	"github.com/ehrlich-b/trackembed/internal/logger"
	"github.com/ehrlich-b/trackembed/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Set by PersistentPreRunE.
var cfg *config.Config

var (
	configFlag string
	jsonFlag   bool
)

func main() {
	root := &cobra.Command{
		Use:           "trackembed",
		Short:         "Audio embeddings for a music catalog",
		Long:          "Computes one fixed-length embedding per catalog track with a feature extraction model and stores it in the catalog database. Runs are resumable: tracks that already have an embedding are never processed again.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := configFlag
			if !cmd.Flags().Changed("config") {
				found, err := config.FindProjectFile(configFlag)
				if err != nil {
					return err
				}
				path = found
			}
			c, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := logger.Init(c.Logging.Level, c.Logging.File); err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			cfg = c
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "trackembed.yaml", "Config file, searched for up to the project root unless set (missing file means defaults)")
	root.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print JSON even on a terminal")

	root.AddCommand(
		runCmd(),
		watchCmd(),
		pendingCmd(),
		showCmd(),
		similarCmd(),
		runsCmd(),
		doctorCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openStore opens the catalog database, creating its directory if needed.
func openStore(c *config.Config) (*store.Store, error) {
	if dir := filepath.Dir(c.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	return store.Open(c.Database.Path)
}

func openGateway(c *config.Config) (*extract.Gateway, func(), error) {
	gw, closer, err := extract.New(extract.Options{
		Provider: c.Model.Provider,
		Model:    c.Model.Name,
		Command:  c.Model.Command,
		BaseURL:  c.Model.BaseURL,
		CacheDir: c.Cache.Dir,
		Spec: extract.ModelSpec{
			Name:    c.Model.Name,
			Channel: c.Model.Channel,
			Dims:    c.Model.Dims,
		},
		Timeout: c.Model.TimeoutDuration(),
	})
	if err != nil {
		return nil, nil, err
	}
	return gw, func() {
		if err := closer.Close(); err != nil {
			logger.Warn("closing extractor", "error", err)
		}
	}, nil
}

// wantJSON reports whether command output should be JSON rather than a
// human-readable table.
func wantJSON() bool {
	return jsonFlag || !term.IsTerminal(int(os.Stdout.Fd()))
}

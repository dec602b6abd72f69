package main

import (
	"github.com/ehrlich-b/trackembed/internal/logger"
	"github.com/ehrlich-b/trackembed/internal/pipeline"
	"github.com/ehrlich-b/trackembed/internal/scanner"
	"github.com/spf13/cobra"
)

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep embedding new tracks until interrupted",
		Long:  "Polls the catalog every watch.interval and, with watch.notify, also reacts to new files under storage.dir. A run starts only when some track needs an embedding.",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			gw, closeGateway, err := openGateway(cfg)
			if err != nil {
				return err
			}
			defer closeGateway()

			sc := scanner.New(st, cfg.Storage.Dir)
			opts := pipeline.WatchOptions{
				Interval: cfg.Watch.IntervalDuration(),
				MinGap:   cfg.Watch.MinGapDuration(),
				OnReport: func(rep *pipeline.Report) {
					logger.Info("run complete", "run_id", rep.RunID, "processed", rep.Processed, "failed", rep.Failed)
				},
				RetryAfter: cfg.Watch.RetryAfterDuration(),
			}
			if cfg.Watch.Notify {
				opts.Dir = cfg.Storage.Dir
			}

			logger.Info("watching catalog", "db", cfg.Database.Path, "storage", cfg.Storage.Dir, "interval", opts.Interval)
			return pipeline.NewWatcher(pipeline.New(sc, gw, st), sc, opts).Run(cmd.Context())
		},
	}
}

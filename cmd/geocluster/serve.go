package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LiuPacific/geoserver/internal/app"
	"github.com/LiuPacific/geoserver/internal/metrics"
	"github.com/LiuPacific/geoserver/internal/observability/logger"
)

func newServeCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Arranca el nodo: API HTTP, producer y consumer del bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gf.load()
			if err != nil {
				return err
			}
			logger.Init(logger.Config{
				Env:         cfg.App.Env,
				Level:       cfg.Log.Level,
				ServiceName: "geocluster",
				Version:     version,
				NodeID:      cfg.Node.ID,
			})
			defer func() { _ = logger.Sync() }()
			log := logger.L()

			if err := metrics.Register(nil); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			node, err := app.Build(ctx, cfg, log)
			if err != nil {
				log.Error("node build failed", logger.Err(err))
				return err
			}
			defer func() {
				if err := node.Close(); err != nil {
					log.Warn("node close", logger.Err(err))
				}
			}()

			log.Info("node started",
				logger.NodeID(cfg.Node.ID),
				logger.Bus(cfg.Bus.Kind),
				logger.String("store", cfg.Catalog.Store.Kind),
				logger.Bool("signed", node.Codec.Signed()),
			)
			err = node.Run(ctx)
			log.Info("node stopped", logger.Err(err))
			return err
		},
	}
}

package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/telhawk-systems/centrallog/common/logging"
	"github.com/telhawk-systems/centrallog/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and, when enabled, the Kafka consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
			With(logging.Service("centrallog"))
		logging.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("starting centrallog",
			slog.Int("port", cfg.Server.Port),
			slog.String("storage", cfg.Storage.Driver),
			slog.String("sequence", cfg.Sequence.Backend),
			slog.Bool("kafka", cfg.Kafka.Enabled),
			slog.Bool("nats", cfg.NATS.Enabled),
			slog.Bool("opensearch", cfg.OpenSearch.Enabled),
		)

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return server.Run(gctx, serverConfig(cfg), a.router, logger.Logger)
		})
		if a.consumer != nil {
			g.Go(func() error {
				return a.consumer.Run(gctx)
			})
		}

		err = g.Wait()
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("centrallog stopped with error", logging.Error(err))
			return err
		}
		logger.Info("centrallog stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

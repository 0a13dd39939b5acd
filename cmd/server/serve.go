package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/expense-router/internal/container"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, err := container.NewContainer(cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := c.Close(); err != nil {
				logger.Error("Shutdown finished with errors", zap.Error(err))
			}
		}()

		if err := c.Start(ctx); err != nil {
			return err
		}

		logger.Info("Expense router started",
			zap.String("version", container.Version),
			zap.String("address", c.Server().Address()),
			zap.String("database", cfg.Database.Driver))

		return c.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

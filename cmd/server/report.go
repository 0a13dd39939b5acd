package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/garyjia/expense-router/internal/container"
	"github.com/garyjia/expense-router/pkg/utils"
)

var reportOutput string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export the expense report workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := utils.NewCLILogger(cfg.Logger.Level)

		bundle, err := container.ProvideDatabase(&cfg.Database, container.DatabaseConfig(cfg), logger)
		if err != nil {
			return err
		}
		if bundle.DB != nil {
			defer bundle.DB.Close()
		}

		converter, err := container.ProvideConverter(&cfg.Currency)
		if err != nil {
			return err
		}
		router, err := container.ProvideRouter(&cfg.Routing)
		if err != nil {
			return err
		}
		services, err := container.ProvideServices(&container.ServiceDeps{
			Config:    cfg,
			Router:    router,
			Repos:     bundle.Repositories,
			Converter: converter,
			Logger:    logger,
		})
		if err != nil {
			return err
		}

		path := reportOutput
		if path == "" {
			path = "expense-report" + services.Reports.Extension()
		}
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer f.Close()

		if err := services.Reports.Export(cmd.Context(), f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "output file (default: expense-report.xlsx)")
	rootCmd.AddCommand(reportCmd)
}

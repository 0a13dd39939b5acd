package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garyjia/expense-router/internal/container"
	"github.com/garyjia/expense-router/pkg/utils"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the demo organisation into an empty database",
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

		seeded, err := container.SeedDemo(cmd.Context(), bundle.Repositories, logger)
		if err != nil {
			return err
		}
		if seeded {
			fmt.Fprintln(cmd.OutOrStdout(), "Demo dataset loaded")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Database already has users, nothing seeded")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

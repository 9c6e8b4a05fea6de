package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/mizan/backend/internal/config"
	"github.com/mizan/backend/internal/database"
	"github.com/mizan/backend/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCommand() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operator tooling for the Mizan ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = config.InitViper(envFile)
			logger.SetGlobalLogger(newLogger())
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to the .env file")

	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newRateCommand())
	rootCmd.AddCommand(newLoansCommand())

	return rootCmd
}

func newLogger() zerolog.Logger {
	return logger.New(logger.Config{
		Level:   viper.GetString("log.level"),
		Pretty:  true,
		Service: "ledgerctl",
	})
}

func connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := database.InitDB(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/mizan/backend/internal/config"
	"github.com/mizan/backend/internal/database"
	"github.com/mizan/backend/internal/models"
	"github.com/mizan/backend/internal/services"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newRateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rate",
		Short: "Manage exchange rates against the base currency",
	}
	cmd.AddCommand(newRateSetCommand(), newRateGetCommand())
	return cmd
}

func newRateSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set CURRENCY DATE BUYING SELLING",
		Short: "Store the buying/selling rate of a currency for a date (YYYY-MM-DD)",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := parseRate(args)
			if err != nil {
				return err
			}

			db, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			redisClient := database.InitRedis(cmd.Context())
			if redisClient != nil {
				defer redisClient.Close()
			}

			svc := services.NewRateService(db, redisClient, config.LoadLedgerConfig(), newLogger())
			if err := svc.UpsertRate(cmd.Context(), rate); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s buying=%s selling=%s\n",
				rate.Currency, rate.RateDate.Format(time.DateOnly), rate.Buying, rate.Selling)
			return nil
		},
	}
}

func newRateGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get CURRENCY [DATE]",
		Short: "Show the rate in effect for a currency on a date (default today)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			date := time.Now().UTC()
			if len(args) == 2 {
				d, err := time.Parse(time.DateOnly, args[1])
				if err != nil {
					return fmt.Errorf("parsing date: %w", err)
				}
				date = d
			}

			db, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			svc := services.NewRateService(db, nil, config.LoadLedgerConfig(), newLogger())
			currency := strings.ToUpper(args[0])
			rate, err := svc.Rate(cmd.Context(), currency, date)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s buying=%s selling=%s\n",
				currency, date.Format(time.DateOnly), rate.Buying, rate.Selling)
			return nil
		},
	}
}

// parseRate turns CURRENCY DATE BUYING SELLING arguments into a rate row.
func parseRate(args []string) (models.ExchangeRate, error) {
	date, err := time.Parse(time.DateOnly, args[1])
	if err != nil {
		return models.ExchangeRate{}, fmt.Errorf("parsing date: %w", err)
	}
	buying, err := decimal.NewFromString(args[2])
	if err != nil {
		return models.ExchangeRate{}, fmt.Errorf("parsing buying rate: %w", err)
	}
	selling, err := decimal.NewFromString(args[3])
	if err != nil {
		return models.ExchangeRate{}, fmt.Errorf("parsing selling rate: %w", err)
	}
	return models.ExchangeRate{
		Currency: strings.ToUpper(args[0]),
		RateDate: date,
		Buying:   buying,
		Selling:  selling,
	}, nil
}

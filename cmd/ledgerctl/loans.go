package main

import (
	"fmt"
	"time"

	"github.com/mizan/backend/internal/config"
	"github.com/mizan/backend/internal/services"
	"github.com/spf13/cobra"
)

func newLoansCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "Loan maintenance jobs",
	}

	var asOf string
	markOverdue := &cobra.Command{
		Use:   "mark-overdue",
		Short: "Flag loans whose next payment date has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			date := time.Now().UTC()
			if asOf != "" {
				d, err := time.Parse(time.DateOnly, asOf)
				if err != nil {
					return fmt.Errorf("parsing --as-of: %w", err)
				}
				date = d
			}

			db, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			log := newLogger()
			cfg := config.LoadLedgerConfig()
			audit := services.NewAuditLogger(log)
			accounts := services.NewAccountService(db, audit, log)
			rates := services.NewRateService(db, nil, cfg, log)
			ledger := services.NewLedgerService(db, accounts, rates, cfg, audit, log)
			loans := services.NewLoanService(db, accounts, ledger, cfg, audit, log)

			n, err := loans.MarkOverdue(cmd.Context(), date)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d loan(s) marked overdue\n", n)
			return nil
		},
	}
	markOverdue.Flags().StringVar(&asOf, "as-of", "", "reference date YYYY-MM-DD (default today)")

	cmd.AddCommand(markOverdue)
	return cmd
}

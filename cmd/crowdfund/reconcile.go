package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crowdfundin/internal/reconcile"
	"crowdfundin/internal/repository"
	"crowdfundin/pkg/db"
)

func reconcileCmd() *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare campaign totals with the donation ledger and expire overdue campaigns",
		Long: `Runs one reconciliation pass.

Campaigns whose current amount disagrees with the sum of their confirmed
donations are reported. With --fix the ledger sum is written back.
Active campaigns past their end date are moved to expired.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap("reconcile")
			if err != nil {
				return err
			}
			defer rt.close()

			pool, err := db.NewConnection(rt.cfg.DB, rt.log)
			if err != nil {
				return fmt.Errorf("init db: %w", err)
			}
			defer pool.Close()

			job := reconcile.NewJob(repository.NewCampaignRepository(pool), rt.log).WithFix(fix)
			report, err := job.RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			rt.log.Info("Reconcile finished",
				zap.Int("drift", len(report.Drift)),
				zap.Int("fixed", report.Fixed),
				zap.Int64("expired", report.Expired),
			)
			for _, d := range report.Drift {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tcurrent=%s\tledger=%s\n",
					d.CampaignID, d.CurrentAmount.StringFixed(2), d.LedgerAmount.StringFixed(2))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "write the ledger sum back to drifted campaigns")
	return cmd
}

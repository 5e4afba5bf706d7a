package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crowdfundin/pkg/db"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap("migrate")
			if err != nil {
				return err
			}
			defer rt.close()

			pool, err := db.NewConnection(rt.cfg.DB, rt.log)
			if err != nil {
				return fmt.Errorf("init db: %w", err)
			}
			defer pool.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			applied, err := db.Migrate(ctx, pool, rt.log)
			if err != nil {
				return err
			}
			rt.log.Info("Migrations complete", zap.Int("applied", applied))
			return nil
		},
	}
}

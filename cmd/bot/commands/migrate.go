package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/classroll/classroll-bot/config"
	"github.com/classroll/classroll-bot/internal/infrastructure/persistence/postgres"
)

var (
	rollback bool
	status   bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply, roll back or list PostgreSQL migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Storage.Backend != config.StoragePostgres {
			return fmt.Errorf("migrate needs STORAGE_BACKEND=%s", config.StoragePostgres)
		}
		ctx := cmd.Context()

		conn, err := openPostgres(ctx, cfg)
		if err != nil {
			return err
		}
		defer conn.Close()
		migrator := postgres.NewMigrator(conn)

		switch {
		case status:
			migrations, err := migrator.Status(ctx)
			if err != nil {
				return err
			}
			for _, m := range migrations {
				state := "pending"
				if m.IsApplied {
					state = "applied " + m.AppliedAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%3d  %-28s %s\n", m.Version, m.Name, state)
			}
			return nil

		case rollback:
			if err := migrator.Rollback(ctx); err != nil {
				return err
			}
			log.Info("rolled back last migration")
			return nil

		default:
			applied, err := migrator.Migrate(ctx)
			if err != nil {
				return err
			}
			log.Info("migrations completed", zap.Int("applied", applied))
			return nil
		}
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&rollback, "rollback", false, "roll back the latest migration")
	migrateCmd.Flags().BoolVar(&status, "status", false, "list migrations and exit")
}

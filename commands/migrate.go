package commands

import (
	"context"
	"fmt"

	"coursebook/config"
	"coursebook/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create tables and indexes for the configured store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = store.Close(context.Background()) }()

		if err := store.EnsureSchema(cmd.Context()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		utils.GetLogger().Info("Schema is up to date", zap.String("driver", config.AppConfig.DatabaseDriver))
		return nil
	},
}

package commands

import (
	"context"
	"fmt"
	"os"

	"coursebook/config"
	"coursebook/database"
	"coursebook/database/repository"
	mongoRepo "coursebook/database/repository/mongo"
	postgresRepo "coursebook/database/repository/postgres"
	"coursebook/services/notification"
	"coursebook/utils"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "coursebook",
	Short:         "Course bookings with deposits, Stripe reconciliation and reminders",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadConfig()
		utils.InitializeLogger()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, remindersCmd, ledgerCmd, seedCmd)
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore connects the store selected by DATABASE_DRIVER.
func openStore(ctx context.Context) (repository.Store, error) {
	switch config.AppConfig.DatabaseDriver {
	case "postgres", "":
		pool, err := database.InitPostgres(ctx)
		if err != nil {
			return nil, err
		}
		store, err := postgresRepo.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	case "mongo":
		client, err := database.InitMongo(ctx)
		if err != nil {
			return nil, err
		}
		return mongoRepo.NewMongoStore(client, config.AppConfig.MongoDatabase), nil
	default:
		return nil, fmt.Errorf("unknown DATABASE_DRIVER %q", config.AppConfig.DatabaseDriver)
	}
}

// newMailer sends through SMTP when SMTP_HOST is set and logs otherwise.
func newMailer(logger *zap.Logger) (notification.Mailer, error) {
	cfg := config.AppConfig
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set, emails will be logged instead of sent")
		return notification.NewLogMailer(logger), nil
	}
	return notification.NewSMTPMailer(notification.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}, logger)
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"coursebook/config"
	"coursebook/services/payment"
	"coursebook/services/reminder"
	"coursebook/utils"

	"github.com/spf13/cobra"
)

var remindersDryRun bool

var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Reminder email commands",
}

var remindersRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reminder pass and print what was sent",
	Long: `Run one pass of the reminder scheduler: payment-due reminders for
deposit-paid bookings, course details before the start date, and expiry of
abandoned checkouts when PENDING_EXPIRY is set.

Examples:
  coursebook reminders run
  coursebook reminders run --dry-run`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := utils.GetLogger()
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = store.Close(context.Background()) }()

		mailer, err := newMailer(logger)
		if err != nil {
			return err
		}

		// One-shot runs have no metrics endpoint to scrape.
		reconciler := payment.NewReconciler(store, nil, nil, nil, logger)
		scheduler := reminder.NewScheduler(store, mailer, reconciler, nil, reminderConfig(config.AppConfig), logger)
		if remindersDryRun {
			scheduler = scheduler.WithDryRun()
		}

		report, err := scheduler.RunOnce(cmd.Context(), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("reminder run: %w", err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	remindersRunCmd.Flags().BoolVar(&remindersDryRun, "dry-run", false, "log what would be sent without sending or recording anything")
	remindersCmd.AddCommand(remindersRunCmd)
}

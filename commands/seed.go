package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"coursebook/config"
	"coursebook/database/repository"
	"coursebook/models"
	"coursebook/services/notification"

	"github.com/spf13/cobra"
)

var seedStart string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a sample course with three pricing tiers and two payment plans",
	Long: `Load a sample five-session course with basic, standard and solidarity
tiers, a pay-in-full plan and a 50% deposit plan. Records are upserted by id,
so running seed twice is safe.

Examples:
  coursebook seed
  coursebook seed --start 2026-01-17`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now().UTC().AddDate(0, 3, 0).Truncate(24 * time.Hour)
		if seedStart != "" {
			t, err := time.Parse(models.DateLayout, seedStart)
			if err != nil {
				return fmt.Errorf("invalid --start %q: %w", seedStart, err)
			}
			start = t
		}

		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = store.Close(context.Background()) }()

		return seedCatalog(cmd.Context(), store, start, cmd.OutOrStdout())
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedStart, "start", "", "course start date (YYYY-MM-DD), default three months from today")
}

// seedCatalog writes the sample course starting on start.
func seedCatalog(ctx context.Context, store repository.Store, start time.Time, out io.Writer) error {
	now := time.Now().UTC()
	course := &models.Course{
		ID:              "powerless-to-powerful",
		Slug:            "powerless-to-powerful",
		Title:           "From Powerless to Powerful: Grow Real Change with the Land",
		StartDate:       start,
		MaxParticipants: 15,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i := 0; i < 5; i++ {
		course.Sessions = append(course.Sessions, models.CourseSession{
			Number:    i + 1,
			Date:      start.AddDate(0, i, 0),
			StartTime: "10:00",
			EndTime:   "16:00",
		})
	}
	if err := store.SaveCourse(ctx, course); err != nil {
		return fmt.Errorf("save course: %w", err)
	}

	tiers := []models.PricingTier{
		{ID: course.ID + "-basic", Tier: models.TierBasic, Name: "Basic", Amount: 22500},
		{ID: course.ID + "-standard", Tier: models.TierStandard, Name: "Standard", Amount: 32500},
		{ID: course.ID + "-solidarity", Tier: models.TierSolidarity, Name: "Solidarity", Amount: 47500},
	}
	for i := range tiers {
		tiers[i].CourseID = course.ID
		if err := store.SaveTier(ctx, &tiers[i]); err != nil {
			return fmt.Errorf("save tier %s: %w", tiers[i].ID, err)
		}
	}

	plans := []models.PaymentPlan{
		{ID: "full", Kind: models.PlanFull, IsActive: true},
		{ID: "installments", Kind: models.PlanInstallments, DepositPercent: 50, FinalDueDaysBefore: 8, IsActive: true},
	}
	for i := range plans {
		if err := store.SavePlan(ctx, &plans[i]); err != nil {
			return fmt.Errorf("save plan %s: %w", plans[i].ID, err)
		}
	}

	currency := config.AppConfig.PaymentCurrency
	if currency == "" {
		currency = "gbp"
	}
	fmt.Fprintf(out, "Seeded %q starting %s (%d seats)\n", course.Title, start.Format(models.DateLayout), course.MaxParticipants)
	for _, t := range tiers {
		fmt.Fprintf(out, "  tier %-28s %s\n", t.ID, notification.Money(t.Amount, currency))
	}
	for _, p := range plans {
		fmt.Fprintf(out, "  plan %-28s %s\n", p.ID, p.Kind)
	}
	return nil
}

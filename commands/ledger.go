package commands

import (
	"context"
	"fmt"
	"io"

	"coursebook/database/repository"
	"coursebook/models"
	"coursebook/services/payment"

	"github.com/spf13/cobra"
)

const ledgerPageSize = 200

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Payment ledger commands",
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify [booking-id]",
	Short: "Replay payment ledgers and report bookings whose stored status disagrees",
	Long: `Replay the payment events of one booking, or of every booking when no id
is given, and compare the result with the stored status. Exits non-zero when
any booking is inconsistent.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = store.Close(context.Background()) }()

		bad, err := verifyLedgers(cmd.Context(), store, args, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if bad > 0 {
			return fmt.Errorf("%d inconsistent booking(s)", bad)
		}
		return nil
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerVerifyCmd)
}

// verifyLedgers audits the given bookings, or all bookings when ids is
// empty, and returns how many were inconsistent.
func verifyLedgers(ctx context.Context, store repository.Store, ids []string, out io.Writer) (int, error) {
	if len(ids) == 0 {
		for offset := 0; ; offset += ledgerPageSize {
			page, err := store.ListBookings(ctx, models.BookingFilter{Limit: ledgerPageSize, Offset: offset})
			if err != nil {
				return 0, fmt.Errorf("list bookings: %w", err)
			}
			for _, b := range page {
				ids = append(ids, b.ID)
			}
			if len(page) < ledgerPageSize {
				break
			}
		}
	}

	bad := 0
	for _, id := range ids {
		rep, err := payment.AuditBooking(ctx, store, id)
		if err != nil {
			return bad, fmt.Errorf("audit %s: %w", id, err)
		}
		if rep.Consistent {
			continue
		}
		bad++
		fmt.Fprintf(out, "%s stored=%s derived=%s paid=%d", id, rep.StoredStatus, rep.DerivedStatus, rep.PaidAmount)
		if rep.ReplayError != "" {
			fmt.Fprintf(out, " error=%q", rep.ReplayError)
		}
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "checked %d booking(s), %d inconsistent\n", len(ids), bad)
	return bad, nil
}

package postgresRepo

import (
	"context"
	"testing"
	"time"

	"coursebook/database/repository"
	"coursebook/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	t.Helper()
	pool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	s, err := NewPostgresStore(pool)
	require.NoError(t, err)
	return pool, s
}

var courseCols = []string{"id", "slug", "title", "start_date", "max_participants", "is_active", "sessions", "created_at", "updated_at"}

var bookingCols = []string{"id", "course_id", "tier_id", "plan_id", "plan_kind", "full_name", "email", "phone", "message",
	"status", "total_amount", "deposit_amount", "final_amount", "currency", "created_at", "updated_at"}

func TestEnsureSchemaCreatesEveryTable(t *testing.T) {
	pool, s := newMockStore(t)
	for range schemaStatements {
		pool.ExpectExec("CREATE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestWithTxLocksCourseAndInsertsBooking(t *testing.T) {
	pool, s := newMockStore(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	start := time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC)

	pool.ExpectBegin()
	pool.ExpectQuery(`FROM courses WHERE id = \$1 FOR UPDATE`).WithArgs("course-1").
		WillReturnRows(pgxmock.NewRows(courseCols).
			AddRow("course-1", "spring-intensive", "Spring Intensive", start, 12, true, []byte(`[{"number":1,"start_time":"10:00","end_time":"16:00"}]`), now, now))
	pool.ExpectQuery(`COUNT\(\*\) FILTER`).WithArgs("course-1", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"confirmed", "held"}).AddRow(11, 0))
	pool.ExpectExec("INSERT INTO bookings").
		WithArgs("bk-1", "course-1", "tier-1", "plan-1", "installments",
			"Ada Lovelace", "ada@example.com", "", "",
			"pending", int64(32500), int64(16250), int64(16250), "gbp", now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	pool.ExpectCommit()

	err := s.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		course, err := tx.LockCourse(ctx, "course-1")
		require.NoError(t, err)
		assert.Equal(t, 12, course.MaxParticipants)
		require.Len(t, course.Sessions, 1)
		assert.Equal(t, "10:00", course.Sessions[0].StartTime)

		confirmed, held, err := tx.CountOccupied(ctx, "course-1", now.Add(-30*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 11, confirmed)
		assert.Equal(t, 0, held)

		return tx.InsertBooking(ctx, &models.Booking{
			ID: "bk-1", CourseID: "course-1", TierID: "tier-1", PlanID: "plan-1", PlanKind: models.PlanInstallments,
			Contact:     models.ContactDetails{FullName: "Ada Lovelace", Email: "ada@example.com"},
			Status:      models.StatusPending,
			TotalAmount: 32500, DepositAmount: 16250, FinalAmount: 16250, Currency: "gbp",
			CreatedAt: now, UpdatedAt: now,
		})
	})
	require.NoError(t, err)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestInsertPaymentEventMapsUniqueViolation(t *testing.T) {
	pool, s := newMockStore(t)
	now := time.Now().UTC()

	pool.ExpectBegin()
	pool.ExpectExec("INSERT INTO payment_events").
		WithArgs("ev-1", "bk-1", "evt_123", "pi_1", "succeeded", int64(16250), 1, now).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})
	pool.ExpectRollback()

	err := s.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertPaymentEvent(ctx, &models.PaymentEvent{
			ID: "ev-1", BookingID: "bk-1", GatewayEventID: "evt_123", PaymentIntentID: "pi_1",
			Kind: models.EventSucceeded, Amount: 16250, Sequence: 1, CreatedAt: now,
		})
	})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestGetBookingNotFound(t *testing.T) {
	pool, s := newMockStore(t)
	pool.ExpectQuery(`FROM bookings WHERE id = \$1`).WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err := s.GetBooking(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestListBookingsAppliesFilter(t *testing.T) {
	pool, s := newMockStore(t)
	now := time.Now().UTC()

	pool.ExpectQuery(`FROM bookings WHERE status = \$1 AND plan_kind = \$2 ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("deposit_paid", "installments", 10).
		WillReturnRows(pgxmock.NewRows(bookingCols).
			AddRow("bk-1", "course-1", "tier-1", "plan-1", "installments", "Ada Lovelace", "ada@example.com", "", "",
				"deposit_paid", int64(32500), int64(16250), int64(16250), "gbp", now, now))

	out, err := s.ListBookings(context.Background(), models.BookingFilter{
		Status: models.StatusDepositPaid, PlanKind: models.PlanInstallments, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.StatusDepositPaid, out[0].Status)
	assert.Equal(t, models.PlanInstallments, out[0].PlanKind)
	assert.NoError(t, pool.ExpectationsWereMet())
}

func TestUpdateBookingStatusMissingRow(t *testing.T) {
	pool, s := newMockStore(t)
	at := time.Now().UTC()

	pool.ExpectBegin()
	pool.ExpectExec("UPDATE bookings SET status").WithArgs("fully_paid", at, "bk-x").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	pool.ExpectRollback()

	err := s.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.UpdateBookingStatus(ctx, "bk-x", models.StatusFullyPaid, at)
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, pool.ExpectationsWereMet())
}

package postgresRepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"coursebook/database/repository"
	"coursebook/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgTx implements repository.Tx on an open pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockCourse(ctx context.Context, courseID string) (*models.Course, error) {
	return getCourse(ctx, t.tx, courseID, " FOR UPDATE")
}

func (t *pgTx) LockBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	return getBooking(ctx, t.tx, bookingID, " FOR UPDATE")
}

func (t *pgTx) CountOccupied(ctx context.Context, courseID string, heldSince time.Time) (int, int, error) {
	var since any
	if !heldSince.IsZero() {
		since = heldSince
	}
	var confirmed, held int
	err := t.tx.QueryRow(ctx, `
SELECT COUNT(*) FILTER (WHERE status IN ('deposit_paid', 'fully_paid')),
       COUNT(*) FILTER (WHERE status = 'pending' AND created_at >= $2)
FROM bookings WHERE course_id = $1`,
		courseID, since,
	).Scan(&confirmed, &held)
	if err != nil {
		return 0, 0, fmt.Errorf("count occupied seats for %s: %w", courseID, err)
	}
	return confirmed, held, nil
}

func (t *pgTx) GetTier(ctx context.Context, tierID string) (*models.PricingTier, error) {
	return getTier(ctx, t.tx, tierID)
}

func (t *pgTx) GetPlan(ctx context.Context, planID string) (*models.PaymentPlan, error) {
	return getPlan(ctx, t.tx, planID)
}

func (t *pgTx) InsertBooking(ctx context.Context, b *models.Booking) error {
	return insertBooking(ctx, t.tx, b)
}

func (t *pgTx) ListPaymentEvents(ctx context.Context, bookingID string) ([]models.PaymentEvent, error) {
	return listEvents(ctx, t.tx, bookingID)
}

func (t *pgTx) PaymentEventExists(ctx context.Context, bookingID, gatewayEventID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payment_events WHERE booking_id = $1 AND gateway_event_id = $2)`,
		bookingID, gatewayEventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check payment event %s: %w", gatewayEventID, err)
	}
	return exists, nil
}

func (t *pgTx) InsertPaymentEvent(ctx context.Context, ev *models.PaymentEvent) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO payment_events (id, booking_id, gateway_event_id, payment_intent_id, kind, amount, sequence, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.BookingID, ev.GatewayEventID, ev.PaymentIntentID, string(ev.Kind), ev.Amount, ev.Sequence, ev.CreatedAt,
	)
	if err != nil {
		return mapErr(fmt.Errorf("insert payment event %s: %w", ev.GatewayEventID, err))
	}
	return nil
}

func (t *pgTx) UpdateBookingStatus(ctx context.Context, bookingID string, status models.PaymentStatus, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), at, bookingID,
	)
	if err != nil {
		return fmt.Errorf("update booking %s status: %w", bookingID, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type courseRow struct {
	c        models.Course
	sessions []byte
}

func (r *courseRow) dest() []any {
	return []any{&r.c.ID, &r.c.Slug, &r.c.Title, &r.c.StartDate, &r.c.MaxParticipants, &r.c.IsActive, &r.sessions, &r.c.CreatedAt, &r.c.UpdatedAt}
}

func (r *courseRow) model() (*models.Course, error) {
	c := r.c
	if len(r.sessions) > 0 {
		if err := json.Unmarshal(r.sessions, &c.Sessions); err != nil {
			return nil, fmt.Errorf("decode sessions for course %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

type bookingRow struct {
	b        models.Booking
	planKind string
	status   string
}

func (r *bookingRow) dest() []any {
	return []any{
		&r.b.ID, &r.b.CourseID, &r.b.TierID, &r.b.PlanID, &r.planKind,
		&r.b.Contact.FullName, &r.b.Contact.Email, &r.b.Contact.Phone, &r.b.Contact.Message,
		&r.status, &r.b.TotalAmount, &r.b.DepositAmount, &r.b.FinalAmount, &r.b.Currency,
		&r.b.CreatedAt, &r.b.UpdatedAt,
	}
}

func (r *bookingRow) model() models.Booking {
	b := r.b
	b.PlanKind = models.PlanKind(r.planKind)
	b.Status = models.PaymentStatus(r.status)
	return b
}

func scanBooking(row scanner) (*models.Booking, error) {
	var r bookingRow
	if err := row.Scan(r.dest()...); err != nil {
		return nil, err
	}
	b := r.model()
	return &b, nil
}

func getCourse(ctx context.Context, q querier, courseID, suffix string) (*models.Course, error) {
	var r courseRow
	err := q.QueryRow(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`+suffix, courseID).Scan(r.dest()...)
	if err != nil {
		return nil, mapErr(fmt.Errorf("error fetching course %s: %w", courseID, err))
	}
	return r.model()
}

func getBooking(ctx context.Context, q querier, bookingID, suffix string) (*models.Booking, error) {
	b, err := scanBooking(q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`+suffix, bookingID))
	if err != nil {
		return nil, mapErr(fmt.Errorf("error fetching booking %s: %w", bookingID, err))
	}
	return b, nil
}

func getTier(ctx context.Context, q querier, tierID string) (*models.PricingTier, error) {
	var t models.PricingTier
	err := q.QueryRow(ctx,
		`SELECT id, course_id, tier, name, amount FROM pricing_tiers WHERE id = $1`, tierID,
	).Scan(&t.ID, &t.CourseID, &t.Tier, &t.Name, &t.Amount)
	if err != nil {
		return nil, mapErr(fmt.Errorf("error fetching tier %s: %w", tierID, err))
	}
	return &t, nil
}

func getPlan(ctx context.Context, q querier, planID string) (*models.PaymentPlan, error) {
	var (
		p    models.PaymentPlan
		kind string
	)
	err := q.QueryRow(ctx,
		`SELECT id, kind, deposit_percent, final_due_days_before, is_active FROM payment_plans WHERE id = $1`, planID,
	).Scan(&p.ID, &kind, &p.DepositPercent, &p.FinalDueDaysBefore, &p.IsActive)
	if err != nil {
		return nil, mapErr(fmt.Errorf("error fetching plan %s: %w", planID, err))
	}
	p.Kind = models.PlanKind(kind)
	return &p, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertBooking(ctx context.Context, q execer, b *models.Booking) error {
	_, err := q.Exec(ctx, `
INSERT INTO bookings (id, course_id, tier_id, plan_id, plan_kind, full_name, email, phone, message,
    status, total_amount, deposit_amount, final_amount, currency, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		b.ID, nullable(b.CourseID), nullable(b.TierID), nullable(b.PlanID), string(b.PlanKind),
		b.Contact.FullName, b.Contact.Email, b.Contact.Phone, b.Contact.Message,
		string(b.Status), b.TotalAmount, b.DepositAmount, b.FinalAmount, b.Currency, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return mapErr(fmt.Errorf("insert booking %s: %w", b.ID, err))
	}
	return nil
}

func listEvents(ctx context.Context, q querier, bookingID string) ([]models.PaymentEvent, error) {
	rows, err := q.Query(ctx,
		`SELECT `+eventColumns+` FROM payment_events WHERE booking_id = $1 ORDER BY sequence, created_at`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list payment events for %s: %w", bookingID, err)
	}
	defer rows.Close()

	var out []models.PaymentEvent
	for rows.Next() {
		var (
			ev   models.PaymentEvent
			kind string
		)
		if err := rows.Scan(&ev.ID, &ev.BookingID, &ev.GatewayEventID, &ev.PaymentIntentID, &kind, &ev.Amount, &ev.Sequence, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment event: %w", err)
		}
		ev.Kind = models.PaymentEventKind(kind)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payment events for %s: %w", bookingID, err)
	}
	return out, nil
}

// Package postgresRepo is the relational Store. Seat admission and ledger
// appends serialize on SELECT ... FOR UPDATE of the course or booking row.
package postgresRepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"coursebook/database/repository"
	"coursebook/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pool is the subset of pgxpool.Pool used by the store.
type pool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// querier is what both the pool and a transaction can run reads against.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements repository.Store on Postgres.
type PostgresStore struct {
	pool pool
}

var _ repository.Store = (*PostgresStore)(nil)

// NewPostgresStore builds a store on the given pool.
func NewPostgresStore(p pool) (*PostgresStore, error) {
	if p == nil {
		return nil, errors.New("postgres store requires pool")
	}
	return &PostgresStore{pool: p}, nil
}

const courseColumns = `id, slug, title, start_date, max_participants, is_active, sessions, created_at, updated_at`

const bookingColumns = `id, COALESCE(course_id, ''), COALESCE(tier_id, ''), COALESCE(plan_id, ''), plan_kind,
    full_name, email, phone, message, status, total_amount, deposit_amount, final_amount, currency, created_at, updated_at`

const eventColumns = `id, booking_id, gateway_event_id, payment_intent_id, kind, amount, sequence, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // no-op if committed

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (s *PostgresStore) GetCourse(ctx context.Context, courseID string) (*models.Course, error) {
	return getCourse(ctx, s.pool, courseID, "")
}

func (s *PostgresStore) GetTier(ctx context.Context, tierID string) (*models.PricingTier, error) {
	return getTier(ctx, s.pool, tierID)
}

func (s *PostgresStore) GetPlan(ctx context.Context, planID string) (*models.PaymentPlan, error) {
	return getPlan(ctx, s.pool, planID)
}

func (s *PostgresStore) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	return getBooking(ctx, s.pool, bookingID, "")
}

func (s *PostgresStore) CountConfirmed(ctx context.Context, courseID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM bookings WHERE course_id = $1 AND status IN ('deposit_paid', 'fully_paid')`,
		courseID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count confirmed bookings for %s: %w", courseID, err)
	}
	return n, nil
}

func (s *PostgresStore) ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.CourseID != "" {
		add("course_id = $%d", f.CourseID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.PlanKind != "" {
		add("plan_kind = $%d", string(f.PlanKind))
	}

	q := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListPaymentEvents(ctx context.Context, bookingID string) ([]models.PaymentEvent, error) {
	return listEvents(ctx, s.pool, bookingID)
}

func (s *PostgresStore) CreateContact(ctx context.Context, b *models.Booking) error {
	return insertBooking(ctx, s.pool, b)
}

func (s *PostgresStore) ListReminderCandidates(ctx context.Context, kind models.ReminderKind, status models.PaymentStatus, plan models.PlanKind) ([]models.ReminderCandidate, error) {
	q := `SELECT b.id, b.course_id, b.tier_id, b.plan_id, b.plan_kind,
    b.full_name, b.email, b.phone, b.message, b.status, b.total_amount, b.deposit_amount, b.final_amount, b.currency, b.created_at, b.updated_at,
    c.id, c.slug, c.title, c.start_date, c.max_participants, c.is_active, c.sessions, c.created_at, c.updated_at,
    p.id, p.kind, p.deposit_percent, p.final_due_days_before, p.is_active
FROM bookings b
JOIN courses c ON c.id = b.course_id
JOIN payment_plans p ON p.id = b.plan_id
WHERE b.status = $1
  AND ($2 = '' OR b.plan_kind = $2)
  AND NOT EXISTS (SELECT 1 FROM reminder_markers m WHERE m.booking_id = b.id AND m.kind = $3)
ORDER BY b.created_at`

	rows, err := s.pool.Query(ctx, q, string(status), string(plan), string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s reminder candidates: %w", kind, err)
	}
	defer rows.Close()

	var out []models.ReminderCandidate
	for rows.Next() {
		var (
			rc       models.ReminderCandidate
			bk       bookingRow
			cr       courseRow
			planKind string
		)
		dest := append(bk.dest(), cr.dest()...)
		dest = append(dest, &rc.Plan.ID, &planKind, &rc.Plan.DepositPercent, &rc.Plan.FinalDueDaysBefore, &rc.Plan.IsActive)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan reminder candidate: %w", err)
		}
		rc.Booking = bk.model()
		c, err := cr.model()
		if err != nil {
			return nil, err
		}
		rc.Course = *c
		rc.Plan.Kind = models.PlanKind(planKind)
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s reminder candidates: %w", kind, err)
	}
	return out, nil
}

func (s *PostgresStore) InsertReminderMarker(ctx context.Context, m *models.ReminderMarker) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reminder_markers (booking_id, kind, recipient, sent_at) VALUES ($1, $2, $3, $4)`,
		m.BookingID, string(m.Kind), m.Recipient, m.SentAt,
	)
	if err != nil {
		return mapErr(fmt.Errorf("insert reminder marker for %s: %w", m.BookingID, err))
	}
	return nil
}

func (s *PostgresStore) ListStalePending(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings
WHERE status = 'pending' AND course_id IS NOT NULL AND created_at < $1
ORDER BY created_at`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale pending bookings: %w", err)
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveCourse(ctx context.Context, c *models.Course) error {
	sessions, err := json.Marshal(c.Sessions)
	if err != nil {
		return fmt.Errorf("marshal sessions for %s: %w", c.ID, err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO courses (id, slug, title, start_date, max_participants, is_active, sessions, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    slug = EXCLUDED.slug,
    title = EXCLUDED.title,
    start_date = EXCLUDED.start_date,
    max_participants = EXCLUDED.max_participants,
    is_active = EXCLUDED.is_active,
    sessions = EXCLUDED.sessions,
    updated_at = EXCLUDED.updated_at`,
		c.ID, c.Slug, c.Title, c.StartDate, c.MaxParticipants, c.IsActive, sessions, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return mapErr(fmt.Errorf("save course %s: %w", c.ID, err))
	}
	return nil
}

func (s *PostgresStore) SaveTier(ctx context.Context, t *models.PricingTier) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO pricing_tiers (id, course_id, tier, name, amount)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET tier = EXCLUDED.tier, name = EXCLUDED.name, amount = EXCLUDED.amount`,
		t.ID, t.CourseID, t.Tier, t.Name, t.Amount,
	)
	if err != nil {
		return mapErr(fmt.Errorf("save tier %s: %w", t.ID, err))
	}
	return nil
}

func (s *PostgresStore) SavePlan(ctx context.Context, p *models.PaymentPlan) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO payment_plans (id, kind, deposit_percent, final_due_days_before, is_active)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    kind = EXCLUDED.kind,
    deposit_percent = EXCLUDED.deposit_percent,
    final_due_days_before = EXCLUDED.final_due_days_before,
    is_active = EXCLUDED.is_active`,
		p.ID, string(p.Kind), p.DepositPercent, p.FinalDueDaysBefore, p.IsActive,
	)
	if err != nil {
		return mapErr(fmt.Errorf("save plan %s: %w", p.ID, err))
	}
	return nil
}

func (s *PostgresStore) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// mapErr translates driver errors into repository sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", repository.ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	}
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"coursebook/database/repository"
	"coursebook/metrics"
	"coursebook/models"
	"coursebook/services/notification"

	"go.uber.org/zap"
)

// Config controls which reminders are sent and to whom.
type Config struct {
	PaymentDueEnabled       bool
	PaymentLeadDays         int
	CourseDetailsEnabled    bool
	CourseDetailsNoticeDays int
	SessionEnabled          bool
	SessionDaysBefore       int
	SessionMode             string // models.SessionsFirstOnly or models.SessionsAll
	TestMode                bool   // Send every reminder to TestRecipient
	TestRecipient           string
	DryRun                  bool // Log what would be sent; no send, no marker
	PendingExpiry           time.Duration
	SiteURL                 string
}

// Expirer fails abandoned checkouts.
type Expirer interface {
	ExpireStale(ctx context.Context, now time.Time, expiry time.Duration) (int, error)
}

// KindReport counts one reminder kind's results for a run.
type KindReport struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Report summarises a scheduler run.
type Report struct {
	PaymentDue    KindReport `json:"payment_due"`
	CourseDetails KindReport `json:"course_details"`
	Session       KindReport `json:"session"`
	Expired       int        `json:"expired"`
	DryRun        bool       `json:"dry_run"`
}

// Scheduler sends once-per-booking reminder emails.
type Scheduler struct {
	store   repository.Store
	mailer  notification.Mailer
	expirer Expirer
	metrics *metrics.Recorder
	cfg     Config
	logger  *zap.Logger
}

func NewScheduler(store repository.Store, mailer notification.Mailer, expirer Expirer, rec *metrics.Recorder, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	return &Scheduler{store: store, mailer: mailer, expirer: expirer, metrics: rec, cfg: cfg, logger: logger}
}

// WithDryRun returns a copy of the scheduler that never sends or marks.
func (s *Scheduler) WithDryRun() *Scheduler {
	c := *s
	c.cfg.DryRun = true
	return &c
}

// RunOnce processes every due reminder as of now. Per-booking failures are
// counted and logged; only listing failures abort the run.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) (Report, error) {
	started := time.Now()
	defer func() { s.metrics.ObserveTick(time.Since(started).Seconds()) }()

	rep := Report{DryRun: s.cfg.DryRun}
	today := truncateDay(now)

	if s.cfg.TestMode && s.cfg.TestRecipient == "" {
		return rep, fmt.Errorf("reminder test mode needs a test recipient")
	}

	if s.cfg.PaymentDueEnabled {
		r, err := s.runPaymentDue(ctx, now, today)
		rep.PaymentDue = r
		if err != nil {
			return rep, err
		}
	}
	if s.cfg.CourseDetailsEnabled {
		r, err := s.runCourseDetails(ctx, now, today)
		rep.CourseDetails = r
		if err != nil {
			return rep, err
		}
	}

	if s.cfg.SessionEnabled {
		r, err := s.runSessionReminders(ctx, now, today)
		rep.Session = r
		if err != nil {
			return rep, err
		}
	}

	if s.expirer != nil && s.cfg.PendingExpiry > 0 && !s.cfg.DryRun {
		n, err := s.expirer.ExpireStale(ctx, now, s.cfg.PendingExpiry)
		rep.Expired = n
		if err != nil {
			return rep, fmt.Errorf("expire abandoned checkouts: %w", err)
		}
	}

	s.logger.Info("Reminder run complete",
		zap.Bool("dry_run", s.cfg.DryRun),
		zap.Int("payment_due_sent", rep.PaymentDue.Sent),
		zap.Int("payment_due_failed", rep.PaymentDue.Failed),
		zap.Int("course_details_sent", rep.CourseDetails.Sent),
		zap.Int("course_details_failed", rep.CourseDetails.Failed),
		zap.Int("session_sent", rep.Session.Sent),
		zap.Int("session_failed", rep.Session.Failed),
		zap.Int("expired", rep.Expired))
	return rep, nil
}

func (s *Scheduler) runPaymentDue(ctx context.Context, now, today time.Time) (KindReport, error) {
	var rep KindReport
	candidates, err := s.store.ListReminderCandidates(ctx, models.ReminderPaymentDue, models.StatusDepositPaid, models.PlanInstallments)
	if err != nil {
		return rep, fmt.Errorf("list payment reminders: %w", err)
	}
	for _, c := range candidates {
		due := c.Plan.FinalDueDate(c.Course)
		if today.Before(due.AddDate(0, 0, -s.cfg.PaymentLeadDays)) {
			continue
		}
		data := notification.EmailData{
			Booking:    c.Booking,
			Course:     &c.Course,
			Plan:       &c.Plan,
			AmountDue:  c.Booking.FinalAmount,
			DueDate:    due,
			PaymentURL: s.paymentURL(c),
		}
		s.deliver(ctx, now, models.ReminderPaymentDue, models.TemplatePaymentDue, c, data, &rep)
	}
	return rep, nil
}

func (s *Scheduler) runCourseDetails(ctx context.Context, now, today time.Time) (KindReport, error) {
	var rep KindReport
	candidates, err := s.store.ListReminderCandidates(ctx, models.ReminderCourseDetails, models.StatusFullyPaid, "")
	if err != nil {
		return rep, fmt.Errorf("list course detail reminders: %w", err)
	}
	horizon := today.AddDate(0, 0, s.cfg.CourseDetailsNoticeDays)
	for _, c := range candidates {
		start := truncateDay(c.Course.StartDate)
		if start.Before(today) {
			rep.Skipped++
			continue
		}
		if start.After(horizon) {
			continue
		}
		data := notification.EmailData{Booking: c.Booking, Course: &c.Course, Plan: &c.Plan}
		s.deliver(ctx, now, models.ReminderCourseDetails, models.TemplateCourseDetails, c, data, &rep)
	}
	return rep, nil
}

type dueSession struct {
	candidate models.ReminderCandidate
	session   models.CourseSession
	first     bool
}

// runSessionReminders emails confirmed bookings whose session falls
// SessionDaysBefore days from today. Markers are per session number.
func (s *Scheduler) runSessionReminders(ctx context.Context, now, today time.Time) (KindReport, error) {
	var rep KindReport
	target := today.AddDate(0, 0, s.cfg.SessionDaysBefore)

	for _, status := range []models.PaymentStatus{models.StatusDepositPaid, models.StatusFullyPaid} {
		all, err := s.store.ListReminderCandidates(ctx, models.ReminderSession, status, "")
		if err != nil {
			return rep, fmt.Errorf("list session reminders: %w", err)
		}
		due := make(map[int][]dueSession)
		for _, c := range all {
			for _, d := range s.sessionsOn(c, target) {
				due[d.session.Number] = append(due[d.session.Number], d)
			}
		}

		numbers := make([]int, 0, len(due))
		for n := range due {
			numbers = append(numbers, n)
		}
		sort.Ints(numbers)

		for _, n := range numbers {
			kind := models.SessionReminderKind(n)
			unsent, err := s.store.ListReminderCandidates(ctx, kind, status, "")
			if err != nil {
				return rep, fmt.Errorf("list session %d reminders: %w", n, err)
			}
			pending := make(map[string]bool, len(unsent))
			for _, u := range unsent {
				pending[u.Booking.ID] = true
			}
			for _, d := range due[n] {
				if !pending[d.candidate.Booking.ID] {
					continue
				}
				sess := d.session
				data := notification.EmailData{
					Booking:        d.candidate.Booking,
					Course:         &d.candidate.Course,
					Plan:           &d.candidate.Plan,
					Session:        &sess,
					IsFirstSession: d.first,
				}
				s.deliver(ctx, now, kind, models.TemplateSessionReminder, d.candidate, data, &rep)
			}
		}
	}
	return rep, nil
}

// sessionsOn returns the candidate's sessions dated target. In first-only
// mode only the course's first session qualifies.
func (s *Scheduler) sessionsOn(c models.ReminderCandidate, target time.Time) []dueSession {
	sessions := c.Course.Sessions
	if len(sessions) == 0 {
		return nil
	}
	first := sessions[0].Number
	for _, sess := range sessions[1:] {
		if sess.Number < first {
			first = sess.Number
		}
	}

	var out []dueSession
	for _, sess := range sessions {
		isFirst := sess.Number == first
		if s.cfg.SessionMode != models.SessionsAll && !isFirst {
			continue
		}
		if sess.Date.IsZero() || !truncateDay(sess.Date).Equal(target) {
			continue
		}
		out = append(out, dueSession{candidate: c, session: sess, first: isFirst})
	}
	return out
}

// deliver sends one reminder and records the marker only after a successful send.
func (s *Scheduler) deliver(ctx context.Context, now time.Time, kind models.ReminderKind, tmpl models.TemplateKind, c models.ReminderCandidate, data notification.EmailData, rep *KindReport) {
	recipient := c.Booking.Contact.Email
	if s.cfg.TestMode {
		recipient = s.cfg.TestRecipient
	}
	label := string(kind.Base())
	fields := []zap.Field{
		zap.String("kind", string(kind)),
		zap.String("booking_id", c.Booking.ID),
		zap.String("course_id", c.Course.ID),
		zap.String("recipient", recipient),
		zap.Bool("test_mode", s.cfg.TestMode),
	}

	if s.cfg.DryRun {
		s.logger.Info("Would send reminder", fields...)
		rep.Sent++
		s.metrics.Reminder(label, "dry_run")
		return
	}

	if err := s.mailer.Send(ctx, tmpl, recipient, data); err != nil {
		s.logger.Error("Failed to send reminder", append(fields, zap.Error(err))...)
		rep.Failed++
		s.metrics.Reminder(label, "failed")
		return
	}

	err := s.store.InsertReminderMarker(ctx, &models.ReminderMarker{
		BookingID: c.Booking.ID,
		Kind:      kind,
		Recipient: recipient,
		SentAt:    now,
	})
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		s.logger.Warn("Reminder already marked by a concurrent run", fields...)
	case err != nil:
		s.logger.Error("Reminder sent but marker not stored", append(fields, zap.Error(err))...)
	}
	s.logger.Info("Reminder sent", fields...)
	rep.Sent++
	s.metrics.Reminder(label, "sent")
}

func (s *Scheduler) paymentURL(c models.ReminderCandidate) string {
	if s.cfg.SiteURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/courses/%s/payment?booking=%s", s.cfg.SiteURL, c.Course.Slug, c.Booking.ID)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"coursebook/database/repository"
	memoryRepo "coursebook/database/repository/memory"
	"coursebook/models"
	"coursebook/services/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeGateway struct {
	mu       sync.Mutex
	requests []models.PaymentRequest
	err      error
}

func (g *fakeGateway) CreatePayment(_ context.Context, req models.PaymentRequest) (*models.PaymentHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.requests = append(g.requests, req)
	return &models.PaymentHandle{
		PaymentIntentID: fmt.Sprintf("pi_%d", len(g.requests)),
		ClientSecret:    "secret",
		Amount:          req.Amount,
		Currency:        req.Currency,
		Sequence:        req.Sequence,
	}, nil
}

type sentMail struct {
	kind      models.TemplateKind
	recipient string
	data      notification.EmailData
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, kind models.TemplateKind, recipient string, data notification.EmailData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{kind: kind, recipient: recipient, data: data})
	return nil
}

var now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store   *memoryRepo.MemoryStore
	gateway *fakeGateway
	mailer  *fakeMailer
	svc     *DefaultBookingService
}

func newFixture(t *testing.T, capacity int, hold time.Duration) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memoryRepo.NewMemoryStore()
	require.NoError(t, store.SaveCourse(ctx, &models.Course{
		ID: "course-1", Slug: "wild-herbs", Title: "Wild Herbs Foundation",
		StartDate: now.AddDate(0, 3, 0), MaxParticipants: capacity, IsActive: true,
	}))
	require.NoError(t, store.SaveCourse(ctx, &models.Course{ID: "course-closed", Title: "Closed", MaxParticipants: 10}))
	require.NoError(t, store.SaveTier(ctx, &models.PricingTier{ID: "tier-std", CourseID: "course-1", Tier: models.TierStandard, Amount: 32500}))
	require.NoError(t, store.SaveTier(ctx, &models.PricingTier{ID: "tier-other", CourseID: "course-closed", Tier: models.TierBasic, Amount: 20000}))
	require.NoError(t, store.SavePlan(ctx, &models.PaymentPlan{ID: "plan-full", Kind: models.PlanFull, IsActive: true}))
	require.NoError(t, store.SavePlan(ctx, &models.PaymentPlan{ID: "plan-inst", Kind: models.PlanInstallments, DepositPercent: 50, FinalDueDaysBefore: 14, IsActive: true}))
	require.NoError(t, store.SavePlan(ctx, &models.PaymentPlan{ID: "plan-retired", Kind: models.PlanFull}))

	gw := &fakeGateway{}
	mailer := &fakeMailer{}
	svc := NewDefaultBookingService(store, gw, mailer, nil, Policy{
		HoldWindow:     hold,
		Currency:       "gbp",
		OperatorEmails: []string{"hello@example.com"},
	}, zaptest.NewLogger(t))
	svc.now = func() time.Time { return now }
	return &fixture{store: store, gateway: gw, mailer: mailer, svc: svc}
}

func checkoutReq(plan, email string) CheckoutRequest {
	return CheckoutRequest{
		CourseID: "course-1",
		TierID:   "tier-std",
		PlanID:   plan,
		Contact:  models.ContactDetails{FullName: "Ada Lovelace", Email: email},
	}
}

func (f *fixture) setStatus(t *testing.T, id string, status models.PaymentStatus) {
	t.Helper()
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.UpdateBookingStatus(ctx, id, status, now)
	}))
}

func TestCheckoutInstallments(t *testing.T) {
	f := newFixture(t, 10, 30*time.Minute)

	res, err := f.svc.Checkout(context.Background(), checkoutReq("plan-inst", " Ada@Example.com "))
	require.NoError(t, err)

	b := res.Booking
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, int64(32500), b.TotalAmount)
	assert.Equal(t, int64(16250), b.DepositAmount)
	assert.Equal(t, int64(16250), b.FinalAmount)
	assert.Equal(t, "ada@example.com", b.Contact.Email)

	require.Len(t, f.gateway.requests, 1)
	req := f.gateway.requests[0]
	assert.Equal(t, int64(16250), req.Amount)
	assert.Equal(t, models.SequenceFirst, req.Sequence)
	assert.Equal(t, "checkout-"+b.ID+"-1", req.IdempotencyKey)
	assert.Equal(t, "pi_1", res.Payment.PaymentIntentID)

	stored, err := f.store.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "course-1", stored.CourseID)
}

func TestCheckoutFullPlanChargesTotal(t *testing.T) {
	f := newFixture(t, 10, 30*time.Minute)
	res, err := f.svc.Checkout(context.Background(), checkoutReq("plan-full", "ada@example.com"))
	require.NoError(t, err)
	assert.Equal(t, int64(32500), res.Booking.DepositAmount)
	assert.Zero(t, res.Booking.FinalAmount)
	assert.Equal(t, int64(32500), f.gateway.requests[0].Amount)
}

func TestCheckoutRejections(t *testing.T) {
	f := newFixture(t, 10, 30*time.Minute)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     CheckoutRequest
		wantErr error
	}{
		{"unknown course", CheckoutRequest{CourseID: "nope", TierID: "tier-std", PlanID: "plan-full", Contact: checkoutReq("", "a@b.c").Contact}, ErrCourseNotFound},
		{"inactive course", CheckoutRequest{CourseID: "course-closed", TierID: "tier-other", PlanID: "plan-full", Contact: checkoutReq("", "a@b.c").Contact}, ErrCourseUnavailable},
		{"tier of another course", CheckoutRequest{CourseID: "course-1", TierID: "tier-other", PlanID: "plan-full", Contact: checkoutReq("", "a@b.c").Contact}, ErrUnknownTier},
		{"unknown tier", CheckoutRequest{CourseID: "course-1", TierID: "missing", PlanID: "plan-full", Contact: checkoutReq("", "a@b.c").Contact}, ErrUnknownTier},
		{"retired plan", checkoutReq("plan-retired", "a@b.c"), ErrUnknownPlan},
		{"missing plan", checkoutReq("", "a@b.c"), ErrInvalidRequest},
		{"missing email", checkoutReq("plan-full", "  "), ErrInvalidRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Checkout(ctx, tc.req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	bookings, err := f.store.ListBookings(ctx, models.BookingFilter{})
	require.NoError(t, err)
	assert.Empty(t, bookings)
	assert.Empty(t, f.gateway.requests)
}

func TestCheckoutGatewayFailureKeepsPendingBooking(t *testing.T) {
	f := newFixture(t, 10, 30*time.Minute)
	f.gateway.err = errors.New("stripe down")

	_, err := f.svc.Checkout(context.Background(), checkoutReq("plan-full", "ada@example.com"))
	require.ErrorIs(t, err, ErrPaymentUnavailable)

	bookings, err := f.store.ListBookings(context.Background(), models.BookingFilter{})
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, models.StatusPending, bookings[0].Status)
}

func TestCapacityHeldDuringPayment(t *testing.T) {
	f := newFixture(t, 1, 30*time.Minute)
	ctx := context.Background()

	_, err := f.svc.Checkout(ctx, checkoutReq("plan-full", "first@example.com"))
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, checkoutReq("plan-full", "second@example.com"))
	require.ErrorIs(t, err, ErrCapacityExceeded)

	// Once the hold lapses the abandoned checkout no longer occupies the seat.
	f.svc.now = func() time.Time { return now.Add(31 * time.Minute) }
	_, err = f.svc.Checkout(ctx, checkoutReq("plan-full", "second@example.com"))
	require.NoError(t, err)
}

func TestCapacityConfirmedBookingsBlock(t *testing.T) {
	f := newFixture(t, 1, 0)
	ctx := context.Background()

	res, err := f.svc.Checkout(ctx, checkoutReq("plan-inst", "first@example.com"))
	require.NoError(t, err)
	f.setStatus(t, res.Booking.ID, models.StatusDepositPaid)

	_, err = f.svc.Checkout(ctx, checkoutReq("plan-full", "second@example.com"))
	require.ErrorIs(t, err, ErrCapacityExceeded)

	seats, err := f.svc.RemainingSeats(ctx, "course-1")
	require.NoError(t, err)
	assert.Zero(t, seats)
}

func TestConcurrentLastSeat(t *testing.T) {
	const attempts = 20

	run := func(t *testing.T, hold time.Duration) int {
		f := newFixture(t, 1, hold)
		var wg sync.WaitGroup
		var mu sync.Mutex
		admitted, full := 0, 0
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := f.svc.Checkout(context.Background(), checkoutReq("plan-full", fmt.Sprintf("c%d@example.com", i)))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					admitted++
				case errors.Is(err, ErrCapacityExceeded):
					full++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, attempts, admitted+full)
		return admitted
	}

	t.Run("hold window admits exactly one", func(t *testing.T) {
		assert.Equal(t, 1, run(t, 30*time.Minute))
	})

	// Without a hold window pending checkouts do not occupy seats, so every
	// concurrent customer reaches payment and the course can oversell.
	t.Run("confirmed-only counting admits all", func(t *testing.T) {
		assert.Equal(t, attempts, run(t, 0))
	})
}

func TestCapacityBoundUnderLoad(t *testing.T) {
	f := newFixture(t, 3, 30*time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = f.svc.Checkout(context.Background(), checkoutReq("plan-inst", fmt.Sprintf("c%d@example.com", i)))
		}(i)
	}
	wg.Wait()

	bookings, err := f.store.ListBookings(context.Background(), models.BookingFilter{CourseID: "course-1"})
	require.NoError(t, err)
	assert.Len(t, bookings, 3)
}

func TestRemainingSeats(t *testing.T) {
	f := newFixture(t, 4, 30*time.Minute)
	ctx := context.Background()

	a, err := f.svc.Checkout(ctx, checkoutReq("plan-full", "a@example.com"))
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, checkoutReq("plan-full", "b@example.com"))
	require.NoError(t, err)
	f.setStatus(t, a.Booking.ID, models.StatusFullyPaid)

	seats, err := f.svc.RemainingSeats(ctx, "course-1")
	require.NoError(t, err)
	assert.Equal(t, 3, seats)

	_, err = f.svc.RemainingSeats(ctx, "missing")
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestAvailabilityCountsHeldSeats(t *testing.T) {
	f := newFixture(t, 2, 30*time.Minute)
	ctx := context.Background()

	a, err := f.svc.Checkout(ctx, checkoutReq("plan-full", "a@example.com"))
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, checkoutReq("plan-full", "b@example.com"))
	require.NoError(t, err)
	f.setStatus(t, a.Booking.ID, models.StatusFullyPaid)

	avail, err := f.svc.Availability(ctx, "course-1")
	require.NoError(t, err)
	assert.Equal(t, &Availability{Remaining: 1, Held: 1, Bookable: 0}, avail)

	_, err = f.svc.Checkout(ctx, checkoutReq("plan-full", "c@example.com"))
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	_, err = f.svc.Availability(ctx, "missing")
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestFinalPayment(t *testing.T) {
	f := newFixture(t, 10, 30*time.Minute)
	ctx := context.Background()

	res, err := f.svc.Checkout(ctx, checkoutReq("plan-inst", "ada@example.com"))
	require.NoError(t, err)

	_, err = f.svc.FinalPayment(ctx, res.Booking.ID)
	require.ErrorIs(t, err, ErrFinalPaymentNotDue)

	f.setStatus(t, res.Booking.ID, models.StatusDepositPaid)
	handle, err := f.svc.FinalPayment(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SequenceFinal, handle.Sequence)
	assert.Equal(t, int64(16250), handle.Amount)
	assert.Equal(t, "checkout-"+res.Booking.ID+"-2", f.gateway.requests[1].IdempotencyKey)

	full, err := f.svc.Checkout(ctx, checkoutReq("plan-full", "grace@example.com"))
	require.NoError(t, err)
	f.setStatus(t, full.Booking.ID, models.StatusFullyPaid)
	_, err = f.svc.FinalPayment(ctx, full.Booking.ID)
	assert.ErrorIs(t, err, ErrFinalPaymentNotDue)

	_, err = f.svc.FinalPayment(ctx, "missing")
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestContact(t *testing.T) {
	f := newFixture(t, 10, 30*time.Minute)
	ctx := context.Background()

	b, err := f.svc.Contact(ctx, ContactRequest{
		FullName: "Grace Hopper",
		Email:    "grace@example.com",
		Subject:  "Weekend\r\nBcc: victim@example.com",
		Message:  "Do you run weekend courses?",
	})
	require.NoError(t, err)
	assert.True(t, b.IsContact())
	assert.Equal(t, "Subject: Weekend  Bcc: victim@example.com\n\nDo you run weekend courses?", b.Contact.Message)

	require.Len(t, f.mailer.sent, 1)
	sent := f.mailer.sent[0]
	assert.Equal(t, models.TemplateContactForm, sent.kind)
	assert.Equal(t, "hello@example.com", sent.recipient)
	assert.Equal(t, "Weekend  Bcc: victim@example.com", sent.data.Subject)
	assert.Equal(t, "Do you run weekend courses?", sent.data.Booking.Contact.Message)

	_, err = f.svc.Contact(ctx, ContactRequest{FullName: "Grace", Email: "grace@example.com", Subject: "\n", Message: "hi"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestContactMailFailureStillStores(t *testing.T) {
	f := newFixture(t, 10, 30*time.Minute)
	f.mailer.err = errors.New("smtp down")

	b, err := f.svc.Contact(context.Background(), ContactRequest{
		FullName: "Grace Hopper", Email: "grace@example.com", Subject: "Hello", Message: "Hi there",
	})
	require.NoError(t, err)
	_, err = f.store.GetBooking(context.Background(), b.ID)
	assert.NoError(t, err)
}

func TestSanitizeSubject(t *testing.T) {
	assert.Equal(t, "a b c", SanitizeSubject("a\nb\x00c"))
	long := make([]rune, 250)
	for i := range long {
		long[i] = 'é'
	}
	assert.Len(t, []rune(SanitizeSubject(string(long))), 200)
}

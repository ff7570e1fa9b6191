// Package memoryRepo is an in-process Store. Transactions are serialized by a
// single mutex and applied to a copy of the state, so a failed transaction
// leaves nothing behind.
package memoryRepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"coursebook/database/repository"
	"coursebook/models"
)

type state struct {
	courses  map[string]models.Course
	tiers    map[string]models.PricingTier
	plans    map[string]models.PaymentPlan
	bookings map[string]models.Booking
	events   map[string][]models.PaymentEvent // by booking
	markers  map[string]models.ReminderMarker // by booking+kind
}

func newState() *state {
	return &state{
		courses:  make(map[string]models.Course),
		tiers:    make(map[string]models.PricingTier),
		plans:    make(map[string]models.PaymentPlan),
		bookings: make(map[string]models.Booking),
		events:   make(map[string][]models.PaymentEvent),
		markers:  make(map[string]models.ReminderMarker),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.courses {
		c.courses[k] = v
	}
	for k, v := range s.tiers {
		c.tiers[k] = v
	}
	for k, v := range s.plans {
		c.plans[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.events {
		c.events[k] = append([]models.PaymentEvent(nil), v...)
	}
	for k, v := range s.markers {
		c.markers[k] = v
	}
	return c
}

// MemoryStore implements repository.Store in memory.
type MemoryStore struct {
	mu sync.RWMutex
	st *state
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: newState()}
}

func (m *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.st.clone()
	if err := fn(ctx, &memTx{st: work}); err != nil {
		return err
	}
	m.st = work
	return nil
}

func (m *MemoryStore) GetCourse(_ context.Context, id string) (*models.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.course(id)
}

func (m *MemoryStore) GetTier(_ context.Context, id string) (*models.PricingTier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.tier(id)
}

func (m *MemoryStore) GetPlan(_ context.Context, id string) (*models.PaymentPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.plan(id)
}

func (m *MemoryStore) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.booking(id)
}

func (m *MemoryStore) CountConfirmed(_ context.Context, courseID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	confirmed, _ := m.st.occupied(courseID, time.Time{})
	return confirmed, nil
}

func (m *MemoryStore) ListBookings(_ context.Context, f models.BookingFilter) ([]models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Booking
	for _, b := range m.st.bookings {
		if f.CourseID != "" && b.CourseID != f.CourseID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if f.PlanKind != "" && b.PlanKind != f.PlanKind {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) ListPaymentEvents(_ context.Context, bookingID string) ([]models.PaymentEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.PaymentEvent(nil), m.st.events[bookingID]...), nil
}

func (m *MemoryStore) CreateContact(_ context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertBooking(b)
}

func (m *MemoryStore) ListReminderCandidates(_ context.Context, kind models.ReminderKind, status models.PaymentStatus, plan models.PlanKind) ([]models.ReminderCandidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ReminderCandidate
	for _, b := range m.st.bookings {
		if b.IsContact() || b.Status != status || (plan != "" && b.PlanKind != plan) {
			continue
		}
		if _, sent := m.st.markers[markerKey(b.ID, kind)]; sent {
			continue
		}
		c, ok := m.st.courses[b.CourseID]
		if !ok {
			continue
		}
		p := m.st.plans[b.PlanID]
		out = append(out, models.ReminderCandidate{Booking: b, Course: c, Plan: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Booking.CreatedAt.Before(out[j].Booking.CreatedAt) })
	return out, nil
}

func (m *MemoryStore) InsertReminderMarker(_ context.Context, mk *models.ReminderMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := markerKey(mk.BookingID, mk.Kind)
	if _, ok := m.st.markers[key]; ok {
		return repository.ErrDuplicate
	}
	m.st.markers[key] = *mk
	return nil
}

// Markers returns all stored markers, for assertions in tests.
func (m *MemoryStore) Markers() []models.ReminderMarker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ReminderMarker, 0, len(m.st.markers))
	for _, mk := range m.st.markers {
		out = append(out, mk)
	}
	return out
}

func (m *MemoryStore) ListStalePending(_ context.Context, cutoff time.Time) ([]models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Booking
	for _, b := range m.st.bookings {
		if !b.IsContact() && b.Status == models.StatusPending && b.CreatedAt.Before(cutoff) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MemoryStore) SaveCourse(_ context.Context, c *models.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.courses[c.ID] = *c
	return nil
}

func (m *MemoryStore) SaveTier(_ context.Context, t *models.PricingTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.tiers[t.ID] = *t
	return nil
}

func (m *MemoryStore) SavePlan(_ context.Context, p *models.PaymentPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.plans[p.ID] = *p
	return nil
}

func (m *MemoryStore) EnsureSchema(context.Context) error { return nil }

func (m *MemoryStore) Close(context.Context) error { return nil }

type memTx struct {
	st *state
}

func (t *memTx) LockCourse(_ context.Context, id string) (*models.Course, error) {
	return t.st.course(id)
}

func (t *memTx) LockBooking(_ context.Context, id string) (*models.Booking, error) {
	return t.st.booking(id)
}

func (t *memTx) CountOccupied(_ context.Context, courseID string, heldSince time.Time) (int, int, error) {
	confirmed, held := t.st.occupied(courseID, heldSince)
	return confirmed, held, nil
}

func (t *memTx) GetTier(_ context.Context, id string) (*models.PricingTier, error) {
	return t.st.tier(id)
}

func (t *memTx) GetPlan(_ context.Context, id string) (*models.PaymentPlan, error) {
	return t.st.plan(id)
}

func (t *memTx) InsertBooking(_ context.Context, b *models.Booking) error {
	return t.st.insertBooking(b)
}

func (t *memTx) ListPaymentEvents(_ context.Context, bookingID string) ([]models.PaymentEvent, error) {
	return append([]models.PaymentEvent(nil), t.st.events[bookingID]...), nil
}

func (t *memTx) PaymentEventExists(_ context.Context, bookingID, gatewayEventID string) (bool, error) {
	for _, ev := range t.st.events[bookingID] {
		if ev.GatewayEventID == gatewayEventID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertPaymentEvent(ctx context.Context, ev *models.PaymentEvent) error {
	if _, ok := t.st.bookings[ev.BookingID]; !ok {
		return repository.ErrNotFound
	}
	if exists, _ := t.PaymentEventExists(ctx, ev.BookingID, ev.GatewayEventID); exists {
		return repository.ErrDuplicate
	}
	t.st.events[ev.BookingID] = append(t.st.events[ev.BookingID], *ev)
	return nil
}

func (t *memTx) UpdateBookingStatus(_ context.Context, id string, status models.PaymentStatus, at time.Time) error {
	b, ok := t.st.bookings[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = at
	t.st.bookings[id] = b
	return nil
}

func (s *state) course(id string) (*models.Course, error) {
	c, ok := s.courses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (s *state) tier(id string) (*models.PricingTier, error) {
	t, ok := s.tiers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (s *state) plan(id string) (*models.PaymentPlan, error) {
	p, ok := s.plans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *state) booking(id string) (*models.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (s *state) insertBooking(b *models.Booking) error {
	if _, ok := s.bookings[b.ID]; ok {
		return repository.ErrDuplicate
	}
	s.bookings[b.ID] = *b
	return nil
}

func (s *state) occupied(courseID string, heldSince time.Time) (confirmed, held int) {
	for _, b := range s.bookings {
		if b.CourseID != courseID {
			continue
		}
		switch {
		case b.Status.Confirmed():
			confirmed++
		case b.Status == models.StatusPending && !heldSince.IsZero() && !b.CreatedAt.Before(heldSince):
			held++
		}
	}
	return confirmed, held
}

func markerKey(bookingID string, kind models.ReminderKind) string {
	return bookingID + "/" + string(kind)
}

package mongoRepo

import (
	"context"
	"fmt"
	"time"

	"coursebook/database/repository"
	"coursebook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoTx runs inside a session; ctx passed to each method is the
// mongo.SessionContext handed out by WithTx.
type mongoTx struct {
	s *MongoStore
}

func (t *mongoTx) LockCourse(ctx context.Context, courseID string) (*models.Course, error) {
	var c models.Course
	err := t.s.courses.FindOneAndUpdate(ctx,
		bson.M{"id": courseID},
		bson.M{"$inc": bson.M{"lock_version": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&c)
	if err != nil {
		return nil, mapErr(fmt.Errorf("lock course %s: %w", courseID, err))
	}
	return &c, nil
}

func (t *mongoTx) LockBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	var b models.Booking
	err := t.s.bookings.FindOneAndUpdate(ctx,
		bson.M{"id": bookingID},
		bson.M{"$inc": bson.M{"lock_version": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&b)
	if err != nil {
		return nil, mapErr(fmt.Errorf("lock booking %s: %w", bookingID, err))
	}
	return &b, nil
}

func (t *mongoTx) CountOccupied(ctx context.Context, courseID string, heldSince time.Time) (int, int, error) {
	confirmed, err := t.s.bookings.CountDocuments(ctx, bson.M{
		"course_id": courseID,
		"status":    bson.M{"$in": bson.A{models.StatusDepositPaid, models.StatusFullyPaid}},
	})
	if err != nil {
		return 0, 0, fmt.Errorf("error counting confirmed bookings: %w", err)
	}
	if heldSince.IsZero() {
		return int(confirmed), 0, nil
	}
	held, err := t.s.bookings.CountDocuments(ctx, bson.M{
		"course_id":  courseID,
		"status":     models.StatusPending,
		"created_at": bson.M{"$gte": heldSince},
	})
	if err != nil {
		return 0, 0, fmt.Errorf("error counting held bookings: %w", err)
	}
	return int(confirmed), int(held), nil
}

func (t *mongoTx) GetTier(ctx context.Context, tierID string) (*models.PricingTier, error) {
	return findTier(ctx, t.s.tiers, tierID)
}

func (t *mongoTx) GetPlan(ctx context.Context, planID string) (*models.PaymentPlan, error) {
	return findPlan(ctx, t.s.plans, planID)
}

func (t *mongoTx) InsertBooking(ctx context.Context, b *models.Booking) error {
	if _, err := t.s.bookings.InsertOne(ctx, b); err != nil {
		return mapErr(fmt.Errorf("insert booking failed: %w", err))
	}
	return nil
}

func (t *mongoTx) ListPaymentEvents(ctx context.Context, bookingID string) ([]models.PaymentEvent, error) {
	return findEvents(ctx, t.s.events, bookingID)
}

func (t *mongoTx) PaymentEventExists(ctx context.Context, bookingID, gatewayEventID string) (bool, error) {
	n, err := t.s.events.CountDocuments(ctx,
		bson.M{"booking_id": bookingID, "gateway_event_id": gatewayEventID},
		options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("error checking payment event: %w", err)
	}
	return n > 0, nil
}

func (t *mongoTx) InsertPaymentEvent(ctx context.Context, ev *models.PaymentEvent) error {
	if _, err := t.s.events.InsertOne(ctx, ev); err != nil {
		return mapErr(fmt.Errorf("insert payment event failed: %w", err))
	}
	return nil
}

func (t *mongoTx) UpdateBookingStatus(ctx context.Context, bookingID string, status models.PaymentStatus, at time.Time) error {
	res, err := t.s.bookings.UpdateOne(ctx,
		bson.M{"id": bookingID},
		bson.M{"$set": bson.M{"status": status, "updated_at": at}},
	)
	if err != nil {
		return fmt.Errorf("update booking status failed: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

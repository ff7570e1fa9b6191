// Package mongoRepo is the document Store. Every transaction that admits a
// seat or appends to a ledger first bumps lock_version on the course or
// booking document, so concurrent transactions on the same row conflict and
// the driver retries them.
package mongoRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coursebook/database/repository"
	"coursebook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements repository.Store on MongoDB. It needs a replica set.
type MongoStore struct {
	client   *mongo.Client
	courses  *mongo.Collection
	tiers    *mongo.Collection
	plans    *mongo.Collection
	bookings *mongo.Collection
	events   *mongo.Collection
	markers  *mongo.Collection
}

var _ repository.Store = (*MongoStore)(nil)

// NewMongoStore binds the store to the named database.
func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		client:   client,
		courses:  db.Collection("courses"),
		tiers:    db.Collection("pricing_tiers"),
		plans:    db.Collection("payment_plans"),
		bookings: db.Collection("bookings"),
		events:   db.Collection("payment_events"),
		markers:  db.Collection("reminder_markers"),
	}
}

func (s *MongoStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &mongoTx{s: s})
	})
	return mapErr(err)
}

func (s *MongoStore) GetCourse(ctx context.Context, courseID string) (*models.Course, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var c models.Course
	if err := s.courses.FindOne(ctx, bson.M{"id": courseID}).Decode(&c); err != nil {
		return nil, mapErr(fmt.Errorf("error fetching course %s: %w", courseID, err))
	}
	return &c, nil
}

func (s *MongoStore) GetTier(ctx context.Context, tierID string) (*models.PricingTier, error) {
	return findTier(ctx, s.tiers, tierID)
}

func (s *MongoStore) GetPlan(ctx context.Context, planID string) (*models.PaymentPlan, error) {
	return findPlan(ctx, s.plans, planID)
}

func (s *MongoStore) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var b models.Booking
	if err := s.bookings.FindOne(ctx, bson.M{"id": bookingID}).Decode(&b); err != nil {
		return nil, mapErr(fmt.Errorf("error fetching booking %s: %w", bookingID, err))
	}
	return &b, nil
}

func (s *MongoStore) CountConfirmed(ctx context.Context, courseID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := s.bookings.CountDocuments(ctx, bson.M{
		"course_id": courseID,
		"status":    bson.M{"$in": bson.A{models.StatusDepositPaid, models.StatusFullyPaid}},
	})
	if err != nil {
		return 0, fmt.Errorf("error counting confirmed bookings: %w", err)
	}
	return int(n), nil
}

func (s *MongoStore) ListBookings(ctx context.Context, f models.BookingFilter) ([]models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{}
	if f.CourseID != "" {
		filter["course_id"] = f.CourseID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.PlanKind != "" {
		filter["plan_kind"] = f.PlanKind
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}

	cursor, err := s.bookings.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing bookings: %w", err)
	}
	var out []models.Booking
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding bookings: %w", err)
	}
	return out, nil
}

func (s *MongoStore) ListPaymentEvents(ctx context.Context, bookingID string) ([]models.PaymentEvent, error) {
	return findEvents(ctx, s.events, bookingID)
}

func (s *MongoStore) CreateContact(ctx context.Context, b *models.Booking) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.bookings.InsertOne(ctx, b); err != nil {
		return mapErr(fmt.Errorf("insert contact booking failed: %w", err))
	}
	return nil
}

// candidateDoc is the shape produced by the reminder candidate pipeline.
type candidateDoc struct {
	models.Booking `bson:",inline"`
	Course         []models.Course      `bson:"course"`
	Plan           []models.PaymentPlan `bson:"plan"`
}

func (s *MongoStore) ListReminderCandidates(ctx context.Context, kind models.ReminderKind, status models.PaymentStatus, plan models.PlanKind) ([]models.ReminderCandidate, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	match := bson.M{"status": status, "course_id": bson.M{"$exists": true, "$ne": ""}}
	if plan != "" {
		match["plan_kind"] = plan
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: s.markers.Name()},
			{Key: "let", Value: bson.D{{Key: "bid", Value: "$id"}}},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{{Key: "$and", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{"$booking_id", "$$bid"}}},
					bson.D{{Key: "$eq", Value: bson.A{"$kind", string(kind)}}},
				}}}}}}},
			}},
			{Key: "as", Value: "sent"},
		}}},
		{{Key: "$match", Value: bson.M{"sent": bson.M{"$size": 0}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: s.courses.Name()},
			{Key: "localField", Value: "course_id"},
			{Key: "foreignField", Value: "id"},
			{Key: "as", Value: "course"},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: s.plans.Name()},
			{Key: "localField", Value: "plan_id"},
			{Key: "foreignField", Value: "id"},
			{Key: "as", Value: "plan"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: 1}}}},
	}

	cursor, err := s.bookings.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("error listing %s reminder candidates: %w", kind, err)
	}
	defer cursor.Close(ctx)

	var out []models.ReminderCandidate
	for cursor.Next(ctx) {
		var doc candidateDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("error decoding reminder candidate: %w", err)
		}
		if len(doc.Course) == 0 || len(doc.Plan) == 0 {
			continue
		}
		out = append(out, models.ReminderCandidate{Booking: doc.Booking, Course: doc.Course[0], Plan: doc.Plan[0]})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return out, nil
}

func (s *MongoStore) InsertReminderMarker(ctx context.Context, m *models.ReminderMarker) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.markers.InsertOne(ctx, m); err != nil {
		return mapErr(fmt.Errorf("insert reminder marker failed: %w", err))
	}
	return nil
}

func (s *MongoStore) ListStalePending(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := s.bookings.Find(ctx, bson.M{
		"status":     models.StatusPending,
		"course_id":  bson.M{"$exists": true, "$ne": ""},
		"created_at": bson.M{"$lt": cutoff},
	}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error listing stale bookings: %w", err)
	}
	var out []models.Booking
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding bookings: %w", err)
	}
	return out, nil
}

func (s *MongoStore) SaveCourse(ctx context.Context, c *models.Course) error {
	return upsert(ctx, s.courses, c.ID, c)
}

func (s *MongoStore) SaveTier(ctx context.Context, t *models.PricingTier) error {
	return upsert(ctx, s.tiers, t.ID, t)
}

func (s *MongoStore) SavePlan(ctx context.Context, p *models.PaymentPlan) error {
	return upsert(ctx, s.plans, p.ID, p)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func upsert(ctx context.Context, coll *mongo.Collection, id string, doc interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := coll.ReplaceOne(ctx, bson.M{"id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return mapErr(fmt.Errorf("failed to save %s %s: %w", coll.Name(), id, err))
	}
	return nil
}

func findTier(ctx context.Context, coll *mongo.Collection, tierID string) (*models.PricingTier, error) {
	var t models.PricingTier
	if err := coll.FindOne(ctx, bson.M{"id": tierID}).Decode(&t); err != nil {
		return nil, mapErr(fmt.Errorf("error fetching tier %s: %w", tierID, err))
	}
	return &t, nil
}

func findPlan(ctx context.Context, coll *mongo.Collection, planID string) (*models.PaymentPlan, error) {
	var p models.PaymentPlan
	if err := coll.FindOne(ctx, bson.M{"id": planID}).Decode(&p); err != nil {
		return nil, mapErr(fmt.Errorf("error fetching plan %s: %w", planID, err))
	}
	return &p, nil
}

func findEvents(ctx context.Context, coll *mongo.Collection, bookingID string) ([]models.PaymentEvent, error) {
	cursor, err := coll.Find(ctx, bson.M{"booking_id": bookingID},
		options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}, {Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("error fetching payment events: %w", err)
	}
	var out []models.PaymentEvent
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding payment events: %w", err)
	}
	return out, nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%w: %v", repository.ErrNotFound, err)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
	}
	return err
}

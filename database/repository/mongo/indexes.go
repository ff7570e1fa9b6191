package mongoRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func uniqueOn(keys ...string) mongo.IndexModel {
	d := bson.D{}
	for _, k := range keys {
		d = append(d, bson.E{Key: k, Value: 1})
	}
	return mongo.IndexModel{Keys: d, Options: options.Index().SetUnique(true)}
}

// EnsureSchema creates the unique indexes the booking invariants rely on.
func (s *MongoStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	plan := map[*mongo.Collection][]mongo.IndexModel{
		s.courses: {uniqueOn("id"), uniqueOn("slug")},
		s.tiers:   {uniqueOn("id"), uniqueOn("course_id", "tier")},
		s.plans:   {uniqueOn("id")},
		s.bookings: {
			uniqueOn("id"),
			{Keys: bson.D{{Key: "course_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		s.events:  {uniqueOn("booking_id", "gateway_event_id")},
		s.markers: {uniqueOn("booking_id", "kind")},
	}
	for coll, models := range plan {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coursebook/database/repository"
	"coursebook/models"

	"go.uber.org/zap"
)

// RemainingSeats is max(0, capacity - confirmed bookings).
func (s *DefaultBookingService) RemainingSeats(ctx context.Context, courseID string) (int, error) {
	course, err := s.store.GetCourse(ctx, courseID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, ErrCourseNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("load course %s: %w", courseID, err)
	}
	confirmed, err := s.store.CountConfirmed(ctx, courseID)
	if err != nil {
		return 0, fmt.Errorf("count confirmed bookings for %s: %w", courseID, err)
	}
	return max(0, course.MaxParticipants-confirmed), nil
}

// Availability reports RemainingSeats alongside the pending bookings still
// inside the hold window, which TryAdmit also counts as occupied.
func (s *DefaultBookingService) Availability(ctx context.Context, courseID string) (*Availability, error) {
	course, err := s.store.GetCourse(ctx, courseID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load course %s: %w", courseID, err)
	}

	var confirmed, held int
	err = s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		confirmed, held, err = tx.CountOccupied(ctx, courseID, s.heldSince())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("count occupied seats for %s: %w", courseID, err)
	}
	return &Availability{
		Remaining: max(0, course.MaxParticipants-confirmed),
		Held:      held,
		Bookable:  max(0, course.MaxParticipants-confirmed-held),
	}, nil
}

// heldSince is the creation cutoff for pending bookings that still hold a
// seat. The zero time means pending bookings hold nothing.
func (s *DefaultBookingService) heldSince() time.Time {
	if s.policy.HoldWindow <= 0 {
		return time.Time{}
	}
	return s.now().Add(-s.policy.HoldWindow)
}

// BuildFunc assembles the booking to admit. It runs inside the admission
// transaction after the course row is locked.
type BuildFunc func(ctx context.Context, tx repository.Tx, course *models.Course) (*models.Booking, error)

// TryAdmit inserts the booking produced by build if the course still has a
// free seat. Occupied seats are confirmed bookings plus pending bookings
// created within the hold window.
func (s *DefaultBookingService) TryAdmit(ctx context.Context, courseID string, build BuildFunc) (*models.Booking, error) {
	var admitted *models.Booking
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		admitted = nil
		course, err := tx.LockCourse(ctx, courseID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrCourseNotFound
		}
		if err != nil {
			return err
		}
		if !course.IsActive {
			return ErrCourseUnavailable
		}

		confirmed, held, err := tx.CountOccupied(ctx, courseID, s.heldSince())
		if err != nil {
			return err
		}
		if confirmed+held >= course.MaxParticipants {
			s.logger.Info("Course full",
				zap.String("course_id", courseID),
				zap.Int("confirmed", confirmed),
				zap.Int("held", held),
				zap.Int("capacity", course.MaxParticipants))
			return ErrCapacityExceeded
		}

		b, err := build(ctx, tx, course)
		if err != nil {
			return err
		}
		b.CourseID = course.ID
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		admitted = b
		return nil
	})

	switch {
	case err == nil:
		s.metrics.Admission("admitted")
		return admitted, nil
	case errors.Is(err, ErrCapacityExceeded):
		s.metrics.Admission("full")
	case errors.Is(err, ErrCourseUnavailable), errors.Is(err, ErrCourseNotFound),
		errors.Is(err, ErrUnknownTier), errors.Is(err, ErrUnknownPlan):
		s.metrics.Admission("rejected")
	default:
		s.metrics.Admission("error")
		return nil, fmt.Errorf("admit booking for course %s: %w", courseID, err)
	}
	return nil, err
}

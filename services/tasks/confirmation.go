package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"coursebook/database/repository"
	"coursebook/models"
	"coursebook/services/notification"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const TypeBookingConfirmation = "booking:confirmation"

const confirmationMaxRetry = 8

// NewConfirmationTask builds the job that emails a newly confirmed booking.
// The task id is derived from the booking so a booking is confirmed at most once.
func NewConfirmationTask(payload models.ConfirmationPayload) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeBookingConfirmation, b)
	opts := []asynq.Option{
		asynq.TaskID("confirmation:" + payload.BookingID),
		asynq.MaxRetry(confirmationMaxRetry),
	}
	return task, opts, nil
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ConfirmationQueue enqueues confirmation jobs on asynq.
type ConfirmationQueue struct {
	client enqueuer
	logger *zap.Logger
}

func NewConfirmationQueue(client *asynq.Client, logger *zap.Logger) *ConfirmationQueue {
	return newConfirmationQueue(client, logger)
}

func newConfirmationQueue(client enqueuer, logger *zap.Logger) *ConfirmationQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfirmationQueue{client: client, logger: logger}
}

func (q *ConfirmationQueue) EnqueueConfirmation(ctx context.Context, payload models.ConfirmationPayload) error {
	task, opts, err := NewConfirmationTask(payload)
	if err != nil {
		return fmt.Errorf("build confirmation task: %w", err)
	}
	info, err := q.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		q.logger.Info("Confirmation already queued", zap.String("booking_id", payload.BookingID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue confirmation for %s: %w", payload.BookingID, err)
	}
	q.logger.Info("Confirmation queued",
		zap.String("booking_id", payload.BookingID),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue))
	return nil
}

// ConfirmationHandler sends the customer confirmation and the operator
// notification for a confirmed booking.
type ConfirmationHandler struct {
	store          repository.Store
	mailer         notification.Mailer
	operatorEmails []string
	logger         *zap.Logger
}

func NewConfirmationHandler(store repository.Store, mailer notification.Mailer, operatorEmails []string, logger *zap.Logger) *ConfirmationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConfirmationHandler{store: store, mailer: mailer, operatorEmails: operatorEmails, logger: logger}
}

// ProcessTask implements asynq.Handler. Only a failed customer email is
// retried; operator notifications are best effort.
func (h *ConfirmationHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var p models.ConfirmationPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		h.logger.Error("Invalid confirmation payload", zap.Error(err))
		return fmt.Errorf("decode confirmation payload: %v: %w", err, asynq.SkipRetry)
	}

	data, err := h.emailData(ctx, p.BookingID)
	if errors.Is(err, repository.ErrNotFound) {
		h.logger.Error("Confirmation for missing booking", zap.String("booking_id", p.BookingID))
		return fmt.Errorf("booking %s: %w", p.BookingID, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}

	if err := h.mailer.Send(ctx, models.TemplateBookingConfirmation, data.Booking.Contact.Email, data); err != nil {
		h.logger.Error("Failed to send booking confirmation",
			zap.String("booking_id", p.BookingID), zap.String("event_id", p.EventID), zap.Error(err))
		return err
	}

	if len(h.operatorEmails) == 0 {
		h.logger.Warn("No operator notification emails configured", zap.String("booking_id", p.BookingID))
	}
	for _, to := range h.operatorEmails {
		if err := h.mailer.Send(ctx, models.TemplateAdminNotification, to, data); err != nil {
			h.logger.Error("Failed to send operator notification",
				zap.String("booking_id", p.BookingID), zap.String("recipient", to), zap.Error(err))
		}
	}
	return nil
}

func (h *ConfirmationHandler) emailData(ctx context.Context, bookingID string) (notification.EmailData, error) {
	b, err := h.store.GetBooking(ctx, bookingID)
	if err != nil {
		return notification.EmailData{}, err
	}
	if b.IsContact() {
		return notification.EmailData{}, repository.ErrNotFound
	}
	course, err := h.store.GetCourse(ctx, b.CourseID)
	if err != nil {
		return notification.EmailData{}, fmt.Errorf("load course %s: %w", b.CourseID, err)
	}
	plan, err := h.store.GetPlan(ctx, b.PlanID)
	if err != nil {
		return notification.EmailData{}, fmt.Errorf("load plan %s: %w", b.PlanID, err)
	}
	data := notification.EmailData{Booking: *b, Course: course, Plan: plan}
	if b.PlanKind == models.PlanInstallments {
		data.AmountDue = b.FinalAmount
		data.DueDate = plan.FinalDueDate(*course)
	}
	return data, nil
}

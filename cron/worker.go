package cron

import (
	"context"
	"fmt"
	"time"

	"coursebook/services/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Worker runs the asynq server that delivers booking confirmation emails.
type Worker struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	redis  asynq.RedisClientOpt
	logger *zap.Logger
}

func NewWorker(redisOpt asynq.RedisClientOpt, confirmations *tasks.ConfirmationHandler, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			Logger:   logger.Sugar(),
			LogLevel: asynq.InfoLevel,
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeBookingConfirmation, confirmations)

	return &Worker{srv: srv, mux: mux, redis: redisOpt, logger: logger}
}

// Run starts the worker and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	const maxAttempts = 5

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = w.srv.Start(w.mux); err == nil {
			break
		}
		w.logger.Warn("Failed to start confirmation worker",
			zap.Int("attempt", attempt), zap.Int("max_attempts", maxAttempts), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(attempt*2) * time.Second):
		}
	}
	if err != nil {
		return fmt.Errorf("confirmation worker: %w", err)
	}
	w.logger.Info("Confirmation worker started")

	go w.monitorRedis(ctx)

	<-ctx.Done()
	w.srv.Shutdown()
	w.logger.Info("Confirmation worker stopped")
	return nil
}

// monitorRedis pings the queue database periodically so a lost connection
// shows up in the logs.
func (w *Worker) monitorRedis(ctx context.Context) {
	client := redis.NewClient(&redis.Options{
		Addr:     w.redis.Addr,
		Password: w.redis.Password,
		DB:       w.redis.DB,
	})
	defer client.Close()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.Ping(ctx).Err(); err != nil && ctx.Err() == nil {
				w.logger.Warn("Queue redis connection lost", zap.Error(err))
			}
		}
	}
}

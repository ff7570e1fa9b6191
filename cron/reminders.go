package cron

import (
	"context"
	"fmt"
	"time"

	"coursebook/services/reminder"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ReminderRunner is the part of the reminder scheduler the cron tick needs.
type ReminderRunner interface {
	RunOnce(ctx context.Context, now time.Time) (reminder.Report, error)
}

// ReminderCron runs the reminder scheduler on a cron schedule. A tick that
// is still running when the next one fires is skipped.
type ReminderCron struct {
	cron   *cron.Cron
	runner ReminderRunner
	logger *zap.Logger
}

func NewReminderCron(schedule string, runner ReminderRunner, logger *zap.Logger) (*ReminderCron, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar()}
	c := cron.New(
		cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	rc := &ReminderCron{cron: c, runner: runner, logger: logger}
	if _, err := c.AddFunc(schedule, rc.tick); err != nil {
		return nil, fmt.Errorf("invalid reminder schedule %q: %w", schedule, err)
	}
	return rc, nil
}

func (rc *ReminderCron) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if _, err := rc.runner.RunOnce(ctx, time.Now().UTC()); err != nil {
		rc.logger.Error("Reminder run failed", zap.Error(err))
	}
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// a running tick to finish.
func (rc *ReminderCron) Run(ctx context.Context) error {
	rc.cron.Start()
	rc.logger.Info("Reminder cron started", zap.Int("entries", len(rc.cron.Entries())))
	<-ctx.Done()
	<-rc.cron.Stop().Done()
	rc.logger.Info("Reminder cron stopped")
	return nil
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"coursebook/services/reminder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingRunner struct {
	calls atomic.Int32
}

func (r *countingRunner) RunOnce(context.Context, time.Time) (reminder.Report, error) {
	r.calls.Add(1)
	return reminder.Report{}, nil
}

func TestNewReminderCronRejectsBadSchedule(t *testing.T) {
	_, err := NewReminderCron("every tuesday", &countingRunner{}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestReminderCronTick(t *testing.T) {
	runner := &countingRunner{}
	rc, err := NewReminderCron("*/15 * * * *", runner, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, rc.cron.Entries(), 1)

	rc.cron.Entries()[0].WrappedJob.Run()
	assert.Equal(t, int32(1), runner.calls.Load())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rc.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("cron did not stop")
	}
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	LoadConfig()

	assert.Zero(t, AppConfig.PaymentReminderLeadDays)
	assert.True(t, AppConfig.SessionReminderEnabled)
	assert.Equal(t, 1, AppConfig.SessionReminderDaysBefore)
	assert.Equal(t, "first_only", AppConfig.SessionReminderMode)
	assert.Equal(t, 30*time.Minute, AppConfig.CapacityHoldWindow)
	assert.Empty(t, AppConfig.TurnstileSecretKey)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PAYMENT_REMINDER_LEAD_DAYS", "3")
	t.Setenv("SESSION_REMINDER_MODE", "all_sessions")
	LoadConfig()

	assert.Equal(t, 3, AppConfig.PaymentReminderLeadDays)
	assert.Equal(t, "all_sessions", AppConfig.SessionReminderMode)
}

func TestNotificationEmails(t *testing.T) {
	c := Config{BookingNotificationEmails: " ops@example.com, ,owner@example.com "}
	assert.Equal(t, []string{"ops@example.com", "owner@example.com"}, c.NotificationEmails())
}

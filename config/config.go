package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`
	AdminAPIToken     string `mapstructure:"ADMIN_API_TOKEN"`

	// Storage. DATABASE_DRIVER selects "postgres" or "mongo".
	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	MongoURL       string `mapstructure:"MONGO_URL"`
	MongoDatabase  string `mapstructure:"MONGO_DATABASE"`

	// Redis configuration.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB  int    `mapstructure:"REDIS_CACHE_DB"`
	RedisQueueDB  int    `mapstructure:"REDIS_QUEUE_DB"`

	// Stripe.
	StripeKey           string `mapstructure:"STRIPE_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	PaymentCurrency     string `mapstructure:"PAYMENT_CURRENCY"`

	// Booking policy.
	CapacityHoldWindow time.Duration `mapstructure:"CAPACITY_HOLD_WINDOW"`
	PendingExpiry      time.Duration `mapstructure:"PENDING_EXPIRY"`
	CheckoutRateLimit  int           `mapstructure:"CHECKOUT_RATE_LIMIT"`
	CheckoutRateWindow time.Duration `mapstructure:"CHECKOUT_RATE_WINDOW"`
	TurnstileSecretKey string        `mapstructure:"TURNSTILE_SECRET_KEY"` // Empty skips the contact form challenge

	// Reminders.
	ReminderSchedule          string `mapstructure:"REMINDER_SCHEDULE"`
	PaymentReminderEnabled    bool   `mapstructure:"PAYMENT_REMINDER_ENABLED"`
	PaymentReminderLeadDays   int    `mapstructure:"PAYMENT_REMINDER_LEAD_DAYS"`
	CourseDetailsEnabled      bool   `mapstructure:"COURSE_DETAILS_ENABLED"`
	CourseDetailsNoticeDays   int    `mapstructure:"COURSE_DETAILS_NOTICE_DAYS"`
	SessionReminderEnabled    bool   `mapstructure:"SESSION_REMINDER_ENABLED"`
	SessionReminderDaysBefore int    `mapstructure:"SESSION_REMINDER_DAYS_BEFORE"`
	SessionReminderMode       string `mapstructure:"SESSION_REMINDER_MODE"` // first_only or all_sessions
	ReminderTestMode          bool   `mapstructure:"REMINDER_TEST_MODE"`
	ReminderTestEmail         string `mapstructure:"REMINDER_TEST_EMAIL"`
	BookingNotificationEmails string `mapstructure:"BOOKING_NOTIFICATION_EMAILS"`

	// Outgoing mail. An empty SMTP_HOST logs emails instead of sending them.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	MailFrom     string `mapstructure:"MAIL_FROM"`
	SiteURL      string `mapstructure:"SITE_URL"` // Base for links in emails
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 200)
	viper.SetDefault("ADMIN_API_TOKEN", "")
	viper.SetDefault("DATABASE_DRIVER", "postgres")
	viper.SetDefault("DATABASE_URL", "postgres://localhost:5432/coursebook?sslmode=disable")
	viper.SetDefault("MONGO_URL", "mongodb://localhost:27017")
	viper.SetDefault("MONGO_DATABASE", "coursebook")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("REDIS_QUEUE_DB", 1)
	viper.SetDefault("STRIPE_KEY", "")
	viper.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	viper.SetDefault("PAYMENT_CURRENCY", "gbp")
	viper.SetDefault("CAPACITY_HOLD_WINDOW", "30m")
	viper.SetDefault("PENDING_EXPIRY", "0s")
	viper.SetDefault("CHECKOUT_RATE_LIMIT", 5)
	viper.SetDefault("CHECKOUT_RATE_WINDOW", "10m")
	viper.SetDefault("TURNSTILE_SECRET_KEY", "")
	viper.SetDefault("REMINDER_SCHEDULE", "*/15 * * * *")
	viper.SetDefault("PAYMENT_REMINDER_ENABLED", true)
	viper.SetDefault("PAYMENT_REMINDER_LEAD_DAYS", 0)
	viper.SetDefault("COURSE_DETAILS_ENABLED", true)
	viper.SetDefault("COURSE_DETAILS_NOTICE_DAYS", 7)
	viper.SetDefault("SESSION_REMINDER_ENABLED", true)
	viper.SetDefault("SESSION_REMINDER_DAYS_BEFORE", 1)
	viper.SetDefault("SESSION_REMINDER_MODE", "first_only")
	viper.SetDefault("REMINDER_TEST_MODE", false)
	viper.SetDefault("REMINDER_TEST_EMAIL", "")
	viper.SetDefault("BOOKING_NOTIFICATION_EMAILS", "")
	viper.SetDefault("SMTP_HOST", "")
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("SMTP_USERNAME", "")
	viper.SetDefault("SMTP_PASSWORD", "")
	viper.SetDefault("MAIL_FROM", "bookings@localhost")
	viper.SetDefault("SITE_URL", "http://localhost:8080")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}

// NotificationEmails splits BOOKING_NOTIFICATION_EMAILS into addresses.
func (c Config) NotificationEmails() []string {
	var out []string
	for _, e := range strings.Split(c.BookingNotificationEmails, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

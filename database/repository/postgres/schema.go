package postgresRepo

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS courses (
    id               TEXT PRIMARY KEY,
    slug             TEXT NOT NULL UNIQUE,
    title            TEXT NOT NULL,
    start_date       DATE NOT NULL,
    max_participants INTEGER NOT NULL CHECK (max_participants >= 0),
    is_active        BOOLEAN NOT NULL DEFAULT TRUE,
    sessions         JSONB NOT NULL DEFAULT '[]',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS pricing_tiers (
    id        TEXT PRIMARY KEY,
    course_id TEXT NOT NULL REFERENCES courses (id),
    tier      TEXT NOT NULL,
    name      TEXT NOT NULL,
    amount    BIGINT NOT NULL CHECK (amount > 0),
    UNIQUE (course_id, tier)
)`,
	`CREATE TABLE IF NOT EXISTS payment_plans (
    id                    TEXT PRIMARY KEY,
    kind                  TEXT NOT NULL CHECK (kind IN ('full', 'installments')),
    deposit_percent       INTEGER NOT NULL DEFAULT 0 CHECK (deposit_percent BETWEEN 0 AND 100),
    final_due_days_before INTEGER NOT NULL DEFAULT 0,
    is_active             BOOLEAN NOT NULL DEFAULT TRUE
)`,
	`CREATE TABLE IF NOT EXISTS bookings (
    id             TEXT PRIMARY KEY,
    course_id      TEXT REFERENCES courses (id),
    tier_id        TEXT REFERENCES pricing_tiers (id),
    plan_id        TEXT REFERENCES payment_plans (id),
    plan_kind      TEXT NOT NULL DEFAULT '',
    full_name      TEXT NOT NULL,
    email          TEXT NOT NULL,
    phone          TEXT NOT NULL DEFAULT '',
    message        TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL,
    total_amount   BIGINT NOT NULL DEFAULT 0,
    deposit_amount BIGINT NOT NULL DEFAULT 0,
    final_amount   BIGINT NOT NULL DEFAULT 0,
    currency       TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_course_status ON bookings (course_id, status, created_at)`,
	`CREATE TABLE IF NOT EXISTS payment_events (
    id                TEXT PRIMARY KEY,
    booking_id        TEXT NOT NULL REFERENCES bookings (id),
    gateway_event_id  TEXT NOT NULL,
    payment_intent_id TEXT NOT NULL DEFAULT '',
    kind              TEXT NOT NULL CHECK (kind IN ('attempt', 'succeeded', 'failed')),
    amount            BIGINT NOT NULL,
    sequence          INTEGER NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (booking_id, gateway_event_id)
)`,
	`CREATE TABLE IF NOT EXISTS reminder_markers (
    booking_id TEXT NOT NULL REFERENCES bookings (id),
    kind       TEXT NOT NULL,
    recipient  TEXT NOT NULL,
    sent_at    TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (booking_id, kind)
)`,
}

// EnsureSchema creates the booking tables and indices if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure booking schema: %w", err)
		}
	}
	return nil
}

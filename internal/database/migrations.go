package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	for i, migration := range Migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

// Migrations are applied in order; every statement is idempotent
var Migrations = []string{
	createEventsTable,
	createTiersTable,
	createBuyersTable,
	createReservationsTable,
	createPaymentOutcomesTable,
	createTicketsTable,
	createReservationsExpiryIndex,
	createReservationsBuyerIndex,
	createTicketsBuyerIndex,
}

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    id SERIAL PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    description TEXT,
    starts_at TIMESTAMPTZ NOT NULL,
    location VARCHAR(200) NOT NULL DEFAULT '',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    charges_fee BOOLEAN NOT NULL DEFAULT FALSE,
    fee_amount NUMERIC(10,2) NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createTiersTable = `
CREATE TABLE IF NOT EXISTS tiers (
    id SERIAL PRIMARY KEY,
    event_id INTEGER NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    name VARCHAR(100) NOT NULL,
    price NUMERIC(10,2) NOT NULL,
    capacity INTEGER NOT NULL,
    held INTEGER NOT NULL DEFAULT 0,
    sort_order INTEGER NOT NULL DEFAULT 0,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (capacity > 0),
    CHECK (held >= 0 AND held <= capacity)
);`

const createBuyersTable = `
CREATE TABLE IF NOT EXISTS buyers (
    id BIGINT PRIMARY KEY,
    first_name VARCHAR(100) NOT NULL,
    last_name VARCHAR(100) NOT NULL,
    document VARCHAR(20) NOT NULL,
    email VARCHAR(255) NOT NULL,
    phone VARCHAR(30),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createReservationsTable = `
CREATE TABLE IF NOT EXISTS reservations (
    id UUID PRIMARY KEY,
    buyer_id BIGINT NOT NULL REFERENCES buyers(id),
    event_id INTEGER NOT NULL REFERENCES events(id),
    tier_id INTEGER NOT NULL REFERENCES tiers(id),
    quantity INTEGER NOT NULL,
    state VARCHAR(20) NOT NULL DEFAULT 'pending',
    subtotal NUMERIC(10,2) NOT NULL,
    fee NUMERIC(10,2) NOT NULL DEFAULT 0,
    total NUMERIC(10,2) NOT NULL,
    preference_id VARCHAR(255),
    payment_id VARCHAR(255),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    hold_expires_at TIMESTAMPTZ NOT NULL,
    approved_at TIMESTAMPTZ,
    closed_at TIMESTAMPTZ,

    CHECK (quantity BETWEEN 1 AND 10),
    CHECK (state IN ('pending', 'approved', 'rejected', 'expired', 'cancelled'))
);`

const createPaymentOutcomesTable = `
CREATE TABLE IF NOT EXISTS payment_outcomes (
    payment_id VARCHAR(255) PRIMARY KEY,
    reservation_id UUID NOT NULL REFERENCES reservations(id),
    status VARCHAR(40) NOT NULL,
    channel VARCHAR(20) NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createTicketsTable = `
CREATE TABLE IF NOT EXISTS tickets (
    id UUID PRIMARY KEY,
    reservation_id UUID NOT NULL REFERENCES reservations(id),
    buyer_id BIGINT NOT NULL REFERENCES buyers(id),
    tier_id INTEGER NOT NULL REFERENCES tiers(id),
    tier_name VARCHAR(100) NOT NULL,
    seq INTEGER NOT NULL,
    token CHAR(32) NOT NULL UNIQUE,
    used BOOLEAN NOT NULL DEFAULT FALSE,
    used_at TIMESTAMPTZ,
    validated_by BIGINT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    UNIQUE (reservation_id, seq),
    CHECK (used = (used_at IS NOT NULL))
);`

const createReservationsExpiryIndex = `
CREATE INDEX IF NOT EXISTS reservations_pending_expiry_idx
ON reservations (hold_expires_at) WHERE state = 'pending';`

const createReservationsBuyerIndex = `
CREATE INDEX IF NOT EXISTS reservations_buyer_idx
ON reservations (buyer_id, created_at DESC);`

const createTicketsBuyerIndex = `
CREATE INDEX IF NOT EXISTS tickets_buyer_idx
ON tickets (buyer_id, created_at DESC);`

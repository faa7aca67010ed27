package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		sku         VARCHAR(64) NOT NULL UNIQUE,
		name        VARCHAR(255) NOT NULL,
		price       BIGINT NOT NULL CHECK (price >= 0),
		stock       INTEGER NOT NULL CHECK (stock >= 0),
		sizes       TEXT[] NOT NULL DEFAULT '{}',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS promo_codes (
		id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		code            VARCHAR(255) NOT NULL UNIQUE,
		discount_amount BIGINT NOT NULL CHECK (discount_amount >= 0),
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS product_transactions (
		booking_trx_id     VARCHAR(64) NOT NULL,
		external_id        VARCHAR(255),
		name               VARCHAR(255) NOT NULL,
		email              VARCHAR(255) NOT NULL,
		phone              VARCHAR(32) NOT NULL,
		address            TEXT NOT NULL,
		city               VARCHAR(255) NOT NULL,
		post_code          VARCHAR(16) NOT NULL,
		product_id         UUID NOT NULL REFERENCES products(id),
		product_size       VARCHAR(32) NOT NULL DEFAULT '',
		quantity           INTEGER NOT NULL CHECK (quantity > 0),
		promo_code_id      UUID REFERENCES promo_codes(id),
		promo_code         VARCHAR(255) NOT NULL DEFAULT '',
		discount_amount    BIGINT NOT NULL DEFAULT 0,
		unit_price         BIGINT NOT NULL,
		sub_total_amount   BIGINT NOT NULL,
		grand_total_amount BIGINT NOT NULL CHECK (grand_total_amount >= 0),
		proof              TEXT NOT NULL DEFAULT '',
		is_paid            BOOLEAN NOT NULL DEFAULT false,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at         TIMESTAMPTZ,
		CONSTRAINT product_transactions_booking_trx_id_key UNIQUE (booking_trx_id),
		CONSTRAINT product_transactions_external_id_key UNIQUE (external_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_product_transactions_created_at ON product_transactions(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_product_transactions_is_paid ON product_transactions(is_paid)`,

	`CREATE TABLE IF NOT EXISTS reconciliation_incidents (
		event_id    UUID PRIMARY KEY,
		product_id  UUID NOT NULL,
		quantity    INTEGER NOT NULL,
		reason      TEXT NOT NULL,
		status      VARCHAR(16) NOT NULL DEFAULT 'OPEN',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for i, m := range migrations {
		if _, err := db.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

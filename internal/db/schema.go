package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema applies the schema idempotently at startup. Statements
// only ever add; destructive changes are done by hand.
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

	`CREATE TABLE IF NOT EXISTS users (
		id                      UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		email                   TEXT NOT NULL UNIQUE,
		password_hash           TEXT NOT NULL,
		name                    TEXT NOT NULL,
		role                    TEXT NOT NULL DEFAULT 'user',
		two_factor_enabled      BOOLEAN NOT NULL DEFAULT FALSE,
		two_factor_secret       TEXT NOT NULL DEFAULT '',
		two_factor_backup_codes TEXT[] NOT NULL DEFAULT '{}',
		referral_code           TEXT NOT NULL DEFAULT '',
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS users_referral_code_idx
		ON users (referral_code) WHERE referral_code <> ''`,

	`CREATE TABLE IF NOT EXISTS jobs (
		id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		type            TEXT NOT NULL,
		payload         JSONB NOT NULL,
		status          TEXT NOT NULL DEFAULT 'pending',
		run_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		attempts        INT NOT NULL DEFAULT 0,
		max_attempts    INT NOT NULL DEFAULT 10,
		last_error      TEXT,
		locked_by       TEXT,
		locked_at       TIMESTAMPTZ,
		idempotency_key TEXT UNIQUE,
		user_id         UUID REFERENCES users(id) ON DELETE SET NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS jobs_claim_idx
		ON jobs (status, run_at) WHERE status = 'pending'`,

	`CREATE TABLE IF NOT EXISTS referrals (
		id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		referrer_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		referred_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		referred_email TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL DEFAULT 'credited',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (referrer_id, referred_id)
	)`,
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

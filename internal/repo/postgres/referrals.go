package postgres

import (
	"context"
	"errors"

	"github.com/evanio/evanio/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrReferralCodeNotFound = errors.New("referral code not found")

type ReferralsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewReferralsRepo(pool *pgxpool.Pool, prom *observability.Prom) *ReferralsRepo {
	return &ReferralsRepo{pool: pool, prom: prom}
}

func (r *ReferralsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Attribute credits the owner of code for referredUserID's signup.
// Idempotent on (referrer, referred) so a retried job never
// double-credits.
func (r *ReferralsRepo) Attribute(ctx context.Context, referredUserID, referredEmail, code string) error {
	var referrerID string

	err := r.observe("referrals.resolve_code", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT id FROM users WHERE referral_code = $1`,
			code,
		).Scan(&referrerID)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrReferralCodeNotFound
		}
		return err
	}

	// self-referral is a no-op, not an error
	if referrerID == referredUserID {
		return nil
	}

	return r.observe("referrals.credit", func() error {
		_, err := r.pool.Exec(ctx, `
		INSERT INTO referrals (id, referrer_id, referred_id, referred_email, status)
		VALUES ($1, $2, $3, $4, 'credited')
		ON CONFLICT (referrer_id, referred_id) DO NOTHING
	`, uuid.NewString(), referrerID, referredUserID, referredEmail)
		return err
	})
}

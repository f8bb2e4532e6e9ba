package postgres

import (
	"context"
	"errors"

	"github.com/evanio/evanio/internal/domain/user"
	"github.com/evanio/evanio/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailAlreadyUsed = errors.New("email already used")
	// the backup code was not in the unused set (already consumed or
	// never issued)
	ErrBackupCodeSpent = errors.New("backup code not available")
)

const userColumns = `id, email, password_hash, name, role,
       two_factor_enabled, two_factor_secret, two_factor_backup_codes,
       referral_code, created_at, updated_at`

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return false
}

type CreateUserRequest struct {
	Email        string // already normalized by the caller
	PasswordHash string
	Name         string
	Role         string
}

func (r *UsersRepo) Create(ctx context.Context, req CreateUserRequest) (user.User, error) {
	u := user.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: req.PasswordHash,
		Name:         req.Name,
		Role:         req.Role,
	}

	op := "users.create"

	err := r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, name, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, u.ID, u.Email, u.PasswordHash, u.Name, u.Role).Scan(&u.CreatedAt, &u.UpdatedAt)
	})

	if err != nil {
		if IsUniqueViolation(err) {
			return user.User{}, ErrEmailAlreadyUsed
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_email", `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1`, email)
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_id", `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1`, id)
}

func (r *UsersRepo) getOne(ctx context.Context, op, query string, arg any) (user.User, error) {
	var u user.User
	var secret *string

	err := r.observe(op, func() error {
		return r.pool.QueryRow(ctx, query, arg).Scan(
			&u.ID,
			&u.Email,
			&u.PasswordHash,
			&u.Name,
			&u.Role,
			&u.TwoFactorEnabled,
			&secret,
			&u.TwoFactorBackupCodes,
			&u.ReferralCode,
			&u.CreatedAt,
			&u.UpdatedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, ErrUserNotFound
		}

		return user.User{}, err
	}

	if secret != nil {
		u.TwoFactorSecret = *secret
	}

	return u, nil
}

func (r *UsersRepo) CountAll(ctx context.Context) (int, error) {
	var n int

	err := r.observe("users.count_all", func() error {
		return r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	})

	if err != nil {
		return 0, err
	}

	return n, nil
}

func (r *UsersRepo) AdminExists(ctx context.Context) (bool, error) {
	var exists bool

	err := r.observe("users.admin_exists", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE role = $1)`,
			user.RoleAdmin,
		).Scan(&exists)
	})

	if err != nil {
		return false, err
	}

	return exists, nil
}

// ConsumeBackupCode removes one backup code from the user's unused set
// in a single conditional update. Zero rows affected means the code was
// already spent; two logins racing on the same code cannot both win.
func (r *UsersRepo) ConsumeBackupCode(ctx context.Context, userID, code string) error {
	var tag pgconn.CommandTag
	var err error

	op := "users.consume_backup_code"

	err = r.observe(op, func() error {
		tag, err = r.pool.Exec(ctx, `
		UPDATE users
		SET two_factor_backup_codes = array_remove(two_factor_backup_codes, $2),
		    updated_at = NOW()
		WHERE id = $1
		  AND $2 = ANY(two_factor_backup_codes)
	`, userID, code)
		return err
	})

	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrBackupCodeSpent
	}

	return nil
}

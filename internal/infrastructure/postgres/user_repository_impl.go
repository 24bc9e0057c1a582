package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oksasatya/go-signup-flow/internal/domain/entity"
	"github.com/oksasatya/go-signup-flow/internal/domain/repository"
	"github.com/oksasatya/go-signup-flow/pkg/helpers"
)

var (
	errNotFound     = errors.New("not found")
	errUnknownField = errors.New("unknown lookup field")
)

const userColumns = `id::text, COALESCE(name, ''), COALESCE(email, ''), password_hash, account_invalid, account_locked,
	email_verified, email_verified_at, signup_token, signup_token_expires, phone_number, phone_verified,
	created_at, updated_at`

// columns maps lookup fields to SQL columns; only whitelisted names reach the query.
var columns = map[repository.Field]string{
	repository.FieldEmail:       "email",
	repository.FieldName:        "name",
	repository.FieldSignupToken: "signup_token",
}

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Find(ctx context.Context, field repository.Field, value string) (*entity.User, error) {
	col, ok := columns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownField, field)
	}
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+col+` = $1`, value)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by %s: %w", field, err)
	}
	return u, nil
}

// Save inserts a pending account; the password is stored as a bcrypt hash.
func (r *UserRepository) Save(ctx context.Context, name, email, password string) (*entity.User, error) {
	hash, err := helpers.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns, nullable(name), nullable(email), hash)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("save user: %w", duplicate(err))
	}
	return u, nil
}

func (r *UserRepository) Update(ctx context.Context, u *entity.User) error {
	u.UpdatedAt = time.Now()

	res, err := r.pool.Exec(ctx, `
		UPDATE users
		SET name = $1, email = $2, account_invalid = $3, account_locked = $4,
		    email_verified = $5, email_verified_at = $6, signup_token = $7, signup_token_expires = $8,
		    phone_number = $9, phone_verified = $10, updated_at = $11
		WHERE id = $12
	`, nullable(u.Name), nullable(u.Email), u.AccountInvalid, u.AccountLocked,
		u.EmailVerified, u.EmailVerificationTimestamp, u.SignupToken, u.SignupTokenExpires,
		u.PhoneNumber, u.PhoneVerified, u.UpdatedAt, u.ID)
	if err != nil {
		return fmt.Errorf("update user %s: %w", u.ID, duplicate(err))
	}

	if res.RowsAffected() == 0 {
		return errNotFound
	}

	return nil
}

const uniqueViolation = "23505"

// duplicate turns a unique violation into repository.ErrDuplicate, keeping the pg error in the chain.
func duplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return errors.Join(repository.ErrDuplicate, err)
	}
	return err
}

func scanUser(row pgx.Row) (*entity.User, error) {
	u := &entity.User{}
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.AccountInvalid, &u.AccountLocked,
		&u.EmailVerified, &u.EmailVerificationTimestamp, &u.SignupToken, &u.SignupTokenExpires,
		&u.PhoneNumber, &u.PhoneVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// nullable keeps empty optional identifiers out of the unique indexes.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ repository.UserStore = (*UserRepository)(nil)

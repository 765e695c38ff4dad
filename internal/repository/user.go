package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/smart-inventory/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateProfile(ctx context.Context, user *model.User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	SetRole(ctx context.Context, id uuid.UUID, role string) error
	ConfirmEmail(ctx context.Context, id uuid.UUID) error
}

type pgUserRepo struct{ pool *pgxpool.Pool }

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &pgUserRepo{pool: pool}
}

const userColumns = `id, email, password_hash, full_name, address, pronouns, date_of_birth,
	security_question, security_answer, role, email_confirmed, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Email, &user.Password, &user.FullName, &user.Address, &user.Pronouns,
		&user.DateOfBirth, &user.SecurityQuestion, &user.SecurityAnswer, &user.Role,
		&user.EmailConfirmed, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *pgUserRepo) Create(ctx context.Context, user *model.User) error {
	user.ID = uuid.New()
	query := `INSERT INTO users (id, email, password_hash, full_name, address, pronouns, date_of_birth,
			  security_question, security_answer, role, email_confirmed, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
			  RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		user.ID, user.Email, user.Password, user.FullName, user.Address, user.Pronouns, user.DateOfBirth,
		user.SecurityQuestion, user.SecurityAnswer, user.Role, user.EmailConfirmed,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *pgUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (r *pgUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *pgUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE users SET full_name = $2, address = $3, pronouns = $4, date_of_birth = $5, updated_at = NOW()
		 WHERE id = $1 RETURNING updated_at`,
		user.ID, user.FullName, user.Address, user.Pronouns, user.DateOfBirth,
	).Scan(&user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (r *pgUserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return r.exec(ctx, "update password",
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
}

func (r *pgUserRepo) SetRole(ctx context.Context, id uuid.UUID, role string) error {
	return r.exec(ctx, "set role",
		`UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id, role)
}

func (r *pgUserRepo) ConfirmEmail(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "confirm email",
		`UPDATE users SET email_confirmed = TRUE, updated_at = NOW() WHERE id = $1`, id)
}

func (r *pgUserRepo) exec(ctx context.Context, op, query string, args ...any) error {
	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

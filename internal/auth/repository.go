package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository is the credential store. It is the only writer of user rows;
// uniqueness of username and email is enforced by the schema, not by a
// check-then-insert.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, input NewUser) (User, error) {
	now := time.Now().UTC()
	user := User{
		Username:     input.Username,
		Email:        input.Email,
		Name:         input.Name,
		LastName:     input.LastName,
		PasswordHash: input.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, name, last_name, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`, user.Username, user.Email, user.Name, user.LastName, user.PasswordHash, now).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrConflict
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

func (r *Repository) GetByUsername(ctx context.Context, username string) (User, error) {
	return r.getUser(ctx, `
		SELECT id, username, email, name, last_name, password_hash, created_at, updated_at
		FROM users
		WHERE username = $1
	`, username)
}

func (r *Repository) GetByID(ctx context.Context, id int64) (User, error) {
	return r.getUser(ctx, `
		SELECT id, username, email, name, last_name, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
}

func (r *Repository) getUser(ctx context.Context, query string, arg any) (User, error) {
	var user User
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.Email, &user.Name, &user.LastName,
		&user.PasswordHash, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}

	return user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

package movie

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// List returns every movie, newest first. The feed is intentionally global;
// there is no private/shared visibility distinction.
func (r *Repository) List(ctx context.Context) ([]Movie, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, director, owner_id, created_at, updated_at
		FROM movies
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query movies: %w", err)
	}
	defer rows.Close()

	movies := make([]Movie, 0)
	for rows.Next() {
		var m Movie
		if err := rows.Scan(&m.ID, &m.Title, &m.Director, &m.OwnerID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan movie: %w", err)
		}
		movies = append(movies, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movies: %w", err)
	}

	return movies, nil
}

// Create inserts a movie owned by the caller. Ownership is fixed at creation;
// there is no transfer operation.
func (r *Repository) Create(ctx context.Context, ownerID int64, input MovieInput) (Movie, error) {
	now := time.Now().UTC()
	m := Movie{
		Title:     input.Title,
		Director:  input.Director,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO movies (title, director, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id
	`, m.Title, m.Director, m.OwnerID, now).Scan(&m.ID)
	if err != nil {
		return Movie{}, fmt.Errorf("insert movie: %w", err)
	}

	return m, nil
}

// Get returns a single movie if the caller owns it.
func (r *Repository) Get(ctx context.Context, id, callerID int64) (Movie, error) {
	var m Movie
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, director, owner_id, created_at, updated_at
		FROM movies
		WHERE id = $1
	`, id).Scan(&m.ID, &m.Title, &m.Director, &m.OwnerID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Movie{}, ErrNotFound
		}
		return Movie{}, fmt.Errorf("query movie: %w", err)
	}

	if m.OwnerID != callerID {
		return Movie{}, ErrForbidden
	}

	return m, nil
}

// Update rewrites title and director if the caller owns the movie. The owner
// check and the write happen in one transaction over a locked row, so the
// check cannot go stale before the write.
func (r *Repository) Update(ctx context.Context, id, callerID int64, input MovieInput) (Movie, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Movie{}, fmt.Errorf("begin movie update tx: %w", err)
	}
	defer tx.Rollback()

	if err := lockOwnedRow(ctx, tx, id, callerID); err != nil {
		return Movie{}, err
	}

	var m Movie
	err = tx.QueryRowContext(ctx, `
		UPDATE movies
		SET title = $2, director = $3, updated_at = $4
		WHERE id = $1
		RETURNING id, title, director, owner_id, created_at, updated_at
	`, id, input.Title, input.Director, time.Now().UTC()).
		Scan(&m.ID, &m.Title, &m.Director, &m.OwnerID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return Movie{}, fmt.Errorf("update movie: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Movie{}, fmt.Errorf("commit movie update tx: %w", err)
	}

	return m, nil
}

// Delete removes the movie if the caller owns it.
func (r *Repository) Delete(ctx context.Context, id, callerID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin movie delete tx: %w", err)
	}
	defer tx.Rollback()

	if err := lockOwnedRow(ctx, tx, id, callerID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM movies WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete movie: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit movie delete tx: %w", err)
	}

	return nil
}

func lockOwnedRow(ctx context.Context, tx *sql.Tx, id, callerID int64) error {
	var ownerID int64
	err := tx.QueryRowContext(ctx, `
		SELECT owner_id
		FROM movies
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock movie row: %w", err)
	}

	if ownerID != callerID {
		return ErrForbidden
	}

	return nil
}

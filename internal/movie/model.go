package movie

import (
	"errors"
	"time"
)

type Movie struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Director  string    `json:"director"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type MovieInput struct {
	Title    string `json:"title"`
	Director string `json:"director"`
}

var (
	ErrNotFound = errors.New("movie not found")

	// ErrForbidden means the movie exists but belongs to another user. Every
	// per-record operation checks the caller against the row's owner.
	ErrForbidden = errors.New("movie belongs to another user")
)

package movie

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"

	"filmlog/internal/auth"
)

const maxJSONBodyBytes = 1 << 20

// Store is the movie persistence surface. *Repository satisfies it; handler
// tests substitute an in-memory fake.
type Store interface {
	List(ctx context.Context) ([]Movie, error)
	Create(ctx context.Context, ownerID int64, input MovieInput) (Movie, error)
	Get(ctx context.Context, id, callerID int64) (Movie, error)
	Update(ctx context.Context, id, callerID int64, input MovieInput) (Movie, error)
	Delete(ctx context.Context, id, callerID int64) error
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// ListMovies is the global feed; it is the only movie read that is not
// owner-scoped.
func (h *Handler) ListMovies(w http.ResponseWriter, r *http.Request) {
	movies, err := h.store.List(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list movies")
		return
	}

	writeJSON(w, http.StatusOK, movies)
}

func (h *Handler) CreateMovie(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "could not validate credentials")
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	m, err := h.store.Create(r.Context(), user.ID, input)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create movie")
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) GetMovie(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}

	m, err := h.store.Get(r.Context(), id, user.ID)
	if err != nil {
		writeStoreError(w, err, "failed to load movie")
		return
	}

	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) UpdateMovie(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}

	input, ok := parseInput(w, r)
	if !ok {
		return
	}

	m, err := h.store.Update(r.Context(), id, user.ID, input)
	if err != nil {
		writeStoreError(w, err, "failed to update movie")
		return
	}

	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) DeleteMovie(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id, user.ID); err != nil {
		writeStoreError(w, err, "failed to delete movie")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func callerAndID(w http.ResponseWriter, r *http.Request) (auth.User, int64, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "could not validate credentials")
		return auth.User{}, 0, false
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid movie id")
		return auth.User{}, 0, false
	}

	return user, id, true
}

func parseInput(w http.ResponseWriter, r *http.Request) (MovieInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var input MovieInput
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return MovieInput{}, false
	}

	input.Title = strings.TrimSpace(input.Title)
	input.Director = strings.TrimSpace(input.Director)

	if !ValidInput(input) {
		writeError(w, http.StatusBadRequest, "title is required; title and director are limited to 150 characters")
		return MovieInput{}, false
	}

	return input, true
}

// ValidInput checks the field constraints shared by the JSON API and the
// HTML form handlers. Director may be empty.
func ValidInput(input MovieInput) bool {
	if input.Title == "" || !utf8.ValidString(input.Title) || utf8.RuneCountInString(input.Title) > 150 {
		return false
	}
	if !utf8.ValidString(input.Director) || utf8.RuneCountInString(input.Director) > 150 {
		return false
	}
	return true
}

func writeStoreError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "movie not found")
	case errors.Is(err, ErrForbidden):
		writeError(w, http.StatusForbidden, "movie belongs to another user")
	default:
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

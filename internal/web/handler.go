package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"

	"filmlog/internal/auth"
	"filmlog/internal/movie"
	"filmlog/internal/observability"
)

//go:embed templates/*.html templates/partials/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// TokenIssuer is the slice of the auth service the browser login form needs.
type TokenIssuer interface {
	IssueToken(ctx context.Context, username, password string) (auth.Token, error)
}

// Handler serves the server-rendered pages and the htmx fragments that swap
// into them. Every fragment route renders through the same template set.
type Handler struct {
	issuer        TokenIssuer
	movies        movie.Store
	logger        *observability.Logger
	templates     *template.Template
	secureCookies bool
}

type pageData struct {
	Films []movie.Movie
	Error string
}

// NewHandler parses the embedded templates once. secureCookies marks the
// token cookie Secure; only non-TLS development setups should turn it off.
func NewHandler(issuer TokenIssuer, movies movie.Store, logger *observability.Logger, secureCookies bool) (*Handler, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html", "templates/partials/*.html")
	if err != nil {
		return nil, err
	}

	return &Handler{
		issuer:        issuer,
		movies:        movies,
		logger:        logger,
		templates:     templates,
		secureCookies: secureCookies,
	}, nil
}

// StaticHandler serves the embedded assets under /static/.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServerFS(sub))
}

// Home renders the movie list. An HX-Request header means htmx is polling for
// the table fragment only; otherwise the full page is returned.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	films, err := h.movies.List(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		http.Error(w, "failed to load movies", http.StatusInternalServerError)
		return
	}

	name := "index.html"
	if r.Header.Get("HX-Request") != "" {
		name = "table.html"
	}
	h.render(w, name, pageData{Films: films})
}

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "login.html", pageData{})
}

// Login handles the browser login form. On success the token is stored in an
// HTTP-only cookie; the rendered fragment never shows which field was wrong.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	username := strings.ToLower(strings.TrimSpace(r.PostFormValue("username")))
	password := r.PostFormValue("password")

	token, err := h.issuer.IssueToken(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			// htmx swaps only 2xx responses into the target, so the uniform
			// failure message must ship with 200 for the fragment to display.
			h.render(w, "token.html", pageData{Error: "Incorrect username or password"})
			return
		}
		sentry.CaptureException(err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.TokenCookieName,
		Value:    token.AccessToken,
		Path:     "/",
		MaxAge:   int(token.ExpiresIn),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	h.render(w, "token.html", pageData{})
}

// AddFilm creates a movie owned by the caller and returns its table row.
func (h *Handler) AddFilm(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	input, ok := formInput(w, r)
	if !ok {
		return
	}

	m, err := h.movies.Create(r.Context(), user.ID, input)
	if err != nil {
		sentry.CaptureException(err)
		http.Error(w, "failed to add film", http.StatusInternalServerError)
		return
	}

	h.render(w, "table.html", pageData{Films: []movie.Movie{m}})
}

func (h *Handler) MovieRow(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	h.render(w, "table.html", pageData{Films: []movie.Movie{m}})
}

func (h *Handler) EditRow(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	h.render(w, "table_edit.html", pageData{Films: []movie.Movie{m}})
}

func (h *Handler) UpdateRow(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}

	input, ok := formInput(w, r)
	if !ok {
		return
	}

	m, err := h.movies.Update(r.Context(), id, user.ID, input)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	h.render(w, "table.html", pageData{Films: []movie.Movie{m}})
}

func (h *Handler) DeleteRow(w http.ResponseWriter, r *http.Request) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return
	}

	if err := h.movies.Delete(r.Context(), id, user.ID); err != nil {
		h.writeStoreError(w, err)
		return
	}

	// Empty fragment swaps the row out of the table.
	h.render(w, "table_edit.html", pageData{})
}

func (h *Handler) loadOwned(w http.ResponseWriter, r *http.Request) (movie.Movie, bool) {
	user, id, ok := callerAndID(w, r)
	if !ok {
		return movie.Movie{}, false
	}

	m, err := h.movies.Get(r.Context(), id, user.ID)
	if err != nil {
		h.writeStoreError(w, err)
		return movie.Movie{}, false
	}

	return m, true
}

func callerAndID(w http.ResponseWriter, r *http.Request) (auth.User, int64, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return auth.User{}, 0, false
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid movie id", http.StatusBadRequest)
		return auth.User{}, 0, false
	}

	return user, id, true
}

func formInput(w http.ResponseWriter, r *http.Request) (movie.MovieInput, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return movie.MovieInput{}, false
	}

	input := movie.MovieInput{
		Title:    strings.TrimSpace(r.PostFormValue("title")),
		Director: strings.TrimSpace(r.PostFormValue("director")),
	}
	if !movie.ValidInput(input) {
		http.Error(w, "title is required; title and director are limited to 150 characters", http.StatusBadRequest)
		return movie.MovieInput{}, false
	}

	return input, true
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, movie.ErrNotFound):
		http.Error(w, "movie not found", http.StatusNotFound)
	case errors.Is(err, movie.ErrForbidden):
		http.Error(w, "movie belongs to another user", http.StatusForbidden)
	default:
		sentry.CaptureException(err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) render(w http.ResponseWriter, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		sentry.CaptureException(err)
		h.logger.Error("template_render_failed", map[string]any{"template": name, "error": err.Error()})
	}
}

package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/getsentry/sentry-go"
)

var usernameRegex = regexp.MustCompile(`^[a-z0-9_.-]{3,32}$`)
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	LastName string `json:"lastname"`
	Password string `json:"password"`
}

// Register handles POST /api/users. The response carries the created
// identity; the password hash is never serialized.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body registerRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	body.Username = strings.ToLower(strings.TrimSpace(body.Username))
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	body.Name = strings.TrimSpace(body.Name)
	body.LastName = strings.TrimSpace(body.LastName)

	if !usernameRegex.MatchString(body.Username) {
		writeError(w, http.StatusBadRequest, "username format is invalid")
		return
	}
	if !emailRegex.MatchString(body.Email) || len(body.Email) > 254 {
		writeError(w, http.StatusBadRequest, "email format is invalid")
		return
	}
	// bcrypt rejects inputs longer than 72 bytes.
	if len(body.Password) < 8 || len(body.Password) > 72 {
		writeError(w, http.StatusBadRequest, "password must be between 8 and 72 characters")
		return
	}

	user, err := h.service.Register(r.Context(), body.Username, body.Email, body.Name, body.LastName, body.Password)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			writeError(w, http.StatusConflict, "username or email already registered")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// IssueToken handles POST /api/token. It accepts either a JSON body or an
// OAuth2-style form ("username" and "password" fields); both produce the same
// bearer token. Failures are uniform so callers cannot tell a bad username
// from a bad password.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	username, password, ok := credentialsFromRequest(w, r)
	if !ok {
		return
	}

	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	token, err := h.service.IssueToken(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "Incorrect username or password")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, token)
}

// Me handles GET /api/users/me, returning the identity resolved by the
// session middleware.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "could not validate credentials")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func credentialsFromRequest(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return "", "", false
		}
		return strings.ToLower(strings.TrimSpace(r.PostFormValue("username"))),
			r.PostFormValue("password"), true
	}

	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return "", "", false
	}

	return strings.ToLower(strings.TrimSpace(body.Username)), body.Password, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

package auth

import (
	"context"
	"net/http"
	"strings"
)

// TokenCookieName is the HTTP-only cookie the browser UI stores its access
// token in. The cookie and the Authorization header carry the same token and
// decode through the same codec.
const TokenCookieName = "access_token"

// IdentityResolver is what the middleware needs from the auth service.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (User, error)
}

type contextKey struct{}

var userContextKey contextKey

// CurrentUser returns the identity placed in the context by the middleware.
func CurrentUser(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userContextKey).(User)
	return user, ok
}

// WithUser is exported for handler tests.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// TokenFromRequest extracts the bearer token from the Authorization header,
// falling back to the token cookie. Empty string means no token presented.
func TokenFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}

	cookie, err := r.Cookie(TokenCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

// Middleware gates API routes. Any session failure collapses to a uniform
// 401; the specific cause is logged by the resolver, not revealed here.
func Middleware(resolver IdentityResolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := resolveRequest(resolver, r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "could not validate credentials")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// WebMiddleware gates browser routes: unauthenticated requests are redirected
// to the login page instead of receiving a JSON 401.
func WebMiddleware(resolver IdentityResolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := resolveRequest(resolver, r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func resolveRequest(resolver IdentityResolver, r *http.Request) (User, bool) {
	token := TokenFromRequest(r)
	if token == "" {
		return User{}, false
	}

	user, err := resolver.Resolve(r.Context(), token)
	if err != nil {
		return User{}, false
	}

	return user, true
}

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func setupResolver(t *testing.T) (*Service, Token) {
	t.Helper()

	store := newFakeUserStore()
	service := newTestService(store)
	ctx := context.Background()

	_, err := service.Register(ctx, "alice", "alice@x.com", "Alice", "Smith", "pw123secret")
	require.NoError(t, err)

	token, err := service.IssueToken(ctx, "alice", "pw123secret")
	require.NoError(t, err)

	return service, token
}

func identityEcho(t *testing.T, captured *User) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := CurrentUser(r.Context())
		require.True(t, ok)
		*captured = user
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareBearerAndCookieDecodeIdentically(t *testing.T) {
	t.Parallel()

	service, token := setupResolver(t)

	var viaHeader, viaCookie User

	headerReq := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	headerReq.Header.Set("Authorization", "Bearer "+token.AccessToken)
	rec := httptest.NewRecorder()
	Middleware(service, identityEcho(t, &viaHeader)).ServeHTTP(rec, headerReq)
	require.Equal(t, http.StatusOK, rec.Code)

	cookieReq := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	cookieReq.AddCookie(&http.Cookie{Name: TokenCookieName, Value: token.AccessToken})
	rec = httptest.NewRecorder()
	Middleware(service, identityEcho(t, &viaCookie)).ServeHTTP(rec, cookieReq)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, viaHeader, viaCookie)
	require.Equal(t, "alice", viaHeader.Username)
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	t.Parallel()

	service, token := setupResolver(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run for an unauthenticated request")
	})

	cases := map[string]func(r *http.Request){
		"no token":        func(r *http.Request) {},
		"truncated token": func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token.AccessToken[:20]) },
		"wrong scheme":    func(r *http.Request) { r.Header.Set("Authorization", "Basic "+token.AccessToken) },
	}

	for name, arrange := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
			arrange(req)
			rec := httptest.NewRecorder()
			Middleware(service, next).ServeHTTP(rec, req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestWebMiddlewareRedirectsToLogin(t *testing.T) {
	t.Parallel()

	service, _ := setupResolver(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not run for an unauthenticated request")
	})

	req := httptest.NewRequest(http.MethodPost, "/add-film", nil)
	rec := httptest.NewRecorder()
	WebMiddleware(service, next).ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/login", rec.Header().Get("Location"))
}

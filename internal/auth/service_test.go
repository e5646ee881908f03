package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"filmlog/internal/observability"
)

// fakeUserStore is an in-memory UserStore that enforces the same uniqueness
// rules the database schema does.
type fakeUserStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]User)}
}

func (s *fakeUserStore) CreateUser(_ context.Context, input NewUser) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == input.Username || existing.Email == input.Email {
			return User{}, ErrConflict
		}
	}

	s.nextID++
	now := time.Now().UTC()
	user := User{
		ID:           s.nextID,
		Username:     input.Username,
		Email:        input.Email,
		Name:         input.Name,
		LastName:     input.LastName,
		PasswordHash: input.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[user.Username] = user
	return user, nil
}

func (s *fakeUserStore) GetByUsername(_ context.Context, username string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return User{}, sql.ErrNoRows
	}
	return user, nil
}

func (s *fakeUserStore) GetByID(_ context.Context, id int64) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.ID == id {
			return user, nil
		}
	}
	return User{}, sql.ErrNoRows
}

func (s *fakeUserStore) delete(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, username)
}

func newTestService(store UserStore) *Service {
	codec := NewTokenCodec(testSecret, time.Hour)
	return NewService(store, codec, observability.NewLogger())
}

func TestRegisterAndAuthenticate(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	service := newTestService(store)
	ctx := context.Background()

	user, err := service.Register(ctx, "alice", "alice@x.com", "Alice", "Smith", "pw123secret")
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)
	require.NotEmpty(t, user.PasswordHash)
	require.NotEqual(t, "pw123secret", user.PasswordHash)

	authenticated, err := service.Authenticate(ctx, "alice", "pw123secret")
	require.NoError(t, err)
	require.Equal(t, user.ID, authenticated.ID)
}

func TestRegisterConflict(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	service := newTestService(store)
	ctx := context.Background()

	_, err := service.Register(ctx, "alice", "alice@x.com", "Alice", "Smith", "pw123secret")
	require.NoError(t, err)

	_, err = service.Register(ctx, "alice", "other@x.com", "Other", "Person", "pw456secret")
	require.ErrorIs(t, err, ErrConflict)

	_, err = service.Register(ctx, "other", "alice@x.com", "Other", "Person", "pw456secret")
	require.ErrorIs(t, err, ErrConflict)
}

func TestRegisterConcurrentSameUsername(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	service := newTestService(store)
	ctx := context.Background()

	results := make(chan error, 2)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(email string) {
			defer wg.Done()
			<-start
			_, err := service.Register(ctx, "alice", email, "Alice", "Smith", "pw123secret")
			results <- err
		}(fmt.Sprintf("alice%d@x.com", i))
	}
	close(start)
	wg.Wait()
	close(results)

	var succeeded, conflicted int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrConflict):
			conflicted++
		default:
			t.Fatalf("unexpected register error: %v", err)
		}
	}

	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, conflicted)
}

func TestAuthenticateUniformFailure(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	service := newTestService(store)
	ctx := context.Background()

	_, err := service.Register(ctx, "alice", "alice@x.com", "Alice", "Smith", "pw123secret")
	require.NoError(t, err)

	_, wrongPassword := service.Authenticate(ctx, "alice", "not-the-password")
	_, unknownUser := service.Authenticate(ctx, "nobody", "whatever")

	require.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	require.ErrorIs(t, unknownUser, ErrInvalidCredentials)
	require.Equal(t, wrongPassword, unknownUser)
}

func TestIssueTokenAndResolve(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	service := newTestService(store)
	ctx := context.Background()

	registered, err := service.Register(ctx, "alice", "alice@x.com", "Alice", "Smith", "pw123secret")
	require.NoError(t, err)

	token, err := service.IssueToken(ctx, "alice", "pw123secret")
	require.NoError(t, err)
	require.Equal(t, "bearer", token.TokenType)
	require.Positive(t, token.ExpiresIn)

	resolved, err := service.Resolve(ctx, token.AccessToken)
	require.NoError(t, err)
	require.Equal(t, registered.ID, resolved.ID)
}

func TestResolveDeletedUser(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	service := newTestService(store)
	ctx := context.Background()

	_, err := service.Register(ctx, "alice", "alice@x.com", "Alice", "Smith", "pw123secret")
	require.NoError(t, err)

	token, err := service.IssueToken(ctx, "alice", "pw123secret")
	require.NoError(t, err)

	store.delete("alice")

	_, err = service.Resolve(ctx, token.AccessToken)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestResolveRejectsBadTokens(t *testing.T) {
	t.Parallel()

	store := newFakeUserStore()
	service := newTestService(store)
	ctx := context.Background()

	_, err := service.Resolve(ctx, "not-a-token")
	require.ErrorIs(t, err, ErrClaimsMalformed)

	foreign, _, err := NewTokenCodec("another-secret", time.Hour).Encode("alice")
	require.NoError(t, err)

	_, err = service.Resolve(ctx, foreign)
	require.ErrorIs(t, err, ErrSignatureInvalid)
}

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"filmlog/internal/observability"
)

// UserStore is the credential-store surface the service needs. *Repository
// satisfies it; tests substitute an in-memory fake.
type UserStore interface {
	CreateUser(ctx context.Context, input NewUser) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)
}

// dummyHash is compared against when the username does not exist so the
// unknown-user and wrong-password paths take comparable time.
var dummyHash = func() string {
	hash, err := bcrypt.GenerateFromPassword([]byte("filmlog.no-such-user"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}()

// Service authenticates credentials and resolves bearer tokens back to users.
// The canonical account identifier is the username: logins key on it and it
// is the token subject. Email is unique but never used for lookup.
type Service struct {
	store  UserStore
	codec  *TokenCodec
	logger *observability.Logger
}

func NewService(store UserStore, codec *TokenCodec, logger *observability.Logger) *Service {
	return &Service{store: store, codec: codec, logger: logger}
}

// Register hashes the password and creates the user. A duplicate username or
// email surfaces as ErrConflict from the store's uniqueness constraints.
func (s *Service) Register(ctx context.Context, username, email, name, lastName, password string) (User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}

	user, err := s.store.CreateUser(ctx, NewUser{
		Username:     username,
		Email:        email,
		Name:         name,
		LastName:     lastName,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return User{}, ErrConflict
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// Authenticate verifies the username+password pair. Unknown username and
// wrong password both return ErrInvalidCredentials; the distinction is only
// logged server-side.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	user, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_, _ = VerifyPassword(password, dummyHash)
			s.logger.Warn("auth_failed", map[string]any{"reason": "unknown_username"})
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}

	ok, verr := VerifyPassword(password, user.PasswordHash)
	if verr != nil {
		s.logger.Warn("auth_failed", map[string]any{"reason": "malformed_stored_hash", "user_id": user.ID})
		return User{}, ErrInvalidCredentials
	}
	if !ok {
		s.logger.Warn("auth_failed", map[string]any{"reason": "password_mismatch", "user_id": user.ID})
		return User{}, ErrInvalidCredentials
	}

	return user, nil
}

// IssueToken authenticates and mints a bearer token for the user.
func (s *Service) IssueToken(ctx context.Context, username, password string) (Token, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return Token{}, err
	}

	encoded, expiresIn, err := s.codec.Encode(user.Username)
	if err != nil {
		return Token{}, fmt.Errorf("encode token: %w", err)
	}

	return Token{
		AccessToken: encoded,
		TokenType:   "bearer",
		ExpiresIn:   expiresIn,
	}, nil
}

// Resolve validates a token and re-resolves its subject against the store.
// Both steps are mandatory: a verified token for a deleted account must not
// authenticate, so embedded claims are never trusted on their own.
func (s *Service) Resolve(ctx context.Context, token string) (User, error) {
	subject, err := s.codec.Decode(token)
	if err != nil {
		s.logger.Warn("session_rejected", map[string]any{"reason": err.Error()})
		return User{}, err
	}

	user, err := s.store.GetByUsername(ctx, subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("session_rejected", map[string]any{"reason": "subject_not_found"})
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}

	return user, nil
}

// Package authpw provides username/password signup and verification.
package authpw

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"jotter/api/internal/store"
)

// PBKDF2 parameters for the stored password verifier. Changing them
// invalidates every existing verifier.
const (
	hashIterations = 100
	hashKeyLength  = 32
	saltLength     = 16
)

var (
	ErrEmptyPassword     = errors.New("password cannot be empty")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrUserNotFound      = errors.New("user not found")
	ErrIncorrectPassword = errors.New("incorrect password")
)

// UserStore is the identity storage the service depends on.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
}

type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// SignUp creates a new user with a salted PBKDF2 verifier. The plaintext
// password is never stored.
func (s *Service) SignUp(ctx context.Context, username, password string) (store.User, error) {
	if password == "" {
		return store.User{}, ErrEmptyPassword
	}
	if username == "" {
		return store.User{}, errors.New("username is required")
	}

	_, err := s.store.GetUserByUsername(ctx, username)
	if err == nil {
		return store.User{}, ErrUsernameTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	salt, err := newSalt()
	if err != nil {
		return store.User{}, fmt.Errorf("generate salt: %w", err)
	}

	user := store.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hashPassword(password, salt),
		PasswordSalt: salt,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// SignIn verifies the password against the stored verifier and returns the
// user on success.
func (s *Service) SignIn(ctx context.Context, username, password string) (store.User, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, ErrUserNotFound
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	candidate := hashPassword(password, user.PasswordSalt)
	if subtle.ConstantTimeCompare([]byte(candidate), []byte(user.PasswordHash)) != 1 {
		return store.User{}, ErrIncorrectPassword
	}
	return user, nil
}

func newSalt() (string, error) {
	b := make([]byte, saltLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashPassword derives the verifier from the password and the hex-encoded
// salt. The salt string itself is the PBKDF2 salt input.
func hashPassword(password, salt string) string {
	sum := pbkdf2.Key([]byte(password), []byte(salt), hashIterations, hashKeyLength, sha256.New)
	return hex.EncodeToString(sum)
}

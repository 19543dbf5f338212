package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// IDGenerator generates unique IDs for users
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service handles registration, login and token authentication
type Service struct {
	store       UserStore
	tokens      *TokenManager
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(store UserStore, tokens *TokenManager) *Service {
	return &Service{
		store:       store,
		tokens:      tokens,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(store UserStore, tokens *TokenManager, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		store:       store,
		tokens:      tokens,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Register creates a new account with a bcrypt hash of the password.
// The plaintext password is never stored.
func (s *Service) Register(email, password string) (*User, error) {
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		ID:           s.idGenerator.Generate(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.timeSource.Now(),
	}

	if err := s.store.CreateUser(user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

// Login verifies the credentials and issues an access token. An unknown
// email and a wrong password are indistinguishable to the caller.
func (s *Service) Login(email, password string) (string, error) {
	user, err := s.store.GetUserByEmail(email)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.Sign(user)
	if err != nil {
		return "", fmt.Errorf("issuing token: %w", err)
	}
	return token, nil
}

// Authenticate validates a bearer token and resolves the current user.
// A valid signature whose subject no longer exists is treated the same
// as a bad token.
func (s *Service) Authenticate(tokenString string) (*User, error) {
	claims, err := s.tokens.Parse(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(claims.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return user, nil
}

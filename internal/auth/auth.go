package auth

import (
	"errors"
	"time"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrMissingFields      = errors.New("email and password are required")
	ErrUserNotFound       = errors.New("user not found")
)

// User represents a registered account
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserStore defines the interface for user persistence
type UserStore interface {
	// CreateUser stores a new user, returning ErrEmailTaken if the
	// email is already registered
	CreateUser(user *User) error

	// GetUserByEmail retrieves a user by email, returning ErrUserNotFound if absent
	GetUserByEmail(email string) (*User, error)

	// GetUserByID retrieves a user by ID, returning ErrUserNotFound if absent
	GetUserByID(id string) (*User, error)
}

// Package user manages accounts: registration and login with refresh
// sessions, saved addresses, and admin account management.
package user

import (
	"context"
	"strings"
	"time"

	"github.com/example/ec-storefront/internal/apperror"
	"github.com/example/ec-storefront/internal/auth"
)

var (
	ErrNotFound            = apperror.NotFound("User not found")
	ErrAllFieldsRequired   = apperror.BadRequest("All fields are required")
	ErrPasswordMismatch    = apperror.BadRequest("Passwords do not match")
	ErrWeakPassword        = apperror.BadRequest("Password must be at least 8 characters")
	ErrEmailTaken          = apperror.Conflict("User already exists")
	ErrCredentialsRequired = apperror.BadRequest("Email and password are required")
	ErrInvalidCredentials  = apperror.Unauthorized("Invalid email or password")
	ErrBanned              = apperror.Forbidden("Your account has been banned")
	ErrAccountGone         = apperror.Unauthorized("Not authorized, user not found")
	ErrInvalidSession      = apperror.Unauthorized("Invalid refresh token")
	ErrAdminFieldsRequired = apperror.BadRequest("Name, email, and password are required")
	ErrInvalidRole         = apperror.BadRequest("Invalid role")
	ErrCannotBanAdmin      = apperror.BadRequest("Cannot ban/unban an admin directly")
	ErrInvalidAddressIndex = apperror.BadRequest("Invalid address index")
)

// Address is a saved shipping address. Its position in the list is its
// identifier.
type Address struct {
	Label      string `json:"label"`
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	IsDefault  bool   `json:"isDefault"`
}

const defaultAddressLabel = "My Address"

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Banned       bool      `json:"banned"`
	Addresses    []Address `json:"addresses"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (u *User) IsAdmin() bool { return u.Role == auth.RoleAdmin }

// Profile is the public view returned by auth endpoints.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// Session backs one refresh token. Only the token's hash is stored.
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func validRole(role string) bool {
	return role == auth.RoleAdmin || role == auth.RoleCustomer
}

func normalizeRole(role string) string { return strings.ToLower(strings.TrimSpace(role)) }

// Repository persists accounts. Create and Update report ErrEmailTaken on
// a duplicate email. Update applies fn atomically.
type Repository interface {
	Create(ctx context.Context, u *User) error
	Get(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, id string, fn func(*User) error) (*User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]User, error)
}

// Sessions persists refresh sessions. GetSession returns ErrInvalidSession
// for an unknown hash.
type Sessions interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, tokenHash string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID string) error
}

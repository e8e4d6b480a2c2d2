package user

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/validate"
)

type Service struct {
	repo     Repository
	sessions Sessions
	tokens   *auth.JWTService
	now      func() time.Time
}

func NewService(repo Repository, sessions Sessions, tokens *auth.JWTService) *Service {
	return &Service{repo: repo, sessions: sessions, tokens: tokens, now: time.Now}
}

// Tokens is a freshly issued access/refresh pair.
type Tokens struct {
	Access         string
	AccessExpires  time.Time
	Refresh        string
	RefreshExpires time.Time
}

// Login is the result of any operation that signs a user in.
type Login struct {
	User   *User
	Tokens Tokens
}

type RegisterInput struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	RepeatPassword string `json:"repeatPassword"`
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func hashPassword(password string) (string, error) {
	hash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		return "", ErrWeakPassword
	}
	return hash, err
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Login, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = validate.NormalizeEmail(in.Email)
	if in.Name == "" || in.Email == "" || in.Password == "" || in.RepeatPassword == "" {
		return nil, ErrAllFieldsRequired
	}
	var fields validate.Fields
	fields.Email("email", in.Email, "Invalid email address")
	fields.MaxLen("name", in.Name, 100, "Name must not exceed 100 characters")
	if err := fields.Err(); err != nil {
		return nil, err
	}
	if in.Password != in.RepeatPassword {
		return nil, ErrPasswordMismatch
	}
	u, err := s.create(ctx, in.Name, in.Email, in.Password, auth.RoleCustomer)
	if err != nil {
		return nil, err
	}
	return s.signIn(ctx, u)
}

func (s *Service) create(ctx context.Context, name, email, password, role string) (*User, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u := &User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Addresses:    []Address{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*Login, error) {
	email = validate.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrCredentialsRequired
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if u.Banned {
		return nil, ErrBanned
	}
	return s.signIn(ctx, u)
}

// Refresh rotates a refresh token: the presented session is consumed and a
// new pair is issued.
func (s *Service) Refresh(ctx context.Context, raw string) (*Login, error) {
	userID, err := s.tokens.ValidateRefreshToken(raw)
	if err != nil {
		return nil, ErrInvalidSession
	}
	sess, err := s.sessions.GetSession(ctx, hashToken(raw))
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID || !s.now().Before(sess.ExpiresAt) {
		return nil, ErrInvalidSession
	}
	if err := s.sessions.DeleteSession(ctx, sess.ID); err != nil {
		return nil, errors.Wrap(err, "consume session")
	}
	u, err := s.active(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.signIn(ctx, u)
}

// Logout ends every session of userID. Without a user id only the session
// behind refresh is ended.
func (s *Service) Logout(ctx context.Context, userID, refresh string) error {
	if userID != "" {
		return s.sessions.DeleteUserSessions(ctx, userID)
	}
	if refresh == "" {
		return nil
	}
	sess, err := s.sessions.GetSession(ctx, hashToken(refresh))
	if errors.Is(err, ErrInvalidSession) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.sessions.DeleteSession(ctx, sess.ID)
}

func (s *Service) signIn(ctx context.Context, u *User) (*Login, error) {
	access, accessExp, err := s.tokens.GenerateAccessToken(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, errors.Wrap(err, "issue access token")
	}
	refresh, refreshExp, err := s.tokens.GenerateRefreshToken(u.ID)
	if err != nil {
		return nil, errors.Wrap(err, "issue refresh token")
	}
	if err := s.sessions.CreateSession(ctx, &Session{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		TokenHash: hashToken(refresh),
		ExpiresAt: refreshExp,
		CreatedAt: s.now().UTC(),
	}); err != nil {
		return nil, errors.Wrap(err, "create session")
	}
	return &Login{User: u, Tokens: Tokens{
		Access:         access,
		AccessExpires:  accessExp,
		Refresh:        refresh,
		RefreshExpires: refreshExp,
	}}, nil
}

func (s *Service) active(ctx context.Context, id string) (*User, error) {
	u, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrAccountGone
	}
	if err != nil {
		return nil, err
	}
	if u.Banned {
		return nil, ErrBanned
	}
	return u, nil
}

// CheckActive fails for deleted and banned accounts. The auth middleware
// calls it on every request.
func (s *Service) CheckActive(ctx context.Context, id string) error {
	_, err := s.active(ctx, id)
	return err
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.Get(ctx, id)
}

// Name returns the display name of id.
func (s *Service) Name(ctx context.Context, id string) (string, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Name, nil
}

// Email returns the account email of id.
func (s *Service) Email(ctx context.Context, id string) (string, error) {
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

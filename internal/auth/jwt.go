// Package auth issues and verifies session tokens and hashes passwords.
package auth

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles carried in access tokens.
const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims identifies the caller of an authenticated request.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the caller holds the admin role.
func (c *Claims) IsAdmin() bool { return c != nil && c.Role == RoleAdmin }

// JWTService signs HS256 access and refresh tokens.
type JWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewJWTService(secret string, accessTTL, refreshTTL time.Duration) *JWTService {
	return &JWTService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// GenerateAccessToken returns a short-lived token carrying identity and role.
func (s *JWTService) GenerateAccessToken(userID, email, role string) (string, time.Time, error) {
	return s.sign(Claims{UserID: userID, Email: email, Role: role, Type: tokenAccess}, userID, s.accessTTL)
}

// GenerateRefreshToken returns a long-lived token that only names the user.
// It is paired with a server-side session at issue time.
func (s *JWTService) GenerateRefreshToken(userID string) (string, time.Time, error) {
	return s.sign(Claims{Type: tokenRefresh}, userID, s.refreshTTL)
}

func (s *JWTService) sign(c Claims, subject string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(ttl)
	c.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return signed, exp, nil
}

func (s *JWTService) parse(raw, typ string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	c, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid || c.Type != typ || c.Subject == "" {
		return nil, ErrInvalidToken
	}
	return c, nil
}

// ValidateAccessToken verifies an access token. Refresh tokens are rejected.
func (s *JWTService) ValidateAccessToken(raw string) (*Claims, error) {
	return s.parse(raw, tokenAccess)
}

// ValidateRefreshToken verifies a refresh token and returns its user id.
func (s *JWTService) ValidateRefreshToken(raw string) (string, error) {
	c, err := s.parse(raw, tokenRefresh)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

func (s *JWTService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *JWTService) RefreshTTL() time.Duration { return s.refreshTTL }

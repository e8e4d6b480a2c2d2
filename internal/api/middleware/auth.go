// Package middleware holds the authentication layers of the storefront API.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/example/ec-storefront/internal/apperror"
	"github.com/example/ec-storefront/internal/auth"
)

// AccessCookie is the HTTP-only cookie carrying the access token.
const AccessCookie = "access_token"

// AccountChecker confirms on every authenticated request that the account
// behind a token still exists and is not banned.
type AccountChecker interface {
	CheckActive(ctx context.Context, userID string) error
}

func respondError(w http.ResponseWriter, err error) {
	e, _ := apperror.From(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Kind.Status())
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": e.Message,
		"data":    nil,
	})
}

var (
	errNoToken      = apperror.Unauthorized("Not authorized, no token")
	errBadToken     = apperror.Unauthorized("Not authorized, token failed")
	errNotAdmin     = apperror.Forbidden("Access denied")
	errUnauthorized = apperror.Unauthorized("Not authorized")
)

// ExtractToken reads the access token from the cookie, falling back to a
// bearer Authorization header for API clients.
func ExtractToken(r *http.Request) string {
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

type contextKey struct{}

// Authenticator turns access tokens into request claims.
type Authenticator struct {
	jwt      *auth.JWTService
	accounts AccountChecker
}

// NewAuthenticator returns an Authenticator. accounts may be nil, in which
// case a valid token is trusted until it expires.
func NewAuthenticator(jwt *auth.JWTService, accounts AccountChecker) *Authenticator {
	return &Authenticator{jwt: jwt, accounts: accounts}
}

func (a *Authenticator) resolve(r *http.Request) (*auth.Claims, error) {
	raw := ExtractToken(r)
	if raw == "" {
		return nil, errNoToken
	}
	claims, err := a.jwt.ValidateAccessToken(raw)
	if err != nil {
		return nil, errBadToken
	}
	if a.accounts != nil {
		if err := a.accounts.CheckActive(r.Context(), claims.UserID); err != nil {
			return nil, err
		}
	}
	return claims, nil
}

// Require rejects requests without a valid token for an active account.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.resolve(r)
		if err != nil {
			respondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// Optional attaches claims when a usable token is present and otherwise
// serves the request as a guest.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, err := a.resolve(r); err == nil {
			r = r.WithContext(WithClaims(r.Context(), claims))
		}
		next.ServeHTTP(w, r)
	})
}

// Admin is Require followed by an admin role check.
func (a *Authenticator) Admin(next http.Handler) http.Handler {
	return a.Require(RequireRole(auth.RoleAdmin)(next))
}

// RequireRole checks that the caller holds one of roles. It must run after
// Require.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetUserFromContext(r.Context())
			if !ok {
				respondError(w, errUnauthorized)
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondError(w, errNotAdmin)
		})
	}
}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// GetUserFromContext returns the caller's claims, if any.
func GetUserFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*auth.Claims)
	return claims, ok && claims != nil
}

// GetUserID returns the caller's user id or "" for guests.
func GetUserID(ctx context.Context) string {
	if claims, ok := GetUserFromContext(ctx); ok {
		return claims.UserID
	}
	return ""
}

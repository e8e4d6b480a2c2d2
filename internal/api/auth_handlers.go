package api

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/apperror"
	"github.com/example/ec-storefront/internal/domain/user"
)

const (
	refreshCookie = "refresh_token"
	// refreshPath scopes the refresh cookie to the auth routes so it is only
	// sent to refresh and logout.
	refreshPath = "/api/auth"
)

var errNoRefreshToken = apperror.Unauthorized("No refresh token")

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles user registration
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req user.RegisterInput
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	login, err := h.svc.Users.Register(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.setAuthCookies(w, login)
	respondJSON(w, http.StatusCreated, "User registered successfully", login.User.Profile())
}

// Login handles user login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	login, err := h.svc.Users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	h.setAuthCookies(w, login)
	respondJSON(w, http.StatusOK, "Login successful", login.User.Profile())
}

// Logout clears the cookies and ends the caller's sessions. It never fails:
// a stale or missing session still logs the browser out.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	var refresh string
	if c, err := r.Cookie(refreshCookie); err == nil {
		refresh = c.Value
	}
	if err := h.svc.Users.Logout(r.Context(), userID(r), refresh); err != nil {
		zctx.From(r.Context()).Warn("End sessions", zap.Error(err))
	}
	h.clearAuthCookies(w)
	respondJSON(w, http.StatusOK, "Logged out successfully", nil)
}

// Refresh rotates the refresh token and issues a new access token.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(refreshCookie)
	if err != nil || c.Value == "" {
		respondError(w, r, errNoRefreshToken)
		return
	}
	login, err := h.svc.Users.Refresh(r.Context(), c.Value)
	if err != nil {
		h.clearAuthCookies(w)
		respondError(w, r, err)
		return
	}
	h.setAuthCookies(w, login)
	respondJSON(w, http.StatusOK, "Token refreshed", login.User.Profile())
}

// Me returns the current authenticated user's information
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Users.Get(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "", u.Profile())
}

func (h *Handlers) setAuthCookies(w http.ResponseWriter, login *user.Login) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessCookie,
		Value:    login.Tokens.Access,
		Path:     "/",
		Expires:  login.Tokens.AccessExpires,
		MaxAge:   h.accessTTL,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    login.Tokens.Refresh,
		Path:     refreshPath,
		Expires:  login.Tokens.RefreshExpires,
		MaxAge:   h.refreshTTL,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handlers) clearAuthCookies(w http.ResponseWriter) {
	for _, c := range []struct{ name, path string }{
		{middleware.AccessCookie, "/"},
		{refreshCookie, refreshPath},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    "",
			Path:     c.path,
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.cookieSecure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-storefront/internal/apperror"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/domain/user"
	"github.com/example/ec-storefront/internal/infrastructure/store"
)

const secret = "test-secret-that-is-at-least-32-characters"

func newService(t *testing.T) (*user.Service, *auth.JWTService) {
	t.Helper()
	tokens := auth.NewJWTService(secret, 15*time.Minute, 7*24*time.Hour)
	repo := store.NewMemoryUserRepository()
	return user.NewService(repo, repo, tokens), tokens
}

func register(t *testing.T, svc *user.Service, email string) *user.Login {
	t.Helper()
	l, err := svc.Register(context.Background(), user.RegisterInput{
		Name: "Ann", Email: email, Password: "password123", RepeatPassword: "password123",
	})
	require.NoError(t, err)
	return l
}

func TestRegister(t *testing.T) {
	svc, tokens := newService(t)
	ctx := context.Background()

	l := register(t, svc, " Ann@Example.com ")
	assert.Equal(t, "ann@example.com", l.User.Email)
	assert.Equal(t, auth.RoleCustomer, l.User.Role)
	assert.NotEqual(t, "password123", l.User.PasswordHash)

	claims, err := tokens.ValidateAccessToken(l.Tokens.Access)
	require.NoError(t, err)
	assert.Equal(t, l.User.ID, claims.UserID)
	assert.Equal(t, auth.RoleCustomer, claims.Role)

	_, err = svc.Register(ctx, user.RegisterInput{Name: "Dup", Email: "ANN@example.com", Password: "password123", RepeatPassword: "password123"})
	assert.ErrorIs(t, err, user.ErrEmailTaken)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newService(t)
	for _, tt := range []struct {
		name string
		in   user.RegisterInput
		want error
	}{
		{"Missing", user.RegisterInput{Name: "A", Email: "a@example.com", Password: "password123"}, user.ErrAllFieldsRequired},
		{"Mismatch", user.RegisterInput{Name: "A", Email: "a@example.com", Password: "password123", RepeatPassword: "password124"}, user.ErrPasswordMismatch},
		{"Short", user.RegisterInput{Name: "A", Email: "a@example.com", Password: "short", RepeatPassword: "short"}, user.ErrWeakPassword},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("BadEmail", func(t *testing.T) {
		_, err := svc.Register(context.Background(), user.RegisterInput{Name: "A", Email: "nope", Password: "password123", RepeatPassword: "password123"})
		e, ok := apperror.From(err)
		require.True(t, ok)
		assert.Equal(t, apperror.KindBadRequest, e.Kind)
		assert.Equal(t, map[string]string{"email": "Invalid email address"}, e.Details)
	})
}

func TestLogin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	register(t, svc, "ann@example.com")

	l, err := svc.Login(ctx, "ANN@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", l.User.Email)

	_, err = svc.Login(ctx, "ann@example.com", "wrong-password")
	assert.ErrorIs(t, err, user.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, user.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "", "password123")
	assert.ErrorIs(t, err, user.ErrCredentialsRequired)
}

func TestRefreshRotates(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	l := register(t, svc, "ann@example.com")

	next, err := svc.Refresh(ctx, l.Tokens.Refresh)
	require.NoError(t, err)
	assert.NotEqual(t, l.Tokens.Refresh, next.Tokens.Refresh)

	// The consumed token cannot be replayed.
	_, err = svc.Refresh(ctx, l.Tokens.Refresh)
	assert.ErrorIs(t, err, user.ErrInvalidSession)

	_, err = svc.Refresh(ctx, l.Tokens.Access)
	assert.ErrorIs(t, err, user.ErrInvalidSession)
	_, err = svc.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, user.ErrInvalidSession)

	_, err = svc.Refresh(ctx, next.Tokens.Refresh)
	assert.NoError(t, err)
}

func TestLogoutEndsSessions(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	l := register(t, svc, "ann@example.com")
	other, err := svc.Login(ctx, "ann@example.com", "password123")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, l.User.ID, ""))
	_, err = svc.Refresh(ctx, l.Tokens.Refresh)
	assert.ErrorIs(t, err, user.ErrInvalidSession)
	_, err = svc.Refresh(ctx, other.Tokens.Refresh)
	assert.ErrorIs(t, err, user.ErrInvalidSession)

	// Guests may present just the refresh token.
	again, err := svc.Login(ctx, "ann@example.com", "password123")
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, "", again.Tokens.Refresh))
	_, err = svc.Refresh(ctx, again.Tokens.Refresh)
	assert.ErrorIs(t, err, user.ErrInvalidSession)
	require.NoError(t, svc.Logout(ctx, "", "unknown"))
}

func TestBan(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	l := register(t, svc, "ann@example.com")
	admin, err := svc.AdminCreate(ctx, user.AdminInput{Name: "Root", Email: "root@example.com", Password: "password123", Role: "ADMIN"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, admin.Role)

	_, err = svc.ToggleBan(ctx, admin.ID)
	assert.ErrorIs(t, err, user.ErrCannotBanAdmin)

	banned, err := svc.ToggleBan(ctx, l.User.ID)
	require.NoError(t, err)
	assert.True(t, banned.Banned)
	assert.ErrorIs(t, svc.CheckActive(ctx, l.User.ID), user.ErrBanned)
	_, err = svc.Login(ctx, "ann@example.com", "password123")
	assert.ErrorIs(t, err, user.ErrBanned)
	_, err = svc.Refresh(ctx, l.Tokens.Refresh)
	assert.ErrorIs(t, err, user.ErrInvalidSession)

	unbanned, err := svc.ToggleBan(ctx, l.User.ID)
	require.NoError(t, err)
	assert.False(t, unbanned.Banned)
	assert.NoError(t, svc.CheckActive(ctx, l.User.ID))
}

func TestCheckActiveDeleted(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	l := register(t, svc, "ann@example.com")

	require.NoError(t, svc.Delete(ctx, l.User.ID))
	assert.ErrorIs(t, svc.CheckActive(ctx, l.User.ID), user.ErrAccountGone)
	assert.ErrorIs(t, svc.Delete(ctx, l.User.ID), user.ErrNotFound)
}

func TestAdminCreateAndUpdate(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	register(t, svc, "taken@example.com")

	_, err := svc.AdminCreate(ctx, user.AdminInput{Name: "X", Email: "x@example.com", Password: "password123", Role: "owner"})
	assert.ErrorIs(t, err, user.ErrInvalidRole)
	_, err = svc.AdminCreate(ctx, user.AdminInput{Name: "X", Password: "password123"})
	assert.ErrorIs(t, err, user.ErrAdminFieldsRequired)

	u, err := svc.AdminCreate(ctx, user.AdminInput{Name: "X", Email: "x@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleCustomer, u.Role)

	got, err := svc.AdminUpdate(ctx, u.ID, user.AdminPatch{Name: "Xavier", Role: "admin"})
	require.NoError(t, err)
	assert.Equal(t, "Xavier", got.Name)
	assert.Equal(t, auth.RoleAdmin, got.Role)
	assert.Equal(t, "x@example.com", got.Email)

	_, err = svc.AdminUpdate(ctx, u.ID, user.AdminPatch{Email: "TAKEN@example.com"})
	assert.ErrorIs(t, err, user.ErrEmailTaken)
	_, err = svc.AdminUpdate(ctx, u.ID, user.AdminPatch{Role: "root"})
	assert.ErrorIs(t, err, user.ErrInvalidRole)
	_, err = svc.AdminUpdate(ctx, "missing", user.AdminPatch{})
	assert.ErrorIs(t, err, user.ErrNotFound)

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestEnsureAdmin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	first, err := svc.EnsureAdmin(ctx, "Root", "root@example.com", "password123")
	require.NoError(t, err)
	assert.True(t, first.IsAdmin())
	second, err := svc.EnsureAdmin(ctx, "Root", "ROOT@example.com", "other-password")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestAddresses(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	id := register(t, svc, "ann@example.com").User.ID
	yes := true

	addrs, err := svc.AddAddress(ctx, id, user.AddressPatch{Street: "1 Main", City: "Oslo", IsDefault: &yes})
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.Equal(t, "My Address", addrs[0].Label)
	assert.True(t, addrs[0].IsDefault)

	addrs, err = svc.AddAddress(ctx, id, user.AddressPatch{Label: "Office", City: "Bergen", IsDefault: &yes})
	require.NoError(t, err)
	require.Len(t, addrs, 2)
	assert.False(t, addrs[0].IsDefault)
	assert.True(t, addrs[1].IsDefault)

	addrs, err = svc.UpdateAddress(ctx, id, 0, user.AddressPatch{City: "Trondheim"})
	require.NoError(t, err)
	assert.Equal(t, "Trondheim", addrs[0].City)
	assert.Equal(t, "1 Main", addrs[0].Street)

	for _, idx := range []int{-1, 2} {
		_, err = svc.UpdateAddress(ctx, id, idx, user.AddressPatch{})
		assert.ErrorIs(t, err, user.ErrInvalidAddressIndex)
		_, err = svc.DeleteAddress(ctx, id, idx)
		assert.ErrorIs(t, err, user.ErrInvalidAddressIndex)
	}

	addrs, err = svc.DeleteAddress(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.Equal(t, "Office", addrs[0].Label)

	got, err := svc.Addresses(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, addrs, got)
}

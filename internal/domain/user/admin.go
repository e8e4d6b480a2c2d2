package user

import (
	"context"
	"strings"

	"github.com/go-faster/errors"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/validate"
)

type AdminInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type AdminPatch struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

func (s *Service) AdminCreate(ctx context.Context, in AdminInput) (*User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = validate.NormalizeEmail(in.Email)
	in.Role = normalizeRole(in.Role)
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, ErrAdminFieldsRequired
	}
	if in.Role == "" {
		in.Role = auth.RoleCustomer
	}
	if !validRole(in.Role) {
		return nil, ErrInvalidRole
	}
	var fields validate.Fields
	fields.Email("email", in.Email, "Invalid email address")
	if err := fields.Err(); err != nil {
		return nil, err
	}
	return s.create(ctx, in.Name, in.Email, in.Password, in.Role)
}

func (s *Service) AdminUpdate(ctx context.Context, id string, p AdminPatch) (*User, error) {
	role := normalizeRole(p.Role)
	if role != "" && !validRole(role) {
		return nil, ErrInvalidRole
	}
	email := validate.NormalizeEmail(p.Email)
	if email != "" && !validate.Email(email) {
		var fields validate.Fields
		fields.Add("email", "Invalid email address")
		return nil, fields.Err()
	}
	return s.repo.Update(ctx, id, func(u *User) error {
		if name := strings.TrimSpace(p.Name); name != "" {
			u.Name = name
		}
		if email != "" {
			u.Email = email
		}
		if role != "" {
			u.Role = role
		}
		u.UpdatedAt = s.now().UTC()
		return nil
	})
}

// ToggleBan bans or unbans a customer and ends their sessions on ban.
func (s *Service) ToggleBan(ctx context.Context, id string) (*User, error) {
	u, err := s.repo.Update(ctx, id, func(u *User) error {
		if u.IsAdmin() {
			return ErrCannotBanAdmin
		}
		u.Banned = !u.Banned
		u.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if u.Banned {
		if err := s.sessions.DeleteUserSessions(ctx, u.ID); err != nil {
			return nil, errors.Wrap(err, "end sessions")
		}
	}
	return u, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	return s.sessions.DeleteUserSessions(ctx, id)
}

// EnsureAdmin creates an admin account for email unless one exists. It is
// used to bootstrap a fresh installation.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) (*User, error) {
	email = validate.NormalizeEmail(email)
	u, err := s.repo.GetByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.create(ctx, name, email, password, auth.RoleAdmin)
}

package store

import (
	"context"
	"slices"

	"github.com/example/ec-storefront/internal/domain/user"
)

type MemoryUserRepository struct {
	t        *table[user.User]
	sessions *table[user.Session]
}

func cloneUser(u user.User) user.User {
	u.Addresses = slices.Clone(u.Addresses)
	return u
}

// NewMemoryUserRepository returns accounts and their sessions in memory. It
// implements both user.Repository and user.Sessions.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		t:        newTable(cloneUser),
		sessions: newTable[user.Session](nil),
	}
}

func emailClash(id, email string) func(user.User) error {
	return func(existing user.User) error {
		if existing.ID != id && existing.Email == email {
			return user.ErrEmailTaken
		}
		return nil
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, u *user.User) error {
	return r.t.insert(u.ID, *u, emailClash(u.ID, u.Email))
}

func (r *MemoryUserRepository) Get(_ context.Context, id string) (*user.User, error) {
	u, ok := r.t.get(id)
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*user.User, error) {
	found := r.t.find(func(u user.User) bool { return u.Email == email })
	if len(found) == 0 {
		return nil, user.ErrNotFound
	}
	return &found[0], nil
}

func (r *MemoryUserRepository) Update(_ context.Context, id string, fn func(*user.User) error) (*user.User, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	stored, ok := r.t.rows[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	u := cloneUser(stored)
	if err := fn(&u); err != nil {
		return nil, err
	}
	clash := emailClash(id, u.Email)
	for _, other := range r.t.rows {
		if err := clash(other); err != nil {
			return nil, err
		}
	}
	r.t.rows[id] = cloneUser(u)
	return &u, nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, id string) error {
	if !r.t.remove(id) {
		return user.ErrNotFound
	}
	return nil
}

func (r *MemoryUserRepository) List(context.Context) ([]user.User, error) {
	users := r.t.find(nil)
	sortByCreated(users, func(u user.User) int64 { return u.CreatedAt.UnixNano() })
	return users, nil
}

func (r *MemoryUserRepository) CreateSession(_ context.Context, s *user.Session) error {
	return r.sessions.insert(s.ID, *s, nil)
}

func (r *MemoryUserRepository) GetSession(_ context.Context, tokenHash string) (*user.Session, error) {
	found := r.sessions.find(func(s user.Session) bool { return s.TokenHash == tokenHash })
	if len(found) == 0 {
		return nil, user.ErrInvalidSession
	}
	return &found[0], nil
}

func (r *MemoryUserRepository) DeleteSession(_ context.Context, id string) error {
	r.sessions.remove(id)
	return nil
}

func (r *MemoryUserRepository) DeleteUserSessions(_ context.Context, userID string) error {
	r.sessions.removeWhere(func(s user.Session) bool { return s.UserID == userID })
	return nil
}

package store

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"

	"github.com/example/ec-storefront/internal/domain/newsletter"
	"github.com/example/ec-storefront/internal/domain/user"
)

// PostgresUserRepository implements user.Repository and user.Sessions.
// Sessions cascade with their user.
type PostgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

const userSelect = `SELECT id, name, email, password_hash, role, banned, addresses, created_at, updated_at FROM users `

func scanUser(row rowScanner) (*user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Banned, asJSON(&u.Addresses),
		&u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if u.Addresses == nil {
		u.Addresses = []user.Address{}
	}
	return &u, nil
}

func userErr(err error) error {
	if _, ok := uniqueViolation(err); ok {
		return user.ErrEmailTaken
	}
	return err
}

func (r *PostgresUserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, banned, addresses, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.Banned, asJSON(&u.Addresses), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return errors.Wrap(userErr(err), "insert user")
	}
	return nil
}

func (r *PostgresUserRepository) getOne(ctx context.Context, where string, arg any) (*user.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, userSelect+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	return u, nil
}

func (r *PostgresUserRepository) Get(ctx context.Context, id string) (*user.User, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.getOne(ctx, `WHERE email = $1`, email)
}

func (r *PostgresUserRepository) Update(ctx context.Context, id string, fn func(*user.User) error) (*user.User, error) {
	var out *user.User
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		u, err := scanUser(tx.QueryRowContext(ctx, userSelect+`WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return user.ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "lock user")
		}
		if err := fn(u); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE users SET name = $2, email = $3, password_hash = $4, role = $5, banned = $6,
				addresses = $7, updated_at = $8
			WHERE id = $1
		`, u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.Banned, asJSON(&u.Addresses), u.UpdatedAt); err != nil {
			return errors.Wrap(userErr(err), "write user")
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresUserRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete user")
	}
	return affected(res, user.ErrNotFound)
}

func (r *PostgresUserRepository) List(ctx context.Context) ([]user.User, error) {
	rows, err := r.db.QueryContext(ctx, userSelect+`ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, errors.Wrap(err, "query users")
	}
	return scanAll(rows, scanUser)
}

func (r *PostgresUserRepository) CreateSession(ctx context.Context, s *user.Session) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO user_sessions (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, s.ID, s.UserID, s.TokenHash, s.ExpiresAt, s.CreatedAt); err != nil {
		return errors.Wrap(err, "insert session")
	}
	return nil
}

func (r *PostgresUserRepository) GetSession(ctx context.Context, tokenHash string) (*user.Session, error) {
	var s user.Session
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, expires_at, created_at FROM user_sessions WHERE token_hash = $1
	`, tokenHash).Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrInvalidSession
	}
	if err != nil {
		return nil, errors.Wrap(err, "get session")
	}
	return &s, nil
}

func (r *PostgresUserRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "delete session")
	}
	return nil
}

func (r *PostgresUserRepository) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_sessions WHERE user_id = $1`, userID); err != nil {
		return errors.Wrap(err, "delete user sessions")
	}
	return nil
}

// PostgresNewsletterRepository implements newsletter.Repository.
type PostgresNewsletterRepository struct {
	db *sql.DB
}

func NewPostgresNewsletterRepository(db *sql.DB) *PostgresNewsletterRepository {
	return &PostgresNewsletterRepository{db: db}
}

func (r *PostgresNewsletterRepository) Create(ctx context.Context, s *newsletter.Subscriber) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO newsletter_subscribers (id, email, created_at) VALUES ($1, $2, $3)
	`, s.ID, s.Email, s.CreatedAt)
	if _, ok := uniqueViolation(err); ok {
		return newsletter.ErrAlreadySubscribed
	}
	if err != nil {
		return errors.Wrap(err, "insert subscriber")
	}
	return nil
}

func (r *PostgresNewsletterRepository) List(ctx context.Context) ([]newsletter.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, email, created_at FROM newsletter_subscribers ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, errors.Wrap(err, "query subscribers")
	}
	return scanAll(rows, func(row rowScanner) (*newsletter.Subscriber, error) {
		var s newsletter.Subscriber
		if err := row.Scan(&s.ID, &s.Email, &s.CreatedAt); err != nil {
			return nil, err
		}
		return &s, nil
	})
}

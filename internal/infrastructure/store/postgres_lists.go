package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"

	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/wishlist"
)

// userDocs stores one document per user as a JSONB item array. Carts and
// wishlists share the table shape.
type userDocs[D any, I any] struct {
	db    *sql.DB
	table string
	empty func(userID string) D
	items func(*D) *[]I
	stamp func(*D) *time.Time
}

func (u userDocs[D, I]) get(ctx context.Context, userID string) (*D, error) {
	d := u.empty(userID)
	err := u.db.QueryRowContext(ctx, `SELECT items, updated_at FROM `+u.table+` WHERE user_id = $1`, userID).
		Scan(asJSON(u.items(&d)), u.stamp(&d))
	if errors.Is(err, sql.ErrNoRows) {
		return &d, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", u.table)
	}
	if *u.items(&d) == nil {
		*u.items(&d) = []I{}
	}
	return &d, nil
}

// update locks the user's row, creating it on first use, and writes back
// what fn leaves in the document. The row is rolled back when fn fails.
func (u userDocs[D, I]) update(ctx context.Context, userID string, fn func(*D) error) (*D, error) {
	var out D
	err := inTx(ctx, u.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO `+u.table+` (user_id, items, updated_at) VALUES ($1, '[]', now())
			ON CONFLICT (user_id) DO NOTHING
		`, userID); err != nil {
			return errors.Wrapf(err, "init %s", u.table)
		}
		d := u.empty(userID)
		if err := tx.QueryRowContext(ctx, `SELECT items, updated_at FROM `+u.table+` WHERE user_id = $1 FOR UPDATE`, userID).
			Scan(asJSON(u.items(&d)), u.stamp(&d)); err != nil {
			return errors.Wrapf(err, "lock %s", u.table)
		}
		if *u.items(&d) == nil {
			*u.items(&d) = []I{}
		}
		if err := fn(&d); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE `+u.table+` SET items = $2, updated_at = $3 WHERE user_id = $1`,
			userID, asJSON(u.items(&d)), *u.stamp(&d)); err != nil {
			return errors.Wrapf(err, "write %s", u.table)
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PostgresCartRepository implements cart.Repository.
type PostgresCartRepository struct {
	docs userDocs[cart.Cart, cart.Item]
}

func NewPostgresCartRepository(db *sql.DB) *PostgresCartRepository {
	return &PostgresCartRepository{docs: userDocs[cart.Cart, cart.Item]{
		db:    db,
		table: "carts",
		empty: func(userID string) cart.Cart { return cart.Cart{UserID: userID, Items: []cart.Item{}} },
		items: func(c *cart.Cart) *[]cart.Item { return &c.Items },
		stamp: func(c *cart.Cart) *time.Time { return &c.UpdatedAt },
	}}
}

func (r *PostgresCartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	return r.docs.get(ctx, userID)
}

func (r *PostgresCartRepository) Update(ctx context.Context, userID string, fn func(*cart.Cart) error) (*cart.Cart, error) {
	return r.docs.update(ctx, userID, fn)
}

// PostgresWishlistRepository implements wishlist.Repository.
type PostgresWishlistRepository struct {
	docs userDocs[wishlist.Wishlist, wishlist.Item]
}

func NewPostgresWishlistRepository(db *sql.DB) *PostgresWishlistRepository {
	return &PostgresWishlistRepository{docs: userDocs[wishlist.Wishlist, wishlist.Item]{
		db:    db,
		table: "wishlists",
		empty: func(userID string) wishlist.Wishlist {
			return wishlist.Wishlist{UserID: userID, Items: []wishlist.Item{}}
		},
		items: func(w *wishlist.Wishlist) *[]wishlist.Item { return &w.Items },
		stamp: func(w *wishlist.Wishlist) *time.Time { return &w.UpdatedAt },
	}}
}

func (r *PostgresWishlistRepository) Get(ctx context.Context, userID string) (*wishlist.Wishlist, error) {
	return r.docs.get(ctx, userID)
}

func (r *PostgresWishlistRepository) Update(ctx context.Context, userID string, fn func(*wishlist.Wishlist) error) (*wishlist.Wishlist, error) {
	return r.docs.update(ctx, userID, fn)
}

package store

import (
	"context"
	"slices"

	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/wishlist"
)

type MemoryCartRepository struct {
	t *table[cart.Cart]
}

func cloneCart(c cart.Cart) cart.Cart {
	c.Items = slices.Clone(c.Items)
	return c
}

func NewMemoryCartRepository() *MemoryCartRepository {
	return &MemoryCartRepository{t: newTable(cloneCart)}
}

func (r *MemoryCartRepository) Get(_ context.Context, userID string) (*cart.Cart, error) {
	if c, ok := r.t.get(userID); ok {
		return &c, nil
	}
	return &cart.Cart{UserID: userID, Items: []cart.Item{}}, nil
}

func (r *MemoryCartRepository) Update(_ context.Context, userID string, fn func(*cart.Cart) error) (*cart.Cart, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	c, ok := r.t.rows[userID]
	if !ok {
		c = cart.Cart{UserID: userID, Items: []cart.Item{}}
	}
	c = cloneCart(c)
	if err := fn(&c); err != nil {
		return nil, err
	}
	r.t.rows[userID] = cloneCart(c)
	return &c, nil
}

type MemoryWishlistRepository struct {
	t *table[wishlist.Wishlist]
}

func cloneWishlist(w wishlist.Wishlist) wishlist.Wishlist {
	w.Items = slices.Clone(w.Items)
	return w
}

func NewMemoryWishlistRepository() *MemoryWishlistRepository {
	return &MemoryWishlistRepository{t: newTable(cloneWishlist)}
}

func (r *MemoryWishlistRepository) Get(_ context.Context, userID string) (*wishlist.Wishlist, error) {
	if w, ok := r.t.get(userID); ok {
		return &w, nil
	}
	return &wishlist.Wishlist{UserID: userID, Items: []wishlist.Item{}}, nil
}

func (r *MemoryWishlistRepository) Update(_ context.Context, userID string, fn func(*wishlist.Wishlist) error) (*wishlist.Wishlist, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	w, ok := r.t.rows[userID]
	if !ok {
		w = wishlist.Wishlist{UserID: userID, Items: []wishlist.Item{}}
	}
	w = cloneWishlist(w)
	if err := fn(&w); err != nil {
		return nil, err
	}
	r.t.rows[userID] = cloneWishlist(w)
	return &w, nil
}

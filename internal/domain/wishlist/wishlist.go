// Package wishlist keeps one list of saved products per user.
package wishlist

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/ec-storefront/internal/apperror"
	"github.com/example/ec-storefront/internal/domain/product"
)

var (
	ErrProductRequired = apperror.BadRequest("productId is required")
	ErrItemNotFound    = apperror.NotFound("Wishlist item not found")
)

type Item struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	AddedAt   time.Time `json:"addedAt"`
}

type Wishlist struct {
	UserID    string    `json:"userId"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Line is an item joined with its product, nil when the product is gone.
type Line struct {
	ID      string           `json:"id"`
	Product *product.Summary `json:"product"`
	AddedAt time.Time        `json:"addedAt"`
}

// Repository has the same contract as the cart repository.
type Repository interface {
	Get(ctx context.Context, userID string) (*Wishlist, error)
	Update(ctx context.Context, userID string, fn func(*Wishlist) error) (*Wishlist, error)
}

type Products interface {
	Get(ctx context.Context, id string) (*product.Product, error)
	Lookup(ctx context.Context, ids []string) (map[string]product.Product, error)
}

type Service struct {
	repo     Repository
	products Products
}

func NewService(repo Repository, products Products) *Service {
	return &Service{repo: repo, products: products}
}

func (s *Service) Get(ctx context.Context, userID string) ([]Line, error) {
	w, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.lines(ctx, w)
}

// Add saves a product once; adding it again is a no-op.
func (s *Service) Add(ctx context.Context, userID, productID string) ([]Line, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, ErrProductRequired
	}
	if _, err := s.products.Get(ctx, productID); err != nil {
		return nil, err
	}
	return s.update(ctx, userID, func(w *Wishlist) error {
		for _, it := range w.Items {
			if it.ProductID == productID {
				return nil
			}
		}
		w.Items = append(w.Items, Item{ID: uuid.NewString(), ProductID: productID, AddedAt: time.Now().UTC()})
		return nil
	})
}

func (s *Service) Remove(ctx context.Context, userID, itemID string) ([]Line, error) {
	return s.update(ctx, userID, func(w *Wishlist) error {
		for i, it := range w.Items {
			if it.ID == itemID {
				w.Items = append(w.Items[:i], w.Items[i+1:]...)
				return nil
			}
		}
		return ErrItemNotFound
	})
}

func (s *Service) Clear(ctx context.Context, userID string) ([]Line, error) {
	return s.update(ctx, userID, func(w *Wishlist) error {
		w.Items = []Item{}
		return nil
	})
}

func (s *Service) update(ctx context.Context, userID string, fn func(*Wishlist) error) ([]Line, error) {
	w, err := s.repo.Update(ctx, userID, func(w *Wishlist) error {
		if err := fn(w); err != nil {
			return err
		}
		w.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.lines(ctx, w)
}

func (s *Service) lines(ctx context.Context, w *Wishlist) ([]Line, error) {
	ids := make([]string, len(w.Items))
	for i, it := range w.Items {
		ids[i] = it.ProductID
	}
	products, err := s.products.Lookup(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]Line, 0, len(w.Items))
	for _, it := range w.Items {
		line := Line{ID: it.ID, AddedAt: it.AddedAt}
		if p, ok := products[it.ProductID]; ok {
			sum := p.Summary()
			line.Product = &sum
		}
		out = append(out, line)
	}
	return out, nil
}

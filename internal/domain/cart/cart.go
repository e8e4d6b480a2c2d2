// Package cart keeps one shopping cart per user.
package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/apperror"
	"github.com/example/ec-storefront/internal/domain/product"
)

var (
	ErrProductRequired = apperror.BadRequest("productId is required")
	ErrItemNotFound    = apperror.NotFound("Cart item not found")
)

type Item struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}

type Cart struct {
	UserID    string    `json:"userId"`
	Items     []Item    `json:"items"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c *Cart) index(itemID string) int {
	for i, it := range c.Items {
		if it.ID == itemID {
			return i
		}
	}
	return -1
}

// Line is an item joined with its product. Product is nil when the product
// has since been deleted.
type Line struct {
	ID       string           `json:"id"`
	Product  *product.Summary `json:"product"`
	Quantity int              `json:"quantity"`
	Size     string           `json:"size,omitempty"`
	Color    string           `json:"color,omitempty"`
}

// View is what every cart operation returns.
type View struct {
	Items      []Line          `json:"items"`
	TotalItems int             `json:"totalItems"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

// Repository stores carts. Get returns an empty cart for users without one.
// Update runs fn against the current cart atomically with respect to other
// updates of the same cart and stores the result.
type Repository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Update(ctx context.Context, userID string, fn func(*Cart) error) (*Cart, error)
}

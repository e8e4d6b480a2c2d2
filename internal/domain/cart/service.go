package cart

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/domain/product"
)

// Products resolves product references.
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

// AddInput merges Quantity into the line for (ProductID, Size, Color).
// A nil Quantity adds one.
type AddInput struct {
	ProductID string `json:"productId"`
	Quantity  *int   `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

// ItemPatch sets the non-nil fields of a line.
type ItemPatch struct {
	Quantity *int    `json:"quantity"`
	Size     *string `json:"size"`
	Color    *string `json:"color"`
}

func (s *Service) Get(ctx context.Context, userID string) (*View, error) {
	c, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, c)
}

// Add merges into an existing line with the exact same product, size and
// color, or appends a new one. A line whose quantity drops below one is
// removed, and a new line with such a quantity is never created.
func (s *Service) Add(ctx context.Context, userID string, in AddInput) (*View, error) {
	in.ProductID = strings.TrimSpace(in.ProductID)
	if in.ProductID == "" {
		return nil, ErrProductRequired
	}
	if _, err := s.products.Get(ctx, in.ProductID); err != nil {
		return nil, err
	}
	qty := 1
	if in.Quantity != nil {
		qty = *in.Quantity
	}

	return s.update(ctx, userID, func(c *Cart) error {
		for i := range c.Items {
			it := &c.Items[i]
			if it.ProductID != in.ProductID || it.Size != in.Size || it.Color != in.Color {
				continue
			}
			it.Quantity += qty
			if it.Quantity < 1 {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
			}
			return nil
		}
		if qty >= 1 {
			c.Items = append(c.Items, Item{
				ID:        uuid.NewString(),
				ProductID: in.ProductID,
				Quantity:  qty,
				Size:      in.Size,
				Color:     in.Color,
			})
		}
		return nil
	})
}

// UpdateItem patches one line; quantity below one removes it.
func (s *Service) UpdateItem(ctx context.Context, userID, itemID string, p ItemPatch) (*View, error) {
	return s.update(ctx, userID, func(c *Cart) error {
		i := c.index(itemID)
		if i < 0 {
			return ErrItemNotFound
		}
		it := &c.Items[i]
		if p.Quantity != nil {
			it.Quantity = *p.Quantity
		}
		if p.Size != nil {
			it.Size = *p.Size
		}
		if p.Color != nil {
			it.Color = *p.Color
		}
		if it.Quantity < 1 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
		}
		return nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, userID, itemID string) (*View, error) {
	return s.update(ctx, userID, func(c *Cart) error {
		i := c.index(itemID)
		if i < 0 {
			return ErrItemNotFound
		}
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return nil
	})
}

// Clear empties the cart. Clearing an empty cart is not an error.
func (s *Service) Clear(ctx context.Context, userID string) (*View, error) {
	return s.update(ctx, userID, func(c *Cart) error {
		c.Items = []Item{}
		return nil
	})
}

// view joins items with their products. The subtotal uses list prices;
// lines whose product is gone count towards quantity but not price.
func (s *Service) view(ctx context.Context, c *Cart) (*View, error) {
	ids := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.products.Lookup(ctx, ids)
	if err != nil {
		return nil, err
	}

	v := &View{Items: make([]Line, 0, len(c.Items)), Subtotal: decimal.Zero}
	for _, it := range c.Items {
		line := Line{ID: it.ID, Quantity: it.Quantity, Size: it.Size, Color: it.Color}
		if p, ok := products[it.ProductID]; ok {
			sum := p.Summary()
			line.Product = &sum
			v.Subtotal = v.Subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		v.TotalItems += it.Quantity
		v.Items = append(v.Items, line)
	}
	return v, nil
}

func (s *Service) update(ctx context.Context, userID string, fn func(*Cart) error) (*View, error) {
	c, err := s.repo.Update(ctx, userID, func(c *Cart) error {
		if err := fn(c); err != nil {
			return err
		}
		c.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, c)
}

// Package product implements the catalog: product records, filtered listing
// and weighted search.
package product

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/apperror"
)

var (
	ErrNotFound     = apperror.NotFound("Product not found")
	ErrInvalidID    = apperror.BadRequest("Invalid product ID")
	ErrSlugTaken    = apperror.Conflict("Product slug already exists")
	ErrSKUTaken     = apperror.Conflict("Product SKU already exists")
	ErrMissingField = apperror.BadRequest("Title, price, and categories are required")
	ErrInvalidPrice = apperror.BadRequest("Price must be positive")
	ErrInvalidStock = apperror.BadRequest("Stock cannot be negative")
	ErrIDsRequired  = apperror.BadRequest("Product IDs array is required")
	ErrInvalidPage  = apperror.BadRequest("page and limit must be positive integers")
)

type Rating struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

type Product struct {
	ID               string              `json:"id"`
	Title            string              `json:"title"`
	Slug             string              `json:"slug"`
	Description      string              `json:"description"`
	ShortDescription string              `json:"shortDescription,omitempty"`
	Price            decimal.Decimal     `json:"price"`
	DiscountPrice    decimal.NullDecimal `json:"discountPrice"`
	SKU              string              `json:"sku,omitempty"`
	Categories       []string            `json:"categories"`
	Sizes            []string            `json:"sizes"`
	Colors           []string            `json:"colors"`
	Images           []string            `json:"images"`
	Stock            int                 `json:"stock"`
	IsFeatured       bool                `json:"isFeatured"`
	IsActive         bool                `json:"isActive"`
	Tags             []string            `json:"tags"`
	Rating           Rating              `json:"rating"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// HasDiscount reports a sale price strictly below the list price.
func (p *Product) HasDiscount() bool {
	return p.DiscountPrice.Valid && p.DiscountPrice.Decimal.LessThan(p.Price)
}

// Summary is the slice of a product embedded in cart and wishlist views.
type Summary struct {
	ID            string              `json:"id"`
	Title         string              `json:"title"`
	Slug          string              `json:"slug"`
	Price         decimal.Decimal     `json:"price"`
	DiscountPrice decimal.NullDecimal `json:"discountPrice"`
	Images        []string            `json:"images"`
	Sizes         []string            `json:"sizes"`
	Colors        []string            `json:"colors"`
	Stock         int                 `json:"stock"`
	IsActive      bool                `json:"isActive"`
}

func (p *Product) Summary() Summary {
	return Summary{
		ID:            p.ID,
		Title:         p.Title,
		Slug:          p.Slug,
		Price:         p.Price,
		DiscountPrice: p.DiscountPrice,
		Images:        p.Images,
		Sizes:         p.Sizes,
		Colors:        p.Colors,
		Stock:         p.Stock,
		IsActive:      p.IsActive,
	}
}

// Repository persists products.
//
// Find applies q.Filter, q.Sort, q.Offset and q.Limit; a zero Limit returns
// every match. Create and Update report ErrSlugTaken or ErrSKUTaken on
// duplicates.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
	Find(ctx context.Context, q Query) ([]Product, error)
	Count(ctx context.Context, f Filter) (int, error)
	SetRating(ctx context.Context, id string, r Rating) error
}

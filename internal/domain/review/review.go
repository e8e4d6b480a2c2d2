// Package review stores product reviews. Only customers with a live order
// for a product may review it, once.
package review

import (
	"context"
	"time"

	"github.com/example/ec-storefront/internal/apperror"
)

const maxCommentLen = 1000

var (
	ErrNotFound        = apperror.NotFound("Review not found")
	ErrMissingField    = apperror.BadRequest("Product and rating are required.")
	ErrProductRequired = apperror.BadRequest("Product ID is required.")
	ErrInvalidRating   = apperror.BadRequest("Rating must be between 1 and 5")
	ErrCommentTooLong  = apperror.BadRequest("Comment must not exceed 1000 characters")
	ErrNotPurchased    = apperror.Forbidden("You need to purchase this product before leaving a review.")
	ErrAlreadyReviewed = apperror.BadRequest("You have already reviewed this product.")
)

type Review struct {
	ID        string `json:"id"`
	UserID    string `json:"user"`
	UserName  string `json:"userName"`
	ProductID string `json:"product"`
	// OrderID is the purchase that allowed the review.
	OrderID   string    `json:"order"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	Hidden    bool      `json:"hidden"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Stats summarizes the visible reviews of a product.
type Stats struct {
	Average float64
	Count   int
}

// Repository persists reviews. Create reports ErrAlreadyReviewed when the
// user already reviewed the product.
type Repository interface {
	Create(ctx context.Context, r *Review) error
	Get(ctx context.Context, id string) (*Review, error)
	Exists(ctx context.Context, userID, productID string) (bool, error)
	ListByProduct(ctx context.Context, productID string) ([]Review, error)
	List(ctx context.Context) ([]Review, error)
	SetHidden(ctx context.Context, id string, hidden bool) (*Review, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context, productID string) (Stats, error)
}

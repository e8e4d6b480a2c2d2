package review

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
)

// Purchases proves that a user bought a product.
type Purchases interface {
	PurchaseOf(ctx context.Context, userID, productID string) (string, error)
}

// Ratings receives the recomputed product rating.
type Ratings interface {
	SetRating(ctx context.Context, productID string, r product.Rating) error
}

type Service struct {
	repo      Repository
	purchases Purchases
	ratings   Ratings
	now       func() time.Time
}

func NewService(repo Repository, purchases Purchases, ratings Ratings) *Service {
	return &Service{repo: repo, purchases: purchases, ratings: ratings, now: time.Now}
}

// Author is the reviewer; the name is stored with the review.
type Author struct {
	ID   string
	Name string
}

type Input struct {
	ProductID string `json:"product"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

func (s *Service) Create(ctx context.Context, author Author, in Input) (*Review, error) {
	in.Comment = strings.TrimSpace(in.Comment)
	switch {
	case in.ProductID == "" || in.Rating == 0:
		return nil, ErrMissingField
	case in.Rating < 1 || in.Rating > 5:
		return nil, ErrInvalidRating
	case len([]rune(in.Comment)) > maxCommentLen:
		return nil, ErrCommentTooLong
	}

	orderID, err := s.purchases.PurchaseOf(ctx, author.ID, in.ProductID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, ErrNotPurchased
		}
		return nil, errors.Wrap(err, "find purchase")
	}
	dup, err := s.repo.Exists(ctx, author.ID, in.ProductID)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, ErrAlreadyReviewed
	}

	now := s.now().UTC()
	r := &Review{
		ID:        uuid.NewString(),
		UserID:    author.ID,
		UserName:  author.Name,
		ProductID: in.ProductID,
		OrderID:   orderID,
		Rating:    in.Rating,
		Comment:   in.Comment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, err
	}
	s.refreshRating(ctx, r.ProductID)
	return r, nil
}

// ForProduct lists the visible reviews of a product.
func (s *Service) ForProduct(ctx context.Context, productID string) ([]Review, error) {
	if productID == "" {
		return nil, ErrProductRequired
	}
	return s.repo.ListByProduct(ctx, productID)
}

func (s *Service) List(ctx context.Context) ([]Review, error) {
	return s.repo.List(ctx)
}

// SetHidden hides or restores a review and updates the product rating.
func (s *Service) SetHidden(ctx context.Context, id string, hidden bool) (*Review, error) {
	r, err := s.repo.SetHidden(ctx, id, hidden)
	if err != nil {
		return nil, err
	}
	s.refreshRating(ctx, r.ProductID)
	return r, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.refreshRating(ctx, r.ProductID)
	return nil
}

// refreshRating recomputes the product's rating from visible reviews. The
// review write has already succeeded, so failures are only logged.
func (s *Service) refreshRating(ctx context.Context, productID string) {
	st, err := s.repo.Stats(ctx, productID)
	if err == nil {
		err = s.ratings.SetRating(ctx, productID, product.Rating{
			Average: math.Round(st.Average*10) / 10,
			Count:   st.Count,
		})
	}
	if err != nil {
		zctx.From(ctx).Warn("Refresh product rating",
			zap.String("product_id", productID),
			zap.Error(err),
		)
	}
}

package store

import (
	"context"

	"github.com/example/ec-storefront/internal/domain/review"
)

type MemoryReviewRepository struct {
	t *table[review.Review]
}

func NewMemoryReviewRepository() *MemoryReviewRepository {
	return &MemoryReviewRepository{t: newTable[review.Review](nil)}
}

func (r *MemoryReviewRepository) Create(_ context.Context, rv *review.Review) error {
	return r.t.insert(rv.ID, *rv, func(existing review.Review) error {
		if existing.UserID == rv.UserID && existing.ProductID == rv.ProductID {
			return review.ErrAlreadyReviewed
		}
		return nil
	})
}

func (r *MemoryReviewRepository) Get(_ context.Context, id string) (*review.Review, error) {
	rv, ok := r.t.get(id)
	if !ok {
		return nil, review.ErrNotFound
	}
	return &rv, nil
}

func (r *MemoryReviewRepository) Exists(_ context.Context, userID, productID string) (bool, error) {
	return r.t.count(func(rv review.Review) bool {
		return rv.UserID == userID && rv.ProductID == productID
	}) > 0, nil
}

func (r *MemoryReviewRepository) ListByProduct(_ context.Context, productID string) ([]review.Review, error) {
	return newestReviews(r.t.find(func(rv review.Review) bool {
		return rv.ProductID == productID && !rv.Hidden
	})), nil
}

func (r *MemoryReviewRepository) List(context.Context) ([]review.Review, error) {
	return newestReviews(r.t.find(nil)), nil
}

func (r *MemoryReviewRepository) SetHidden(_ context.Context, id string, hidden bool) (*review.Review, error) {
	var out review.Review
	ok, _ := r.t.mutate(id, func(rv *review.Review) error {
		rv.Hidden = hidden
		out = *rv
		return nil
	})
	if !ok {
		return nil, review.ErrNotFound
	}
	return &out, nil
}

func (r *MemoryReviewRepository) Delete(_ context.Context, id string) error {
	if !r.t.remove(id) {
		return review.ErrNotFound
	}
	return nil
}

func (r *MemoryReviewRepository) Stats(_ context.Context, productID string) (review.Stats, error) {
	var st review.Stats
	sum := 0
	for _, rv := range r.t.find(func(rv review.Review) bool { return rv.ProductID == productID && !rv.Hidden }) {
		sum += rv.Rating
		st.Count++
	}
	if st.Count > 0 {
		st.Average = float64(sum) / float64(st.Count)
	}
	return st, nil
}

func newestReviews(rs []review.Review) []review.Review {
	sortByCreated(rs, func(rv review.Review) int64 { return rv.CreatedAt.UnixNano() })
	return rs
}

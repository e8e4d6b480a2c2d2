package store

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"

	"github.com/example/ec-storefront/internal/domain/review"
)

// PostgresReviewRepository implements review.Repository. The
// (user_id, product_id) unique constraint enforces one review per product.
type PostgresReviewRepository struct {
	db *sql.DB
}

func NewPostgresReviewRepository(db *sql.DB) *PostgresReviewRepository {
	return &PostgresReviewRepository{db: db}
}

const reviewSelect = `SELECT id, user_id, user_name, product_id, order_id, rating, comment, hidden,
	created_at, updated_at FROM reviews `

func scanReview(row rowScanner) (*review.Review, error) {
	var rv review.Review
	err := row.Scan(&rv.ID, &rv.UserID, &rv.UserName, &rv.ProductID, &rv.OrderID, &rv.Rating, &rv.Comment,
		&rv.Hidden, &rv.CreatedAt, &rv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rv, nil
}

func (r *PostgresReviewRepository) Create(ctx context.Context, rv *review.Review) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reviews (id, user_id, user_name, product_id, order_id, rating, comment, hidden, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rv.ID, rv.UserID, rv.UserName, rv.ProductID, rv.OrderID, rv.Rating, rv.Comment, rv.Hidden,
		rv.CreatedAt, rv.UpdatedAt)
	if _, ok := uniqueViolation(err); ok {
		return review.ErrAlreadyReviewed
	}
	if err != nil {
		return errors.Wrap(err, "insert review")
	}
	return nil
}

func (r *PostgresReviewRepository) Get(ctx context.Context, id string) (*review.Review, error) {
	rv, err := scanReview(r.db.QueryRowContext(ctx, reviewSelect+`WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, review.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get review")
	}
	return rv, nil
}

func (r *PostgresReviewRepository) Exists(ctx context.Context, userID, productID string) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM reviews WHERE user_id = $1 AND product_id = $2)
	`, userID, productID).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "check review")
	}
	return exists, nil
}

func (r *PostgresReviewRepository) list(ctx context.Context, where string, args ...any) ([]review.Review, error) {
	rows, err := r.db.QueryContext(ctx, reviewSelect+where+` ORDER BY created_at DESC, id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query reviews")
	}
	return scanAll(rows, scanReview)
}

func (r *PostgresReviewRepository) ListByProduct(ctx context.Context, productID string) ([]review.Review, error) {
	return r.list(ctx, `WHERE product_id = $1 AND NOT hidden`, productID)
}

func (r *PostgresReviewRepository) List(ctx context.Context) ([]review.Review, error) {
	return r.list(ctx, "")
}

func (r *PostgresReviewRepository) SetHidden(ctx context.Context, id string, hidden bool) (*review.Review, error) {
	rv, err := scanReview(r.db.QueryRowContext(ctx, `
		UPDATE reviews SET hidden = $2, updated_at = now() WHERE id = $1
		RETURNING id, user_id, user_name, product_id, order_id, rating, comment, hidden, created_at, updated_at
	`, id, hidden))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, review.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "set review visibility")
	}
	return rv, nil
}

func (r *PostgresReviewRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete review")
	}
	return affected(res, review.ErrNotFound)
}

func (r *PostgresReviewRepository) Stats(ctx context.Context, productID string) (review.Stats, error) {
	var st review.Stats
	if err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(avg(rating), 0)::float8, count(*) FROM reviews WHERE product_id = $1 AND NOT hidden
	`, productID).Scan(&st.Average, &st.Count); err != nil {
		return review.Stats{}, errors.Wrap(err, "review stats")
	}
	return st, nil
}

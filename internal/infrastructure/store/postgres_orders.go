package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/go-faster/errors"

	"github.com/example/ec-storefront/internal/domain/coupon"
	"github.com/example/ec-storefront/internal/domain/order"
)

// PostgresOrderRepository implements order.Repository. Items, address and
// the coupon snapshot are JSONB documents; contact_email duplicates the
// lowered address email for guest lookups.
type PostgresOrderRepository struct {
	db *sql.DB
}

func NewPostgresOrderRepository(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

const orderSelect = `SELECT id, custom_order_id, user_id, items, address, payment_method, is_paid, paid_at,
	subtotal, total_amount, coupon, status, can_modify, cancelled_at, created_at, updated_at FROM orders `

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o                   order.Order
		quote               *coupon.Quote
		paidAt, cancelledAt sql.NullTime
	)
	err := row.Scan(&o.ID, &o.CustomOrderID, &o.UserID, asJSON(&o.Items), asJSON(&o.Address), &o.PaymentMethod,
		&o.IsPaid, &paidAt, &o.Subtotal, &o.TotalAmount, asJSON(&quote), &o.Status, &o.CanModify, &cancelledAt,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if o.Items == nil {
		o.Items = []order.Item{}
	}
	o.Coupon = quote
	o.PaidAt = timePtr(paidAt)
	o.CancelledAt = timePtr(cancelledAt)
	return &o, nil
}

func contactEmail(o *order.Order) string {
	return strings.ToLower(strings.TrimSpace(o.Address.Email))
}

func (r *PostgresOrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (id, custom_order_id, user_id, contact_email, items, address, payment_method,
			is_paid, paid_at, subtotal, total_amount, coupon, status, can_modify, cancelled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, o.ID, o.CustomOrderID, o.UserID, contactEmail(o), asJSON(&o.Items), asJSON(&o.Address), o.PaymentMethod,
		o.IsPaid, nullTime(o.PaidAt), o.Subtotal, o.TotalAmount, asJSON(&o.Coupon), o.Status, o.CanModify,
		nullTime(o.CancelledAt), o.CreatedAt, o.UpdatedAt)
	if constraint, ok := uniqueViolation(err); ok && constraint == "orders_custom_order_id_key" {
		return order.ErrCustomIDTaken
	}
	if err != nil {
		return errors.Wrap(err, "insert order")
	}
	return nil
}

// Update holds a row lock on the order while fn runs.
func (r *PostgresOrderRepository) Update(ctx context.Context, id string, fn func(*order.Order) error) (*order.Order, error) {
	var out *order.Order
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		o, err := scanOrder(tx.QueryRowContext(ctx, orderSelect+`WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return order.ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "lock order")
		}
		if err := fn(o); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE orders SET user_id = $2, contact_email = $3, items = $4, address = $5, payment_method = $6,
				is_paid = $7, paid_at = $8, subtotal = $9, total_amount = $10, coupon = $11, status = $12,
				can_modify = $13, cancelled_at = $14, updated_at = $15
			WHERE id = $1
		`, o.ID, o.UserID, contactEmail(o), asJSON(&o.Items), asJSON(&o.Address), o.PaymentMethod, o.IsPaid,
			nullTime(o.PaidAt), o.Subtotal, o.TotalAmount, asJSON(&o.Coupon), o.Status, o.CanModify,
			nullTime(o.CancelledAt), o.UpdatedAt); err != nil {
			return errors.Wrap(err, "write order")
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresOrderRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete order")
	}
	return affected(res, order.ErrNotFound)
}

func (r *PostgresOrderRepository) getOne(ctx context.Context, where string, arg any) (*order.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, orderSelect+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

func (r *PostgresOrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *PostgresOrderRepository) GetByCustomID(ctx context.Context, customID int) (*order.Order, error) {
	return r.getOne(ctx, `WHERE custom_order_id = $1`, customID)
}

func (r *PostgresOrderRepository) CustomIDExists(ctx context.Context, customID int) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE custom_order_id = $1)`, customID).
		Scan(&exists); err != nil {
		return false, errors.Wrap(err, "check custom order id")
	}
	return exists, nil
}

func (r *PostgresOrderRepository) list(ctx context.Context, where string, args ...any) ([]order.Order, error) {
	rows, err := r.db.QueryContext(ctx, orderSelect+where+` ORDER BY created_at DESC, id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	return scanAll(rows, scanOrder)
}

func (r *PostgresOrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	return r.list(ctx, `WHERE user_id = $1`, userID)
}

func (r *PostgresOrderRepository) ListByEmail(ctx context.Context, email string) ([]order.Order, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return []order.Order{}, nil
	}
	return r.list(ctx, `WHERE contact_email = $1`, email)
}

func (r *PostgresOrderRepository) List(ctx context.Context) ([]order.Order, error) {
	return r.list(ctx, "")
}

func (r *PostgresOrderRepository) FindPurchase(ctx context.Context, userID, productID string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM orders
		WHERE user_id = $1 AND status <> $2
			AND items @> jsonb_build_array(jsonb_build_object('product', $3::text))
		ORDER BY created_at DESC, id
		LIMIT 1
	`, userID, order.StatusCancelled, productID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", order.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "find purchase")
	}
	return id, nil
}

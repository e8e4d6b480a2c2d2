package store

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"
	"github.com/lib/pq"

	"github.com/example/ec-storefront/internal/domain/coupon"
)

// PostgresCouponRepository implements coupon.Repository. used_count is kept
// next to the definition so the usage ceiling is a single conditional
// UPDATE; the redemption ledger lives in coupon_redemptions.
type PostgresCouponRepository struct {
	db *sql.DB
}

func NewPostgresCouponRepository(db *sql.DB) *PostgresCouponRepository {
	return &PostgresCouponRepository{db: db}
}

const couponSelect = `SELECT c.id, c.code, c.type, c.value, c.min_subtotal, c.usage_limit, c.used_count,
	c.start_date, c.expiry_date, c.created_at, c.updated_at,
	ARRAY(SELECT r.user_id FROM coupon_redemptions r WHERE r.coupon_id = c.id AND r.user_id <> '' ORDER BY r.redeemed_at),
	ARRAY(SELECT r.email FROM coupon_redemptions r WHERE r.coupon_id = c.id AND r.email <> '' ORDER BY r.redeemed_at)
	FROM coupons c `

func scanCoupon(row rowScanner) (*coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(&c.ID, &c.Code, &c.Type, &c.Value, &c.MinSubtotal, &c.UsageLimit, &c.UsedCount,
		&c.StartDate, &c.ExpiryDate, &c.CreatedAt, &c.UpdatedAt,
		pq.Array(&c.UsersUsed), pq.Array(&c.EmailsUsed))
	if err != nil {
		return nil, err
	}
	c.UsersUsed = nonNil(c.UsersUsed)
	c.EmailsUsed = nonNil(c.EmailsUsed)
	return &c, nil
}

func couponErr(err error) error {
	if _, ok := uniqueViolation(err); ok {
		return coupon.ErrCodeTaken
	}
	return err
}

func (r *PostgresCouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO coupons (id, code, type, value, min_subtotal, usage_limit, used_count,
			start_date, expiry_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, $10)
	`, c.ID, c.Code, c.Type, c.Value, c.MinSubtotal, c.UsageLimit, c.StartDate, c.ExpiryDate, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return errors.Wrap(couponErr(err), "insert coupon")
	}
	return nil
}

func (r *PostgresCouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE coupons SET code = $2, type = $3, value = $4, min_subtotal = $5, usage_limit = $6,
			start_date = $7, expiry_date = $8, updated_at = $9
		WHERE id = $1
	`, c.ID, c.Code, c.Type, c.Value, c.MinSubtotal, c.UsageLimit, c.StartDate, c.ExpiryDate, c.UpdatedAt)
	if err != nil {
		return errors.Wrap(couponErr(err), "update coupon")
	}
	return affected(res, coupon.ErrNotFound)
}

func (r *PostgresCouponRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete coupon")
	}
	return affected(res, coupon.ErrNotFound)
}

func (r *PostgresCouponRepository) getOne(ctx context.Context, where string, arg any) (*coupon.Coupon, error) {
	c, err := scanCoupon(r.db.QueryRowContext(ctx, couponSelect+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, coupon.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get coupon")
	}
	return c, nil
}

func (r *PostgresCouponRepository) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	return r.getOne(ctx, `WHERE c.id = $1`, id)
}

func (r *PostgresCouponRepository) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.getOne(ctx, `WHERE c.code = $1`, code)
}

func (r *PostgresCouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.db.QueryContext(ctx, couponSelect+`ORDER BY c.created_at DESC, c.id`)
	if err != nil {
		return nil, errors.Wrap(err, "query coupons")
	}
	return scanAll(rows, scanCoupon)
}

// Redeem locks the coupon row, checks reuse against the ledger, then bumps
// used_count only while it is below usage_limit. A zero-row update means
// the last use went to someone else.
func (r *PostgresCouponRepository) Redeem(ctx context.Context, red coupon.Redemption) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		var couponID string
		err := tx.QueryRowContext(ctx, `SELECT id FROM coupons WHERE code = $1 FOR UPDATE`, red.Code).Scan(&couponID)
		if errors.Is(err, sql.ErrNoRows) {
			return coupon.ErrInvalidCode
		}
		if err != nil {
			return errors.Wrap(err, "lock coupon")
		}

		var redeemed, reused bool
		if err := tx.QueryRowContext(ctx, `
			SELECT
				EXISTS (SELECT 1 FROM coupon_redemptions WHERE order_id = $1),
				EXISTS (SELECT 1 FROM coupon_redemptions WHERE coupon_id = $2
					AND (($3::text <> '' AND user_id = $3) OR ($4::text <> '' AND lower(email) = lower($4))))
		`, red.OrderID, couponID, red.UserID, red.Email).Scan(&redeemed, &reused); err != nil {
			return errors.Wrap(err, "check redemption")
		}
		if redeemed {
			return nil
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE coupons SET used_count = used_count + 1
			WHERE id = $1 AND used_count < usage_limit
		`, couponID)
		if err != nil {
			return errors.Wrap(err, "increment usage")
		}
		if err := affected(res, coupon.ErrExhausted); err != nil {
			return err
		}
		if reused {
			return coupon.ErrAlreadyUsed
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO coupon_redemptions (order_id, coupon_id, user_id, email, redeemed_at)
			VALUES ($1, $2, $3, $4, $5)
		`, red.OrderID, couponID, red.UserID, red.Email, red.RedeemedAt); err != nil {
			return errors.Wrap(err, "record redemption")
		}
		return nil
	})
}

func (r *PostgresCouponRepository) Release(ctx context.Context, orderID string) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		var couponID string
		err := tx.QueryRowContext(ctx, `DELETE FROM coupon_redemptions WHERE order_id = $1 RETURNING coupon_id`, orderID).
			Scan(&couponID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "delete redemption")
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE coupons SET used_count = used_count - 1 WHERE id = $1 AND used_count > 0
		`, couponID); err != nil {
			return errors.Wrap(err, "decrement usage")
		}
		return nil
	})
}

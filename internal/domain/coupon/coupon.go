// Package coupon validates promotional codes and records their redemption.
package coupon

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/apperror"
)

type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

var hundred = decimal.NewFromInt(100)

var (
	ErrInvalidCode     = apperror.NotFound("Invalid code.")
	ErrNotFound        = apperror.NotFound("Coupon not found")
	ErrInactive        = apperror.BadRequest("Coupon expired or not active.")
	ErrExhausted       = apperror.BadRequest("Usage limit reached.")
	ErrAlreadyUsed     = apperror.BadRequest("You have already used this coupon.")
	ErrBelowMinimum    = apperror.BadRequest("Minimum cart value not reached.")
	ErrCodeTaken       = apperror.Conflict("Coupon code already exists")
	ErrMissingField    = apperror.BadRequest("Code, type, value, startDate, and expiryDate are required")
	ErrInvalidType     = apperror.BadRequest("Coupon type must be percentage or fixed")
	ErrInvalidValue    = apperror.BadRequest("Coupon value must be positive")
	ErrInvalidPercent  = apperror.BadRequest("Percentage coupons cannot exceed 100")
	ErrInvalidWindow   = apperror.BadRequest("expiryDate must be after startDate")
	ErrInvalidLimit    = apperror.BadRequest("usageLimit must be at least 1")
	ErrInvalidMinimum  = apperror.BadRequest("minSubtotal cannot be negative")
	ErrInvalidSubtotal = apperror.BadRequest("subtotal must be a non-negative number")
)

type Coupon struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	Type        Type            `json:"type"`
	Value       decimal.Decimal `json:"value"`
	MinSubtotal decimal.Decimal `json:"minSubtotal"`
	UsageLimit  int             `json:"usageLimit"`
	UsedCount   int             `json:"usedCount"`
	StartDate   time.Time       `json:"startDate"`
	ExpiryDate  time.Time       `json:"expiryDate"`
	// UsersUsed and EmailsUsed are derived from the redemption ledger.
	UsersUsed  []string  `json:"usersUsed"`
	EmailsUsed []string  `json:"emailsUsed"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NormalizeCode is how codes are stored and looked up.
func NormalizeCode(code string) string { return strings.ToUpper(strings.TrimSpace(code)) }

// NormalizeEmail is how emails are compared for reuse.
func NormalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Discount is the amount taken off subtotal, rounded to cents and never
// more than subtotal or less than zero.
func (c *Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}
	var d decimal.Decimal
	switch c.Type {
	case TypePercentage:
		d = subtotal.Mul(c.Value).Div(hundred)
	case TypeFixed:
		d = c.Value
	}
	d = d.Round(2)
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(subtotal) {
		return subtotal
	}
	return d
}

// Active reports whether now falls within the validity window, inclusive.
func (c *Coupon) Active(now time.Time) bool {
	return !now.Before(c.StartDate) && !now.After(c.ExpiryDate)
}

// UsedBy reports whether the user id or, case-insensitively, the email has
// already redeemed the coupon.
func (c *Coupon) UsedBy(userID, email string) bool {
	if userID != "" && slices.Contains(c.UsersUsed, userID) {
		return true
	}
	email = NormalizeEmail(email)
	return email != "" && slices.ContainsFunc(c.EmailsUsed, func(e string) bool {
		return NormalizeEmail(e) == email
	})
}

// Check runs the acceptance rules in order: window, usage limit, reuse by
// this identity, minimum subtotal.
func (c *Coupon) Check(now time.Time, subtotal decimal.Decimal, userID, email string) error {
	switch {
	case !c.Active(now):
		return ErrInactive
	case c.UsedCount >= c.UsageLimit:
		return ErrExhausted
	case c.UsedBy(userID, email):
		return ErrAlreadyUsed
	case subtotal.LessThan(c.MinSubtotal):
		return ErrBelowMinimum.Withf("Minimum cart value is %s.", c.MinSubtotal.String())
	}
	return nil
}

// Quote is an accepted coupon priced against a subtotal. Orders embed it
// as a frozen snapshot.
type Quote struct {
	Code     string          `json:"code"`
	Type     Type            `json:"type"`
	Value    decimal.Decimal `json:"value"`
	Discount decimal.Decimal `json:"discount"`
}

// Redemption is one use of a coupon, keyed by the order that used it.
type Redemption struct {
	OrderID    string    `json:"orderId"`
	Code       string    `json:"code"`
	UserID     string    `json:"userId,omitempty"`
	Email      string    `json:"email,omitempty"`
	RedeemedAt time.Time `json:"redeemedAt"`
}

// Repository persists coupons and their redemption ledger.
//
// Update changes the definition only; usage counters are owned by Redeem
// and Release.
//
// Redeem must be atomic: it records r and increments the usage counter only
// if the coupon is below its limit and neither r.UserID nor r.Email has
// redeemed it before, returning ErrExhausted or ErrAlreadyUsed otherwise.
// Redeeming an OrderID that is already in the ledger is a no-op. Release
// undoes the redemption for an order, if any.
type Repository interface {
	Create(ctx context.Context, c *Coupon) error
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Coupon, error)
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	Redeem(ctx context.Context, r Redemption) error
	Release(ctx context.Context, orderID string) error
}

package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/metrics"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Quote validates code for the given identity and prices it against
// subtotal. Codes are matched case-insensitively.
func (s *Service) Quote(ctx context.Context, code string, subtotal decimal.Decimal, userID, email string) (*Quote, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidCode
	}
	if subtotal.IsNegative() {
		return nil, ErrInvalidSubtotal
	}
	c, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, err
	}
	if err := c.Check(s.now(), subtotal, userID, email); err != nil {
		return nil, err
	}
	return &Quote{Code: c.Code, Type: c.Type, Value: c.Value, Discount: c.Discount(subtotal)}, nil
}

// Redeem records one use of code by orderID. Retrying with the same order
// is safe.
func (s *Service) Redeem(ctx context.Context, orderID, code, userID, email string) error {
	err := s.repo.Redeem(ctx, Redemption{
		OrderID:    orderID,
		Code:       NormalizeCode(code),
		UserID:     userID,
		Email:      NormalizeEmail(email),
		RedeemedAt: s.now().UTC(),
	})
	switch {
	case err == nil:
		metrics.RecordCouponRedemption("redeemed")
	case errors.Is(err, ErrExhausted):
		metrics.RecordCouponRedemption("exhausted")
	case errors.Is(err, ErrAlreadyUsed):
		metrics.RecordCouponRedemption("already_used")
	default:
		metrics.RecordCouponRedemption("error")
	}
	return err
}

// Release undoes the redemption made for orderID.
func (s *Service) Release(ctx context.Context, orderID string) error {
	if err := s.repo.Release(ctx, orderID); err != nil {
		return err
	}
	metrics.RecordCouponRedemption("released")
	return nil
}

// Input creates a coupon. Nil MinSubtotal defaults to zero and nil
// UsageLimit to one.
type Input struct {
	Code        string           `json:"code"`
	Type        Type             `json:"type"`
	Value       decimal.Decimal  `json:"value"`
	MinSubtotal *decimal.Decimal `json:"minSubtotal"`
	UsageLimit  *int             `json:"usageLimit"`
	StartDate   time.Time        `json:"startDate"`
	ExpiryDate  time.Time        `json:"expiryDate"`
}

// Patch updates the non-nil fields.
type Patch struct {
	Code        *string          `json:"code"`
	Type        *Type            `json:"type"`
	Value       *decimal.Decimal `json:"value"`
	MinSubtotal *decimal.Decimal `json:"minSubtotal"`
	UsageLimit  *int             `json:"usageLimit"`
	StartDate   *time.Time       `json:"startDate"`
	ExpiryDate  *time.Time       `json:"expiryDate"`
}

func validate(c *Coupon) error {
	switch {
	case c.Code == "" || c.Value.IsZero() || c.StartDate.IsZero() || c.ExpiryDate.IsZero():
		return ErrMissingField
	case c.Type != TypePercentage && c.Type != TypeFixed:
		return ErrInvalidType
	case !c.Value.IsPositive():
		return ErrInvalidValue
	case c.Type == TypePercentage && c.Value.GreaterThan(hundred):
		return ErrInvalidPercent
	case !c.ExpiryDate.After(c.StartDate):
		return ErrInvalidWindow
	case c.UsageLimit < 1:
		return ErrInvalidLimit
	case c.MinSubtotal.IsNegative():
		return ErrInvalidMinimum
	}
	return nil
}

func (s *Service) Create(ctx context.Context, in Input) (*Coupon, error) {
	now := s.now().UTC()
	c := &Coupon{
		ID:          uuid.NewString(),
		Code:        NormalizeCode(in.Code),
		Type:        Type(strings.ToLower(string(in.Type))),
		Value:       in.Value,
		MinSubtotal: decimal.Zero,
		UsageLimit:  1,
		StartDate:   in.StartDate,
		ExpiryDate:  in.ExpiryDate,
		UsersUsed:   []string{},
		EmailsUsed:  []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.MinSubtotal != nil {
		c.MinSubtotal = *in.MinSubtotal
	}
	if in.UsageLimit != nil {
		c.UsageLimit = *in.UsageLimit
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Update(ctx context.Context, id string, p Patch) (*Coupon, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Code != nil && strings.TrimSpace(*p.Code) != "" {
		c.Code = NormalizeCode(*p.Code)
	}
	if p.Type != nil && *p.Type != "" {
		c.Type = Type(strings.ToLower(string(*p.Type)))
	}
	if p.Value != nil {
		c.Value = *p.Value
	}
	if p.MinSubtotal != nil {
		c.MinSubtotal = *p.MinSubtotal
	}
	if p.UsageLimit != nil {
		c.UsageLimit = *p.UsageLimit
	}
	if p.StartDate != nil {
		c.StartDate = *p.StartDate
	}
	if p.ExpiryDate != nil {
		c.ExpiryDate = *p.ExpiryDate
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Coupon, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	return s.repo.List(ctx)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

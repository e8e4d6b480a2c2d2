package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/domain/coupon"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/events"
	"github.com/example/ec-storefront/internal/metrics"
)

// Products resolves the catalog entries an order snapshots.
type Products interface {
	Lookup(ctx context.Context, ids []string) (map[string]product.Product, error)
}

// Coupons validates and redeems codes at checkout.
type Coupons interface {
	Quote(ctx context.Context, code string, subtotal decimal.Decimal, userID, email string) (*coupon.Quote, error)
	Redeem(ctx context.Context, orderID, code, userID, email string) error
	Release(ctx context.Context, orderID string) error
}

type Service struct {
	repo      Repository
	products  Products
	coupons   Coupons
	publisher events.Publisher
	ids       *IDGenerator
	now       func() time.Time
}

func NewService(repo Repository, products Products, coupons Coupons, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		repo:      repo,
		products:  products,
		coupons:   coupons,
		publisher: publisher,
		ids:       NewIDGenerator(repo.CustomIDExists),
		now:       time.Now,
	}
}

type ItemInput struct {
	ProductID string          `json:"product"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Size      string          `json:"size"`
	Color     string          `json:"color"`
}

// PlaceInput is a checkout request. TotalAmount is what the client computed;
// it is accepted but the stored total is always recomputed.
type PlaceInput struct {
	Items         []ItemInput      `json:"items"`
	Address       Address          `json:"address"`
	PaymentMethod string           `json:"paymentMethod"`
	IsPaid        bool             `json:"isPaid"`
	TotalAmount   *decimal.Decimal `json:"totalAmount"`
	CouponCode    string           `json:"couponCode"`
}

// Place validates the items, prices them as submitted, applies and redeems
// the coupon if any, and persists the order under a fresh customOrderId.
//
// The coupon is redeemed before the order is written, keyed by the order's
// id, so an exhausted coupon rejects the checkout without leaving an order
// behind. A failed write releases the redemption again.
func (s *Service) Place(ctx context.Context, userID string, in PlaceInput) (_ *Order, err error) {
	defer func() { metrics.RecordOrderOperation("place", err) }()

	items, err := s.snapshot(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal())
	}
	subtotal = subtotal.Round(2)

	now := s.now().UTC()
	addr := Address{}
	addr.Merge(in.Address)
	o := &Order{
		ID:            uuid.NewString(),
		UserID:        userID,
		Items:         items,
		Address:       addr,
		PaymentMethod: strings.TrimSpace(in.PaymentMethod),
		Subtotal:      subtotal,
		TotalAmount:   subtotal,
		Status:        StatusPending,
		CanModify:     true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	o.setPaid(in.IsPaid, now)
	if in.TotalAmount != nil && !in.TotalAmount.Equal(o.TotalAmount) {
		zctx.From(ctx).Debug("Declared total differs",
			zap.String("declared", in.TotalAmount.String()),
			zap.String("subtotal", subtotal.String()),
		)
	}

	if code := strings.TrimSpace(in.CouponCode); code != "" {
		q, err := s.coupons.Quote(ctx, code, subtotal, userID, addr.Email)
		if err != nil {
			return nil, err
		}
		if err := s.coupons.Redeem(ctx, o.ID, q.Code, userID, addr.Email); err != nil {
			return nil, err
		}
		o.Coupon = q
		o.TotalAmount = subtotal.Sub(q.Discount)
		if o.TotalAmount.IsNegative() {
			o.TotalAmount = decimal.Zero
		}
	}

	if err := s.insert(ctx, o); err != nil {
		if o.Coupon != nil {
			if rerr := s.coupons.Release(ctx, o.ID); rerr != nil {
				zctx.From(ctx).Warn("Release coupon after failed order",
					zap.String("order_id", o.ID),
					zap.String("coupon", o.Coupon.Code),
					zap.Error(rerr),
				)
			}
		}
		return nil, err
	}

	s.publish(ctx, events.OrderPlaced, o)
	return o, nil
}

// insert allocates a customOrderId and writes o, drawing a new id when a
// concurrent checkout took the same one.
func (s *Service) insert(ctx context.Context, o *Order) error {
	for range idAttempts {
		id, err := s.ids.Next(ctx)
		if err != nil {
			return err
		}
		o.CustomOrderID = id
		err = s.repo.Create(ctx, o)
		if errors.Is(err, ErrCustomIDTaken) {
			continue
		}
		if err != nil {
			return errors.Wrap(err, "create order")
		}
		return nil
	}
	return ErrIDSpaceExhausted
}

func (s *Service) snapshot(ctx context.Context, in []ItemInput) ([]Item, error) {
	if len(in) == 0 {
		return nil, ErrNoItems
	}
	ids := make([]string, 0, len(in))
	for _, it := range in {
		if it.ProductID == "" || it.Quantity < 1 || it.Price.IsNegative() {
			return nil, ErrInvalidItem
		}
		ids = append(ids, it.ProductID)
	}
	found, err := s.products.Lookup(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "lookup products")
	}
	items := make([]Item, 0, len(in))
	for _, it := range in {
		p, ok := found[it.ProductID]
		if !ok {
			return nil, ErrUnknownProduct.Withf("Product not found: %s", it.ProductID)
		}
		item := Item{
			ProductID: p.ID,
			Title:     p.Title,
			Price:     it.Price,
			Quantity:  it.Quantity,
			Size:      it.Size,
			Color:     it.Color,
		}
		if len(p.Images) > 0 {
			item.Image = p.Images[0]
		}
		items = append(items, item)
	}
	return items, nil
}

// Get returns an order by id. When both the order and the caller are
// tied to a user, they must match.
func (s *Service) Get(ctx context.Context, id, userID string) (*Order, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.OwnedBy(userID) {
		return nil, ErrForbiddenView
	}
	return o, nil
}

func (s *Service) GetByCustomID(ctx context.Context, customID int) (*Order, error) {
	return s.repo.GetByCustomID(ctx, customID)
}

// ListByEmail is the guest lookup by contact email.
func (s *Service) ListByEmail(ctx context.Context, email string) ([]Order, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}
	orders, err := s.repo.ListByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, ErrNoOrdersForEmail
	}
	return orders, nil
}

func (s *Service) ListMine(ctx context.Context, userID string) ([]Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Cancel cancels the order identified by customID on behalf of userID.
func (s *Service) Cancel(ctx context.Context, userID string, customID int) (*Order, error) {
	return s.cancel(ctx, "cancel", customID, func(o *Order) error {
		if !o.OwnedBy(userID) {
			return ErrForbiddenCancel
		}
		return nil
	})
}

// CancelAsGuest cancels an order after matching the contact email.
func (s *Service) CancelAsGuest(ctx context.Context, customID int, email string) (*Order, error) {
	if customID == 0 || strings.TrimSpace(email) == "" {
		return nil, ErrGuestCancelFields
	}
	return s.cancel(ctx, "cancel_guest", customID, func(o *Order) error {
		if !o.EmailMatches(email) {
			return ErrEmailMismatch
		}
		return nil
	})
}

func (s *Service) cancel(ctx context.Context, op string, customID int, authorize func(*Order) error) (_ *Order, err error) {
	defer func() { metrics.RecordOrderOperation(op, err) }()

	found, err := s.repo.GetByCustomID(ctx, customID)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.Update(ctx, found.ID, func(o *Order) error {
		if err := authorize(o); err != nil {
			return err
		}
		if !o.Modifiable() {
			return ErrNotCancellable
		}
		now := s.now().UTC()
		o.cancel(now)
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.OrderCancelled, o)
	return o, nil
}

// Edit updates the address of a modifiable order. Signed-in callers must own
// the order; guests prove it with the contact email.
func (s *Service) Edit(ctx context.Context, userID string, customID int, email string, addr Address) (_ *Order, err error) {
	defer func() { metrics.RecordOrderOperation("edit", err) }()

	found, err := s.repo.GetByCustomID(ctx, customID)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.Update(ctx, found.ID, func(o *Order) error {
		if !o.Modifiable() {
			return ErrNotModifiable
		}
		if userID != "" {
			if !o.OwnedBy(userID) {
				return ErrForbiddenEdit
			}
		} else if !o.EmailMatches(email) {
			return ErrEmailVerification
		}
		o.Address.Merge(addr)
		o.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.OrderUpdated, o)
	return o, nil
}

// AdminPatch sets the non-nil fields without the modifiability gate.
type AdminPatch struct {
	Status        *Status  `json:"status"`
	PaymentMethod *string  `json:"paymentMethod"`
	CanModify     *bool    `json:"canModify"`
	IsPaid        *bool    `json:"isPaid"`
	Address       *Address `json:"address"`
}

func (s *Service) AdminGet(ctx context.Context, id string) (*Order, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) AdminList(ctx context.Context) ([]Order, error) {
	return s.repo.List(ctx)
}

func (s *Service) AdminUpdate(ctx context.Context, id string, p AdminPatch) (_ *Order, err error) {
	defer func() { metrics.RecordOrderOperation("admin_update", err) }()

	if p.Status != nil && *p.Status != "" && !p.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	o, err := s.repo.Update(ctx, id, func(o *Order) error {
		now := s.now().UTC()
		if p.Status != nil && *p.Status != "" {
			o.Status = *p.Status
			if o.Status == StatusCancelled && o.CancelledAt == nil {
				o.CancelledAt = &now
			}
		}
		if p.PaymentMethod != nil && strings.TrimSpace(*p.PaymentMethod) != "" {
			o.PaymentMethod = strings.TrimSpace(*p.PaymentMethod)
		}
		if p.CanModify != nil {
			o.CanModify = *p.CanModify
		}
		if p.IsPaid != nil {
			o.setPaid(*p.IsPaid, now)
		}
		if p.Address != nil {
			o.Address.Merge(*p.Address)
		}
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.OrderUpdated, o)
	return o, nil
}

// SetPaid marks the order paid, stamping paidAt, or unpaid, clearing it.
func (s *Service) SetPaid(ctx context.Context, id string, paid bool) (*Order, error) {
	return s.AdminUpdate(ctx, id, AdminPatch{IsPaid: &paid})
}

// AdminCancel cancels by internal id, still honoring the modifiability gate.
func (s *Service) AdminCancel(ctx context.Context, id string) (_ *Order, err error) {
	defer func() { metrics.RecordOrderOperation("admin_cancel", err) }()

	o, err := s.repo.Update(ctx, id, func(o *Order) error {
		if !o.Modifiable() {
			return ErrNotCancellable
		}
		now := s.now().UTC()
		o.cancel(now)
		o.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.OrderCancelled, o)
	return o, nil
}

func (s *Service) AdminDelete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// PurchaseOf returns the id of a non-cancelled order by userID that contains
// productID, or ErrNotFound.
func (s *Service) PurchaseOf(ctx context.Context, userID, productID string) (string, error) {
	return s.repo.FindPurchase(ctx, userID, productID)
}

func (s *Service) publish(ctx context.Context, typ string, o *Order) {
	e, err := events.New(typ, o.ID, o)
	if err == nil {
		err = s.publisher.Publish(ctx, e)
	}
	if err != nil {
		zctx.From(ctx).Warn("Publish order event",
			zap.String("type", typ),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}
}

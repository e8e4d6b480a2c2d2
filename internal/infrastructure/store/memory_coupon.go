package store

import (
	"context"
	"sort"
	"sync"

	"github.com/example/ec-storefront/internal/domain/coupon"
)

// MemoryCouponRepository keeps coupons and the redemption ledger under one
// lock, which makes Redeem's check and increment a single step.
type MemoryCouponRepository struct {
	mu          sync.Mutex
	coupons     map[string]coupon.Coupon
	redemptions map[string]coupon.Redemption // by order id
}

func NewMemoryCouponRepository() *MemoryCouponRepository {
	return &MemoryCouponRepository{
		coupons:     make(map[string]coupon.Coupon),
		redemptions: make(map[string]coupon.Redemption),
	}
}

// withUsage fills the ledger-derived fields. Callers hold mu.
func (r *MemoryCouponRepository) withUsage(c coupon.Coupon) coupon.Coupon {
	c.UsedCount = 0
	c.UsersUsed = []string{}
	c.EmailsUsed = []string{}
	ledger := make([]coupon.Redemption, 0)
	for _, red := range r.redemptions {
		if red.Code == c.Code {
			ledger = append(ledger, red)
		}
	}
	sort.Slice(ledger, func(i, j int) bool { return ledger[i].RedeemedAt.Before(ledger[j].RedeemedAt) })
	for _, red := range ledger {
		c.UsedCount++
		if red.UserID != "" {
			c.UsersUsed = append(c.UsersUsed, red.UserID)
		}
		if red.Email != "" {
			c.EmailsUsed = append(c.EmailsUsed, red.Email)
		}
	}
	return c
}

func (r *MemoryCouponRepository) codeTaken(id, code string) bool {
	for otherID, c := range r.coupons {
		if otherID != id && c.Code == code {
			return true
		}
	}
	return false
}

func (r *MemoryCouponRepository) Create(_ context.Context, c *coupon.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.codeTaken(c.ID, c.Code) {
		return coupon.ErrCodeTaken
	}
	r.coupons[c.ID] = *c
	return nil
}

func (r *MemoryCouponRepository) Update(_ context.Context, c *coupon.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.coupons[c.ID]
	if !ok {
		return coupon.ErrNotFound
	}
	if r.codeTaken(c.ID, c.Code) {
		return coupon.ErrCodeTaken
	}
	// The ledger is keyed by code; follow a rename.
	if old.Code != c.Code {
		for id, red := range r.redemptions {
			if red.Code == old.Code {
				red.Code = c.Code
				r.redemptions[id] = red
			}
		}
	}
	r.coupons[c.ID] = *c
	return nil
}

func (r *MemoryCouponRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok {
		return coupon.ErrNotFound
	}
	delete(r.coupons, id)
	for orderID, red := range r.redemptions {
		if red.Code == c.Code {
			delete(r.redemptions, orderID)
		}
	}
	return nil
}

func (r *MemoryCouponRepository) Get(_ context.Context, id string) (*coupon.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	c = r.withUsage(c)
	return &c, nil
}

func (r *MemoryCouponRepository) GetByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.coupons {
		if c.Code == code {
			c = r.withUsage(c)
			return &c, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (r *MemoryCouponRepository) List(context.Context) ([]coupon.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]coupon.Coupon, 0, len(r.coupons))
	for _, c := range r.coupons {
		out = append(out, r.withUsage(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryCouponRepository) Redeem(_ context.Context, red coupon.Redemption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.redemptions[red.OrderID]; ok {
		return nil
	}
	var found *coupon.Coupon
	for _, c := range r.coupons {
		if c.Code == red.Code {
			c = r.withUsage(c)
			found = &c
			break
		}
	}
	switch {
	case found == nil:
		return coupon.ErrInvalidCode
	case found.UsedCount >= found.UsageLimit:
		return coupon.ErrExhausted
	case found.UsedBy(red.UserID, red.Email):
		return coupon.ErrAlreadyUsed
	}
	r.redemptions[red.OrderID] = red
	return nil
}

func (r *MemoryCouponRepository) Release(_ context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.redemptions, orderID)
	return nil
}

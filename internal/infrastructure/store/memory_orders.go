package store

import (
	"context"
	"slices"

	"github.com/example/ec-storefront/internal/domain/order"
)

type MemoryOrderRepository struct {
	t *table[order.Order]
}

func cloneOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	if o.Coupon != nil {
		c := *o.Coupon
		o.Coupon = &c
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		o.PaidAt = &t
	}
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		o.CancelledAt = &t
	}
	return o
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{t: newTable(cloneOrder)}
}

func newestFirst(orders []order.Order) []order.Order {
	sortByCreated(orders, func(o order.Order) int64 { return o.CreatedAt.UnixNano() })
	return orders
}

func (r *MemoryOrderRepository) Create(_ context.Context, o *order.Order) error {
	return r.t.insert(o.ID, *o, func(existing order.Order) error {
		if existing.CustomOrderID == o.CustomOrderID {
			return order.ErrCustomIDTaken
		}
		return nil
	})
}

func (r *MemoryOrderRepository) Update(_ context.Context, id string, fn func(*order.Order) error) (*order.Order, error) {
	var out order.Order
	ok, err := r.t.mutate(id, func(o *order.Order) error {
		if err := fn(o); err != nil {
			return err
		}
		out = cloneOrder(*o)
		return nil
	})
	if !ok {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *MemoryOrderRepository) Delete(_ context.Context, id string) error {
	if !r.t.remove(id) {
		return order.ErrNotFound
	}
	return nil
}

func (r *MemoryOrderRepository) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := r.t.get(id)
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (r *MemoryOrderRepository) GetByCustomID(_ context.Context, customID int) (*order.Order, error) {
	found := r.t.find(func(o order.Order) bool { return o.CustomOrderID == customID })
	if len(found) == 0 {
		return nil, order.ErrNotFound
	}
	return &found[0], nil
}

func (r *MemoryOrderRepository) CustomIDExists(_ context.Context, customID int) (bool, error) {
	return r.t.count(func(o order.Order) bool { return o.CustomOrderID == customID }) > 0, nil
}

func (r *MemoryOrderRepository) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	return newestFirst(r.t.find(func(o order.Order) bool { return o.UserID == userID })), nil
}

func (r *MemoryOrderRepository) ListByEmail(_ context.Context, email string) ([]order.Order, error) {
	return newestFirst(r.t.find(func(o order.Order) bool { return o.ContactedAt(email) })), nil
}

func (r *MemoryOrderRepository) List(context.Context) ([]order.Order, error) {
	return newestFirst(r.t.find(nil)), nil
}

func (r *MemoryOrderRepository) FindPurchase(_ context.Context, userID, productID string) (string, error) {
	found := newestFirst(r.t.find(func(o order.Order) bool {
		if o.UserID != userID || o.Status == order.StatusCancelled {
			return false
		}
		return slices.ContainsFunc(o.Items, func(it order.Item) bool { return it.ProductID == productID })
	}))
	if len(found) == 0 {
		return "", order.ErrNotFound
	}
	return found[0].ID, nil
}

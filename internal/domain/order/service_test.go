package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-storefront/internal/domain/category"
	"github.com/example/ec-storefront/internal/domain/coupon"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/events"
	"github.com/example/ec-storefront/internal/infrastructure/store"
)

const (
	alice = "user-alice"
	bob   = "user-bob"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	orders   *order.Service
	coupons  *coupon.Service
	repo     order.Repository
	recorder *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, store.NewMemoryOrderRepository())
}

func newFixtureWithRepo(t *testing.T, repo order.Repository) *fixture {
	t.Helper()
	products := store.NewMemoryProductRepository()
	for _, p := range []product.Product{
		{ID: "tee", Title: "Tee", Slug: "tee", Price: dec("25"), Images: []string{"/uploads/product-images/tee.jpg"}, IsActive: true, CreatedAt: time.Now()},
		{ID: "hoodie", Title: "Hoodie", Slug: "hoodie", Price: dec("50"), IsActive: true, CreatedAt: time.Now()},
		{ID: "mug", Title: "Mug", Slug: "mug", Price: dec("100"), IsActive: true, CreatedAt: time.Now()},
	} {
		require.NoError(t, products.Create(context.Background(), &p))
	}
	catalog := product.NewService(products, category.NewService(store.NewMemoryCategoryRepository(), nil), nil)
	coupons := coupon.NewService(store.NewMemoryCouponRepository())
	rec := &events.Recorder{}
	return &fixture{
		orders:   order.NewService(repo, catalog, coupons, rec),
		coupons:  coupons,
		repo:     repo,
		recorder: rec,
	}
}

func (f *fixture) coupon(t *testing.T, code string, typ coupon.Type, value, minimum string, limit int) *coupon.Coupon {
	t.Helper()
	m := dec(minimum)
	c, err := f.coupons.Create(context.Background(), coupon.Input{
		Code: code, Type: typ, Value: dec(value), MinSubtotal: &m, UsageLimit: &limit,
		StartDate: time.Now().Add(-time.Hour), ExpiryDate: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return c
}

func checkout(code string, email string) order.PlaceInput {
	return order.PlaceInput{
		Items: []order.ItemInput{
			{ProductID: "tee", Quantity: 2, Price: dec("25"), Size: "M", Color: "Black"},
			{ProductID: "hoodie", Quantity: 1, Price: dec("50")},
		},
		Address:       order.Address{FullName: "Ann", Email: email, Street: "1 Main St", City: "Oslo", Country: "NO"},
		PaymentMethod: "CashOnDelivery",
		CouponCode:    code,
	}
}

func TestPlaceWithoutCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.orders.Place(ctx, alice, checkout("", "Ann@Example.com"))
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.GreaterOrEqual(t, o.CustomOrderID, 100000)
	assert.LessOrEqual(t, o.CustomOrderID, 999999)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.True(t, o.CanModify)
	assert.Nil(t, o.Coupon)
	assert.Nil(t, o.PaidAt)
	assert.Equal(t, "Ann@Example.com", o.Address.Email)
	assert.True(t, dec("100").Equal(o.Subtotal), o.Subtotal.String())
	assert.True(t, dec("100").Equal(o.TotalAmount), o.TotalAmount.String())

	require.Len(t, o.Items, 2)
	assert.Equal(t, "Tee", o.Items[0].Title)
	assert.Equal(t, "/uploads/product-images/tee.jpg", o.Items[0].Image)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.Equal(t, "M", o.Items[0].Size)

	stored, err := f.orders.GetByCustomID(ctx, o.CustomOrderID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, stored.ID)
	assert.Len(t, stored.Items, 2)
	assert.Equal(t, []string{events.OrderPlaced}, f.recorder.Types())
}

func TestPlacePaidStampsPaidAt(t *testing.T) {
	f := newFixture(t)
	in := checkout("", "ann@example.com")
	in.IsPaid = true
	o, err := f.orders.Place(context.Background(), "", in)
	require.NoError(t, err)
	assert.True(t, o.IsPaid)
	require.NotNil(t, o.PaidAt)
	assert.Empty(t, o.UserID)
}

func TestPlaceIgnoresDeclaredTotal(t *testing.T) {
	f := newFixture(t)
	in := checkout("", "ann@example.com")
	bogus := dec("1")
	in.TotalAmount = &bogus
	o, err := f.orders.Place(context.Background(), alice, in)
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(o.TotalAmount))
}

func TestPlacePricesItemsAsSubmitted(t *testing.T) {
	f := newFixture(t)
	in := checkout("", "ann@example.com")
	in.Items[0].Price = dec("20")
	o, err := f.orders.Place(context.Background(), alice, in)
	require.NoError(t, err)

	require.Len(t, o.Items, 2)
	assert.True(t, dec("20").Equal(o.Items[0].Price), o.Items[0].Price.String())
	assert.Equal(t, "Tee", o.Items[0].Title)
	assert.Equal(t, "/uploads/product-images/tee.jpg", o.Items[0].Image)
	assert.True(t, dec("90").Equal(o.Subtotal), o.Subtotal.String())
	assert.True(t, dec("90").Equal(o.TotalAmount), o.TotalAmount.String())
}

func TestPlaceRejectsBadItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orders.Place(ctx, alice, order.PlaceInput{})
	assert.ErrorIs(t, err, order.ErrNoItems)

	in := checkout("", "a@example.com")
	in.Items[0].Quantity = 0
	_, err = f.orders.Place(ctx, alice, in)
	assert.ErrorIs(t, err, order.ErrInvalidItem)

	in = checkout("", "a@example.com")
	in.Items[1].ProductID = "ghost"
	_, err = f.orders.Place(ctx, alice, in)
	assert.ErrorIs(t, err, order.ErrUnknownProduct)

	all, err := f.orders.AdminList(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPlaceWithCouponFreezesSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.coupon(t, "SAVE20", coupon.TypePercentage, "20", "100", 10)

	in := checkout("save20", "ann@example.com")
	in.Items = append(in.Items, order.ItemInput{ProductID: "tee", Quantity: 2, Price: dec("25")})
	o, err := f.orders.Place(ctx, alice, in)
	require.NoError(t, err)

	require.NotNil(t, o.Coupon)
	assert.Equal(t, "SAVE20", o.Coupon.Code)
	assert.True(t, dec("150").Equal(o.Subtotal))
	assert.True(t, dec("30").Equal(o.Coupon.Discount), o.Coupon.Discount.String())
	assert.True(t, dec("120").Equal(o.TotalAmount), o.TotalAmount.String())

	got, err := f.coupons.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsedCount)
	assert.Equal(t, []string{alice}, got.UsersUsed)
	assert.Equal(t, []string{"ann@example.com"}, got.EmailsUsed)

	// Editing the coupon does not touch the placed order.
	fifty := dec("50")
	_, err = f.coupons.Update(ctx, c.ID, coupon.Patch{Value: &fifty})
	require.NoError(t, err)
	stored, err := f.orders.Get(ctx, o.ID, alice)
	require.NoError(t, err)
	assert.True(t, dec("20").Equal(stored.Coupon.Value))
	assert.True(t, dec("30").Equal(stored.Coupon.Discount))

	// Same email on another checkout is a reuse.
	_, err = f.orders.Place(ctx, bob, in)
	assert.ErrorIs(t, err, coupon.ErrAlreadyUsed)
}

func TestPlaceCouponBelowMinimum(t *testing.T) {
	f := newFixture(t)
	f.coupon(t, "SAVE20", coupon.TypePercentage, "20", "150", 10)

	_, err := f.orders.Place(context.Background(), alice, checkout("SAVE20", "ann@example.com"))
	assert.ErrorIs(t, err, coupon.ErrBelowMinimum)
}

func TestPlaceExhaustedCouponWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.coupon(t, "ONE", coupon.TypeFixed, "10", "0", 1)

	_, err := f.orders.Place(ctx, alice, checkout("ONE", "ann@example.com"))
	require.NoError(t, err)
	_, err = f.orders.Place(ctx, bob, checkout("ONE", "bob@example.com"))
	require.ErrorIs(t, err, coupon.ErrExhausted)

	mine, err := f.orders.ListMine(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestPlaceConcurrentLastCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.coupon(t, "LAST", coupon.TypeFixed, "10", "0", 1)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user := "user-" + string(rune('a'+i))
			_, errs[i] = f.orders.Place(ctx, user, checkout("LAST", user+"@example.com"))
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
	got, err := f.coupons.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsedCount)
}

type failingCreate struct {
	order.Repository
}

func (failingCreate) Create(context.Context, *order.Order) error { return errors.New("disk full") }

func TestPlaceReleasesCouponWhenInsertFails(t *testing.T) {
	f := newFixtureWithRepo(t, failingCreate{store.NewMemoryOrderRepository()})
	ctx := context.Background()
	c := f.coupon(t, "SAVE", coupon.TypeFixed, "10", "0", 1)

	_, err := f.orders.Place(ctx, alice, checkout("SAVE", "ann@example.com"))
	require.Error(t, err)

	got, err := f.coupons.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, got.UsedCount)
	assert.Empty(t, f.recorder.Types())
}

func TestCustomIDsUniqueUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 50
	ids := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := f.orders.Place(ctx, "", checkout("", "guest@example.com"))
			if assert.NoError(t, err) {
				ids[i] = o.CustomOrderID
			}
		}()
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
}

func TestGetOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.orders.Place(ctx, alice, checkout("", "ann@example.com"))
	require.NoError(t, err)

	_, err = f.orders.Get(ctx, o.ID, alice)
	assert.NoError(t, err)
	_, err = f.orders.Get(ctx, o.ID, bob)
	assert.ErrorIs(t, err, order.ErrForbiddenView)
	_, err = f.orders.Get(ctx, "missing", alice)
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.orders.Place(ctx, alice, checkout("", "ann@example.com"))
	require.NoError(t, err)

	_, err = f.orders.Cancel(ctx, bob, o.CustomOrderID)
	require.ErrorIs(t, err, order.ErrForbiddenCancel)

	got, err := f.orders.Cancel(ctx, alice, o.CustomOrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
	assert.False(t, got.CanModify)
	assert.NotNil(t, got.CancelledAt)

	_, err = f.orders.Cancel(ctx, alice, o.CustomOrderID)
	assert.ErrorIs(t, err, order.ErrNotCancellable)
	assert.Equal(t, []string{events.OrderPlaced, events.OrderCancelled}, f.recorder.Types())

	_, err = f.orders.Cancel(ctx, alice, 123)
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestCancelAsGuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.orders.Place(ctx, "", checkout("", "guest@example.com"))
	require.NoError(t, err)

	_, err = f.orders.CancelAsGuest(ctx, o.CustomOrderID, "someone@example.com")
	require.ErrorIs(t, err, order.ErrEmailMismatch)
	unchanged, err := f.orders.GetByCustomID(ctx, o.CustomOrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, unchanged.Status)
	assert.True(t, unchanged.CanModify)

	_, err = f.orders.CancelAsGuest(ctx, o.CustomOrderID, "")
	assert.ErrorIs(t, err, order.ErrGuestCancelFields)

	_, err = f.orders.CancelAsGuest(ctx, o.CustomOrderID, "Guest@Example.com")
	require.ErrorIs(t, err, order.ErrEmailMismatch)
	unchanged, err = f.orders.GetByCustomID(ctx, o.CustomOrderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, unchanged.Status)
	assert.Nil(t, unchanged.CancelledAt)

	got, err := f.orders.CancelAsGuest(ctx, o.CustomOrderID, " guest@example.com ")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)
}

func TestGateBlocksCancelAndEdit(t *testing.T) {
	shipped := order.StatusShipped
	locked := false
	for _, tt := range []struct {
		name  string
		patch order.AdminPatch
	}{
		{"Shipped", order.AdminPatch{Status: &shipped}},
		{"CannotModify", order.AdminPatch{CanModify: &locked}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			o, err := f.orders.Place(ctx, alice, checkout("", "ann@example.com"))
			require.NoError(t, err)
			_, err = f.orders.AdminUpdate(ctx, o.ID, tt.patch)
			require.NoError(t, err)

			_, err = f.orders.Cancel(ctx, alice, o.CustomOrderID)
			assert.ErrorIs(t, err, order.ErrNotCancellable)
			_, err = f.orders.CancelAsGuest(ctx, o.CustomOrderID, "ann@example.com")
			assert.ErrorIs(t, err, order.ErrNotCancellable)
			_, err = f.orders.Edit(ctx, alice, o.CustomOrderID, "", order.Address{City: "Bergen"})
			assert.ErrorIs(t, err, order.ErrNotModifiable)
			_, err = f.orders.AdminCancel(ctx, o.ID)
			assert.ErrorIs(t, err, order.ErrNotCancellable)
		})
	}
}

func TestEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine, err := f.orders.Place(ctx, alice, checkout("", "ann@example.com"))
	require.NoError(t, err)
	guest, err := f.orders.Place(ctx, "", checkout("", "guest@example.com"))
	require.NoError(t, err)

	got, err := f.orders.Edit(ctx, alice, mine.CustomOrderID, "", order.Address{City: "Bergen", Phone: "555"})
	require.NoError(t, err)
	assert.Equal(t, "Bergen", got.Address.City)
	assert.Equal(t, "555", got.Address.Phone)
	assert.Equal(t, "1 Main St", got.Address.Street)

	_, err = f.orders.Edit(ctx, bob, mine.CustomOrderID, "", order.Address{City: "Rome"})
	assert.ErrorIs(t, err, order.ErrForbiddenEdit)

	// Guests prove ownership with the contact email.
	_, err = f.orders.Edit(ctx, "", guest.CustomOrderID, "wrong@example.com", order.Address{City: "Rome"})
	assert.ErrorIs(t, err, order.ErrEmailVerification)
	_, err = f.orders.Edit(ctx, "", guest.CustomOrderID, "", order.Address{City: "Rome"})
	assert.ErrorIs(t, err, order.ErrEmailVerification)
	_, err = f.orders.Edit(ctx, "", guest.CustomOrderID, "GUEST@example.com", order.Address{City: "Rome"})
	assert.ErrorIs(t, err, order.ErrEmailVerification)
	got, err = f.orders.Edit(ctx, "", guest.CustomOrderID, "guest@example.com", order.Address{City: "Rome"})
	require.NoError(t, err)
	assert.Equal(t, "Rome", got.Address.City)
}

func TestAdminUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.orders.Place(ctx, alice, checkout("", "ann@example.com"))
	require.NoError(t, err)

	bad := order.Status("lost")
	_, err = f.orders.AdminUpdate(ctx, o.ID, order.AdminPatch{Status: &bad})
	assert.ErrorIs(t, err, order.ErrInvalidStatus)

	shipped := order.StatusShipped
	card := "Card"
	got, err := f.orders.AdminUpdate(ctx, o.ID, order.AdminPatch{
		Status:        &shipped,
		PaymentMethod: &card,
		Address:       &order.Address{Country: "SE"},
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, got.Status)
	assert.Equal(t, "Card", got.PaymentMethod)
	assert.Equal(t, "SE", got.Address.Country)

	got, err = f.orders.SetPaid(ctx, o.ID, true)
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
	require.NotNil(t, got.PaidAt)

	got, err = f.orders.SetPaid(ctx, o.ID, false)
	require.NoError(t, err)
	assert.False(t, got.IsPaid)
	assert.Nil(t, got.PaidAt)

	_, err = f.orders.AdminUpdate(ctx, "missing", order.AdminPatch{})
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestAdminCancelAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.orders.Place(ctx, alice, checkout("", "ann@example.com"))
	require.NoError(t, err)

	got, err := f.orders.AdminCancel(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, got.Status)

	require.NoError(t, f.orders.AdminDelete(ctx, o.ID))
	assert.ErrorIs(t, f.orders.AdminDelete(ctx, o.ID), order.ErrNotFound)
}

func TestListByEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orders.ListByEmail(ctx, "guest@example.com")
	assert.ErrorIs(t, err, order.ErrNoOrdersForEmail)
	_, err = f.orders.ListByEmail(ctx, " ")
	assert.ErrorIs(t, err, order.ErrEmailRequired)

	_, err = f.orders.Place(ctx, "", checkout("", "guest@example.com"))
	require.NoError(t, err)
	_, err = f.orders.Place(ctx, "", checkout("", "other@example.com"))
	require.NoError(t, err)

	got, err := f.orders.ListByEmail(ctx, "GUEST@example.com")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestPurchaseOf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.orders.Place(ctx, alice, checkout("", "ann@example.com"))
	require.NoError(t, err)

	id, err := f.orders.PurchaseOf(ctx, alice, "tee")
	require.NoError(t, err)
	assert.Equal(t, o.ID, id)

	_, err = f.orders.PurchaseOf(ctx, alice, "mug")
	assert.ErrorIs(t, err, order.ErrNotFound)
	_, err = f.orders.PurchaseOf(ctx, bob, "tee")
	assert.ErrorIs(t, err, order.ErrNotFound)

	_, err = f.orders.Cancel(ctx, alice, o.CustomOrderID)
	require.NoError(t, err)
	_, err = f.orders.PurchaseOf(ctx, alice, "tee")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

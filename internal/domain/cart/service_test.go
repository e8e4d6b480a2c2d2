package cart_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/category"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/infrastructure/store"
)

const user = "user-1"

func qty(n int) *int { return &n }

func newService(t *testing.T) (*cart.Service, *store.MemoryProductRepository) {
	t.Helper()
	products := store.NewMemoryProductRepository()
	for _, p := range []product.Product{
		{ID: "tee", Title: "Tee", Slug: "tee", Price: decimal.NewFromInt(25), IsActive: true, CreatedAt: time.Now()},
		{ID: "cap", Title: "Cap", Slug: "cap", Price: decimal.RequireFromString("12.50"), IsActive: true, CreatedAt: time.Now()},
	} {
		require.NoError(t, products.Create(context.Background(), &p))
	}
	catalog := product.NewService(products, category.NewService(store.NewMemoryCategoryRepository(), nil), nil)
	return cart.NewService(store.NewMemoryCartRepository(), catalog), products
}

func TestAddMergesExactVariant(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, user, cart.AddInput{ProductID: "tee", Quantity: qty(2), Size: "M", Color: "Black"})
	require.NoError(t, err)
	v, err := svc.Add(ctx, user, cart.AddInput{ProductID: "tee", Quantity: qty(3), Size: "M", Color: "Black"})
	require.NoError(t, err)
	require.Len(t, v.Items, 1)
	assert.Equal(t, 5, v.Items[0].Quantity)

	// A different size is a different line.
	v, err = svc.Add(ctx, user, cart.AddInput{ProductID: "tee", Size: "L", Color: "Black"})
	require.NoError(t, err)
	require.Len(t, v.Items, 2)
	assert.Equal(t, 1, v.Items[1].Quantity)
	assert.Equal(t, 6, v.TotalItems)
	assert.True(t, decimal.NewFromInt(150).Equal(v.Subtotal), v.Subtotal.String())
	require.NotNil(t, v.Items[0].Product)
	assert.Equal(t, "Tee", v.Items[0].Product.Title)
}

func TestAddRemovesLineBelowOne(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, user, cart.AddInput{ProductID: "cap", Quantity: qty(2)})
	require.NoError(t, err)
	v, err := svc.Add(ctx, user, cart.AddInput{ProductID: "cap", Quantity: qty(-2)})
	require.NoError(t, err)
	assert.Empty(t, v.Items)

	// A fresh line with a non-positive quantity is never created.
	v, err = svc.Add(ctx, user, cart.AddInput{ProductID: "cap", Quantity: qty(0)})
	require.NoError(t, err)
	assert.Empty(t, v.Items)
}

func TestAddValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, user, cart.AddInput{})
	assert.ErrorIs(t, err, cart.ErrProductRequired)

	_, err = svc.Add(ctx, user, cart.AddInput{ProductID: "ghost"})
	assert.ErrorIs(t, err, product.ErrNotFound)
}

func TestUpdateAndRemoveItem(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	v, err := svc.Add(ctx, user, cart.AddInput{ProductID: "cap", Quantity: qty(1)})
	require.NoError(t, err)
	id := v.Items[0].ID

	color := "Red"
	v, err = svc.UpdateItem(ctx, user, id, cart.ItemPatch{Quantity: qty(4), Color: &color})
	require.NoError(t, err)
	assert.Equal(t, 4, v.Items[0].Quantity)
	assert.Equal(t, "Red", v.Items[0].Color)
	assert.True(t, decimal.NewFromInt(50).Equal(v.Subtotal))

	_, err = svc.UpdateItem(ctx, user, "nope", cart.ItemPatch{Quantity: qty(1)})
	assert.ErrorIs(t, err, cart.ErrItemNotFound)

	v, err = svc.UpdateItem(ctx, user, id, cart.ItemPatch{Quantity: qty(0)})
	require.NoError(t, err)
	assert.Empty(t, v.Items)

	_, err = svc.RemoveItem(ctx, user, id)
	assert.ErrorIs(t, err, cart.ErrItemNotFound)
}

func TestClearIsIdempotent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, user, cart.AddInput{ProductID: "tee"})
	require.NoError(t, err)

	for range 2 {
		v, err := svc.Clear(ctx, user)
		require.NoError(t, err)
		assert.Empty(t, v.Items)
		assert.Zero(t, v.TotalItems)
		assert.True(t, v.Subtotal.IsZero())
	}
}

func TestDeletedProductCountsZero(t *testing.T) {
	svc, products := newService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, user, cart.AddInput{ProductID: "tee", Quantity: qty(2)})
	require.NoError(t, err)
	_, err = svc.Add(ctx, user, cart.AddInput{ProductID: "cap", Quantity: qty(1)})
	require.NoError(t, err)
	require.NoError(t, products.Delete(ctx, "tee"))

	v, err := svc.Get(ctx, user)
	require.NoError(t, err)
	require.Len(t, v.Items, 2)
	assert.Nil(t, v.Items[0].Product)
	assert.Equal(t, 3, v.TotalItems)
	assert.True(t, decimal.RequireFromString("12.5").Equal(v.Subtotal))
}

func TestCartsAreIsolated(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "a", cart.AddInput{ProductID: "tee"})
	require.NoError(t, err)
	v, err := svc.Get(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, v.Items)
}

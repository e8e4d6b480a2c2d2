package seed

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-storefront/internal/domain/category"
	"github.com/example/ec-storefront/internal/domain/coupon"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/upload"
)

const fixture = `{
  "categories": [
    {"name": "Clothing", "slug": "clothing"},
    {"name": "Shirts", "slug": "shirts", "parent": "clothing"}
  ],
  "products": [
    {
      "title": "Linen Shirt",
      "slug": "linen-shirt",
      "price": 49.9,
      "sku": "LS-1",
      "stock": 10,
      "categories": ["shirts", "Clothing"],
      "sizes": ["m", "l"]
    }
  ],
  "coupons": [
    {
      "code": "WELCOME10",
      "type": "percentage",
      "value": 10,
      "startDate": "2020-01-01T00:00:00Z",
      "expiryDate": "2099-01-01T00:00:00Z"
    }
  ]
}`

type services struct {
	categories *category.Service
	products   *product.Service
	coupons    *coupon.Service
}

func newSeeder(t *testing.T) (*Seeder, services) {
	t.Helper()
	files := upload.New(t.TempDir(), "http://shop.test", 1<<20)
	categories := category.NewService(store.NewMemoryCategoryRepository(), files)
	products := product.NewService(store.NewMemoryProductRepository(), categories, files)
	coupons := coupon.NewService(store.NewMemoryCouponRepository())
	return New(categories, products, coupons), services{categories, products, coupons}
}

func TestApply(t *testing.T) {
	s, svc := newSeeder(t)
	ctx := context.Background()

	d, err := Decode(strings.NewReader(fixture))
	require.NoError(t, err)

	rep, err := s.Apply(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, Counts{Created: 2}, rep.Categories)
	assert.Equal(t, Counts{Created: 1}, rep.Products)
	assert.Equal(t, Counts{Created: 1}, rep.Coupons)

	cats, err := svc.categories.FindBySlugs(ctx, []string{"clothing", "shirts"})
	require.NoError(t, err)
	require.Len(t, cats, 2)
	ids := map[string]category.Category{}
	for _, c := range cats {
		ids[c.Slug] = c
	}
	assert.Equal(t, ids["clothing"].ID, ids["shirts"].ParentID)

	p, err := svc.products.GetBySlug(ctx, "linen-shirt")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ids["shirts"].ID, ids["clothing"].ID}, p.Categories)
	assert.Equal(t, "49.9", p.Price.String())

	list, err := svc.coupons.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "WELCOME10", list[0].Code)
}

func TestApply_Idempotent(t *testing.T) {
	s, _ := newSeeder(t)
	ctx := context.Background()

	d, err := Decode(strings.NewReader(fixture))
	require.NoError(t, err)
	_, err = s.Apply(ctx, d)
	require.NoError(t, err)

	rep, err := s.Apply(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, Counts{Skipped: 2}, rep.Categories)
	assert.Equal(t, Counts{Skipped: 1}, rep.Products)
	assert.Equal(t, Counts{Skipped: 1}, rep.Coupons)
}

func TestApply_UnknownCategory(t *testing.T) {
	s, _ := newSeeder(t)

	d := &Data{Products: []Product{{
		Input:      product.Input{Title: "Orphan", Slug: "orphan"},
		Categories: []string{"missing"},
	}}}
	_, err := s.Apply(context.Background(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown category "missing"`)
}

func TestApply_ValidationStops(t *testing.T) {
	s, _ := newSeeder(t)

	d := &Data{Categories: []Category{{Name: ""}}}
	_, err := s.Apply(context.Background(), d)
	require.ErrorIs(t, err, category.ErrNameMissing)
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"brands": []}`))
	require.Error(t, err)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(plain, []byte(fixture), 0o644))

	gzPath := filepath.Join(dir, "seed.json.gz")
	f, err := os.Create(gzPath)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = io.WriteString(gz, fixture)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	for _, path := range []string{plain, gzPath} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			r, err := Open(path)
			require.NoError(t, err)
			defer func() { _ = r.Close() }()

			d, err := Decode(r)
			require.NoError(t, err)
			assert.Len(t, d.Categories, 2)
			assert.Len(t, d.Products, 1)
			assert.Len(t, d.Coupons, 1)
		})
	}
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

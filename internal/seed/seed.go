// Package seed loads catalog fixtures: categories, products and coupons.
package seed

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/apperror"
	"github.com/example/ec-storefront/internal/domain/category"
	"github.com/example/ec-storefront/internal/domain/coupon"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/upload"
)

// Data is the fixture document. Categories and products refer to categories
// by slug; parents must be listed before their children.
type Data struct {
	Categories []Category     `json:"categories"`
	Products   []Product      `json:"products"`
	Coupons    []coupon.Input `json:"coupons"`
}

type Category struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Parent      string `json:"parent"`
	Description string `json:"description"`
}

type Product struct {
	product.Input
	Categories []string `json:"categories"`
}

// Counts reports how many records of one kind were written or skipped
// because they already exist.
type Counts struct {
	Created int
	Skipped int
}

type Report struct {
	Categories Counts
	Products   Counts
	Coupons    Counts
}

type Categories interface {
	Create(ctx context.Context, in category.Input, image *upload.File) (*category.Category, error)
	FindBySlugs(ctx context.Context, slugs []string) ([]category.Category, error)
}

type Products interface {
	Create(ctx context.Context, in product.Input, images []upload.File) (*product.Product, error)
}

type Coupons interface {
	Create(ctx context.Context, in coupon.Input) (*coupon.Coupon, error)
}

// Seeder writes fixtures through the domain services so every record passes
// the same validation as an admin request.
type Seeder struct {
	categories Categories
	products   Products
	coupons    Coupons
}

func New(categories Categories, products Products, coupons Coupons) *Seeder {
	return &Seeder{categories: categories, products: products, coupons: coupons}
}

// Open returns a reader for path, transparently decompressing gzip input.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open seed file")
	}
	br := bufio.NewReader(f)
	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		_ = f.Close()
		return nil, errors.Wrap(err, "read seed file")
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := pgzip.NewReader(br)
		if err != nil {
			_ = f.Close()
			return nil, errors.Wrap(err, "create gzip reader")
		}
		return readCloser{Reader: gz, close: func() error {
			_ = gz.Close()
			return f.Close()
		}}, nil
	}
	return readCloser{Reader: br, close: f.Close}, nil
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error { return r.close() }

// Decode parses a fixture document.
func Decode(r io.Reader) (*Data, error) {
	var d Data
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return nil, errors.Wrap(err, "decode seed data")
	}
	return &d, nil
}

// Apply writes d. Records that conflict with existing ones are skipped, so
// running a seed twice is harmless.
func (s *Seeder) Apply(ctx context.Context, d *Data) (*Report, error) {
	var rep Report
	lg := zctx.From(ctx)

	for _, c := range d.Categories {
		in := category.Input{Name: c.Name, Slug: c.Slug, Description: c.Description}
		if c.Parent != "" {
			ids, err := s.resolve(ctx, []string{c.Parent})
			if err != nil {
				return nil, errors.Wrapf(err, "category %q", c.Name)
			}
			in.ParentID = ids[0]
		}
		if err := count(&rep.Categories, s.create(func() error {
			_, err := s.categories.Create(ctx, in, nil)
			return err
		})); err != nil {
			return nil, errors.Wrapf(err, "category %q", c.Name)
		}
	}

	for _, p := range d.Products {
		ids, err := s.resolve(ctx, p.Categories)
		if err != nil {
			return nil, errors.Wrapf(err, "product %q", p.Title)
		}
		in := p.Input
		in.Categories = ids
		if err := count(&rep.Products, s.create(func() error {
			_, err := s.products.Create(ctx, in, nil)
			return err
		})); err != nil {
			return nil, errors.Wrapf(err, "product %q", p.Title)
		}
	}

	for _, c := range d.Coupons {
		if err := count(&rep.Coupons, s.create(func() error {
			_, err := s.coupons.Create(ctx, c)
			return err
		})); err != nil {
			return nil, errors.Wrapf(err, "coupon %q", c.Code)
		}
	}

	lg.Info("Seed applied",
		zap.Int("categories", rep.Categories.Created),
		zap.Int("products", rep.Products.Created),
		zap.Int("coupons", rep.Coupons.Created),
		zap.Int("skipped", rep.Categories.Skipped+rep.Products.Skipped+rep.Coupons.Skipped),
	)
	return &rep, nil
}

var errSkipped = errors.New("skipped")

// create runs fn and maps a conflict to errSkipped.
func (s *Seeder) create(fn func() error) error {
	err := fn()
	if err != nil && apperror.KindOf(err) == apperror.KindConflict {
		return errSkipped
	}
	return err
}

func count(c *Counts, err error) error {
	switch {
	case err == nil:
		c.Created++
	case errors.Is(err, errSkipped):
		c.Skipped++
	default:
		return err
	}
	return nil
}

// resolve maps category slugs to ids. Every slug must exist.
func (s *Seeder) resolve(ctx context.Context, slugs []string) ([]string, error) {
	if len(slugs) == 0 {
		return nil, nil
	}
	want := make([]string, len(slugs))
	for i, slug := range slugs {
		want[i] = strings.ToLower(strings.TrimSpace(slug))
	}
	found, err := s.categories.FindBySlugs(ctx, want)
	if err != nil {
		return nil, err
	}
	bySlug := make(map[string]string, len(found))
	for _, c := range found {
		bySlug[c.Slug] = c.ID
	}
	ids := make([]string, len(want))
	for i, slug := range want {
		id, ok := bySlug[slug]
		if !ok {
			return nil, errors.Errorf("unknown category %q", slug)
		}
		ids[i] = id
	}
	return ids, nil
}

package store

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/example/ec-storefront/internal/domain/category"
	"github.com/example/ec-storefront/internal/domain/product"
)

type MemoryCategoryRepository struct {
	t *table[category.Category]
}

func NewMemoryCategoryRepository() *MemoryCategoryRepository {
	return &MemoryCategoryRepository{t: newTable[category.Category](nil)}
}

func categorySlugClash(c *category.Category) func(category.Category) error {
	return func(existing category.Category) error {
		if existing.Slug == c.Slug {
			return category.ErrSlugTaken
		}
		return nil
	}
}

func (r *MemoryCategoryRepository) Create(_ context.Context, c *category.Category) error {
	return r.t.insert(c.ID, *c, categorySlugClash(c))
}

func (r *MemoryCategoryRepository) Update(_ context.Context, c *category.Category) error {
	ok, err := r.t.replace(c.ID, *c, categorySlugClash(c))
	if !ok {
		return category.ErrNotFound
	}
	return err
}

func (r *MemoryCategoryRepository) Delete(_ context.Context, id string) error {
	if !r.t.remove(id) {
		return category.ErrNotFound
	}
	return nil
}

func (r *MemoryCategoryRepository) Get(_ context.Context, id string) (*category.Category, error) {
	c, ok := r.t.get(id)
	if !ok {
		return nil, category.ErrNotFound
	}
	return &c, nil
}

func sortByName(cats []category.Category) []category.Category {
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
	return cats
}

func (r *MemoryCategoryRepository) List(context.Context) ([]category.Category, error) {
	return sortByName(r.t.find(nil)), nil
}

func (r *MemoryCategoryRepository) FindBySlugs(_ context.Context, slugs []string) ([]category.Category, error) {
	return sortByName(r.t.find(func(c category.Category) bool { return slices.Contains(slugs, c.Slug) })), nil
}

func (r *MemoryCategoryRepository) FindByIDs(_ context.Context, ids []string) ([]category.Category, error) {
	return sortByName(r.t.find(func(c category.Category) bool { return slices.Contains(ids, c.ID) })), nil
}

func (r *MemoryCategoryRepository) FindByNameContains(_ context.Context, q string) ([]category.Category, error) {
	q = strings.ToLower(q)
	return sortByName(r.t.find(func(c category.Category) bool {
		return strings.Contains(strings.ToLower(c.Name), q)
	})), nil
}

func (r *MemoryCategoryRepository) CountChildren(_ context.Context, id string) (int, error) {
	return r.t.count(func(c category.Category) bool { return c.ParentID == id }), nil
}

type MemoryProductRepository struct {
	t *table[product.Product]
}

func cloneProduct(p product.Product) product.Product {
	p.Categories = slices.Clone(p.Categories)
	p.Sizes = slices.Clone(p.Sizes)
	p.Colors = slices.Clone(p.Colors)
	p.Images = slices.Clone(p.Images)
	p.Tags = slices.Clone(p.Tags)
	return p
}

func NewMemoryProductRepository() *MemoryProductRepository {
	return &MemoryProductRepository{t: newTable(cloneProduct)}
}

func productClash(p *product.Product) func(product.Product) error {
	return func(existing product.Product) error {
		if existing.Slug == p.Slug {
			return product.ErrSlugTaken
		}
		if p.SKU != "" && existing.SKU == p.SKU {
			return product.ErrSKUTaken
		}
		return nil
	}
}

func (r *MemoryProductRepository) Create(_ context.Context, p *product.Product) error {
	return r.t.insert(p.ID, *p, productClash(p))
}

func (r *MemoryProductRepository) Update(_ context.Context, p *product.Product) error {
	ok, err := r.t.replace(p.ID, *p, productClash(p))
	if !ok {
		return product.ErrNotFound
	}
	return err
}

func (r *MemoryProductRepository) Delete(_ context.Context, id string) error {
	if !r.t.remove(id) {
		return product.ErrNotFound
	}
	return nil
}

func (r *MemoryProductRepository) Get(_ context.Context, id string) (*product.Product, error) {
	p, ok := r.t.get(id)
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (r *MemoryProductRepository) GetBySlug(_ context.Context, slug string) (*product.Product, error) {
	found := r.t.find(func(p product.Product) bool { return p.Slug == slug })
	if len(found) == 0 {
		return nil, product.ErrNotFound
	}
	return &found[0], nil
}

func (r *MemoryProductRepository) Find(_ context.Context, q product.Query) ([]product.Product, error) {
	items := r.t.find(func(p product.Product) bool { return q.Filter.Match(&p) })
	sort.SliceStable(items, func(i, j int) bool { return q.Sort.Less(&items[i], &items[j]) })
	from := min(max(q.Offset, 0), len(items))
	items = items[from:]
	if q.Limit > 0 && len(items) > q.Limit {
		items = items[:q.Limit]
	}
	return items, nil
}

func (r *MemoryProductRepository) Count(_ context.Context, f product.Filter) (int, error) {
	return r.t.count(func(p product.Product) bool { return f.Match(&p) }), nil
}

func (r *MemoryProductRepository) SetRating(_ context.Context, id string, rating product.Rating) error {
	ok, _ := r.t.mutate(id, func(p *product.Product) error {
		p.Rating = rating
		return nil
	})
	if !ok {
		return product.ErrNotFound
	}
	return nil
}

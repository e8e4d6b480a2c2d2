package product

import (
	"context"
	"math"
	"slices"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/ec-storefront/internal/domain/category"
	"github.com/example/ec-storefront/internal/upload"
)

const (
	DefaultListLimit   = 20
	DefaultSearchLimit = 10
	MaxLimit           = 100
)

// Search weights per matching field.
const (
	weightTitle       = 3
	weightDescription = 2
	weightTags        = 2
	weightCategory    = 1
)

// Categories resolves category references for filtering and search.
type Categories interface {
	FindBySlugs(ctx context.Context, slugs []string) ([]category.Category, error)
	FindByNameContains(ctx context.Context, q string) ([]category.Category, error)
}

// Images stores product pictures.
type Images interface {
	SaveAll(area string, files []upload.File, allowed ...upload.Kind) ([]upload.Saved, error)
	Delete(path string) error
}

type Service struct {
	repo       Repository
	categories Categories
	images     Images
}

func NewService(repo Repository, categories Categories, images Images) *Service {
	return &Service{repo: repo, categories: categories, images: images}
}

// ListParams are the public catalog filters. Zero values disable a filter.
type ListParams struct {
	Categories   []string // slugs
	Sizes        []string
	Colors       []string
	Tags         []string
	PriceMin     decimal.NullDecimal
	PriceMax     decimal.NullDecimal
	Search       string
	DiscountOnly bool
	Sort         Sort
	Page         int
	Limit        int
}

type Meta struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

type Page struct {
	Products []Product `json:"products"`
	Meta     Meta      `json:"meta"`
}

func pageBounds(page, limit, def int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = def
	}
	return page, min(limit, MaxLimit)
}

func pages(total, limit int) int {
	return int(math.Ceil(float64(total) / float64(limit)))
}

// NormalizeSize upper-cases a size label.
func NormalizeSize(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

// NormalizeColor capitalizes the first letter and lower-cases the rest.
func NormalizeColor(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

func mapNonEmpty(in []string, fn func(string) string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = fn(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// filter builds the conjunction shared by List and Search. Text matching is
// left to the caller.
func (s *Service) filter(ctx context.Context, p ListParams) (Filter, error) {
	f := Filter{}.Where(FieldIsActive, OpEq, true)

	if slugs := mapNonEmpty(p.Categories, strings.TrimSpace); len(slugs) > 0 {
		cats, err := s.categories.FindBySlugs(ctx, slugs)
		if err != nil {
			return nil, errors.Wrap(err, "resolve categories")
		}
		// Unknown slugs leave the catalog unfiltered by category.
		if len(cats) > 0 {
			ids := make([]string, len(cats))
			for i, c := range cats {
				ids[i] = c.ID
			}
			f = f.Where(FieldCategories, OpOverlaps, ids)
		}
	}
	if p.PriceMin.Valid {
		f = f.Where(FieldPrice, OpGte, p.PriceMin.Decimal)
	}
	if p.PriceMax.Valid {
		f = f.Where(FieldPrice, OpLte, p.PriceMax.Decimal)
	}
	if sizes := mapNonEmpty(p.Sizes, NormalizeSize); len(sizes) > 0 {
		f = f.Where(FieldSizes, OpOverlaps, sizes)
	}
	if colors := mapNonEmpty(p.Colors, NormalizeColor); len(colors) > 0 {
		f = f.Where(FieldColors, OpOverlaps, colors)
	}
	if tags := mapNonEmpty(p.Tags, strings.TrimSpace); len(tags) > 0 {
		f = f.Where(FieldTags, OpOverlaps, tags)
	}
	if p.DiscountOnly {
		f = f.Where(FieldDiscountPrice, OpNotNull, nil)
	}
	return f, nil
}

func textMatch(q string) []Predicate {
	return []Predicate{
		{Field: FieldTitle, Op: OpIContains, Value: q},
		{Field: FieldDescription, Op: OpIContains, Value: q},
		{Field: FieldTags, Op: OpIContains, Value: q},
	}
}

// List returns one page of active products. With DiscountOnly the page is
// narrowed after the fetch to products whose sale price is below list price,
// so Meta.Total counts every product that has a sale price.
func (s *Service) List(ctx context.Context, p ListParams) (*Page, error) {
	f, err := s.filter(ctx, p)
	if err != nil {
		return nil, err
	}
	if q := strings.TrimSpace(p.Search); q != "" {
		f = f.And(textMatch(q)...)
	}
	page, limit := pageBounds(p.Page, p.Limit, DefaultListLimit)

	var (
		total int
		items []Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		total, err = s.repo.Count(gctx, f)
		return err
	})
	g.Go(func() (err error) {
		items, err = s.repo.Find(gctx, Query{
			Filter: f,
			Sort:   ParseSort(string(p.Sort)),
			Offset: (page - 1) * limit,
			Limit:  limit,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "query catalog")
	}

	if p.DiscountOnly {
		items = slices.DeleteFunc(items, func(p Product) bool { return !p.HasDiscount() })
	}
	if items == nil {
		items = []Product{}
	}
	return &Page{Products: items, Meta: Meta{Total: total, Page: page, Limit: limit, Pages: pages(total, limit)}}, nil
}

// Search ranks active products by where the term matches: title, then
// description and tags, then category name. Equal scores keep the requested
// sort order. Pagination happens after ranking.
func (s *Service) Search(ctx context.Context, p ListParams) (*Page, error) {
	f, err := s.filter(ctx, p)
	if err != nil {
		return nil, err
	}
	page, limit := pageBounds(p.Page, p.Limit, DefaultSearchLimit)
	q := strings.TrimSpace(p.Search)

	catHits := map[string]bool{}
	if q != "" {
		cats, err := s.categories.FindByNameContains(ctx, q)
		if err != nil {
			return nil, errors.Wrap(err, "match categories")
		}
		alternatives := textMatch(q)
		if len(cats) > 0 {
			ids := make([]string, len(cats))
			for i, c := range cats {
				ids[i] = c.ID
				catHits[c.ID] = true
			}
			alternatives = append(alternatives, Predicate{Field: FieldCategories, Op: OpOverlaps, Value: ids})
		}
		f = f.And(alternatives...)
	}

	all, err := s.repo.Find(ctx, Query{Filter: f, Sort: ParseSort(string(p.Sort))})
	if err != nil {
		return nil, errors.Wrap(err, "search catalog")
	}
	if p.DiscountOnly {
		all = slices.DeleteFunc(all, func(p Product) bool { return !p.HasDiscount() })
	}
	if q != "" {
		scores := make(map[string]int, len(all))
		for i := range all {
			scores[all[i].ID] = Score(&all[i], q, catHits)
		}
		sort.SliceStable(all, func(i, j int) bool {
			return scores[all[i].ID] > scores[all[j].ID]
		})
	}

	total := len(all)
	from := min((page-1)*limit, total)
	to := min(from+limit, total)
	items := append([]Product{}, all[from:to]...)
	return &Page{Products: items, Meta: Meta{Total: total, Page: page, Limit: limit, Pages: pages(total, limit)}}, nil
}

// Score weighs a product's relevance for q. catHits holds the ids of
// categories whose name matches q.
func Score(p *Product, q string, catHits map[string]bool) int {
	score := 0
	if containsFold(p.Title, q) {
		score += weightTitle
	}
	if containsFold(p.Description, q) {
		score += weightDescription
	}
	if slices.ContainsFunc(p.Tags, func(t string) bool { return containsFold(t, q) }) {
		score += weightTags
	}
	if slices.ContainsFunc(p.Categories, func(id string) bool { return catHits[id] }) {
		score += weightCategory
	}
	return score
}

// GetBySlug returns an active product.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Product, error) {
	p, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrNotFound
	}
	return p, nil
}

// Get returns any product, active or not.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.repo.Get(ctx, id)
}

// ByIDs returns the active products among ids.
func (s *Service) ByIDs(ctx context.Context, ids []string) ([]Product, error) {
	ids = mapNonEmpty(ids, strings.TrimSpace)
	if len(ids) == 0 {
		return nil, ErrIDsRequired
	}
	return s.repo.Find(ctx, Query{
		Filter: Filter{}.Where(FieldIsActive, OpEq, true).Where(FieldID, OpIn, ids),
		Sort:   SortNewest,
	})
}

// Lookup returns the products among ids keyed by id, active or not.
func (s *Service) Lookup(ctx context.Context, ids []string) (map[string]Product, error) {
	out := make(map[string]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	found, err := s.repo.Find(ctx, Query{Filter: Filter{}.Where(FieldID, OpIn, ids)})
	if err != nil {
		return nil, errors.Wrap(err, "lookup products")
	}
	for _, p := range found {
		out[p.ID] = p
	}
	return out, nil
}

// AdminList returns every product, newest first.
func (s *Service) AdminList(ctx context.Context) ([]Product, error) {
	return s.repo.Find(ctx, Query{Sort: SortNewest})
}

// Input creates a product.
type Input struct {
	Title            string              `json:"title"`
	Slug             string              `json:"slug"`
	Description      string              `json:"description"`
	ShortDescription string              `json:"shortDescription"`
	Price            decimal.Decimal     `json:"price"`
	DiscountPrice    decimal.NullDecimal `json:"discountPrice"`
	SKU              string              `json:"sku"`
	Categories       []string            `json:"categories"`
	Sizes            []string            `json:"sizes"`
	Colors           []string            `json:"colors"`
	Tags             []string            `json:"tags"`
	Images           []string            `json:"images"`
	Stock            int                 `json:"stock"`
	IsFeatured       bool                `json:"isFeatured"`
	IsActive         *bool               `json:"isActive"`
}

// Patch updates the non-nil fields.
type Patch struct {
	Title            *string              `json:"title"`
	Slug             *string              `json:"slug"`
	Description      *string              `json:"description"`
	ShortDescription *string              `json:"shortDescription"`
	Price            *decimal.Decimal     `json:"price"`
	DiscountPrice    *decimal.NullDecimal `json:"discountPrice"`
	SKU              *string              `json:"sku"`
	Categories       *[]string            `json:"categories"`
	Sizes            *[]string            `json:"sizes"`
	Colors           *[]string            `json:"colors"`
	Tags             *[]string            `json:"tags"`
	Stock            *int                 `json:"stock"`
	IsFeatured       *bool                `json:"isFeatured"`
	IsActive         *bool                `json:"isActive"`
}

func validate(p *Product) error {
	if strings.TrimSpace(p.Title) == "" || len(p.Categories) == 0 {
		return ErrMissingField
	}
	if !p.Price.IsPositive() {
		return ErrInvalidPrice
	}
	if p.DiscountPrice.Valid && p.DiscountPrice.Decimal.IsNegative() {
		return ErrInvalidPrice.Withf("Discount price cannot be negative")
	}
	if p.Stock < 0 {
		return ErrInvalidStock
	}
	return nil
}

// Create stores a product. Uploaded images are appended to in.Images and
// removed again if the product cannot be stored.
func (s *Service) Create(ctx context.Context, in Input, images []upload.File) (*Product, error) {
	now := time.Now().UTC()
	p := &Product{
		ID:               uuid.NewString(),
		Title:            strings.TrimSpace(in.Title),
		Slug:             strings.TrimSpace(in.Slug),
		Description:      in.Description,
		ShortDescription: in.ShortDescription,
		Price:            in.Price,
		DiscountPrice:    in.DiscountPrice,
		SKU:              strings.TrimSpace(in.SKU),
		Categories:       mapNonEmpty(in.Categories, strings.TrimSpace),
		Sizes:            mapNonEmpty(in.Sizes, NormalizeSize),
		Colors:           mapNonEmpty(in.Colors, NormalizeColor),
		Tags:             mapNonEmpty(in.Tags, strings.TrimSpace),
		Images:           mapNonEmpty(in.Images, strings.TrimSpace),
		Stock:            in.Stock,
		IsFeatured:       in.IsFeatured,
		IsActive:         in.IsActive == nil || *in.IsActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if p.Slug == "" {
		p.Slug = category.Slugify(p.Title)
	}
	if err := validate(p); err != nil {
		return nil, err
	}

	saved, err := s.saveImages(images)
	if err != nil {
		return nil, err
	}
	for _, f := range saved {
		p.Images = append(p.Images, f.Path)
	}
	if err := s.repo.Create(ctx, p); err != nil {
		s.dropImages(ctx, savedPaths(saved))
		return nil, err
	}
	return p, nil
}

// Update applies patch. New images replace the existing set.
func (s *Service) Update(ctx context.Context, id string, patch Patch, images []upload.File) (*Product, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Title != nil {
		p.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Slug != nil && strings.TrimSpace(*patch.Slug) != "" {
		p.Slug = strings.TrimSpace(*patch.Slug)
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.ShortDescription != nil {
		p.ShortDescription = *patch.ShortDescription
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.DiscountPrice != nil {
		p.DiscountPrice = *patch.DiscountPrice
	}
	if patch.SKU != nil {
		p.SKU = strings.TrimSpace(*patch.SKU)
	}
	if patch.Categories != nil {
		p.Categories = mapNonEmpty(*patch.Categories, strings.TrimSpace)
	}
	if patch.Sizes != nil {
		p.Sizes = mapNonEmpty(*patch.Sizes, NormalizeSize)
	}
	if patch.Colors != nil {
		p.Colors = mapNonEmpty(*patch.Colors, NormalizeColor)
	}
	if patch.Tags != nil {
		p.Tags = mapNonEmpty(*patch.Tags, strings.TrimSpace)
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	if patch.IsFeatured != nil {
		p.IsFeatured = *patch.IsFeatured
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}
	if err := validate(p); err != nil {
		return nil, err
	}

	saved, err := s.saveImages(images)
	if err != nil {
		return nil, err
	}
	old := p.Images
	if len(saved) > 0 {
		p.Images = savedPaths(saved)
	}
	p.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, p); err != nil {
		s.dropImages(ctx, savedPaths(saved))
		return nil, err
	}
	if len(saved) > 0 {
		s.dropImages(ctx, old)
	}
	return p, nil
}

// Delete removes a product and, best-effort, its image files.
func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.dropImages(ctx, p.Images)
	return nil
}

// SetRating stores a recomputed review aggregate.
func (s *Service) SetRating(ctx context.Context, id string, r Rating) error {
	return s.repo.SetRating(ctx, id, r)
}

func (s *Service) saveImages(files []upload.File) ([]upload.Saved, error) {
	if len(files) == 0 || s.images == nil {
		return nil, nil
	}
	return s.images.SaveAll(upload.AreaProducts, files, upload.KindImage)
}

func savedPaths(saved []upload.Saved) []string {
	out := make([]string, len(saved))
	for i, f := range saved {
		out[i] = f.Path
	}
	return out
}

func (s *Service) dropImages(ctx context.Context, paths []string) {
	if s.images == nil {
		return
	}
	for _, path := range paths {
		if err := s.images.Delete(path); err != nil {
			zctx.From(ctx).Warn("Delete product image", zap.String("path", path), zap.Error(err))
		}
	}
}

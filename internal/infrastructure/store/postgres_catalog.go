package store

import (
	"context"
	"database/sql"

	"github.com/go-faster/errors"
	"github.com/lib/pq"

	"github.com/example/ec-storefront/internal/domain/category"
	"github.com/example/ec-storefront/internal/domain/product"
)

// PostgresCategoryRepository implements category.Repository.
type PostgresCategoryRepository struct {
	db *sql.DB
}

func NewPostgresCategoryRepository(db *sql.DB) *PostgresCategoryRepository {
	return &PostgresCategoryRepository{db: db}
}

const categoryColumns = `id, name, slug, COALESCE(parent_id, ''), image, description, created_at, updated_at`

func scanCategory(row rowScanner) (*category.Category, error) {
	var c category.Category
	if err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.ParentID, &c.Image, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func categoryErr(err error) error {
	if _, ok := uniqueViolation(err); ok {
		return category.ErrSlugTaken
	}
	return err
}

func (r *PostgresCategoryRepository) Create(ctx context.Context, c *category.Category) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, slug, parent_id, image, description, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
	`, c.ID, c.Name, c.Slug, c.ParentID, c.Image, c.Description, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return errors.Wrap(categoryErr(err), "insert category")
	}
	return nil
}

func (r *PostgresCategoryRepository) Update(ctx context.Context, c *category.Category) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE categories SET name = $2, slug = $3, parent_id = NULLIF($4, ''), image = $5,
			description = $6, updated_at = $7
		WHERE id = $1
	`, c.ID, c.Name, c.Slug, c.ParentID, c.Image, c.Description, c.UpdatedAt)
	if err != nil {
		return errors.Wrap(categoryErr(err), "update category")
	}
	return affected(res, category.ErrNotFound)
}

func (r *PostgresCategoryRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete category")
	}
	return affected(res, category.ErrNotFound)
}

func (r *PostgresCategoryRepository) Get(ctx context.Context, id string) (*category.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, category.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get category")
	}
	return c, nil
}

func (r *PostgresCategoryRepository) list(ctx context.Context, where string, args ...any) ([]category.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories `+where+` ORDER BY name, id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query categories")
	}
	return scanAll(rows, scanCategory)
}

func (r *PostgresCategoryRepository) List(ctx context.Context) ([]category.Category, error) {
	return r.list(ctx, "")
}

func (r *PostgresCategoryRepository) FindBySlugs(ctx context.Context, slugs []string) ([]category.Category, error) {
	return r.list(ctx, `WHERE slug = ANY($1)`, pq.Array(slugs))
}

func (r *PostgresCategoryRepository) FindByIDs(ctx context.Context, ids []string) ([]category.Category, error) {
	return r.list(ctx, `WHERE id = ANY($1)`, pq.Array(ids))
}

func (r *PostgresCategoryRepository) FindByNameContains(ctx context.Context, q string) ([]category.Category, error) {
	return r.list(ctx, `WHERE name ILIKE $1`, likePattern(q))
}

func (r *PostgresCategoryRepository) CountChildren(ctx context.Context, id string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM categories WHERE parent_id = $1`, id).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count subcategories")
	}
	return n, nil
}

// PostgresProductRepository implements product.Repository. Filters are
// compiled to SQL by compileFilter.
type PostgresProductRepository struct {
	db *sql.DB
}

func NewPostgresProductRepository(db *sql.DB) *PostgresProductRepository {
	return &PostgresProductRepository{db: db}
}

const productSelect = `SELECT id, title, slug, description, short_description, price, discount_price,
	COALESCE(sku, ''), categories, sizes, colors, images, tags, stock, is_featured, is_active,
	rating_average, rating_count, created_at, updated_at FROM products `

func scanProduct(row rowScanner) (*product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Description, &p.ShortDescription, &p.Price, &p.DiscountPrice,
		&p.SKU, pq.Array(&p.Categories), pq.Array(&p.Sizes), pq.Array(&p.Colors), pq.Array(&p.Images),
		pq.Array(&p.Tags), &p.Stock, &p.IsFeatured, &p.IsActive, &p.Rating.Average, &p.Rating.Count,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Categories = nonNil(p.Categories)
	p.Sizes = nonNil(p.Sizes)
	p.Colors = nonNil(p.Colors)
	p.Images = nonNil(p.Images)
	p.Tags = nonNil(p.Tags)
	return &p, nil
}

func productErr(err error) error {
	switch constraint, ok := uniqueViolation(err); {
	case !ok:
		return err
	case constraint == "products_sku_key":
		return product.ErrSKUTaken
	default:
		return product.ErrSlugTaken
	}
}

func (r *PostgresProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, title, slug, description, short_description, price, discount_price, sku,
			categories, sizes, colors, images, tags, stock, is_featured, is_active,
			rating_average, rating_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`, p.ID, p.Title, p.Slug, p.Description, p.ShortDescription, p.Price, p.DiscountPrice, p.SKU,
		pq.Array(nonNil(p.Categories)), pq.Array(nonNil(p.Sizes)), pq.Array(nonNil(p.Colors)),
		pq.Array(nonNil(p.Images)), pq.Array(nonNil(p.Tags)), p.Stock, p.IsFeatured, p.IsActive,
		p.Rating.Average, p.Rating.Count, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return errors.Wrap(productErr(err), "insert product")
	}
	return nil
}

// Update rewrites the definition; the rating is owned by SetRating.
func (r *PostgresProductRepository) Update(ctx context.Context, p *product.Product) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE products SET title = $2, slug = $3, description = $4, short_description = $5, price = $6,
			discount_price = $7, sku = NULLIF($8, ''), categories = $9, sizes = $10, colors = $11,
			images = $12, tags = $13, stock = $14, is_featured = $15, is_active = $16, updated_at = $17
		WHERE id = $1
	`, p.ID, p.Title, p.Slug, p.Description, p.ShortDescription, p.Price, p.DiscountPrice, p.SKU,
		pq.Array(nonNil(p.Categories)), pq.Array(nonNil(p.Sizes)), pq.Array(nonNil(p.Colors)),
		pq.Array(nonNil(p.Images)), pq.Array(nonNil(p.Tags)), p.Stock, p.IsFeatured, p.IsActive, p.UpdatedAt)
	if err != nil {
		return errors.Wrap(productErr(err), "update product")
	}
	return affected(res, product.ErrNotFound)
}

func (r *PostgresProductRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete product")
	}
	return affected(res, product.ErrNotFound)
}

func (r *PostgresProductRepository) getOne(ctx context.Context, where string, arg any) (*product.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, productSelect+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, product.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	return p, nil
}

func (r *PostgresProductRepository) Get(ctx context.Context, id string) (*product.Product, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *PostgresProductRepository) GetBySlug(ctx context.Context, slug string) (*product.Product, error) {
	return r.getOne(ctx, `WHERE slug = $1`, slug)
}

func (r *PostgresProductRepository) Find(ctx context.Context, q product.Query) ([]product.Product, error) {
	where, args, err := compileFilter(q.Filter)
	if err != nil {
		return nil, err
	}
	stmt := productSelect + where + " " + orderBy(q.Sort)
	w := &sqlWhere{args: args}
	if q.Limit > 0 {
		stmt += " LIMIT " + w.arg(q.Limit)
	}
	if q.Offset > 0 {
		stmt += " OFFSET " + w.arg(q.Offset)
	}
	rows, err := r.db.QueryContext(ctx, stmt, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "query products")
	}
	return scanAll(rows, scanProduct)
}

func (r *PostgresProductRepository) Count(ctx context.Context, f product.Filter) (int, error) {
	where, args, err := compileFilter(f)
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM products `+where, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count products")
	}
	return n, nil
}

func (r *PostgresProductRepository) SetRating(ctx context.Context, id string, rating product.Rating) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE products SET rating_average = $2, rating_count = $3 WHERE id = $1
	`, id, rating.Average, rating.Count)
	if err != nil {
		return errors.Wrap(err, "set product rating")
	}
	return affected(res, product.ErrNotFound)
}

// affected returns notFound when res touched no rows.
func affected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

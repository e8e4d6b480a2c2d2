// Package category manages the product category tree.
package category

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/example/ec-storefront/internal/apperror"
)

var (
	ErrNotFound    = apperror.NotFound("Category not found")
	ErrNameMissing = apperror.BadRequest("Category name is required")
	ErrInvalidSlug = apperror.BadRequest("Invalid slug format")
	ErrSlugTaken   = apperror.Conflict("Category slug already exists")
	ErrHasChildren = apperror.BadRequest("Category has subcategories; reassign or delete them first")
	ErrBadParent   = apperror.BadRequest("Invalid parent category")
)

// slugRegex accepts lowercase letters, digits and single hyphens.
var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var (
	slugSeparators = regexp.MustCompile(`[\s_]+`)
	slugInvalid    = regexp.MustCompile(`[^a-z0-9-]`)
	slugHyphens    = regexp.MustCompile(`-+`)
)

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	ParentID    string    `json:"parent,omitempty"`
	Image       string    `json:"image,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Node is a category with its subcategories.
type Node struct {
	Category
	Children []*Node `json:"children"`
}

// Repository persists categories. List returns categories sorted by name.
// Create and Update return ErrSlugTaken on a duplicate slug.
type Repository interface {
	Create(ctx context.Context, c *Category) error
	Update(ctx context.Context, c *Category) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Category, error)
	List(ctx context.Context) ([]Category, error)
	FindBySlugs(ctx context.Context, slugs []string) ([]Category, error)
	FindByIDs(ctx context.Context, ids []string) ([]Category, error)
	FindByNameContains(ctx context.Context, q string) ([]Category, error)
	CountChildren(ctx context.Context, id string) (int, error)
}

// Slugify derives a URL slug from a display name.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugSeparators.ReplaceAllString(slug, "-")
	slug = slugInvalid.ReplaceAllString(slug, "")
	slug = slugHyphens.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// BuildTree nests categories under their parents. Categories whose parent is
// missing become roots. Sibling order follows the input order.
func BuildTree(cats []Category) []*Node {
	nodes := make(map[string]*Node, len(cats))
	for _, c := range cats {
		nodes[c.ID] = &Node{Category: c, Children: []*Node{}}
	}
	roots := make([]*Node, 0)
	for _, c := range cats {
		n := nodes[c.ID]
		if parent, ok := nodes[c.ParentID]; ok && c.ParentID != c.ID {
			parent.Children = append(parent.Children, n)
			continue
		}
		roots = append(roots, n)
	}
	return roots
}

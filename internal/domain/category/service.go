package category

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/upload"
)

// Images stores category banners.
type Images interface {
	Save(area string, f upload.File, allowed ...upload.Kind) (upload.Saved, error)
	Delete(path string) error
}

type Service struct {
	repo   Repository
	images Images
}

func NewService(repo Repository, images Images) *Service {
	return &Service{repo: repo, images: images}
}

// Input creates a category. An empty Slug is derived from Name.
type Input struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	ParentID    string `json:"parent"`
	Description string `json:"description"`
}

// Patch updates the non-nil fields. An empty ParentID detaches the category.
type Patch struct {
	Name        *string `json:"name"`
	Slug        *string `json:"slug"`
	ParentID    *string `json:"parent"`
	Description *string `json:"description"`
}

func (s *Service) List(ctx context.Context) ([]Category, error) {
	return s.repo.List(ctx)
}

func (s *Service) Tree(ctx context.Context) ([]*Node, error) {
	cats, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return BuildTree(cats), nil
}

func (s *Service) Get(ctx context.Context, id string) (*Category, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) FindBySlugs(ctx context.Context, slugs []string) ([]Category, error) {
	if len(slugs) == 0 {
		return nil, nil
	}
	return s.repo.FindBySlugs(ctx, slugs)
}

func (s *Service) FindByIDs(ctx context.Context, ids []string) ([]Category, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.repo.FindByIDs(ctx, ids)
}

func (s *Service) FindByNameContains(ctx context.Context, q string) ([]Category, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	return s.repo.FindByNameContains(ctx, q)
}

func (s *Service) Create(ctx context.Context, in Input, image *upload.File) (*Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrNameMissing
	}
	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if !slugRegex.MatchString(slug) {
		return nil, ErrInvalidSlug
	}

	now := time.Now().UTC()
	c := &Category{
		ID:          uuid.NewString(),
		Name:        name,
		Slug:        slug,
		ParentID:    strings.TrimSpace(in.ParentID),
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.checkParent(ctx, c.ID, c.ParentID); err != nil {
		return nil, err
	}

	if image != nil {
		saved, err := s.images.Save(upload.AreaCategories, *image, upload.KindImage)
		if err != nil {
			return nil, err
		}
		c.Image = saved.Path
	}
	if err := s.repo.Create(ctx, c); err != nil {
		s.dropImage(ctx, c.Image)
		return nil, err
	}
	return c, nil
}

func (s *Service) Update(ctx context.Context, id string, p Patch, image *upload.File) (*Category, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return nil, ErrNameMissing
		}
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.Slug != nil && *p.Slug != "" {
		if !slugRegex.MatchString(*p.Slug) {
			return nil, ErrInvalidSlug
		}
		c.Slug = *p.Slug
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.ParentID != nil {
		parent := strings.TrimSpace(*p.ParentID)
		if err := s.checkParent(ctx, c.ID, parent); err != nil {
			return nil, err
		}
		c.ParentID = parent
	}

	old := c.Image
	if image != nil {
		saved, err := s.images.Save(upload.AreaCategories, *image, upload.KindImage)
		if err != nil {
			return nil, err
		}
		c.Image = saved.Path
	}
	c.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, c); err != nil {
		if c.Image != old {
			s.dropImage(ctx, c.Image)
		}
		return nil, err
	}
	if c.Image != old {
		s.dropImage(ctx, old)
	}
	return c, nil
}

// Delete removes a leaf category and its banner.
func (s *Service) Delete(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	n, err := s.repo.CountChildren(ctx, id)
	if err != nil {
		return errors.Wrap(err, "count children")
	}
	if n > 0 {
		return ErrHasChildren
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.dropImage(ctx, c.Image)
	return nil
}

// checkParent rejects unknown parents and parents that would close a cycle.
func (s *Service) checkParent(ctx context.Context, id, parentID string) error {
	if parentID == "" {
		return nil
	}
	if parentID == id {
		return ErrBadParent.Withf("A category cannot be its own parent")
	}
	all, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	parents := make(map[string]string, len(all))
	for _, c := range all {
		parents[c.ID] = c.ParentID
	}
	if _, ok := parents[parentID]; !ok {
		return ErrBadParent.Withf("Parent category not found")
	}
	for cur, depth := parentID, 0; cur != "" && depth <= len(all); depth++ {
		if cur == id {
			return ErrBadParent.Withf("Category cannot be moved under its own descendant")
		}
		cur = parents[cur]
	}
	return nil
}

func (s *Service) dropImage(ctx context.Context, path string) {
	if path == "" || s.images == nil {
		return
	}
	if err := s.images.Delete(path); err != nil {
		zctx.From(ctx).Warn("Delete category image", zap.String("path", path), zap.Error(err))
	}
}

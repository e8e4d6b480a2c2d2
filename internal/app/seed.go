package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/events"
	"github.com/example/ec-storefront/internal/seed"
	"github.com/example/ec-storefront/internal/upload"
	"github.com/example/ec-storefront/pkg/health"
)

// RunSeed loads the fixture at path into the configured backends and
// bootstraps the admin account when one is configured.
func RunSeed(ctx context.Context, lg *zap.Logger, cfg *Config, path string) error {
	if cfg.Storage.Driver == "memory" {
		return errors.New("seeding the memory driver has no lasting effect")
	}
	res := &resources{}
	defer res.close(lg)

	repos, err := openRepositories(ctx, lg, cfg, health.New(), res)
	if err != nil {
		return err
	}
	jwt := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	files := upload.New(cfg.Uploads.Dir, cfg.Uploads.BaseURL, cfg.Uploads.MaxFileSize)
	svc := NewServices(repos, files, jwt, events.Noop{})

	if cfg.Admin.Email != "" {
		if _, err := svc.Users.EnsureAdmin(ctx, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			return errors.Wrap(err, "ensure admin")
		}
	}
	if path == "" {
		return nil
	}

	r, err := seed.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	data, err := seed.Decode(r)
	if err != nil {
		return err
	}
	rep, err := seed.New(svc.Categories, svc.Products, svc.Coupons).Apply(ctx, data)
	if err != nil {
		return err
	}
	lg.Info("Seed complete",
		zap.String("file", path),
		zap.Int("categories_skipped", rep.Categories.Skipped),
		zap.Int("products_skipped", rep.Products.Skipped),
		zap.Int("coupons_skipped", rep.Coupons.Skipped),
	)
	return nil
}

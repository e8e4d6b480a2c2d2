package app

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/ec-storefront/internal/api"
	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/category"
	"github.com/example/ec-storefront/internal/domain/coupon"
	"github.com/example/ec-storefront/internal/domain/newsletter"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/domain/review"
	"github.com/example/ec-storefront/internal/domain/ticket"
	"github.com/example/ec-storefront/internal/domain/user"
	"github.com/example/ec-storefront/internal/domain/wishlist"
	"github.com/example/ec-storefront/internal/events"
	"github.com/example/ec-storefront/internal/infrastructure/kafka"
	"github.com/example/ec-storefront/internal/infrastructure/rabbitmq"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/metrics"
	"github.com/example/ec-storefront/internal/upload"
	"github.com/example/ec-storefront/pkg/health"
	"github.com/example/ec-storefront/pkg/httpmiddleware"
)

func init() {
	// Money leaves the API as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Repositories is the full set of storage backends the services run on.
type Repositories struct {
	Categories category.Repository
	Products   product.Repository
	Carts      cart.Repository
	Wishlists  wishlist.Repository
	Coupons    coupon.Repository
	Orders     order.Repository
	Reviews    review.Repository
	Tickets    ticket.Repository
	Users      user.Repository
	Sessions   user.Sessions
	Newsletter newsletter.Repository
}

// MemoryRepositories returns process-local repositories. Nothing survives a
// restart.
func MemoryRepositories() Repositories {
	users := store.NewMemoryUserRepository()
	return Repositories{
		Categories: store.NewMemoryCategoryRepository(),
		Products:   store.NewMemoryProductRepository(),
		Carts:      store.NewMemoryCartRepository(),
		Wishlists:  store.NewMemoryWishlistRepository(),
		Coupons:    store.NewMemoryCouponRepository(),
		Orders:     store.NewMemoryOrderRepository(),
		Reviews:    store.NewMemoryReviewRepository(),
		Tickets:    store.NewMemoryTicketRepository(),
		Users:      users,
		Sessions:   users,
		Newsletter: store.NewMemoryNewsletterRepository(),
	}
}

// PostgresRepositories returns repositories backed by db.
func PostgresRepositories(db *sql.DB) Repositories {
	users := store.NewPostgresUserRepository(db)
	return Repositories{
		Categories: store.NewPostgresCategoryRepository(db),
		Products:   store.NewPostgresProductRepository(db),
		Carts:      store.NewPostgresCartRepository(db),
		Wishlists:  store.NewPostgresWishlistRepository(db),
		Coupons:    store.NewPostgresCouponRepository(db),
		Orders:     store.NewPostgresOrderRepository(db),
		Reviews:    store.NewPostgresReviewRepository(db),
		Tickets:    store.NewPostgresTicketRepository(db),
		Users:      users,
		Sessions:   users,
		Newsletter: store.NewPostgresNewsletterRepository(db),
	}
}

// NewServices builds the domain services on top of repos.
func NewServices(repos Repositories, files *upload.Storage, jwt *auth.JWTService, publisher events.Publisher) api.Services {
	categories := category.NewService(repos.Categories, files)
	products := product.NewService(repos.Products, categories, files)
	coupons := coupon.NewService(repos.Coupons)
	orders := order.NewService(repos.Orders, products, coupons, publisher)
	return api.Services{
		Categories: categories,
		Products:   products,
		Carts:      cart.NewService(repos.Carts, products),
		Wishlists:  wishlist.NewService(repos.Wishlists, products),
		Coupons:    coupons,
		Orders:     orders,
		Reviews:    review.NewService(repos.Reviews, orders, products),
		Tickets:    ticket.NewService(repos.Tickets, files, publisher),
		Users:      user.NewService(repos.Users, repos.Sessions, jwt),
		Newsletter: newsletter.NewService(repos.Newsletter),
	}
}

// resources tracks what Run opened so it can be released in reverse order.
type resources struct {
	closers []func() error
}

func (r *resources) add(fn func() error) { r.closers = append(r.closers, fn) }

func (r *resources) close(lg *zap.Logger) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			lg.Warn("Close failed", zap.Error(err))
		}
	}
}

// openRepositories connects the configured backends. Readiness checks for
// every remote dependency are registered on hs.
func openRepositories(ctx context.Context, lg *zap.Logger, cfg *Config, hs *health.Health, res *resources) (Repositories, error) {
	if cfg.Storage.Driver == "memory" {
		lg.Warn("Using in-memory storage, data is lost on restart")
		return MemoryRepositories(), nil
	}

	db, err := store.ConnectPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return Repositories{}, errors.Wrap(err, "connect postgres")
	}
	res.add(db.Close)
	if err := store.Migrate(ctx, db); err != nil {
		return Repositories{}, errors.Wrap(err, "migrate")
	}
	hs.AddReadinessCheck("postgres", 5*time.Second, db.PingContext)
	repos := PostgresRepositories(db)

	if cfg.Coupons.Backend == "dynamodb" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return Repositories{}, errors.Wrap(err, "load aws config")
		}
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.Coupons.DynamoEndpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Coupons.DynamoEndpoint)
			}
		})
		coupons := store.NewDynamoCouponRepository(client, cfg.Coupons.DynamoTable)
		if err := coupons.EnsureTable(ctx); err != nil {
			return Repositories{}, errors.Wrap(err, "ensure coupon table")
		}
		repos.Coupons = coupons
		lg.Info("Coupons on DynamoDB", zap.String("table", cfg.Coupons.DynamoTable))
	}

	if cfg.Tickets.Backend == "mongo" {
		client, err := store.ConnectMongo(ctx, cfg.Tickets.MongoURI)
		if err != nil {
			return Repositories{}, errors.Wrap(err, "connect mongo")
		}
		res.add(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(ctx)
		})
		tickets := store.NewMongoTicketRepository(client.Database(cfg.Tickets.MongoDatabase))
		if err := tickets.EnsureIndexes(ctx); err != nil {
			return Repositories{}, errors.Wrap(err, "ensure ticket indexes")
		}
		hs.AddReadinessCheck("mongo", 5*time.Second, func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		})
		repos.Tickets = tickets
		lg.Info("Tickets on MongoDB", zap.String("database", cfg.Tickets.MongoDatabase))
	}
	return repos, nil
}

// openPublisher returns the configured event publisher.
func openPublisher(cfg EventsConfig, res *resources) (events.Publisher, error) {
	switch cfg.Broker {
	case "kafka":
		p := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		res.add(p.Close)
		return p, nil
	case "rabbitmq":
		b, err := rabbitmq.Dial(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			return nil, errors.Wrap(err, "dial rabbitmq")
		}
		res.add(b.Close)
		return b, nil
	default:
		return events.Noop{}, nil
	}
}

// NewHandler assembles the API, health, metrics and upload routes behind the
// shared middleware chain.
func NewHandler(ctx context.Context, cfg *Config, svc api.Services, files *upload.Storage, jwt *auth.JWTService, hs *health.Health) http.Handler {
	h := api.NewHandlers(svc, files, jwt, cfg.Auth.CookieSecure)
	authn := middleware.NewAuthenticator(jwt, svc.Users)

	mux := http.NewServeMux()
	api.Register(ctx, mux, h, authn, api.DefaultLimits())
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /livez", hs.LiveEndpoint)
	mux.HandleFunc("GET /readyz", hs.ReadyEndpoint)
	mux.Handle("GET "+upload.URLPrefix, files.Handler())

	return httpmiddleware.Wrap(httpmiddleware.Routed(mux),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.LogRequests(),
		metrics.Middleware(),
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "Authorization"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
	)
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the API process.
func Run(ctx context.Context, lg *zap.Logger, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("broker", cfg.Events.Broker),
	)

	res := &resources{}
	defer res.close(lg)

	hs := health.New()
	hs.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	repos, err := openRepositories(ctx, lg, cfg, hs, res)
	if err != nil {
		return err
	}
	publisher, err := openPublisher(cfg.Events, res)
	if err != nil {
		return err
	}

	jwt := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	files := upload.New(cfg.Uploads.Dir, cfg.Uploads.BaseURL, cfg.Uploads.MaxFileSize)
	svc := NewServices(repos, files, jwt, publisher)

	if cfg.Admin.Email != "" {
		if _, err := svc.Users.EnsureAdmin(ctx, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			return errors.Wrap(err, "ensure admin")
		}
		lg.Info("Admin account ready", zap.String("email", cfg.Admin.Email))
	}

	hs.Start(ctx, 10*time.Second)
	hs.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.HTTP.Addr,
		Handler:           NewHandler(ctx, cfg, svc, files, jwt, hs),
		ErrorLog:          zap.NewStdLog(lg.Named("http")),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		hs.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		hs.Stop()
		return nil
	})
	return g.Wait()
}

package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/domain/user"
	"github.com/example/ec-storefront/internal/email"
	"github.com/example/ec-storefront/internal/infrastructure/kafka"
	"github.com/example/ec-storefront/internal/infrastructure/rabbitmq"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/notification"
)

// RunNotifier consumes storefront events and sends the customer e-mail. It
// reads ticket owners from the primary database.
func RunNotifier(ctx context.Context, lg *zap.Logger, cfg *Config) error {
	if cfg.Events.Broker == "none" {
		return errors.New("notifier needs an events broker: set SHOP_EVENTS_BROKER to kafka or rabbitmq")
	}
	if cfg.Storage.Driver != "postgres" {
		return errors.New("notifier needs the postgres storage driver to resolve ticket owners")
	}

	db, err := store.ConnectPostgres(ctx, cfg.Database.URL)
	if err != nil {
		return errors.Wrap(err, "connect postgres")
	}
	defer func() { _ = db.Close() }()

	users := store.NewPostgresUserRepository(db)
	jwt := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	mailer := email.NewService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From)
	handler := notification.NewHandler(mailer, user.NewService(users, users, jwt))

	lg.Info("Notifier starting",
		zap.String("broker", cfg.Events.Broker),
		zap.String("smtp", cfg.SMTP.Host+":"+cfg.SMTP.Port),
	)

	switch cfg.Events.Broker {
	case "kafka":
		consumer := kafka.NewConsumer(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, cfg.Events.KafkaGroup)
		defer func() { _ = consumer.Close() }()
		err = consumer.Consume(ctx, handler.Handle)
	case "rabbitmq":
		broker, dialErr := dialRabbit(ctx, lg, cfg.Events)
		if dialErr != nil {
			return dialErr
		}
		defer func() { _ = broker.Close() }()
		err = broker.Consume(ctx, cfg.Events.RabbitQueue, handler.Handle)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrap(err, "consume")
	}
	lg.Info("Notifier stopped")
	return nil
}

// dialRabbit retries the initial connection; the broker usually starts
// alongside the notifier.
func dialRabbit(ctx context.Context, lg *zap.Logger, cfg EventsConfig) (*rabbitmq.Broker, error) {
	const attempts = 10
	for i := 1; ; i++ {
		b, err := rabbitmq.Dial(cfg.RabbitURL, cfg.RabbitExchange)
		if err == nil {
			return b, nil
		}
		if i == attempts {
			return nil, errors.Wrap(err, "dial rabbitmq")
		}
		lg.Warn("RabbitMQ not reachable, retrying", zap.Int("attempt", i), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(i) * time.Second):
		}
	}
}

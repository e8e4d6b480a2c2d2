//go:build integration

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/example/ec-storefront/internal/domain/coupon"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/ticket"
)

var (
	pgDB        *sql.DB
	mongoClient *mongo.Client
	dynamoURL   string
)

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, pgURL, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "shop",
			"POSTGRES_PASSWORD": "shop",
			"POSTGRES_DB":       "shop",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	}, "postgres://shop:shop@%s/shop?sslmode=disable")
	if err != nil {
		log.Printf("postgres container: %v", err)
		return 1
	}
	defer func() { _ = pg.Terminate(context.Background()) }()

	mg, mongoURL, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(time.Minute),
	}, "mongodb://%s")
	if err != nil {
		log.Printf("mongo container: %v", err)
		return 1
	}
	defer func() { _ = mg.Terminate(context.Background()) }()

	dy, url, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        "amazon/dynamodb-local:latest",
		ExposedPorts: []string{"8000/tcp"},
		Cmd:          []string{"-jar", "DynamoDBLocal.jar", "-inMemory"},
		WaitingFor:   wait.ForListeningPort("8000/tcp").WithStartupTimeout(time.Minute),
	}, "http://%s")
	if err != nil {
		log.Printf("dynamodb container: %v", err)
		return 1
	}
	defer func() { _ = dy.Terminate(context.Background()) }()
	dynamoURL = url

	if pgDB, err = ConnectPostgres(ctx, pgURL); err != nil {
		log.Printf("connect postgres: %v", err)
		return 1
	}
	defer func() { _ = pgDB.Close() }()
	if err := Migrate(ctx, pgDB); err != nil {
		log.Printf("migrate: %v", err)
		return 1
	}

	if mongoClient, err = ConnectMongo(ctx, mongoURL); err != nil {
		log.Printf("connect mongo: %v", err)
		return 1
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	return m.Run()
}

// startContainer starts req and renders urlFormat with the host:port of its
// first exposed port.
func startContainer(ctx context.Context, req testcontainers.ContainerRequest, urlFormat string) (testcontainers.Container, string, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", err
	}
	endpoint, err := c.Endpoint(ctx, "")
	if err != nil {
		return c, "", err
	}
	return c, fmt.Sprintf(urlFormat, endpoint), nil
}

// resetPostgres empties every table so each subtest starts clean.
func resetPostgres(t *testing.T) {
	t.Helper()
	_, err := pgDB.ExecContext(context.Background(), `
		TRUNCATE categories, products, carts, wishlists, coupons, coupon_redemptions,
			orders, reviews, tickets, users, user_sessions, newsletter_subscribers CASCADE
	`)
	require.NoError(t, err)
}

func TestPostgresCouponRepository(t *testing.T) {
	testCouponRepository(t, func(t *testing.T) coupon.Repository {
		resetPostgres(t)
		return NewPostgresCouponRepository(pgDB)
	})
}

func TestPostgresOrderRepository(t *testing.T) {
	testOrderRepository(t, func(t *testing.T) order.Repository {
		resetPostgres(t)
		return NewPostgresOrderRepository(pgDB)
	})
}

func TestPostgresUserRepository(t *testing.T) {
	testUserRepository(t, func(t *testing.T) userStore {
		resetPostgres(t)
		return NewPostgresUserRepository(pgDB)
	})
}

func TestPostgresTicketRepository(t *testing.T) {
	testTicketRepository(t, func(t *testing.T) ticket.Repository {
		resetPostgres(t)
		return NewPostgresTicketRepository(pgDB)
	})
}

func TestMongoTicketRepository(t *testing.T) {
	testTicketRepository(t, func(t *testing.T) ticket.Repository {
		repo := NewMongoTicketRepository(mongoClient.Database("shop_" + uuid.NewString()[:8]))
		require.NoError(t, repo.EnsureIndexes(context.Background()))
		return repo
	})
}

func TestDynamoCouponRepository(t *testing.T) {
	client := dynamodb.New(dynamodb.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(dynamoURL),
		Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
	})
	testCouponRepository(t, func(t *testing.T) coupon.Repository {
		repo := NewDynamoCouponRepository(client, "coupons_"+uuid.NewString()[:8])
		require.NoError(t, repo.EnsureTable(context.Background()))
		return repo
	})
}

package store

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/example/ec-storefront/internal/domain/ticket"
)

const ticketCollection = "tickets"

// ConnectMongo connects and pings the primary.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect mongodb")
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping mongodb")
	}
	return client, nil
}

// MongoTicketRepository implements ticket.Repository with each ticket and
// its thread as one document. rev guards Update against lost writes.
type MongoTicketRepository struct {
	collection *mongo.Collection
}

type mongoTicket struct {
	ticket.Ticket `bson:",inline"`
	Rev           int64 `bson:"rev"`
}

// maxUpdateAttempts bounds the optimistic retry loop in Update.
const maxUpdateAttempts = 5

var errConcurrentUpdate = errors.New("ticket changed concurrently")

func NewMongoTicketRepository(db *mongo.Database) *MongoTicketRepository {
	return &MongoTicketRepository{collection: db.Collection(ticketCollection)}
}

// EnsureIndexes creates the index used by ListByUser.
func (r *MongoTicketRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return errors.Wrap(err, "create ticket index")
	}
	return nil
}

func normalizeTicket(t *ticket.Ticket) *ticket.Ticket {
	if t.Messages == nil {
		t.Messages = []ticket.Message{}
	}
	return t
}

func (r *MongoTicketRepository) Create(ctx context.Context, t *ticket.Ticket) error {
	if _, err := r.collection.InsertOne(ctx, mongoTicket{Ticket: *t}); err != nil {
		return errors.Wrap(err, "insert ticket")
	}
	return nil
}

func (r *MongoTicketRepository) find(ctx context.Context, id string) (*mongoTicket, error) {
	var doc mongoTicket
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ticket.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find ticket")
	}
	normalizeTicket(&doc.Ticket)
	return &doc, nil
}

func (r *MongoTicketRepository) Get(ctx context.Context, id string) (*ticket.Ticket, error) {
	doc, err := r.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return &doc.Ticket, nil
}

// Update replaces the document only if rev is unchanged since it was read,
// retrying a few times on contention.
func (r *MongoTicketRepository) Update(ctx context.Context, id string, fn func(*ticket.Ticket) error) (*ticket.Ticket, error) {
	for range maxUpdateAttempts {
		doc, err := r.find(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(&doc.Ticket); err != nil {
			return nil, err
		}
		rev := doc.Rev
		doc.Rev++
		res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": id, "rev": rev}, doc)
		if err != nil {
			return nil, errors.Wrap(err, "replace ticket")
		}
		if res.MatchedCount == 1 {
			return &doc.Ticket, nil
		}
	}
	return nil, errors.Wrapf(errConcurrentUpdate, "update ticket %s", id)
}

func (r *MongoTicketRepository) list(ctx context.Context, filter bson.M) ([]ticket.Ticket, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find tickets")
	}
	var docs []mongoTicket
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode tickets")
	}
	out := make([]ticket.Ticket, 0, len(docs))
	for i := range docs {
		out = append(out, *normalizeTicket(&docs[i].Ticket))
	}
	return out, nil
}

func (r *MongoTicketRepository) ListByUser(ctx context.Context, userID string) ([]ticket.Ticket, error) {
	return r.list(ctx, bson.M{"user_id": userID})
}

func (r *MongoTicketRepository) List(ctx context.Context) ([]ticket.Ticket, error) {
	return r.list(ctx, bson.M{})
}

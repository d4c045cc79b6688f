// Package mongo implements docstore.Store on a hosted MongoDB deployment.
//
// Each docstore collection maps to a MongoDB collection of the same name and
// the document id is stored as the string _id. Reads translate BSON-specific
// types back into the plain Go values the docstore contract promises.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/campus-link/internal/apperror"
	"github.com/sakif/campus-link/internal/docstore"
)

var _ docstore.Store = (*Store)(nil)

// Store is a MongoDB-backed document store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
	now    func() time.Time
}

// New connects to uri, verifies the connection and returns a store rooted
// at the named database.
func New(ctx context.Context, uri, database string, logger *slog.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging: %w", err)
	}

	logger.Info("connected to document store",
		slog.String("driver", "mongo"),
		slog.String("database", database),
	)

	return &Store{
		client: client,
		db:     client.Database(database),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Get reads one document. A missing document is apperror.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Snapshot, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound(collection, id)
		}
		return nil, fmt.Errorf("mongo: getting %s/%s: %w", collection, id, err)
	}
	return toSnapshot(raw), nil
}

// Set replaces the document stored under id, inserting it when missing.
func (s *Store) Set(ctx context.Context, collection, id string, doc docstore.Document) error {
	body := toBSON(docstore.ResolveTimestamps(doc, s.now()))
	body["_id"] = id

	_, err := s.db.Collection(collection).ReplaceOne(ctx,
		bson.M{"_id": id},
		body,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo: setting %s/%s: %w", collection, id, err)
	}
	return nil
}

// Add inserts doc under a fresh ObjectID hex string.
func (s *Store) Add(ctx context.Context, collection string, doc docstore.Document) (string, error) {
	id := primitive.NewObjectID().Hex()

	body := toBSON(docstore.ResolveTimestamps(doc, s.now()))
	body["_id"] = id

	if _, err := s.db.Collection(collection).InsertOne(ctx, body); err != nil {
		return "", fmt.Errorf("mongo: adding to %s: %w", collection, err)
	}
	return id, nil
}

// Query returns every document in collection matching all filters, in
// natural order.
func (s *Store) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Snapshot, error) {
	filter := bson.D{}
	for _, f := range filters {
		filter = append(filter, bson.E{Key: f.Field, Value: f.Value})
	}

	cursor, err := s.db.Collection(collection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mongo: querying %s: %w", collection, err)
	}

	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("mongo: reading %s: %w", collection, err)
	}

	snapshots := make([]docstore.Snapshot, 0, len(raws))
	for _, raw := range raws {
		snapshots = append(snapshots, *toSnapshot(raw))
	}
	return snapshots, nil
}

// Delete removes one document. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("mongo: deleting %s/%s: %w", collection, id, err)
	}
	return nil
}

func toBSON(doc docstore.Document) bson.M {
	out := make(bson.M, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func toSnapshot(raw bson.M) *docstore.Snapshot {
	id := fmt.Sprint(raw["_id"])
	if oid, ok := raw["_id"].(primitive.ObjectID); ok {
		id = oid.Hex()
	}

	data := make(docstore.Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		data[k] = plain(v)
	}
	return &docstore.Snapshot{ID: id, Data: data}
}

// plain converts BSON decoding types into the values docstore promises.
func plain(v any) any {
	switch x := v.(type) {
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(x.T), 0).UTC()
	case int32:
		return int64(x)
	case primitive.A:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = plain(e)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = plain(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = plain(e.Value)
		}
		return out
	default:
		return v
	}
}

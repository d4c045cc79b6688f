// Package docstore is the contract the application holds with the external
// document database.
//
// The application never talks SQL or BSON directly. It reads and writes
// schemaless documents grouped into collections, with exactly the operations
// the hosted platform offers:
//
//	Get: one document by id
//	Set: one document by id, full replace (creates when missing)
//	Add: one new document with a store-generated id
//	Query: every document in a collection matching equality filters
//	Delete: one document by id, a no-op when it does not exist
//
// Values inside a Document are plain Go values: string, bool, float64/int64,
// time.Time, []any and map[string]any. Adapters translate their native types
// (JSON numbers, BSON dates) into these before returning.
//
// Two adapters live in sub-packages: docstore/sqlite (embedded, the default)
// and docstore/mongo (hosted).
package docstore

import (
	"context"
	"time"
)

// Document is one schemaless record. The id is not part of the map.
type Document map[string]any

// Snapshot is a document together with its id, as returned by reads.
type Snapshot struct {
	ID   string
	Data Document
}

// Filter is a single equality condition on a top-level field.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Store is implemented by every document store adapter.
//
// Get returns an error wrapping apperror.ErrNotFound when the document does
// not exist. Delete never does: deleting a missing id is indistinguishable
// from success. No operation retries or caches.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Snapshot, error)
	Set(ctx context.Context, collection, id string, doc Document) error
	Add(ctx context.Context, collection string, doc Document) (string, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]Snapshot, error)
	Delete(ctx context.Context, collection, id string) error
	Close() error
}

type serverTimestamp struct{}

// ServerTimestamp is a placeholder value. Writing it into a top-level field
// makes the store stamp that field with its own clock at write time.
var ServerTimestamp any = serverTimestamp{}

// ResolveTimestamps returns a copy of doc with every top-level
// ServerTimestamp placeholder replaced by now. Adapters call it immediately
// before persisting.
func ResolveTimestamps(doc Document, now time.Time) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = now.UTC()
			continue
		}
		out[k] = v
	}
	return out
}

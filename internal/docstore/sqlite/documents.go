package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/campus-link/internal/apperror"
	"github.com/sakif/campus-link/internal/docstore"
)

// compile-time check that *DB implements docstore.Store
var _ docstore.Store = (*DB)(nil)

// fieldName restricts filter fields to plain identifiers, since the name ends
// up inside a JSON path.
var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type documentRow struct {
	ID   string `db:"id"`
	Data string `db:"data"`
}

// Get reads one document. A missing document is apperror.ErrNotFound.
func (db *DB) Get(ctx context.Context, collection, id string) (*docstore.Snapshot, error) {
	var row documentRow
	err := db.conn.GetContext(ctx, &row,
		`SELECT id, data FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(collection, id)
		}
		return nil, fmt.Errorf("sqlite: getting %s/%s: %w", collection, id, err)
	}

	data, err := decode(row.Data)
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting %s/%s: %w", collection, id, err)
	}

	return &docstore.Snapshot{ID: row.ID, Data: data}, nil
}

// Set writes doc under id, replacing any existing document completely.
func (db *DB) Set(ctx context.Context, collection, id string, doc docstore.Document) error {
	now := db.now().UTC()
	data, err := encode(docstore.ResolveTimestamps(doc, now))
	if err != nil {
		return fmt.Errorf("sqlite: setting %s/%s: %w", collection, id, err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (collection, id)
		 DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, id, data, now, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting %s/%s: %w", collection, id, err)
	}
	return nil
}

// Add stores doc under a fresh xid and returns that id.
func (db *DB) Add(ctx context.Context, collection string, doc docstore.Document) (string, error) {
	id := xid.New().String()
	now := db.now().UTC()

	data, err := encode(docstore.ResolveTimestamps(doc, now))
	if err != nil {
		return "", fmt.Errorf("sqlite: adding to %s: %w", collection, err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		collection, id, data, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: adding to %s: %w", collection, err)
	}
	return id, nil
}

// Query returns every document in collection matching all filters. The
// result order is whatever SQLite returns and must not be relied on.
func (db *DB) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Snapshot, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = ?`)
	args := []any{collection}

	for _, f := range filters {
		if !fieldName.MatchString(f.Field) {
			return nil, apperror.ValidationFailed("field", fmt.Sprintf("invalid filter field %q", f.Field))
		}
		sb.WriteString(` AND json_extract(data, ?) = ?`)
		args = append(args, `$."`+f.Field+`"`, f.Value)
	}

	var rows []documentRow
	if err := db.conn.SelectContext(ctx, &rows, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("sqlite: querying %s: %w", collection, err)
	}

	snapshots := make([]docstore.Snapshot, 0, len(rows))
	for _, row := range rows {
		data, err := decode(row.Data)
		if err != nil {
			return nil, fmt.Errorf("sqlite: querying %s: %w", collection, err)
		}
		snapshots = append(snapshots, docstore.Snapshot{ID: row.ID, Data: data})
	}

	return snapshots, nil
}

// Delete removes one document. Deleting an id that does not exist is not an
// error.
func (db *DB) Delete(ctx context.Context, collection, id string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting %s/%s: %w", collection, id, err)
	}
	return nil
}

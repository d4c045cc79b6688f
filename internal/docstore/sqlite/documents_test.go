package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sakif/campus-link/internal/apperror"
	"github.com/sakif/campus-link/internal/docstore"
)

// newTestDB opens a fresh in-memory database that is closed when the test
// ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func addTestDoc(t *testing.T, db *DB, collection string, doc docstore.Document) string {
	t.Helper()
	id, err := db.Add(context.Background(), collection, doc)
	if err != nil {
		t.Fatalf("failed to add test document: %v", err)
	}
	return id
}

// =========================================================================
// ADD / GET
// =========================================================================

func TestAdd_GeneratesID(t *testing.T) {
	db := newTestDB(t)

	id := addTestDoc(t, db, "projects", docstore.Document{"projectName": "Campus Link"})
	if id == "" {
		t.Fatal("Add() returned an empty id")
	}

	other := addTestDoc(t, db, "projects", docstore.Document{"projectName": "Campus Link"})
	if other == id {
		t.Errorf("Add() returned the same id twice: %s", id)
	}
}

func TestGet_RoundTripsValueTypes(t *testing.T) {
	db := newTestDB(t)
	created := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)

	id := addTestDoc(t, db, "projects", docstore.Document{
		"projectName":   "Campus Link",
		"teamSize":      4,
		"ratio":         0.5,
		"open":          true,
		"techStack":     []string{"Go", "SQLite"},
		"ownerLinkedin": nil,
		"createdAt":     created,
	})

	snap, err := db.Get(context.Background(), "projects", id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if snap.ID != id {
		t.Errorf("ID = %q, want %q", snap.ID, id)
	}
	if got := snap.Data["projectName"]; got != "Campus Link" {
		t.Errorf("projectName = %v, want Campus Link", got)
	}
	if got := snap.Data["teamSize"]; got != int64(4) {
		t.Errorf("teamSize = %#v, want int64(4)", got)
	}
	if got := snap.Data["ratio"]; got != 0.5 {
		t.Errorf("ratio = %#v, want 0.5", got)
	}
	if got := snap.Data["open"]; got != true {
		t.Errorf("open = %#v, want true", got)
	}
	stack, ok := snap.Data["techStack"].([]any)
	if !ok || len(stack) != 2 || stack[0] != "Go" {
		t.Errorf("techStack = %#v, want [Go SQLite]", snap.Data["techStack"])
	}
	if v, present := snap.Data["ownerLinkedin"]; !present || v != nil {
		t.Errorf("ownerLinkedin = %#v (present=%v), want explicit nil", v, present)
	}
	if got, ok := snap.Data["createdAt"].(time.Time); !ok || !got.Equal(created) {
		t.Errorf("createdAt = %#v, want %v", snap.Data["createdAt"], created)
	}
}

func TestAdd_ResolvesServerTimestamp(t *testing.T) {
	db := newTestDB(t)
	fixed := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return fixed }

	id := addTestDoc(t, db, "projects", docstore.Document{"createdAt": docstore.ServerTimestamp})

	snap, err := db.Get(context.Background(), "projects", id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got, ok := snap.Data["createdAt"].(time.Time); !ok || !got.Equal(fixed) {
		t.Errorf("createdAt = %#v, want %v", snap.Data["createdAt"], fixed)
	}
}

func TestGet_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Get(context.Background(), "users", "missing-uid")
	if err == nil {
		t.Fatal("Get() should have returned an error for a missing document")
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// SET
// =========================================================================

func TestSet_CreatesThenReplaces(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Set(ctx, "users", "uid-1", docstore.Document{
		"year":     "2",
		"course":   "BCA",
		"fullName": "Asha Rao",
	}); err != nil {
		t.Fatalf("Set() create error = %v", err)
	}

	// Second write omits fullName: a full replace must drop it.
	if err := db.Set(ctx, "users", "uid-1", docstore.Document{
		"year":   "3",
		"course": "BCA",
	}); err != nil {
		t.Fatalf("Set() replace error = %v", err)
	}

	snap, err := db.Get(ctx, "users", "uid-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if snap.Data["year"] != "3" {
		t.Errorf("year = %v, want 3", snap.Data["year"])
	}
	if _, present := snap.Data["fullName"]; present {
		t.Error("Set() merged instead of replacing: fullName survived")
	}
}

// =========================================================================
// QUERY
// =========================================================================

func TestQuery_EmptyCollection(t *testing.T) {
	db := newTestDB(t)

	snaps, err := db.Query(context.Background(), "projects")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if snaps == nil || len(snaps) != 0 {
		t.Errorf("Query() = %#v, want an empty non-nil slice", snaps)
	}
}

func TestQuery_AllAndFiltered(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	addTestDoc(t, db, "projects", docstore.Document{"ownerId": "alice", "teamSize": 2})
	addTestDoc(t, db, "projects", docstore.Document{"ownerId": "alice", "teamSize": 5})
	addTestDoc(t, db, "projects", docstore.Document{"ownerId": "bob", "teamSize": 2})
	addTestDoc(t, db, "other", docstore.Document{"ownerId": "alice"})

	all, err := db.Query(ctx, "projects")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Query(all) returned %d documents, want 3", len(all))
	}

	alice, err := db.Query(ctx, "projects", docstore.Eq("ownerId", "alice"))
	if err != nil {
		t.Fatalf("Query(ownerId) error = %v", err)
	}
	if len(alice) != 2 {
		t.Errorf("Query(ownerId=alice) returned %d documents, want 2", len(alice))
	}
	for _, s := range alice {
		if s.Data["ownerId"] != "alice" {
			t.Errorf("Query(ownerId=alice) returned a document owned by %v", s.Data["ownerId"])
		}
	}

	both, err := db.Query(ctx, "projects", docstore.Eq("ownerId", "alice"), docstore.Eq("teamSize", 5))
	if err != nil {
		t.Fatalf("Query(two filters) error = %v", err)
	}
	if len(both) != 1 {
		t.Errorf("Query(ownerId=alice, teamSize=5) returned %d documents, want 1", len(both))
	}
}

func TestQuery_BoolFilter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Set(ctx, "users", "done", docstore.Document{"profileCompleted": true}); err != nil {
		t.Fatal(err)
	}
	if err := db.Set(ctx, "users", "todo", docstore.Document{"profileCompleted": false}); err != nil {
		t.Fatal(err)
	}

	snaps, err := db.Query(ctx, "users", docstore.Eq("profileCompleted", true))
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(snaps) != 1 || snaps[0].ID != "done" {
		t.Errorf("Query(profileCompleted=true) = %#v, want only \"done\"", snaps)
	}
}

func TestQuery_RejectsOddFieldNames(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Query(context.Background(), "projects", docstore.Eq(`owner"Id`, "x"))
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Query() error = %v, want ErrValidation", err)
	}
}

// =========================================================================
// DELETE
// =========================================================================

func TestDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	id := addTestDoc(t, db, "projects", docstore.Document{"ownerId": "alice"})

	if err := db.Delete(ctx, "projects", id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := db.Get(ctx, "projects", id)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get() after delete: error = %v, want ErrNotFound", err)
	}
}

func TestDelete_MissingIsNotAnError(t *testing.T) {
	db := newTestDB(t)

	if err := db.Delete(context.Background(), "projects", "never-existed"); err != nil {
		t.Errorf("Delete() of a missing id error = %v, want nil", err)
	}
}

// =========================================================================
// PERSISTENCE
// =========================================================================

func TestNew_FileDatabaseSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campus-link.db")
	ctx := context.Background()

	db, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := db.Set(ctx, "users", "uid-1", docstore.Document{"course": "BTech"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	db.Close()

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("New() reopen error = %v", err)
	}
	defer reopened.Close()

	snap, err := reopened.Get(ctx, "users", "uid-1")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if snap.Data["course"] != "BTech" {
		t.Errorf("course = %v, want BTech", snap.Data["course"])
	}
}

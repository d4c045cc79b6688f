// Package repository wraps the document store operations the application
// needs for its two collections.
//
// THE CONTRACT:
// Every method is a single document-store call (or one per document read
// back). There is no cache, no retry and no ordering beyond what the store
// returns. Store failures come back wrapping apperror.ErrUnavailable so the
// layers above can show a generic message without knowing which store is in
// use.
//
// Services depend on the interfaces below, not on the docstore-backed
// structs, so tests can pass in-memory fakes.
package repository

import (
	"context"

	"github.com/sakif/campus-link/internal/model"
)

// Collection names in the document store.
const (
	ProjectsCollection = "projects"
	ProfilesCollection = "users"
)

// ProjectRepository is the data access the project features need.
type ProjectRepository interface {
	// ListAll returns every project, unordered.
	ListAll(ctx context.Context) ([]model.Project, error)
	// ListByOwner returns the projects whose ownerId equals ownerID.
	ListByOwner(ctx context.Context, ownerID string) ([]model.Project, error)
	// GetByID returns one project or an error wrapping apperror.ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.Project, error)
	// Create stores a new project and fills in its ID and CreatedAt.
	Create(ctx context.Context, project *model.Project) error
	// Delete removes a project. A missing id is not an error.
	Delete(ctx context.Context, id string) error
}

// ProfileRepository reads and writes the per-identity profile document.
type ProfileRepository interface {
	// Get returns the profile keyed by uid, or an error wrapping
	// apperror.ErrNotFound when none has been saved yet.
	Get(ctx context.Context, uid string) (*model.Profile, error)
	// Set replaces the profile keyed by profile.UID.
	Set(ctx context.Context, profile *model.Profile) error
}

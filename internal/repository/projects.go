package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/campus-link/internal/apperror"
	"github.com/sakif/campus-link/internal/docstore"
	"github.com/sakif/campus-link/internal/model"
)

var _ ProjectRepository = (*Projects)(nil)

const fetchError = "could not reach the project store, please try again later"

// Projects is the ProjectRepository backed by a docstore.Store.
type Projects struct {
	store  docstore.Store
	logger *slog.Logger
}

// NewProjects creates the project repository.
func NewProjects(store docstore.Store, logger *slog.Logger) *Projects {
	return &Projects{store: store, logger: logger}
}

// ListAll fetches the whole projects collection.
func (r *Projects) ListAll(ctx context.Context) ([]model.Project, error) {
	snaps, err := r.store.Query(ctx, ProjectsCollection)
	if err != nil {
		r.logger.Error("listing projects failed", slog.String("error", err.Error()))
		return nil, apperror.Unavailable(fetchError, err)
	}
	return projectsFromSnapshots(snaps), nil
}

// ListByOwner fetches the projects posted by ownerID.
func (r *Projects) ListByOwner(ctx context.Context, ownerID string) ([]model.Project, error) {
	snaps, err := r.store.Query(ctx, ProjectsCollection, docstore.Eq("ownerId", ownerID))
	if err != nil {
		r.logger.Error("listing projects by owner failed",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Unavailable(fetchError, err)
	}
	return projectsFromSnapshots(snaps), nil
}

// GetByID fetches one project.
func (r *Projects) GetByID(ctx context.Context, id string) (*model.Project, error) {
	snap, err := r.store.Get(ctx, ProjectsCollection, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("project", id)
		}
		r.logger.Error("reading project failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Unavailable(fetchError, err)
	}
	p := projectFromSnapshot(*snap)
	return &p, nil
}

// Create writes one new project document. The store assigns the id and
// stamps createdAt with its own clock; the document is read back so
// CreatedAt carries that stamp. When the read-back fails the write still
// stands and CreatedAt is left zero.
func (r *Projects) Create(ctx context.Context, project *model.Project) error {
	doc := docstore.Document{
		"ownerId":       project.OwnerID,
		"projectName":   project.Name,
		"description":   project.Description,
		"domain":        project.Domain,
		"techStack":     project.TechStack,
		"teamSize":      project.TeamSize,
		"createdAt":     docstore.ServerTimestamp,
		"uploaderName":  project.UploaderName,
		"ownerEmail":    project.OwnerEmail,
		"ownerPhone":    nullable(project.OwnerPhone),
		"ownerLinkedin": nullable(project.OwnerLinkedin),
	}

	id, err := r.store.Add(ctx, ProjectsCollection, doc)
	if err != nil {
		r.logger.Error("creating project failed",
			slog.String("owner_id", project.OwnerID),
			slog.String("error", err.Error()),
		)
		return apperror.Unavailable("could not save the project, please try again later", err)
	}

	project.ID = id

	snap, err := r.store.Get(ctx, ProjectsCollection, id)
	if err != nil {
		r.logger.Warn("reading back created project failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil
	}
	project.CreatedAt = asTime(snap.Data["createdAt"])
	return nil
}

// Delete removes one project document.
func (r *Projects) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, ProjectsCollection, id); err != nil {
		r.logger.Error("deleting project failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return apperror.Unavailable("could not delete the project, please try again later", err)
	}
	return nil
}

func projectsFromSnapshots(snaps []docstore.Snapshot) []model.Project {
	projects := make([]model.Project, 0, len(snaps))
	for _, s := range snaps {
		projects = append(projects, projectFromSnapshot(s))
	}
	return projects
}

func projectFromSnapshot(s docstore.Snapshot) model.Project {
	d := s.Data
	return model.Project{
		ID:            s.ID,
		OwnerID:       asString(d["ownerId"]),
		Name:          asString(d["projectName"]),
		Description:   asString(d["description"]),
		Domain:        asString(d["domain"]),
		TechStack:     asStrings(d["techStack"]),
		TeamSize:      asInt(d["teamSize"]),
		CreatedAt:     asTime(d["createdAt"]),
		UploaderName:  asString(d["uploaderName"]),
		OwnerEmail:    asString(d["ownerEmail"]),
		OwnerPhone:    asStringPtr(d["ownerPhone"]),
		OwnerLinkedin: asStringPtr(d["ownerLinkedin"]),
		Fields:        map[string]any(d),
	}
}

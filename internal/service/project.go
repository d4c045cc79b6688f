// Package service contains the business rules of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, renders pages and JSON
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes documents in the store
//
// Services accept plain values and the caller's *model.Identity, never an
// *http.Request, and return apperror values that the handlers translate
// into status codes. Validation happens here, before any store call, so
// every caller gets the same rules.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sakif/campus-link/internal/apperror"
	"github.com/sakif/campus-link/internal/model"
	"github.com/sakif/campus-link/internal/repository"
)

// ProjectOptions are the behaviour switches of ProjectService.
type ProjectOptions struct {
	// OwnerOnlyDelete restricts Delete to the project's owner. Off by
	// default: any signed-in user may mark any project as done.
	OwnerOnlyDelete bool
}

// ProjectService handles posting, listing and completing projects.
type ProjectService struct {
	projects  repository.ProjectRepository
	profiles  repository.ProfileRepository
	validator *Validator
	opts      ProjectOptions
	logger    *slog.Logger
}

func NewProjectService(
	projects repository.ProjectRepository,
	profiles repository.ProfileRepository,
	validator *Validator,
	opts ProjectOptions,
	logger *slog.Logger,
) *ProjectService {
	return &ProjectService{
		projects:  projects,
		profiles:  profiles,
		validator: validator,
		opts:      opts,
		logger:    logger,
	}
}

// Create validates in and posts it as a project owned by identity.
//
// ORDER MATTERS:
//  1. Validate. A bad form never reaches the store.
//  2. Refuse when nobody is signed in.
//  3. Read the poster's profile, best effort: absence or failure is fine.
//  4. Denormalise the uploader fields and write one document.
func (s *ProjectService) Create(ctx context.Context, identity *model.Identity, in ProjectInput) (*model.Project, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Domain = strings.TrimSpace(in.Domain)
	in.ContactType = model.ContactType(strings.TrimSpace(string(in.ContactType)))
	in.ContactValue = strings.TrimSpace(in.ContactValue)
	in.TechStack = normaliseTechStack(in.TechStack)

	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	if identity == nil {
		return nil, apperror.Unauthenticated("You must be logged in to post a project.")
	}

	var fullName string
	profile, err := s.profiles.Get(ctx, identity.ID)
	switch {
	case err == nil:
		fullName = profile.FullName
	case errors.Is(err, apperror.ErrNotFound):
	default:
		s.logger.Warn("profile lookup for uploader details failed",
			slog.String("uid", identity.ID),
			slog.String("error", err.Error()),
		)
	}

	project := &model.Project{
		OwnerID:      identity.ID,
		Name:         in.Name,
		Description:  in.Description,
		Domain:       in.Domain,
		TechStack:    in.TechStack,
		TeamSize:     in.TeamSize,
		UploaderName: model.FirstNonEmpty(model.NotAvailable, fullName, identity.DisplayName),
		OwnerEmail:   model.FirstNonEmpty(model.Unknown, identity.Email),
	}

	switch in.ContactType {
	case model.ContactPhone:
		v := in.ContactValue
		project.OwnerPhone = &v
	case model.ContactLinkedIn:
		v := in.ContactValue
		project.OwnerLinkedin = &v
	}

	if err := s.projects.Create(ctx, project); err != nil {
		return nil, err
	}

	s.logger.Info("project created",
		slog.String("id", project.ID),
		slog.String("owner_id", project.OwnerID),
	)
	return project, nil
}

// ListAll returns every project. An empty collection is an empty, non-nil
// slice and no error.
func (s *ProjectService) ListAll(ctx context.Context) ([]model.Project, error) {
	return s.projects.ListAll(ctx)
}

// ListMine returns the projects identity has posted.
func (s *ProjectService) ListMine(ctx context.Context, identity *model.Identity) ([]model.Project, error) {
	if identity == nil {
		return nil, apperror.Unauthenticated("You must be logged in.")
	}
	return s.projects.ListByOwner(ctx, identity.ID)
}

// Get returns one project for the details view.
func (s *ProjectService) Get(ctx context.Context, id string) (*model.Project, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "project ID is required")
	}
	return s.projects.GetByID(ctx, id)
}

// Delete marks a project as done by removing it. Deleting a project that is
// already gone succeeds.
func (s *ProjectService) Delete(ctx context.Context, identity *model.Identity, id string) error {
	if identity == nil {
		return apperror.Unauthenticated("You must be logged in.")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "project ID is required")
	}

	if s.opts.OwnerOnlyDelete {
		project, err := s.projects.GetByID(ctx, id)
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if project.OwnerID != identity.ID {
			return apperror.Forbidden("only the project owner can mark it as done")
		}
	}

	if err := s.projects.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("project marked as done",
		slog.String("id", id),
		slog.String("by", identity.ID),
	)
	return nil
}

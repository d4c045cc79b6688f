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

// ProfileService saves the per-identity profile and decides whether it is
// complete.
type ProfileService struct {
	profiles  repository.ProfileRepository
	validator *Validator
	logger    *slog.Logger
}

func NewProfileService(profiles repository.ProfileRepository, validator *Validator, logger *slog.Logger) *ProfileService {
	return &ProfileService{profiles: profiles, validator: validator, logger: logger}
}

// Get returns the saved profile, or an empty one keyed to identity when
// nothing has been saved yet.
func (s *ProfileService) Get(ctx context.Context, identity *model.Identity) (*model.Profile, error) {
	if identity == nil {
		return nil, apperror.Unauthenticated("You must be logged in.")
	}

	p, err := s.profiles.Get(ctx, identity.ID)
	if errors.Is(err, apperror.ErrNotFound) {
		return &model.Profile{UID: identity.ID, Email: identity.Email}, nil
	}
	return p, err
}

// Save replaces identity's profile with in. The stored completion flag is
// true exactly when every required field is filled; callers signal the
// session manager only in that case.
//
// A profile that is already complete stays complete: a save that would
// blank a required field is rejected without a write.
func (s *ProfileService) Save(ctx context.Context, identity *model.Identity, in ProfileInput) (*model.Profile, error) {
	if identity == nil {
		return nil, apperror.Unauthenticated("User not logged in!")
	}

	in = ProfileInput{
		FullName:  strings.TrimSpace(in.FullName),
		Year:      strings.TrimSpace(in.Year),
		Course:    strings.TrimSpace(in.Course),
		TechStack: strings.TrimSpace(in.TechStack),
		Contact:   strings.TrimSpace(in.Contact),
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	p := &model.Profile{
		UID:       identity.ID,
		Email:     identity.Email,
		FullName:  in.FullName,
		Year:      in.Year,
		Course:    in.Course,
		TechStack: in.TechStack,
		Contact:   in.Contact,
	}
	p.ProfileCompleted = p.HasRequiredFields()

	if !p.ProfileCompleted {
		current, err := s.profiles.Get(ctx, identity.ID)
		switch {
		case errors.Is(err, apperror.ErrNotFound):
		case err != nil:
			return nil, err
		case current.ProfileCompleted:
			return nil, apperror.ValidationFailed(p.MissingField(),
				"Your profile is complete. Every field except full name must stay filled in.")
		}
	}

	if err := s.profiles.Set(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("profile saved",
		slog.String("uid", p.UID),
		slog.Bool("completed", p.ProfileCompleted),
	)
	return p, nil
}

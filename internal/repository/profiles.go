package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/campus-link/internal/apperror"
	"github.com/sakif/campus-link/internal/docstore"
	"github.com/sakif/campus-link/internal/model"
)

var _ ProfileRepository = (*Profiles)(nil)

// Profiles is the ProfileRepository backed by a docstore.Store. The
// document id is the identity id.
type Profiles struct {
	store  docstore.Store
	logger *slog.Logger
}

func NewProfiles(store docstore.Store, logger *slog.Logger) *Profiles {
	return &Profiles{store: store, logger: logger}
}

func (r *Profiles) Get(ctx context.Context, uid string) (*model.Profile, error) {
	snap, err := r.store.Get(ctx, ProfilesCollection, uid)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("profile", uid)
		}
		return nil, apperror.Unavailable("could not load the profile", err)
	}

	d := snap.Data
	uidField := asString(d["uid"])
	if uidField == "" {
		uidField = snap.ID
	}
	return &model.Profile{
		UID:              uidField,
		Email:            asString(d["email"]),
		FullName:         asString(d["fullName"]),
		Year:             asString(d["year"]),
		Course:           asString(d["course"]),
		TechStack:        asString(d["techStack"]),
		Contact:          asString(d["contact"]),
		ProfileCompleted: asBool(d["profileCompleted"]),
		UpdatedAt:        asTime(d["updatedAt"]),
	}, nil
}

// Set writes the whole profile. Fields absent from profile are dropped from
// the stored document.
func (r *Profiles) Set(ctx context.Context, profile *model.Profile) error {
	doc := docstore.Document{
		"uid":              profile.UID,
		"email":            profile.Email,
		"year":             profile.Year,
		"course":           profile.Course,
		"techStack":        profile.TechStack,
		"contact":          profile.Contact,
		"profileCompleted": profile.ProfileCompleted,
		"updatedAt":        docstore.ServerTimestamp,
	}
	if profile.FullName != "" {
		doc["fullName"] = profile.FullName
	}

	if err := r.store.Set(ctx, ProfilesCollection, profile.UID, doc); err != nil {
		r.logger.Error("saving profile failed",
			slog.String("uid", profile.UID),
			slog.String("error", err.Error()),
		)
		return apperror.Unavailable("could not save the profile, please try again later", err)
	}
	return nil
}

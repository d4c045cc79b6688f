package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/campus-link/internal/model"
	"github.com/sakif/campus-link/internal/service"
)

// ProfileHandler serves the complete-profile form and its JSON twin.
type ProfileHandler struct {
	profiles *service.ProfileService
	renderer *Renderer
	logger   *slog.Logger
}

func NewProfileHandler(profiles *service.ProfileService, renderer *Renderer, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, renderer: renderer, logger: logger}
}

// HTTP: GET /complete-profile
func (h *ProfileHandler) ShowCompleteProfile(w http.ResponseWriter, r *http.Request) {
	gd, _ := guardedFrom(r.Context())
	identity := gd.snapshot.Identity

	v := View{Title: "Complete your profile", Identity: identity}
	profile, err := h.profiles.Get(r.Context(), identity)
	if err != nil {
		h.logger.Warn("could not prefill profile form", slog.String("error", err.Error()))
		profile = &model.Profile{}
		v.Error = messageFor(err)
	}
	v.Data = profile
	h.renderer.Render(w, http.StatusOK, "complete_profile", v)
}

// HandleCompleteProfile saves the form. A complete profile unlocks the
// project pages at once; an incomplete one is saved and the form shown
// again.
//
// HTTP: POST /complete-profile
func (h *ProfileHandler) HandleCompleteProfile(w http.ResponseWriter, r *http.Request) {
	gd, _ := guardedFrom(r.Context())
	in := service.ProfileInput{
		FullName:  r.PostFormValue("fullName"),
		Year:      r.PostFormValue("year"),
		Course:    r.PostFormValue("course"),
		TechStack: r.PostFormValue("techStack"),
		Contact:   r.PostFormValue("contact"),
	}

	saved, err := h.save(r, gd, in)
	if err != nil {
		status, _ := statusFor(err)
		h.renderer.Render(w, status, "complete_profile", View{
			Title:    "Complete your profile",
			Identity: gd.snapshot.Identity,
			Error:    messageFor(err),
			Data:     in,
		})
		return
	}

	if saved.ProfileCompleted {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	h.renderer.Render(w, http.StatusOK, "complete_profile", View{
		Title:    "Complete your profile",
		Identity: gd.snapshot.Identity,
		Notice:   "Profile saved. Fill in every field to unlock projects.",
		Data:     saved,
	})
}

// HandleSaveProfile is the JSON form of HandleCompleteProfile.
//
// HTTP: PUT /api/profile
func (h *ProfileHandler) HandleSaveProfile(w http.ResponseWriter, r *http.Request) {
	gd, _ := guardedFrom(r.Context())

	var in service.ProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	saved, err := h.save(r, gd, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// save stores the profile and, when it came out complete, signals the
// session Manager so capability flips without a new sign-in.
func (h *ProfileHandler) save(r *http.Request, gd guarded, in service.ProfileInput) (*model.Profile, error) {
	saved, err := h.profiles.Save(r.Context(), gd.snapshot.Identity, in)
	if err != nil {
		return nil, err
	}
	if saved.ProfileCompleted && gd.manager != nil {
		gd.manager.ProfileCompleted(saved.UID)
	}
	return saved, nil
}

package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/campus-link/internal/apperror"
	"github.com/sakif/campus-link/internal/model"
	"github.com/sakif/campus-link/internal/service"
)

// projectCard is one tile in a project list.
type projectCard struct {
	Project    *model.Project
	UploadedBy string
}

// projectDetail is the open details panel.
type projectDetail struct {
	Project  *model.Project
	Uploader model.UploaderDetails
}

type listView struct {
	Projects []projectCard
	Selected *projectDetail
	Failed   bool // the list could not be loaded
}

// postForm echoes the post-project form back on error.
type postForm struct {
	Name         string
	Description  string
	Domain       string
	TechStack    string
	TeamSize     string
	ContactType  string
	ContactValue string
	Domains      []string
}

type dashboardView struct {
	CanAccessProjects bool
}

// ProjectHandler serves the project pages and the project JSON API.
type ProjectHandler struct {
	projects *service.ProjectService
	guard    *Guard
	renderer *Renderer
	logger   *slog.Logger
}

func NewProjectHandler(projects *service.ProjectService, guard *Guard, renderer *Renderer, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, guard: guard, renderer: renderer, logger: logger}
}

// =========================================================================
// PAGES
// =========================================================================

// HTTP: GET /
func (h *ProjectHandler) ShowLanding(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, http.StatusOK, "landing", View{
		Title:    "Welcome",
		Identity: h.guard.Current(r).Identity,
	})
}

// HTTP: GET /dashboard
func (h *ProjectHandler) ShowDashboard(w http.ResponseWriter, r *http.Request) {
	gd, _ := guardedFrom(r.Context())
	h.renderer.Render(w, http.StatusOK, "dashboard", View{
		Title:    "Dashboard",
		Identity: gd.snapshot.Identity,
		Data:     dashboardView{CanAccessProjects: gd.snapshot.CanAccessProjects},
	})
}

// HTTP: GET /post-project
func (h *ProjectHandler) ShowPostProject(w http.ResponseWriter, r *http.Request) {
	gd, _ := guardedFrom(r.Context())
	h.renderer.Render(w, http.StatusOK, "post_project", View{
		Title:    "Post a Project",
		Identity: gd.snapshot.Identity,
		Data:     postForm{TeamSize: "1", Domains: model.Domains},
	})
}

// HTTP: POST /post-project
func (h *ProjectHandler) HandlePostProject(w http.ResponseWriter, r *http.Request) {
	gd, _ := guardedFrom(r.Context())
	form := postForm{
		Name:         r.PostFormValue("projectName"),
		Description:  r.PostFormValue("description"),
		Domain:       r.PostFormValue("domain"),
		TechStack:    r.PostFormValue("techStack"),
		TeamSize:     r.PostFormValue("teamSize"),
		ContactType:  r.PostFormValue("contactType"),
		ContactValue: r.PostFormValue("contactValue"),
		Domains:      model.Domains,
	}

	teamSize, _ := strconv.Atoi(strings.TrimSpace(form.TeamSize))
	in := service.ProjectInput{
		Name:         form.Name,
		Description:  form.Description,
		Domain:       form.Domain,
		TechStack:    strings.Split(form.TechStack, ","),
		TeamSize:     teamSize,
		ContactType:  model.ContactType(form.ContactType),
		ContactValue: form.ContactValue,
	}

	if _, err := h.projects.Create(r.Context(), gd.snapshot.Identity, in); err != nil {
		status, _ := statusFor(err)
		h.renderer.Render(w, status, "post_project", View{
			Title:    "Post a Project",
			Identity: gd.snapshot.Identity,
			Error:    messageFor(err),
			Data:     form,
		})
		return
	}

	http.Redirect(w, r, "/find-projects", http.StatusSeeOther)
}

// ShowFindProjects lists every project. ?id= opens the details panel for
// one of them. A failed read shows the error instead of the empty state.
//
// HTTP: GET /find-projects
func (h *ProjectHandler) ShowFindProjects(w http.ResponseWriter, r *http.Request) {
	gd, _ := guardedFrom(r.Context())
	v := View{Title: "Find Projects", Identity: gd.snapshot.Identity}

	projects, err := h.projects.ListAll(r.Context())
	if err != nil {
		h.logger.Error("listing projects failed", slog.String("error", err.Error()))
		v.Error = messageFor(err)
		projects = nil
	}

	lv := listView{Projects: cards(projects), Failed: err != nil}
	if id := r.URL.Query().Get("id"); id != "" {
		for i := range projects {
			if p := &projects[i]; p.ID == id {
				lv.Selected = &projectDetail{Project: p, Uploader: model.ResolveUploader(p.Record())}
				break
			}
		}
		if lv.Selected == nil && err == nil {
			v.Error = "That project is no longer available."
		}
	}
	v.Data = lv

	h.renderer.Render(w, http.StatusOK, "find_projects", v)
}

// HTTP: GET /my-projects
func (h *ProjectHandler) ShowMyProjects(w http.ResponseWriter, r *http.Request) {
	gd, _ := guardedFrom(r.Context())
	v := View{Title: "Previous Team Ups", Identity: gd.snapshot.Identity}

	projects, err := h.projects.ListMine(r.Context(), gd.snapshot.Identity)
	if err != nil {
		h.logger.Error("listing own projects failed", slog.String("error", err.Error()))
		v.Error = messageFor(err)
	}
	v.Data = listView{Projects: cards(projects), Failed: err != nil}

	h.renderer.Render(w, http.StatusOK, "my_projects", v)
}

// HTTP: POST /my-projects/{id}/done
func (h *ProjectHandler) HandleMarkDone(w http.ResponseWriter, r *http.Request) {
	gd, _ := guardedFrom(r.Context())

	if err := h.projects.Delete(r.Context(), gd.snapshot.Identity, chi.URLParam(r, "id")); err != nil {
		status, _ := statusFor(err)
		projects, _ := h.projects.ListMine(r.Context(), gd.snapshot.Identity)
		h.renderer.Render(w, status, "my_projects", View{
			Title:    "Previous Team Ups",
			Identity: gd.snapshot.Identity,
			Error:    messageFor(err),
			Data:     listView{Projects: cards(projects)},
		})
		return
	}

	http.Redirect(w, r, "/my-projects", http.StatusSeeOther)
}

// =========================================================================
// JSON API
// =========================================================================

// HTTP: GET /api/projects
func (h *ProjectHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.ListAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// HTTP: GET /api/projects/mine
func (h *ProjectHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	gd, _ := guardedFrom(r.Context())
	projects, err := h.projects.ListMine(r.Context(), gd.snapshot.Identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// HTTP: POST /api/projects
func (h *ProjectHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	gd, _ := guardedFrom(r.Context())

	var in service.ProjectInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	project, err := h.projects.Create(r.Context(), gd.snapshot.Identity, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

// HTTP: DELETE /api/projects/{id}
func (h *ProjectHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	gd, _ := guardedFrom(r.Context())

	err := h.projects.Delete(r.Context(), gd.snapshot.Identity, chi.URLParam(r, "id"))
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSession reports the caller's session state. It is never guarded:
// an anonymous caller gets state "anonymous".
//
// HTTP: GET /api/session
func (h *ProjectHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.guard.Current(r))
}

func cards(projects []model.Project) []projectCard {
	out := make([]projectCard, 0, len(projects))
	for i := range projects {
		p := &projects[i]
		out = append(out, projectCard{Project: p, UploadedBy: model.UploadedBy(p.Record())})
	}
	return out
}

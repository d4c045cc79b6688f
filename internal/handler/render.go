// Package handler contains the HTTP handlers: server-rendered pages and the
// JSON API.
//
// Handlers are glue. They parse the request, call a service, and write a
// page or a JSON body. Business rules live in internal/service; the session
// gate lives in guard.go.
package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/sakif/campus-link/internal/model"
)

// View is the data every page template receives. Page-specific values go
// in Data.
type View struct {
	Title    string
	Identity *model.Identity
	Error    string
	Notice   string
	Data     any
}

// Renderer holds one parsed template set per page. Each set is the base
// layout plus the page's "content" definition, so pages cannot clash.
type Renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

// NewRenderer parses templates/base.html and every other templates/*.html
// in fsys. A page is addressed by its file name without the extension.
func NewRenderer(fsys fs.FS, logger *slog.Logger) (*Renderer, error) {
	base, err := template.ParseFS(fsys, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("handler: parse base template: %w", err)
	}

	files, err := fs.Glob(fsys, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("handler: list templates: %w", err)
	}

	pages := make(map[string]*template.Template, len(files))
	for _, f := range files {
		name := strings.TrimSuffix(path.Base(f), ".html")
		if name == "base" {
			continue
		}
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("handler: clone base for %s: %w", name, err)
		}
		if _, err := t.ParseFS(fsys, f); err != nil {
			return nil, fmt.Errorf("handler: parse %s: %w", f, err)
		}
		pages[name] = t
	}

	return &Renderer{pages: pages, logger: logger}, nil
}

// Render writes page with the given status. The page is executed into a
// buffer first so a template error becomes a clean 500 instead of half a
// page.
func (rn *Renderer) Render(w http.ResponseWriter, status int, page string, v View) {
	t, ok := rn.pages[page]
	if !ok {
		rn.logger.Error("unknown page template", slog.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", v); err != nil {
		rn.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

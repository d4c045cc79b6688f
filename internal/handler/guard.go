package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/campus-link/internal/apperror"
	"github.com/sakif/campus-link/internal/auth"
	"github.com/sakif/campus-link/internal/session"
)

// DefaultLoadingWait is how long a guarded request waits for a Loading
// session to settle before answering with the loading page.
const DefaultLoadingWait = 2 * time.Second

// SessionLookup finds the session Manager for a client session.
// *session.Registry implements it.
type SessionLookup interface {
	Lookup(sessionID string) (*session.Manager, bool)
}

type guardKey struct{}

// guarded is what a guard leaves in the request context.
type guarded struct {
	snapshot session.Snapshot
	manager  *session.Manager
}

// Guard gates routes on the session Manager's identity and capability.
//
//	identity: someone is signed in
//	capability: signed in with a completed profile
//
// Pages redirect (to /login or /complete-profile); API routes answer 401
// or 403. While a session is still Loading, pages show the loading page
// and API routes answer 503.
type Guard struct {
	sessions    SessionLookup
	renderer    *Renderer
	loadingWait time.Duration
	logger      *slog.Logger
}

func NewGuard(sessions SessionLookup, renderer *Renderer, loadingWait time.Duration, logger *slog.Logger) *Guard {
	if loadingWait <= 0 {
		loadingWait = DefaultLoadingWait
	}
	return &Guard{sessions: sessions, renderer: renderer, loadingWait: loadingWait, logger: logger}
}

// RequireIdentity guards a page on a signed-in identity.
func (g *Guard) RequireIdentity(next http.Handler) http.Handler {
	return g.page(next, false)
}

// RequireCapability guards a page on a completed profile.
func (g *Guard) RequireCapability(next http.Handler) http.Handler {
	return g.page(next, true)
}

// APIRequireIdentity is RequireIdentity for JSON routes.
func (g *Guard) APIRequireIdentity(next http.Handler) http.Handler {
	return g.api(next, false)
}

// APIRequireCapability is RequireCapability for JSON routes.
func (g *Guard) APIRequireCapability(next http.Handler) http.Handler {
	return g.api(next, true)
}

func (g *Guard) page(next http.Handler, needCapability bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gd := g.resolve(r, true)

		switch {
		case gd.snapshot.State == session.Loading:
			g.renderer.Render(w, http.StatusOK, "loading", View{
				Title:    "Loading",
				Identity: gd.snapshot.Identity,
			})
		case gd.snapshot.Identity == nil:
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		case needCapability && !gd.snapshot.CanAccessProjects:
			http.Redirect(w, r, "/complete-profile", http.StatusSeeOther)
		default:
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), guardKey{}, gd)))
		}
	})
}

func (g *Guard) api(next http.Handler, needCapability bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gd := g.resolve(r, true)

		switch {
		case gd.snapshot.State == session.Loading:
			writeError(w, apperror.Unavailable("Your session is still loading, please retry.", nil))
		case gd.snapshot.Identity == nil:
			writeError(w, apperror.Unauthenticated("You must be logged in."))
		case needCapability && !gd.snapshot.CanAccessProjects:
			writeError(w, apperror.Forbidden("Complete your profile to access projects."))
		default:
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), guardKey{}, gd)))
		}
	})
}

// Current returns the caller's session snapshot without waiting. Unguarded
// pages use it to render the navbar.
func (g *Guard) Current(r *http.Request) session.Snapshot {
	if gd, ok := r.Context().Value(guardKey{}).(guarded); ok {
		return gd.snapshot
	}
	return g.resolve(r, false).snapshot
}

// resolve finds the Manager behind the request's session cookie. No session,
// or a session the registry does not know, is anonymous.
func (g *Guard) resolve(r *http.Request, wait bool) guarded {
	anonymous := guarded{snapshot: session.Snapshot{
		State:     session.Anonymous,
		StateName: session.Anonymous.String(),
	}}

	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		return anonymous
	}
	m, ok := g.sessions.Lookup(sess.ID)
	if !ok {
		g.logger.Debug("no session manager for session", slog.String("session_id", sess.ID))
		return anonymous
	}

	snap := m.Snapshot()
	if wait && snap.State == session.Loading {
		ctx, cancel := context.WithTimeout(r.Context(), g.loadingWait)
		defer cancel()
		if err := m.Wait(ctx); err == nil {
			snap = m.Snapshot()
		}
	}
	return guarded{snapshot: snap, manager: m}
}

// guardedFrom returns what the guard stored for this request.
func guardedFrom(ctx context.Context) (guarded, bool) {
	gd, ok := ctx.Value(guardKey{}).(guarded)
	return gd, ok
}

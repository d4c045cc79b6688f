package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/campus-link/internal/auth"
	"github.com/sakif/campus-link/internal/model"
)

// Source is where session-change notifications come from.
// auth.Provider satisfies it.
type Source interface {
	Subscribe(fn auth.Listener) (unsubscribe func())
}

// Registry keeps one Manager per client session. It subscribes to the auth
// provider once, at Start, and unsubscribes at Close.
type Registry struct {
	source   Source
	profiles ProfileReader
	timeout  time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	managers    map[string]*Manager
	unsubscribe func()
}

func NewRegistry(source Source, profiles ProfileReader, timeout time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		source:   source,
		profiles: profiles,
		timeout:  timeout,
		logger:   logger,
		managers: make(map[string]*Manager),
	}
}

// Start subscribes to the provider. Calling it twice is a no-op.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unsubscribe != nil {
		return
	}
	r.unsubscribe = r.source.Subscribe(r.handle)
	r.logger.Info("session registry subscribed to auth provider")
}

// Close unsubscribes and forgets every Manager.
func (r *Registry) Close() {
	r.mu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.managers = make(map[string]*Manager)
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Lookup returns the Manager for a client session.
func (r *Registry) Lookup(sessionID string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[sessionID]
	return m, ok
}

// Len reports how many client sessions are tracked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

// handle is the auth.Listener. A nil identity ends the client session: its
// Manager goes Anonymous and is dropped from the registry.
func (r *Registry) handle(ctx context.Context, sessionID string, identity *model.Identity) {
	r.mu.Lock()
	m, ok := r.managers[sessionID]
	if !ok && identity != nil {
		m = NewManager(r.profiles, r.timeout, r.logger.With(slog.String("session_id", sessionID)))
		r.managers[sessionID] = m
		ok = true
	}
	if identity == nil {
		delete(r.managers, sessionID)
	}
	r.mu.Unlock()

	if ok {
		m.HandleAuthChange(ctx, identity)
	}
}

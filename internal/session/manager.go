// Package session tracks, per client session, who is signed in and whether
// their profile is complete, which is what gates the project features.
//
// A Manager has exactly two mutators:
//
//	HandleAuthChange: called for every auth provider notification
//	ProfileCompleted: called by the profile form after a completing save
//
// Everything else only observes. Each non-nil notification issues one
// profile read in the background. Reads are tagged with a generation number
// taken when they start; a read that finishes after a newer notification
// (or after ProfileCompleted) is discarded, so a slow read can never undo a
// sign-out.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/campus-link/internal/apperror"
	"github.com/sakif/campus-link/internal/model"
)

// DefaultProfileReadTimeout bounds each profile read.
const DefaultProfileReadTimeout = 10 * time.Second

// State is where a client session is in the sign-in lifecycle.
type State int

const (
	Loading State = iota
	Anonymous
	AuthenticatedIncompleteProfile
	AuthenticatedComplete
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Anonymous:
		return "anonymous"
	case AuthenticatedIncompleteProfile:
		return "authenticated_incomplete_profile"
	case AuthenticatedComplete:
		return "authenticated_complete"
	default:
		return "unknown"
	}
}

// ProfileReader is the single read a Manager issues.
// repository.ProfileRepository satisfies it.
type ProfileReader interface {
	Get(ctx context.Context, uid string) (*model.Profile, error)
}

// Snapshot is a consistent copy of a Manager's state.
type Snapshot struct {
	Identity          *model.Identity `json:"identity"`
	CanAccessProjects bool            `json:"canAccessProjects"`
	State             State           `json:"-"`
	StateName         string          `json:"state"`
}

// Manager holds one client session's identity and capability.
type Manager struct {
	profiles ProfileReader
	timeout  time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	identity   *model.Identity
	capable    bool
	state      State
	generation uint64
	settled    chan struct{}

	reads sync.WaitGroup
}

// NewManager returns a Manager in the Loading state. A timeout <= 0 means
// DefaultProfileReadTimeout.
func NewManager(profiles ProfileReader, timeout time.Duration, logger *slog.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultProfileReadTimeout
	}
	return &Manager{
		profiles: profiles,
		timeout:  timeout,
		logger:   logger,
		state:    Loading,
		settled:  make(chan struct{}),
	}
}

// HandleAuthChange applies one auth provider notification.
//
// A nil identity disables the capability at once and issues no read. A
// non-nil identity issues one profile read. Until it finishes the previous
// capability is kept for the same identity and dropped for a different
// one; a Manager that has never settled stays Loading.
func (m *Manager) HandleAuthChange(ctx context.Context, identity *model.Identity) {
	m.mu.Lock()
	m.generation++

	if identity == nil {
		m.identity = nil
		m.capable = false
		m.setState(Anonymous)
		m.mu.Unlock()
		return
	}

	if !m.identity.SameAs(identity) {
		m.capable = false
		if m.state != Loading {
			m.setState(AuthenticatedIncompleteProfile)
		}
	}
	copied := *identity
	m.identity = &copied
	gen := m.generation
	m.mu.Unlock()

	// The read outlives the request that triggered the notification.
	base := context.WithoutCancel(ctx)

	m.reads.Add(1)
	go func() {
		defer m.reads.Done()
		m.readProfile(base, gen, copied.ID)
	}()
}

// ProfileCompleted flips the capability on for identityID without waiting
// for the next notification. It reports whether the signal was applied:
// it is ignored when identityID is not the current identity.
func (m *Manager) ProfileCompleted(identityID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.identity == nil || m.identity.ID != identityID {
		return false
	}

	// Any read still in flight predates the save.
	m.generation++
	m.capable = true
	m.setState(AuthenticatedComplete)
	return true
}

// Snapshot returns the current identity, capability and state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var identity *model.Identity
	if m.identity != nil {
		c := *m.identity
		identity = &c
	}
	return Snapshot{
		Identity:          identity,
		CanAccessProjects: m.capable,
		State:             m.state,
		StateName:         m.state.String(),
	}
}

// Wait blocks until the Manager has left Loading or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-m.settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) readProfile(ctx context.Context, gen uint64, uid string) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	profile, err := m.profiles.Get(ctx, uid)
	complete := err == nil && profile != nil && profile.ProfileCompleted

	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		m.logger.Warn("profile read failed, treating profile as incomplete",
			slog.String("uid", uid),
			slog.String("error", err.Error()),
		)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation {
		m.logger.Debug("discarding stale profile read",
			slog.String("uid", uid),
			slog.Uint64("read_generation", gen),
			slog.Uint64("current_generation", m.generation),
		)
		return
	}

	m.capable = complete
	if complete {
		m.setState(AuthenticatedComplete)
	} else {
		m.setState(AuthenticatedIncompleteProfile)
	}
}

// setState must be called with mu held.
func (m *Manager) setState(s State) {
	m.state = s
	if s == Loading {
		return
	}
	select {
	case <-m.settled:
	default:
		close(m.settled)
	}
}

// idle waits for every background read to finish. Tests use it.
func (m *Manager) idle() {
	m.reads.Wait()
}
